// Package remote talks to the settings server and the reading collector.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/sony/gobreaker"

	"github.com/sweeney/ph-doser/internal/logic"
)

// MaxSettingsBody caps how much of a settings response is read.
const MaxSettingsBody = 512

// ErrStatus is returned for a non-2xx response.
var ErrStatus = errors.New("remote: unexpected status")

// Config holds the endpoints and transport limits.
type Config struct {
	SettingsURL string
	ReportURL   string
	SensorID    string
	Timeout     time.Duration

	// Breaker trips after this many consecutive report failures and stays
	// open for BreakerOpen before allowing a probe request.
	BreakerFailures uint32
	BreakerOpen     time.Duration
}

// Client is the HTTP transport for settings and readings.
type Client struct {
	http    *http.Client
	cfg     Config
	breaker *gobreaker.CircuitBreaker
}

// NewClient creates a Client. A nil hc uses a client with cfg.Timeout.
func NewClient(cfg Config, hc *http.Client) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}
	if cfg.BreakerOpen <= 0 {
		cfg.BreakerOpen = time.Minute
	}
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}

	failures := cfg.BreakerFailures
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "collector",
		MaxRequests: 1,
		Timeout:     cfg.BreakerOpen,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= failures
		},
		// A cancelled request says nothing about the collector's health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Printf("remote: %s breaker %s -> %s", name, from, to)
		},
	})

	return &Client{http: hc, cfg: cfg, breaker: breaker}
}

// FetchSettings posts to the settings endpoint and returns at most
// MaxSettingsBody bytes of the response body.
func (c *Client) FetchSettings(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.SettingsURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("build settings request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("settings request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: settings %s", ErrStatus, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxSettingsBody))
	if err != nil {
		return nil, fmt.Errorf("read settings body: %w", err)
	}
	return body, nil
}

// readingPayload is the collector's JSON document.
type readingPayload struct {
	PHValue  string `json:"ph_value"`
	SensorID string `json:"sensor_id"`
}

// FormatReading renders the collector body for a reading.
func FormatReading(r logic.Reading) ([]byte, error) {
	return json.Marshal(readingPayload{
		PHValue:  strconv.FormatFloat(r.PH, 'f', 3, 64),
		SensorID: r.SensorID,
	})
}

// Report sends a reading to the collector through the circuit breaker.
// While the breaker is open the call fails fast with gobreaker.ErrOpenState.
// A cancelled ctx returns its error and does not count against the breaker.
func (c *Client) Report(ctx context.Context, r logic.Reading) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r.SensorID == "" {
		r.SensorID = c.cfg.SensorID
	}
	body, err := FormatReading(r)
	if err != nil {
		return fmt.Errorf("format reading: %w", err)
	}

	_, err = c.breaker.Execute(func() (interface{}, error) {
		return nil, c.post(ctx, body)
	})
	return err
}

func (c *Client) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.ReportURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build report request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.ContentLength = int64(len(body))
	req.Header.Set("Content-Length", strconv.Itoa(len(body)))

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("report request: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, MaxSettingsBody))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: report %s", ErrStatus, resp.Status)
	}
	return nil
}

// BreakerState reports the collector breaker state ("closed", "open", "half-open").
func (c *Client) BreakerState() string {
	return c.breaker.State().String()
}
