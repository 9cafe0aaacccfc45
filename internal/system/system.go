// Package system integrates the daemon with the host: it waits for the
// network and the clock before the loops start, and reports readiness to
// systemd.
package system

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/url"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/coreos/go-systemd/v22/daemon"
)

// TimesyncFile is created by systemd-timesyncd once the clock is synchronized.
const TimesyncFile = "/run/systemd/timesync/synchronized"

// ErrNotSynchronized is returned while the clock has not been synchronized.
var ErrNotSynchronized = errors.New("system: clock not synchronized")

// Readiness describes what must hold before the loops may start.
type Readiness struct {
	// Addr is a host:port that must accept a TCP connection. Empty skips
	// the network check.
	Addr string

	// Timesync requires TimesyncFile (or TimesyncPath) to exist.
	Timesync     bool
	TimesyncPath string

	// MaxWait bounds the total wait; 0 waits until ctx ends.
	MaxWait time.Duration

	InitialInterval time.Duration
	MaxInterval     time.Duration

	// Dial defaults to a net.Dialer with a 5s timeout.
	Dial func(ctx context.Context, network, addr string) (net.Conn, error)
}

// HostPort returns the host:port a URL connects to.
func HostPort(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	if u.Host == "" {
		return "", fmt.Errorf("no host in %q", rawURL)
	}
	port := u.Port()
	if port == "" {
		switch u.Scheme {
		case "https":
			port = "443"
		default:
			port = "80"
		}
	}
	return net.JoinHostPort(u.Hostname(), port), nil
}

// Check performs one readiness probe.
func (r Readiness) Check(ctx context.Context) error {
	if r.Timesync {
		path := r.TimesyncPath
		if path == "" {
			path = TimesyncFile
		}
		if _, err := os.Stat(path); err != nil {
			return ErrNotSynchronized
		}
	}
	if r.Addr != "" {
		dial := r.Dial
		if dial == nil {
			d := &net.Dialer{Timeout: 5 * time.Second}
			dial = d.DialContext
		}
		conn, err := dial(ctx, "tcp", r.Addr)
		if err != nil {
			return fmt.Errorf("dial %s: %w", r.Addr, err)
		}
		conn.Close()
	}
	return nil
}

// WaitReady retries Check with exponential backoff until it passes,
// MaxWait elapses or ctx ends.
func WaitReady(ctx context.Context, r Readiness) error {
	if r.Addr == "" && !r.Timesync {
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = r.MaxWait
	if r.InitialInterval > 0 {
		bo.InitialInterval = r.InitialInterval
	}
	if r.MaxInterval > 0 {
		bo.MaxInterval = r.MaxInterval
	} else {
		bo.MaxInterval = 30 * time.Second
	}

	start := time.Now()
	err := backoff.RetryNotify(func() error {
		return r.Check(ctx)
	}, backoff.WithContext(bo, ctx), func(err error, next time.Duration) {
		log.Printf("system: not ready: %v (retry in %v)", err, next.Round(time.Millisecond))
	})
	if err != nil {
		return fmt.Errorf("wait for readiness: %w", err)
	}
	log.Printf("system: ready after %v", time.Since(start).Round(time.Millisecond))
	return nil
}

// NotifyReady tells systemd the daemon has started. It is a no-op when
// not running under a Type=notify unit.
func NotifyReady() {
	notify(daemon.SdNotifyReady)
}

// NotifyStopping tells systemd the daemon is shutting down.
func NotifyStopping() {
	notify(daemon.SdNotifyStopping)
}

func notify(state string) {
	sent, err := daemon.SdNotify(false, state)
	switch {
	case err != nil:
		log.Printf("system: sd_notify %s: %v", state, err)
	case sent:
		log.Printf("system: sd_notify %s", state)
	}
}
