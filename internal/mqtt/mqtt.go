// Package mqtt mirrors readings, pump transitions and lifecycle events to an
// MQTT broker, with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/sweeney/ph-doser/internal/logic"
)

// Topics are the MQTT topics for one sensor.
type Topics struct {
	Reading string
	Pump    string
	System  string
}

// TopicsFor builds the topic set rooted at ph/<sensorID>.
func TopicsFor(sensorID string) Topics {
	base := "ph/" + sensorID
	return Topics{
		Reading: base + "/reading",
		Pump:    base + "/pump",
		System:  base + "/system",
	}
}

// Publisher publishes events to MQTT.
type Publisher interface {
	// PublishReading sends a validated pH reading.
	// Returns error if publishing fails (should not crash the process).
	PublishReading(r logic.Reading) error

	// PublishPump sends a pump transition.
	PublishPump(e logic.PumpEvent) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT", "RECONNECTED"
	Reason     string // e.g., "SIGTERM", "MQTT_DISCONNECT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// ReadingPayload is the MQTT payload for a reading.
type ReadingPayload struct {
	Reading ReadingInner `json:"reading"`
}

// ReadingInner contains the reading details.
type ReadingInner struct {
	Timestamp string  `json:"timestamp"`
	SensorID  string  `json:"sensor_id"`
	PH        string  `json:"ph_value"`
	Voltage   float64 `json:"voltage"`
	Raw       float64 `json:"raw"`
}

// FormatReading creates the JSON payload for a reading.
// pH is a 3-decimal string, matching what the collector receives.
func FormatReading(r logic.Reading) ([]byte, error) {
	return json.Marshal(ReadingPayload{
		Reading: ReadingInner{
			Timestamp: r.Timestamp.UTC().Format(time.RFC3339),
			SensorID:  r.SensorID,
			PH:        strconv.FormatFloat(r.PH, 'f', 3, 64),
			Voltage:   round(r.Voltage, 4),
			Raw:       round(r.Raw, 2),
		},
	})
}

// PumpPayload is the MQTT payload for a pump transition.
type PumpPayload struct {
	Pump PumpInner `json:"pump"`
}

// PumpInner contains the pump transition details.
type PumpInner struct {
	Timestamp       string `json:"timestamp"`
	State           string `json:"state"`
	Regime          string `json:"regime"`
	DurationSeconds int64  `json:"duration_seconds"`
}

// FormatPump creates the JSON payload for a pump transition.
func FormatPump(e logic.PumpEvent) ([]byte, error) {
	return json.Marshal(PumpPayload{
		Pump: PumpInner{
			Timestamp:       e.Timestamp.UTC().Format(time.RFC3339),
			State:           string(e.State),
			Regime:          string(e.Regime),
			DurationSeconds: int64(e.Duration / time.Second),
		},
	})
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}

func round(v float64, places int) float64 {
	f, _ := strconv.ParseFloat(strconv.FormatFloat(v, 'f', places, 64), 64)
	return f
}
