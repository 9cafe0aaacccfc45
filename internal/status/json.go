package status

import (
	"encoding/json"
	"strconv"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string        `json:"event,omitempty"`
	Reason        string        `json:"reason,omitempty"`
	SensorID      string        `json:"sensor_id"`
	Pump          string        `json:"pump"`
	Regime        string        `json:"regime"`
	LastReading   *ReadingJSON  `json:"last_reading,omitempty"`
	Settings      *SettingsJSON `json:"settings,omitempty"`
	UptimeSeconds int64         `json:"uptime_seconds"`
	StartTime     string        `json:"start_time"`
	Timestamp     string        `json:"timestamp"`
	MQTT          MQTTStatus    `json:"mqtt"`
	Counts        CountsJSON    `json:"counts"`
	Network       *NetworkJSON  `json:"network,omitempty"`
	Config        ConfigJSON    `json:"config"`
}

// ReadingJSON is the last valid reading.
type ReadingJSON struct {
	PH        string  `json:"ph_value"`
	Voltage   float64 `json:"voltage"`
	Timestamp string  `json:"timestamp"`
}

// SettingsJSON mirrors the settings document served by the settings endpoint.
type SettingsJSON struct {
	DayPump      int64  `json:"day_pump"`
	DayBreak     int64  `json:"day_break"`
	NightPump    int64  `json:"night_pump"`
	NightBreak   int64  `json:"night_break"`
	MessInterval int64  `json:"mess_interval"`
	DayStart     string `json:"day_start"`
	NightStart   string `json:"night_start"`
	Updated      string `json:"updated"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of event counts.
type CountsJSON struct {
	ReadingsReported int `json:"readings_reported"`
	ReadingsRejected int `json:"readings_rejected"`
	ReportErrors     int `json:"report_errors"`
	SampleErrors     int `json:"sample_errors"`
	SkippedCycles    int `json:"skipped_cycles"`
	PollOK           int `json:"poll_ok"`
	PollErrors       int `json:"poll_errors"`
	PumpCycles       int `json:"pump_cycles"`
	ActuatorErrors   int `json:"actuator_errors"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	SettingsURL string `json:"settings_url"`
	ReportURL   string `json:"report_url"`
	PollMs      int64  `json:"poll_ms"`
	FallbackMs  int64  `json:"fallback_ms"`
	HeartbeatMs int64  `json:"heartbeat_ms"`
	Timezone    string `json:"timezone"`
	Broker      string `json:"broker"`
	HTTPAddr    string `json:"http_addr"`
}

func orUnknown(s string) string {
	if s == "" {
		return "UNKNOWN"
	}
	return s
}

func buildInner(snap Snapshot) StatusInner {
	c := snap.Counts
	inner := StatusInner{
		SensorID:      snap.Config.SensorID,
		Pump:          orUnknown(string(snap.Pump)),
		Regime:        orUnknown(string(snap.Regime)),
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			ReadingsReported: c.ReadingsReported,
			ReadingsRejected: c.ReadingsRejected,
			ReportErrors:     c.ReportErrors,
			SampleErrors:     c.SampleErrors,
			SkippedCycles:    c.SkippedCycles,
			PollOK:           c.PollOK,
			PollErrors:       c.PollErrors,
			PumpCycles:       c.PumpCycles,
			ActuatorErrors:   c.ActuatorErrors,
		},
		Config: ConfigJSON{
			SettingsURL: snap.Config.SettingsURL,
			ReportURL:   snap.Config.ReportURL,
			PollMs:      snap.Config.PollMs,
			FallbackMs:  snap.Config.FallbackMs,
			HeartbeatMs: snap.Config.HeartbeatMs,
			Timezone:    snap.Config.Timezone,
			Broker:      snap.Config.Broker,
			HTTPAddr:    snap.Config.HTTPAddr,
		},
	}

	if snap.HasReading {
		r := snap.LastReading
		inner.LastReading = &ReadingJSON{
			PH:        strconv.FormatFloat(r.PH, 'f', 3, 64),
			Voltage:   r.Voltage,
			Timestamp: r.Timestamp.UTC().Format(time.RFC3339),
		}
	}

	if snap.HasSettings {
		s := snap.Settings
		inner.Settings = &SettingsJSON{
			DayPump:      int64(s.DayPump / time.Second),
			DayBreak:     int64(s.DayBreak / time.Second),
			NightPump:    int64(s.NightPump / time.Second),
			NightBreak:   int64(s.NightBreak / time.Second),
			MessInterval: int64(s.MeasurementInterval / time.Second),
			DayStart:     s.DayStart.String(),
			NightStart:   s.NightStart.String(),
			Updated:      snap.SettingsUpdated.UTC().Format(time.RFC3339),
		}
	}

	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
