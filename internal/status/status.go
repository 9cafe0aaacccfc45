// Package status provides a thread-safe status tracker for the ph-doser daemon.
// It is written by the control loops and read by the HTTP server, the
// Prometheus collector and lifecycle events.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/ph-doser/internal/logic"
	"github.com/sweeney/ph-doser/internal/settings"
)

// NetworkInfo contains network state reported by pi-helper.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	SensorID    string
	SettingsURL string
	ReportURL   string
	PollMs      int64
	FallbackMs  int64
	HeartbeatMs int64
	Timezone    string
	Broker      string
	HTTPAddr    string
}

// Counts are monotonically increasing event counters since startup.
type Counts struct {
	ReadingsReported int
	ReadingsRejected int
	ReportErrors     int
	SampleErrors     int
	SkippedCycles    int
	PollOK           int
	PollErrors       int
	PumpCycles       int
	ActuatorErrors   int
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Pump          logic.PumpState
	Regime        logic.Regime
	PumpChangedAt time.Time

	Settings        settings.Settings
	HasSettings     bool
	SettingsUpdated time.Time
	LastPollError   string

	LastReading  logic.Reading
	HasReading   bool
	LastRejected float64
	LastRejectAt time.Time

	Counts        Counts
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// SetPump records a pump transition. A transition to ON counts one cycle.
func (t *Tracker) SetPump(state logic.PumpState, regime logic.Regime, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if state == logic.PumpOn && t.snap.Pump != logic.PumpOn {
		t.snap.Counts.PumpCycles++
	}
	t.snap.Pump = state
	t.snap.Regime = regime
	t.snap.PumpChangedAt = at
}

// ActuatorError counts a failed pump toggle.
func (t *Tracker) ActuatorError() {
	t.mu.Lock()
	t.snap.Counts.ActuatorErrors++
	t.mu.Unlock()
}

// PollSucceeded records a successfully applied settings fetch.
func (t *Tracker) PollSucceeded(s settings.Settings, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snap.Settings = s
	t.snap.HasSettings = true
	t.snap.SettingsUpdated = at
	t.snap.LastPollError = ""
	t.snap.Counts.PollOK++
}

// PollFailed records a failed settings fetch or parse.
func (t *Tracker) PollFailed(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snap.Counts.PollErrors++
	if err != nil {
		t.snap.LastPollError = err.Error()
	}
}

// ReadingReported records a reading accepted by the collector.
func (t *Tracker) ReadingReported(r logic.Reading) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snap.LastReading = r
	t.snap.HasReading = true
	t.snap.Counts.ReadingsReported++
}

// ReportFailed records a valid reading the collector did not accept.
// It still becomes the last known reading.
func (t *Tracker) ReportFailed(r logic.Reading) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snap.LastReading = r
	t.snap.HasReading = true
	t.snap.Counts.ReportErrors++
}

// ReadingRejected records a pH outside the plausible range.
func (t *Tracker) ReadingRejected(ph float64, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snap.LastRejected = ph
	t.snap.LastRejectAt = at
	t.snap.Counts.ReadingsRejected++
}

// SampleErrors adds n failed raw reads.
func (t *Tracker) SampleErrors(n int) {
	t.mu.Lock()
	t.snap.Counts.SampleErrors += n
	t.mu.Unlock()
}

// CycleSkipped counts a sampling cycle abandoned for a hardware fault.
func (t *Tracker) CycleSkipped() {
	t.mu.Lock()
	t.snap.Counts.SkippedCycles++
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
