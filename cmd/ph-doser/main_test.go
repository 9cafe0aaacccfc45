package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/sweeney/ph-doser/internal/config"
	"github.com/sweeney/ph-doser/internal/control"
	"github.com/sweeney/ph-doser/internal/logic"
	"github.com/sweeney/ph-doser/internal/mqtt"
	"github.com/sweeney/ph-doser/internal/status"
)

// TestEnvVarNames verifies the env var constants match what pi-helper writes
// to /run/pi-helper.env. If pi-helper changes its var names, this test fails
// and we update the constants, not the other way around.
func TestEnvVarNames(t *testing.T) {
	// These are the canonical names from pi-helper.
	want := map[string]string{
		"NETWORK_TYPE":        envNetworkType,
		"NETWORK_IP":          envNetworkIP,
		"NETWORK_STATUS":      envNetworkStatus,
		"NETWORK_GATEWAY":     envNetworkGateway,
		"NETWORK_WIFI_STATUS": envNetworkWifiStatus,
		"NETWORK_WIFI_SSID":   envNetworkWifiSSID,
	}
	for canonical, got := range want {
		if got != canonical {
			t.Errorf("env var constant: got %q, want %q", got, canonical)
		}
	}
}

func TestReadNetworkInfoAllSet(t *testing.T) {
	t.Setenv(envNetworkType, "wifi")
	t.Setenv(envNetworkIP, "192.168.1.100")
	t.Setenv(envNetworkStatus, "connected")
	t.Setenv(envNetworkGateway, "192.168.1.1")
	t.Setenv(envNetworkWifiStatus, "connected")
	t.Setenv(envNetworkWifiSSID, "MyNetwork")

	info := readNetworkInfo()
	if info == nil {
		t.Fatal("expected non-nil NetworkInfo")
	}

	want := status.NetworkInfo{
		Type:       "wifi",
		IP:         "192.168.1.100",
		Status:     "connected",
		Gateway:    "192.168.1.1",
		WifiStatus: "connected",
		SSID:       "MyNetwork",
	}
	if *info != want {
		t.Errorf("got %+v, want %+v", *info, want)
	}
}

func TestReadNetworkInfoNoneSet(t *testing.T) {
	t.Setenv(envNetworkStatus, "")
	info := readNetworkInfo()
	if info != nil {
		t.Errorf("expected nil when NETWORK_STATUS is unset, got %+v", info)
	}
}

func TestReadNetworkInfoPartial(t *testing.T) {
	t.Setenv(envNetworkStatus, "connected")

	info := readNetworkInfo()
	if info == nil {
		t.Fatal("expected non-nil NetworkInfo when NETWORK_STATUS is set")
	}
	if info.Status != "connected" {
		t.Errorf("Status: got %q, want %q", info.Status, "connected")
	}
	if info.SSID != "" {
		t.Errorf("SSID: got %q, want empty", info.SSID)
	}
}

// --- flag overrides ---

func TestApplyOverrides(t *testing.T) {
	cfg := config.Default()
	cfg.MQTT.Broker = "tcp://file:1883"

	applyOverrides(cfg, "", "")
	if cfg.HTTP.Addr != ":80" || cfg.MQTT.Broker != "tcp://file:1883" {
		t.Errorf("empty flags changed config: http=%q broker=%q", cfg.HTTP.Addr, cfg.MQTT.Broker)
	}

	applyOverrides(cfg, ":8080", "tcp://flag:1883")
	if cfg.HTTP.Addr != ":8080" || cfg.MQTT.Broker != "tcp://flag:1883" {
		t.Errorf("flags not applied: http=%q broker=%q", cfg.HTTP.Addr, cfg.MQTT.Broker)
	}

	applyOverrides(cfg, "off", "off")
	if cfg.HTTP.Addr != "" || cfg.MQTT.Broker != "" {
		t.Errorf("off did not disable: http=%q broker=%q", cfg.HTTP.Addr, cfg.MQTT.Broker)
	}
}

func TestStatusConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Sensor.ID = "tank-3"
	sc := statusConfig(cfg)

	if sc.SensorID != "tank-3" {
		t.Errorf("SensorID: got %q", sc.SensorID)
	}
	if sc.PollMs != 600000 {
		t.Errorf("PollMs: got %d, want 600000", sc.PollMs)
	}
	if sc.FallbackMs != 30000 {
		t.Errorf("FallbackMs: got %d, want 30000", sc.FallbackMs)
	}
	if sc.Timezone != "Europe/Berlin" {
		t.Errorf("Timezone: got %q", sc.Timezone)
	}
}

// --- print-reading ---

func TestPrintReading(t *testing.T) {
	var buf bytes.Buffer
	r := logic.Reading{Raw: 2002.5, Voltage: 2.703075818653708, PH: 5.592467833673863}
	if err := printReading(&buf, r, nil); err != nil {
		t.Fatalf("printReading: %v", err)
	}
	want := "raw: 2002.50, voltage: 2.7031 V, pH: 5.592\n"
	if buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}
}

func TestPrintReadingOutOfRange(t *testing.T) {
	var buf bytes.Buffer
	r := logic.Reading{PH: 21}
	err := printReading(&buf, r, fmt.Errorf("%w: 21.000", logic.ErrOutOfRange))
	if err != nil {
		t.Fatalf("out-of-range should still print, got %v", err)
	}
	if !strings.Contains(buf.String(), "out of range") {
		t.Errorf("expected out of range marker, got %q", buf.String())
	}
}

func TestPrintReadingSensorFault(t *testing.T) {
	var buf bytes.Buffer
	err := printReading(&buf, logic.Reading{}, control.ErrSensorFault)
	if !errors.Is(err, control.ErrSensorFault) {
		t.Errorf("expected sensor fault, got %v", err)
	}
	if buf.Len() != 0 {
		t.Errorf("nothing should be printed, got %q", buf.String())
	}
}

// --- runLoop tests ---

// fakeClock returns a function that yields start, start+step, start+2*step, ...
// on successive calls. Not safe for concurrent use (only called from runLoop's goroutine).
func fakeClock(start time.Time, step time.Duration) func() time.Time {
	n := 0
	return func() time.Time {
		t := start.Add(time.Duration(n) * step)
		n++
		return t
	}
}

// runRunLoop drives runLoop with nBeats heartbeats followed by signal.
func runRunLoop(t *testing.T, pub mqtt.Publisher, tracker *status.Tracker, nBeats int, signal os.Signal) error {
	t.Helper()
	beat := make(chan time.Time)
	sig := make(chan os.Signal, 1)
	clock := fakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), time.Minute)

	var conn mqtt.ConnectionStatus
	if fp, ok := pub.(*mqtt.FakePublisher); ok && fp != nil {
		conn = fp
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- runLoop(pub, conn, tracker, clock, beat, sig)
	}()

	for i := 0; i < nBeats; i++ {
		beat <- time.Date(2026, 1, 1, 0, i+1, 0, 0, time.UTC)
	}
	sig <- signal

	select {
	case err := <-errCh:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("runLoop did not return after signal")
		return nil
	}
}

func TestRunLoopHeartbeat(t *testing.T) {
	pub := mqtt.NewFakePublisher()
	pub.Connected = true
	tracker := status.NewTracker(time.Now(), status.Config{SensorID: "tank-1"})
	tracker.SetPump(logic.PumpOn, logic.RegimeDay, time.Now())

	if err := runRunLoop(t, pub, tracker, 2, syscall.SIGTERM); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	var heartbeats, shutdowns int
	for i, se := range pub.SystemEvents {
		switch se.Event {
		case "HEARTBEAT":
			heartbeats++
			var sj status.StatusJSON
			if err := json.Unmarshal(pub.SystemPayloads[i], &sj); err != nil {
				t.Fatalf("decode heartbeat payload: %v", err)
			}
			if sj.Status.Event != "HEARTBEAT" || sj.Status.Pump != "ON" {
				t.Errorf("heartbeat payload: %+v", sj.Status)
			}
			if !sj.Status.MQTT.Connected {
				t.Error("heartbeat should refresh MQTT connection state")
			}
		case "SHUTDOWN":
			shutdowns++
		}
	}
	if heartbeats != 2 {
		t.Errorf("expected 2 HEARTBEAT events, got %d", heartbeats)
	}
	if shutdowns != 1 {
		t.Errorf("expected 1 SHUTDOWN event, got %d", shutdowns)
	}
}

func TestRunLoopPublishError(t *testing.T) {
	// Heartbeat publish fails; the loop keeps going and still shuts down.
	pub := mqtt.NewFakePublisher()
	pub.PublishSystemError = errors.New("broker unavailable")
	tracker := status.NewTracker(time.Now(), status.Config{})

	if err := runRunLoop(t, pub, tracker, 3, syscall.SIGTERM); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}
	if len(pub.SystemEvents) != 0 {
		t.Errorf("expected no recorded events, got %d", len(pub.SystemEvents))
	}
}

func TestRunLoopShutdownSIGINT(t *testing.T) {
	pub := mqtt.NewFakePublisher()
	tracker := status.NewTracker(time.Now(), status.Config{})

	if err := runRunLoop(t, pub, tracker, 0, syscall.SIGINT); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	if len(pub.SystemEvents) != 1 {
		t.Fatalf("expected 1 system event, got %d", len(pub.SystemEvents))
	}
	se := pub.SystemEvents[0]
	if se.Event != "SHUTDOWN" {
		t.Errorf("expected SHUTDOWN, got %q", se.Event)
	}
	if se.Reason != "SIGINT" {
		t.Errorf("expected reason SIGINT, got %q", se.Reason)
	}
	if se.Retained != true {
		t.Error("expected Retained=true for SHUTDOWN")
	}
}

func TestRunLoopShutdownSIGTERM(t *testing.T) {
	pub := mqtt.NewFakePublisher()
	tracker := status.NewTracker(time.Now(), status.Config{})

	if err := runRunLoop(t, pub, tracker, 0, syscall.SIGTERM); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	if len(pub.SystemEvents) != 1 {
		t.Fatalf("expected 1 system event, got %d", len(pub.SystemEvents))
	}
	se := pub.SystemEvents[0]
	if se.Reason != "SIGTERM" {
		t.Errorf("expected reason SIGTERM, got %q", se.Reason)
	}
	var sj status.StatusJSON
	if err := json.Unmarshal(pub.SystemPayloads[0], &sj); err != nil {
		t.Fatalf("decode shutdown payload: %v", err)
	}
	if sj.Status.Reason != "SIGTERM" {
		t.Errorf("payload reason: got %q", sj.Status.Reason)
	}
}

func TestRunLoopWithoutBroker(t *testing.T) {
	tracker := status.NewTracker(time.Now(), status.Config{})
	if err := runRunLoop(t, nil, tracker, 2, syscall.SIGTERM); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}
}

func TestRunLoopHeartbeatIncludesNetworkInfo(t *testing.T) {
	t.Setenv(envNetworkStatus, "connected")
	t.Setenv(envNetworkType, "wifi")
	t.Setenv(envNetworkIP, "192.168.1.42")
	t.Setenv(envNetworkGateway, "192.168.1.1")
	t.Setenv(envNetworkWifiStatus, "associated")
	t.Setenv(envNetworkWifiSSID, "HomeNet")

	pub := mqtt.NewFakePublisher()
	tracker := status.NewTracker(time.Now(), status.Config{})

	if err := runRunLoop(t, pub, tracker, 1, syscall.SIGTERM); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	var sj status.StatusJSON
	if err := json.Unmarshal(pub.SystemPayloads[0], &sj); err != nil {
		t.Fatalf("decode heartbeat payload: %v", err)
	}
	if sj.Status.Network == nil {
		t.Fatal("expected network info in heartbeat")
	}
	if sj.Status.Network.SSID != "HomeNet" || sj.Status.Network.IP != "192.168.1.42" {
		t.Errorf("network: got %+v", sj.Status.Network)
	}
}
