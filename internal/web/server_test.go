package web

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sweeney/ph-doser/internal/logic"
	"github.com/sweeney/ph-doser/internal/settings"
	"github.com/sweeney/ph-doser/internal/status"
)

func newTestServer(t *testing.T) (*httptest.Server, *status.Tracker) {
	t.Helper()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := status.Config{
		SensorID:    "tank-1",
		PollMs:      600000,
		FallbackMs:  30000,
		HeartbeatMs: 900000,
		Timezone:    "Europe/Berlin",
		Broker:      "tcp://192.168.1.200:1883",
		HTTPAddr:    ":80",
	}
	tr := status.NewTracker(start, cfg)

	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{Name: "test_up", Help: "test"}, func() float64 { return 1 }))

	srv := New(":0", tr, reg)
	ts := httptest.NewServer(srv.httpServer.Handler)
	t.Cleanup(ts.Close)
	return ts, tr
}

func getStatus(t *testing.T, url string) status.StatusJSON {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()

	var sj status.StatusJSON
	if err := json.NewDecoder(resp.Body).Decode(&sj); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	return sj
}

func TestJSONEndpoint(t *testing.T) {
	ts, tr := newTestServer(t)
	at := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	tr.SetPump(logic.PumpOn, logic.RegimeDay, at)
	tr.ReadingReported(logic.Reading{Timestamp: at, SensorID: "tank-1", PH: 6.8123, Voltage: 2.49})
	tr.SetMQTTConnected(true)

	resp, err := http.Get(ts.URL + "/index.json")
	if err != nil {
		t.Fatalf("GET /index.json: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: got %q, want application/json", ct)
	}

	var sj status.StatusJSON
	if err := json.NewDecoder(resp.Body).Decode(&sj); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}

	if sj.Status.Pump != "ON" {
		t.Errorf("Pump: got %q, want ON", sj.Status.Pump)
	}
	if sj.Status.Regime != "DAY" {
		t.Errorf("Regime: got %q, want DAY", sj.Status.Regime)
	}
	if sj.Status.LastReading == nil || sj.Status.LastReading.PH != "6.812" {
		t.Errorf("LastReading: got %+v", sj.Status.LastReading)
	}
	if !sj.Status.MQTT.Connected {
		t.Error("expected MQTT.Connected=true")
	}
	if sj.Status.Counts.PumpCycles != 1 {
		t.Errorf("Counts.PumpCycles: got %d, want 1", sj.Status.Counts.PumpCycles)
	}
	if sj.Status.Config.PollMs != 600000 {
		t.Errorf("Config.PollMs: got %d, want 600000", sj.Status.Config.PollMs)
	}
}

func TestJSONUnknownStateBeforeFirstCycle(t *testing.T) {
	ts, _ := newTestServer(t)
	sj := getStatus(t, ts.URL+"/index.json")

	if sj.Status.Pump != "UNKNOWN" {
		t.Errorf("Pump: got %q, want UNKNOWN", sj.Status.Pump)
	}
	if sj.Status.Settings != nil {
		t.Error("expected no settings before first poll")
	}
	if sj.Status.LastReading != nil {
		t.Error("expected no reading before first sample")
	}
}

func TestJSONNetworkInfo(t *testing.T) {
	ts, tr := newTestServer(t)
	tr.SetNetwork(&status.NetworkInfo{
		Type:   "wifi",
		IP:     "192.168.1.42",
		Status: "connected",
		SSID:   "MyNet",
	})

	sj := getStatus(t, ts.URL+"/index.json")
	if sj.Status.Network == nil {
		t.Fatal("expected Network in JSON")
	}
	if sj.Status.Network.IP != "192.168.1.42" {
		t.Errorf("Network.IP: got %q, want 192.168.1.42", sj.Status.Network.IP)
	}
}

func TestHTMLEndpointRoot(t *testing.T) {
	ts, tr := newTestServer(t)
	tr.SetPump(logic.PumpOff, logic.RegimeNight, time.Now())
	tr.ReadingReported(logic.Reading{Timestamp: time.Now(), PH: 7.25})

	resp, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	ct := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type: got %q, want text/html", ct)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "7.250") {
		t.Error("page should show the last pH")
	}
	if !strings.Contains(string(body), "NIGHT") {
		t.Error("page should show the regime")
	}
}

func TestHTMLEndpointIndexHTML(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/index.html")
	if err != nil {
		t.Fatalf("GET /index.html: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "not fetched yet") {
		t.Error("page should say settings are missing")
	}
}

func TestNotFoundForUnknownPath(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/nonexistent")
	if err != nil {
		t.Fatalf("GET /nonexistent: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 404 {
		t.Errorf("status: got %d, want 404", resp.StatusCode)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Post(ts.URL+"/index.json", "application/json", nil)
	if err != nil {
		t.Fatalf("POST /index.json: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("status: got %d, want 405", resp.StatusCode)
	}
}

func TestReadyz(t *testing.T) {
	ts, tr := newTestServer(t)

	resp, err := http.Get(ts.URL + "/readyz")
	if err != nil {
		t.Fatalf("GET /readyz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("before settings: got %d, want 503", resp.StatusCode)
	}

	tr.PollSucceeded(settings.Settings{MeasurementInterval: time.Minute}, time.Now())

	resp, err = http.Get(ts.URL + "/readyz")
	if err != nil {
		t.Fatalf("GET /readyz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("after settings: got %d, want 200", resp.StatusCode)
	}
}

func TestHealthz(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "test_up 1") {
		t.Errorf("metrics body missing test_up:\n%s", body)
	}
}

func TestMetricsDisabledWithoutGatherer(t *testing.T) {
	srv := New(":0", status.NewTracker(time.Now(), status.Config{}), nil)
	ts := httptest.NewServer(srv.httpServer.Handler)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != 404 {
		t.Errorf("status: got %d, want 404", resp.StatusCode)
	}
}

func TestStateChangesReflectedInResponse(t *testing.T) {
	ts, tr := newTestServer(t)

	sj1 := getStatus(t, ts.URL+"/index.json")
	if sj1.Status.Settings != nil {
		t.Error("expected no settings initially")
	}

	s, err := settings.Parse([]byte(`{"day_pump":5,"day_break":10,"night_pump":3,"night_break":20,` +
		`"mess_interval":60,"day_start":"06:00:00","night_start":"20:00:00"}`))
	if err != nil {
		t.Fatal(err)
	}
	tr.PollSucceeded(s, time.Now())
	tr.SetMQTTConnected(true)

	sj2 := getStatus(t, ts.URL+"/index.json")
	if sj2.Status.Settings == nil {
		t.Fatal("expected settings after poll")
	}
	if sj2.Status.Settings.DayPump != 5 || sj2.Status.Settings.NightStart != "20:00:00" {
		t.Errorf("Settings: got %+v", sj2.Status.Settings)
	}
	if !sj2.Status.MQTT.Connected {
		t.Error("expected MQTT connected after update")
	}
}
