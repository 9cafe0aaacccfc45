// Package metrics exposes the status tracker as Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/sweeney/ph-doser/internal/logic"
	"github.com/sweeney/ph-doser/internal/status"
)

const namespace = "phdoser"

// Collector reads a tracker snapshot on every scrape.
type Collector struct {
	tracker *status.Tracker

	ph              *prometheus.Desc
	voltage         *prometheus.Desc
	readingTime     *prometheus.Desc
	pumpOn          *prometheus.Desc
	dayRegime       *prometheus.Desc
	settingsPresent *prometheus.Desc
	settingsTime    *prometheus.Desc
	readings        *prometheus.Desc
	polls           *prometheus.Desc
	sampleErrors    *prometheus.Desc
	skippedCycles   *prometheus.Desc
	pumpCycles      *prometheus.Desc
	actuatorErrors  *prometheus.Desc
	mqttConnected   *prometheus.Desc
	uptime          *prometheus.Desc
}

// NewCollector creates a Collector for t.
func NewCollector(t *status.Tracker) *Collector {
	desc := func(name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, labels, nil)
	}
	return &Collector{
		tracker:         t,
		ph:              desc("ph", "Last plausible pH reading.", "sensor_id"),
		voltage:         desc("probe_voltage_volts", "Probe voltage of the last plausible reading.", "sensor_id"),
		readingTime:     desc("last_reading_timestamp_seconds", "Unix time of the last plausible reading.", "sensor_id"),
		pumpOn:          desc("pump_on", "1 while the dosing pump is switched on."),
		dayRegime:       desc("regime_day", "1 while the scheduler runs the day regime."),
		settingsPresent: desc("settings_present", "1 once settings have been fetched."),
		settingsTime:    desc("settings_updated_timestamp_seconds", "Unix time settings were last applied."),
		readings:        desc("readings_total", "Readings by outcome.", "result"),
		polls:           desc("settings_polls_total", "Settings polls by outcome.", "result"),
		sampleErrors:    desc("sample_errors_total", "Failed raw ADC reads."),
		skippedCycles:   desc("skipped_cycles_total", "Sampling cycles abandoned for a sensor fault."),
		pumpCycles:      desc("pump_cycles_total", "Pump ON transitions."),
		actuatorErrors:  desc("actuator_errors_total", "Failed pump output writes."),
		mqttConnected:   desc("mqtt_connected", "1 while the MQTT client is connected."),
		uptime:          desc("uptime_seconds", "Seconds since the daemon started."),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.ph
	ch <- c.voltage
	ch <- c.readingTime
	ch <- c.pumpOn
	ch <- c.dayRegime
	ch <- c.settingsPresent
	ch <- c.settingsTime
	ch <- c.readings
	ch <- c.polls
	ch <- c.sampleErrors
	ch <- c.skippedCycles
	ch <- c.pumpCycles
	ch <- c.actuatorErrors
	ch <- c.mqttConnected
	ch <- c.uptime
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	snap := c.tracker.Snapshot()
	gauge := func(d *prometheus.Desc, v float64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v, labels...)
	}
	counter := func(d *prometheus.Desc, v int, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v), labels...)
	}

	if snap.HasReading {
		id := snap.LastReading.SensorID
		gauge(c.ph, snap.LastReading.PH, id)
		gauge(c.voltage, snap.LastReading.Voltage, id)
		gauge(c.readingTime, float64(snap.LastReading.Timestamp.Unix()), id)
	}
	gauge(c.pumpOn, boolFloat(snap.Pump == logic.PumpOn))
	gauge(c.dayRegime, boolFloat(snap.Regime == logic.RegimeDay))
	gauge(c.settingsPresent, boolFloat(snap.HasSettings))
	if snap.HasSettings {
		gauge(c.settingsTime, float64(snap.SettingsUpdated.Unix()))
	}

	counts := snap.Counts
	counter(c.readings, counts.ReadingsReported, "reported")
	counter(c.readings, counts.ReadingsRejected, "rejected")
	counter(c.readings, counts.ReportErrors, "report_error")
	counter(c.polls, counts.PollOK, "ok")
	counter(c.polls, counts.PollErrors, "error")
	counter(c.sampleErrors, counts.SampleErrors)
	counter(c.skippedCycles, counts.SkippedCycles)
	counter(c.pumpCycles, counts.PumpCycles)
	counter(c.actuatorErrors, counts.ActuatorErrors)

	gauge(c.mqttConnected, boolFloat(snap.MQTTConnected))
	gauge(c.uptime, snap.Uptime().Seconds())
}

// NewRegistry returns a registry holding the collector plus the Go
// runtime and process collectors.
func NewRegistry(t *status.Tracker) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		NewCollector(t),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func boolFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
