// Package config loads the daemon's deployment configuration from YAML.
// Everything here is local to the device; the dosing schedule itself is
// fetched from the settings server at runtime.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"
	_ "time/tzdata" // embedded zone database for minimal images

	"gopkg.in/yaml.v3"

	"github.com/sweeney/ph-doser/internal/gpio"
	"github.com/sweeney/ph-doser/internal/logic"
)

// Poll interval bounds accepted by Validate.
const (
	MinPollInterval = 3 * time.Second
	MaxPollInterval = 600 * time.Second
)

// Config represents the daemon configuration.
type Config struct {
	Endpoints   EndpointsConfig   `yaml:"endpoints"`
	Sensor      SensorConfig      `yaml:"sensor"`
	Pump        PumpConfig        `yaml:"pump"`
	ADC         ADCConfig         `yaml:"adc"`
	Calibration logic.Calibration `yaml:"calibration"`
	Timing      TimingConfig      `yaml:"timing"`
	MQTT        MQTTConfig        `yaml:"mqtt"`
	Influx      InfluxConfig      `yaml:"influx"`
	HTTP        HTTPConfig        `yaml:"http"`
	Readiness   ReadinessConfig   `yaml:"readiness"`
}

// EndpointsConfig locates the settings server and the reading collector.
type EndpointsConfig struct {
	SettingsURL     string        `yaml:"settings_url"`
	ReportURL       string        `yaml:"report_url"`
	Timeout         time.Duration `yaml:"timeout"`
	BreakerFailures uint32        `yaml:"breaker_failures"`
	BreakerOpen     time.Duration `yaml:"breaker_open"`
}

// SensorConfig identifies this probe to the collector.
type SensorConfig struct {
	ID string `yaml:"id"`
}

// PumpConfig selects the GPIO line driving the pump relay.
type PumpConfig struct {
	Chip      string `yaml:"chip"`
	Pin       int    `yaml:"pin"`
	ActiveLow bool   `yaml:"active_low"`
}

// ADCConfig selects the I2C converter channel the probe is wired to.
type ADCConfig struct {
	Bus       string        `yaml:"bus"` // empty = first available bus
	Address   uint16        `yaml:"address"`
	Channel   int           `yaml:"channel"`
	FullScale float64       `yaml:"full_scale_volts"`
	Settle    time.Duration `yaml:"settle"`
}

// TimingConfig holds the local loop timings.
type TimingConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	Fallback     time.Duration `yaml:"fallback"`
	Heartbeat    time.Duration `yaml:"heartbeat"`
	Timezone     string        `yaml:"timezone"`
}

// MQTTConfig enables the MQTT mirror when Broker is set.
type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
}

// InfluxConfig enables the InfluxDB mirror when URL is set.
type InfluxConfig struct {
	URL         string `yaml:"url"`
	Token       string `yaml:"token"`
	Org         string `yaml:"org"`
	Bucket      string `yaml:"bucket"`
	Measurement string `yaml:"measurement"`
}

// HTTPConfig enables the status server when Addr is set.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// ReadinessConfig controls what the daemon waits for before starting.
type ReadinessConfig struct {
	WaitNetwork  bool          `yaml:"wait_network"`
	WaitTimesync bool          `yaml:"wait_timesync"`
	MaxWait      time.Duration `yaml:"max_wait"` // 0 = wait forever
}

// Default returns a configuration with sensible values.
func Default() *Config {
	return &Config{
		Endpoints: EndpointsConfig{
			SettingsURL:     "http://localhost/get_settings.php",
			ReportURL:       "http://localhost/add_ph.php",
			Timeout:         10 * time.Second,
			BreakerFailures: 5,
			BreakerOpen:     time.Minute,
		},
		Sensor: SensorConfig{ID: "ph-1"},
		Pump: PumpConfig{
			Chip: gpio.DefaultChip,
			Pin:  gpio.DefaultPinPump,
		},
		ADC: ADCConfig{
			Address:   0x48,
			Channel:   0,
			FullScale: 3.3,
			Settle:    30 * time.Millisecond,
		},
		Calibration: logic.DefaultCalibration(),
		Timing: TimingConfig{
			PollInterval: 10 * time.Minute,
			Fallback:     30 * time.Second,
			Heartbeat:    60 * time.Second,
			Timezone:     "Europe/Berlin",
		},
		MQTT: MQTTConfig{
			ClientID: "ph-doser",
		},
		Influx: InfluxConfig{
			Measurement: "ph",
		},
		HTTP: HTTPConfig{
			Addr: ":80",
		},
		Readiness: ReadinessConfig{
			WaitNetwork:  true,
			WaitTimesync: true,
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults; fields absent from the file keep their default values.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	cfg.ensureDefaults()

	return cfg, nil
}

// Marshal renders the configuration as YAML.
func (c *Config) Marshal() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// ensureDefaults fills zero values that have no meaningful zero.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.Endpoints.Timeout == 0 {
		c.Endpoints.Timeout = def.Endpoints.Timeout
	}
	if c.Endpoints.BreakerFailures == 0 {
		c.Endpoints.BreakerFailures = def.Endpoints.BreakerFailures
	}
	if c.Endpoints.BreakerOpen == 0 {
		c.Endpoints.BreakerOpen = def.Endpoints.BreakerOpen
	}
	if c.Pump.Chip == "" {
		c.Pump.Chip = def.Pump.Chip
	}
	if c.ADC.Address == 0 {
		c.ADC.Address = def.ADC.Address
	}
	if c.ADC.FullScale == 0 {
		c.ADC.FullScale = def.ADC.FullScale
	}
	if c.ADC.Settle == 0 {
		c.ADC.Settle = def.ADC.Settle
	}
	if c.Timing.PollInterval == 0 {
		c.Timing.PollInterval = def.Timing.PollInterval
	}
	if c.Timing.Fallback == 0 {
		c.Timing.Fallback = def.Timing.Fallback
	}
	if c.Timing.Heartbeat == 0 {
		c.Timing.Heartbeat = def.Timing.Heartbeat
	}
	if c.Timing.Timezone == "" {
		c.Timing.Timezone = def.Timing.Timezone
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = def.MQTT.ClientID
	}
	if c.Influx.Measurement == "" {
		c.Influx.Measurement = def.Influx.Measurement
	}
}

// Validate checks values that would otherwise fail at runtime.
func (c *Config) Validate() error {
	for name, raw := range map[string]string{
		"endpoints.settings_url": c.Endpoints.SettingsURL,
		"endpoints.report_url":   c.Endpoints.ReportURL,
	} {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%s: invalid URL %q", name, raw)
		}
	}
	if c.Sensor.ID == "" {
		return fmt.Errorf("sensor.id is required")
	}
	if c.Pump.Pin < 0 {
		return fmt.Errorf("pump.pin must be >= 0, got %d", c.Pump.Pin)
	}
	if c.ADC.Channel < 0 || c.ADC.Channel > 3 {
		return fmt.Errorf("adc.channel must be 0-3, got %d", c.ADC.Channel)
	}
	if c.Timing.PollInterval < MinPollInterval || c.Timing.PollInterval > MaxPollInterval {
		return fmt.Errorf("timing.poll_interval must be between %v and %v, got %v",
			MinPollInterval, MaxPollInterval, c.Timing.PollInterval)
	}
	if c.Timing.Fallback <= 0 {
		return fmt.Errorf("timing.fallback must be positive, got %v", c.Timing.Fallback)
	}
	if _, err := time.LoadLocation(c.Timing.Timezone); err != nil {
		return fmt.Errorf("timing.timezone: %w", err)
	}
	if err := c.Calibration.Check(); err != nil {
		return fmt.Errorf("calibration: %w", err)
	}
	return nil
}
