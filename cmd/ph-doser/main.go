// Command ph-doser measures pH, reports readings to a collector and drives
// a dosing pump on a day/night duty cycle fetched from a settings server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"periph.io/x/conn/v3/physic"

	"github.com/sweeney/ph-doser/internal/analog"
	"github.com/sweeney/ph-doser/internal/config"
	"github.com/sweeney/ph-doser/internal/control"
	"github.com/sweeney/ph-doser/internal/gpio"
	"github.com/sweeney/ph-doser/internal/logic"
	"github.com/sweeney/ph-doser/internal/metrics"
	"github.com/sweeney/ph-doser/internal/mqtt"
	"github.com/sweeney/ph-doser/internal/remote"
	"github.com/sweeney/ph-doser/internal/report"
	"github.com/sweeney/ph-doser/internal/settings"
	"github.com/sweeney/ph-doser/internal/status"
	"github.com/sweeney/ph-doser/internal/system"
	"github.com/sweeney/ph-doser/internal/web"
)

const defaultConfigPath = "/etc/ph-doser/ph-doser.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "YAML configuration file (missing file = defaults)")
	httpAddr := flag.String("http", "", `HTTP status address, overrides http.addr ("off" disables)`)
	broker := flag.String("broker", "", `MQTT broker address, overrides mqtt.broker ("off" disables)`)
	printReading := flag.Bool("print-reading", false, "Take one pH reading, print it and exit")
	printConfig := flag.Bool("print-config", false, "Print the effective configuration and exit")

	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}
	applyOverrides(cfg, *httpAddr, *broker)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("fatal: invalid config: %v", err)
	}

	if *printConfig {
		data, err := cfg.Marshal()
		if err != nil {
			log.Fatalf("fatal: %v", err)
		}
		os.Stdout.Write(data)
		return
	}

	if err := run(cfg, *printReading); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

// applyOverrides applies non-empty flag values on top of the file.
func applyOverrides(cfg *config.Config, httpAddr, broker string) {
	switch httpAddr {
	case "":
	case "off":
		cfg.HTTP.Addr = ""
	default:
		cfg.HTTP.Addr = httpAddr
	}
	switch broker {
	case "":
	case "off":
		cfg.MQTT.Broker = ""
	default:
		cfg.MQTT.Broker = broker
	}
}

func run(cfg *config.Config, printOnly bool) error {
	loc, err := time.LoadLocation(cfg.Timing.Timezone)
	if err != nil {
		return fmt.Errorf("load timezone: %w", err)
	}

	// Initialize ADC
	adc, err := analog.NewADS1015Reader(analog.ADS1015Config{
		Bus:       cfg.ADC.Bus,
		Address:   cfg.ADC.Address,
		Channel:   cfg.ADC.Channel,
		FullScale: physic.ElectricPotential(cfg.ADC.FullScale * float64(physic.Volt)),
	})
	if err != nil {
		return fmt.Errorf("init adc: %w", err)
	}
	defer adc.Close()

	// Print reading mode
	if printOnly {
		sampler := &control.Sampler{
			ADC:         adc,
			Calibration: cfg.Calibration,
			SensorID:    cfg.Sensor.ID,
			Settle:      cfg.ADC.Settle,
		}
		r, err := sampler.Measure(context.Background())
		return printReading(os.Stdout, r, err)
	}

	// Initialize pump output, forced off until the scheduler takes over
	pump, err := gpio.NewRealActuator(cfg.Pump.Chip, cfg.Pump.Pin, cfg.Pump.ActiveLow)
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer pump.Close()
	if err := pump.Set(false); err != nil {
		return fmt.Errorf("pump off: %w", err)
	}

	// Initialize status tracker (before STARTUP so snapshot is available)
	tracker := status.NewTracker(time.Now(), statusConfig(cfg))
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}

	client := remote.NewClient(remote.Config{
		SettingsURL:     cfg.Endpoints.SettingsURL,
		ReportURL:       cfg.Endpoints.ReportURL,
		SensorID:        cfg.Sensor.ID,
		Timeout:         cfg.Endpoints.Timeout,
		BreakerFailures: cfg.Endpoints.BreakerFailures,
		BreakerOpen:     cfg.Endpoints.BreakerOpen,
	}, nil)
	reporter := report.NewFanout(client)

	// Initialize MQTT
	var publisher mqtt.Publisher
	var mqttStatus mqtt.ConnectionStatus
	if cfg.MQTT.Broker != "" {
		p := mqtt.NewRealPublisher(cfg.MQTT.Broker, cfg.MQTT.ClientID, mqtt.TopicsFor(cfg.Sensor.ID))
		defer p.Close()
		publisher, mqttStatus = p, p
		reporter.AddSink("mqtt", p)
	}

	// Initialize InfluxDB mirror
	if cfg.Influx.URL != "" {
		sink, err := report.NewInfluxSink(report.InfluxConfig{
			URL:         cfg.Influx.URL,
			Token:       cfg.Influx.Token,
			Org:         cfg.Influx.Org,
			Bucket:      cfg.Influx.Bucket,
			Measurement: cfg.Influx.Measurement,
		})
		if err != nil {
			return fmt.Errorf("init influx: %w", err)
		}
		defer sink.Close()
		reporter.AddSink("influx", sink)
	}

	// Start HTTP status server
	if cfg.HTTP.Addr != "" {
		srv := web.New(cfg.HTTP.Addr, tracker, metrics.NewRegistry(tracker))
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("http status server listening on %s", cfg.HTTP.Addr)
	}

	// Wait for network and clock; a signal during the wait exits cleanly
	if err := waitReady(cfg); err != nil {
		if errors.Is(err, context.Canceled) {
			log.Printf("interrupted while waiting for readiness")
			return nil
		}
		log.Printf("readiness: %v; starting anyway", err)
	}

	// Publish startup event with full status snapshot
	if publisher != nil {
		snap := tracker.Snapshot()
		startupEvent := mqtt.SystemEvent{
			Timestamp:  snap.Now,
			Event:      "STARTUP",
			Retained:   true,
			RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
		}
		if err := publisher.PublishSystem(startupEvent); err != nil {
			log.Printf("failed to publish startup event: %v", err)
		} else {
			log.Printf("published startup event")
		}
	}

	store := settings.NewStore()
	poller := &control.Poller{
		Source:  client,
		Store:   store,
		Tracker: tracker,
		Period:  cfg.Timing.PollInterval,
	}
	scheduler := &control.Scheduler{
		Store:    store,
		Pump:     pump,
		Tracker:  tracker,
		Fallback: cfg.Timing.Fallback,
		Location: loc,
	}
	var events *control.EventQueue
	if publisher != nil {
		events = control.NewEventQueue(publisher, 16)
		go events.Run()
		scheduler.Events = events
	}
	sampler := &control.Sampler{
		ADC:         adc,
		Store:       store,
		Reporter:    reporter,
		Tracker:     tracker,
		Calibration: cfg.Calibration,
		SensorID:    cfg.Sensor.ID,
		Settle:      cfg.ADC.Settle,
		Fallback:    cfg.Timing.Fallback,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	for name, loop := range map[string]func(context.Context) error{
		"poller":    poller.Run,
		"scheduler": scheduler.Run,
		"sampler":   sampler.Run,
	} {
		name, loop := name, loop
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := loop(ctx); err != nil {
				log.Printf("%s stopped: %v", name, err)
			}
		}()
	}

	log.Printf("started: sensor=%s settings=%s report=%s poll=%v tz=%s broker=%s sinks=%v",
		cfg.Sensor.ID, cfg.Endpoints.SettingsURL, cfg.Endpoints.ReportURL,
		cfg.Timing.PollInterval, loc, cfg.MQTT.Broker, reporter.Sinks())
	system.NotifyReady()

	var heartbeat <-chan time.Time
	if cfg.Timing.Heartbeat > 0 {
		ticker := time.NewTicker(cfg.Timing.Heartbeat)
		defer ticker.Stop()
		heartbeat = ticker.C
	}

	err = runLoop(publisher, mqttStatus, tracker, time.Now, heartbeat, sigCh)

	system.NotifyStopping()
	cancel()
	wg.Wait()
	if events != nil {
		events.Close()
	}
	log.Printf("stopped")
	return err
}

func waitReady(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	r := system.Readiness{
		Timesync: cfg.Readiness.WaitTimesync,
		MaxWait:  cfg.Readiness.MaxWait,
	}
	if cfg.Readiness.WaitNetwork {
		addr, err := system.HostPort(cfg.Endpoints.SettingsURL)
		if err != nil {
			return err
		}
		r.Addr = addr
	}
	err := system.WaitReady(ctx, r)
	if ctx.Err() != nil {
		return context.Canceled
	}
	return err
}

// runLoop publishes heartbeats until a signal arrives, then publishes the
// shutdown event. The control loops run independently of it.
func runLoop(publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, now func() time.Time, heartbeat <-chan time.Time, sig <-chan os.Signal) error {
	for {
		select {
		case s := <-sig:
			log.Printf("received %v, shutting down", s)
			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}
			if publisher == nil {
				return nil
			}
			event := mqtt.SystemEvent{
				Timestamp: now(),
				Event:     "SHUTDOWN",
				Reason:    signalName,
				Retained:  true,
			}
			if tracker != nil {
				if mqttStatus != nil {
					tracker.SetMQTTConnected(mqttStatus.IsConnected())
				}
				snap := tracker.Snapshot()
				event.RawPayload = status.FormatStatusEvent(snap, "SHUTDOWN", signalName)
			}
			if err := publisher.PublishSystem(event); err != nil {
				log.Printf("failed to publish shutdown event: %v", err)
			} else {
				log.Printf("published shutdown event")
			}
			return nil

		case t := <-heartbeat:
			if tracker != nil {
				if mqttStatus != nil {
					tracker.SetMQTTConnected(mqttStatus.IsConnected())
				}
				// Refresh network info for heartbeat
				if net := readNetworkInfo(); net != nil {
					tracker.SetNetwork(net)
				}
			}

			var snap status.Snapshot
			if tracker != nil {
				snap = tracker.Snapshot()
				log.Printf("heartbeat: uptime=%v pump=%s regime=%s reported=%d rejected=%d poll_errors=%d",
					snap.Uptime().Truncate(time.Second), snap.Pump, snap.Regime,
					snap.Counts.ReadingsReported, snap.Counts.ReadingsRejected, snap.Counts.PollErrors)
			}
			if publisher == nil {
				continue
			}

			hbEvent := mqtt.SystemEvent{
				Timestamp: t,
				Event:     "HEARTBEAT",
			}
			if tracker != nil {
				hbEvent.RawPayload = status.FormatStatusEvent(snap, "HEARTBEAT", "")
			}
			if err := publisher.PublishSystem(hbEvent); err != nil {
				log.Printf("heartbeat publish error: %v", err)
			}
		}
	}
}

func statusConfig(cfg *config.Config) status.Config {
	return status.Config{
		SensorID:    cfg.Sensor.ID,
		SettingsURL: cfg.Endpoints.SettingsURL,
		ReportURL:   cfg.Endpoints.ReportURL,
		PollMs:      cfg.Timing.PollInterval.Milliseconds(),
		FallbackMs:  cfg.Timing.Fallback.Milliseconds(),
		HeartbeatMs: cfg.Timing.Heartbeat.Milliseconds(),
		Timezone:    cfg.Timing.Timezone,
		Broker:      cfg.MQTT.Broker,
		HTTPAddr:    cfg.HTTP.Addr,
	}
}

// printReading writes a one-shot reading. An out-of-range pH is printed
// and flagged; a sensor fault is returned.
func printReading(w io.Writer, r logic.Reading, err error) error {
	if err != nil && !errors.Is(err, logic.ErrOutOfRange) {
		return fmt.Errorf("read sensor: %w", err)
	}
	fmt.Fprintf(w, "raw: %.2f, voltage: %.4f V, pH: %.3f", r.Raw, r.Voltage, r.PH)
	if err != nil {
		fmt.Fprint(w, " (out of range, would not be reported)")
	}
	fmt.Fprintln(w)
	return nil
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}
