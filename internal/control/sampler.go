package control

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/sweeney/ph-doser/internal/analog"
	"github.com/sweeney/ph-doser/internal/logic"
	"github.com/sweeney/ph-doser/internal/settings"
	"github.com/sweeney/ph-doser/internal/status"
)

// DefaultSettle is the pause after each raw sample.
const DefaultSettle = 30 * time.Millisecond

// ErrSensorFault is returned when every raw read in a cycle failed.
var ErrSensorFault = errors.New("every sample read failed")

// Reporter delivers an accepted reading.
type Reporter interface {
	Report(ctx context.Context, r logic.Reading) error
}

// Sampler reads the probe, filters and calibrates the samples, and reports
// plausible readings. It never touches the pump.
type Sampler struct {
	ADC         analog.Reader
	Store       *settings.Store
	Reporter    Reporter
	Tracker     *status.Tracker
	Calibration logic.Calibration
	SensorID    string
	Settle      time.Duration
	Fallback    time.Duration

	Now   func() time.Time
	Sleep Sleeper
}

// Acquire takes logic.SampleCount raw samples. A failed read counts as 0
// so the set always has the full length; failed is the number of reads
// that errored.
func (s *Sampler) Acquire(ctx context.Context) (samples []uint16, failed int, err error) {
	settle := s.Settle
	if settle <= 0 {
		settle = DefaultSettle
	}

	samples = make([]uint16, logic.SampleCount)
	var lastErr error
	for i := range samples {
		v, rerr := s.ADC.Read()
		if rerr != nil {
			failed++
			lastErr = rerr
			v = 0
		}
		samples[i] = v
		if err := s.sleep(ctx, settle); err != nil {
			return nil, failed, err
		}
	}

	if failed > 0 {
		log.Printf("sampler: %d of %d reads failed, last error: %v", failed, len(samples), lastErr)
	}
	if failed == len(samples) {
		return samples, failed, fmt.Errorf("%w: %v", ErrSensorFault, lastErr)
	}
	return samples, failed, nil
}

// Measure acquires one filtered, calibrated reading. When the pH is out of
// range the reading is still returned, alongside logic.ErrOutOfRange.
func (s *Sampler) Measure(ctx context.Context) (logic.Reading, error) {
	samples, failed, err := s.Acquire(ctx)
	if failed > 0 && s.Tracker != nil {
		s.Tracker.SampleErrors(failed)
	}
	if err != nil {
		return logic.Reading{}, err
	}

	raw, err := logic.TrimmedMean(samples)
	if err != nil {
		return logic.Reading{}, err
	}

	ph, volts, err := s.Calibration.Convert(raw)
	r := logic.Reading{
		Timestamp: s.now(),
		SensorID:  s.SensorID,
		PH:        ph,
		Voltage:   volts,
		Raw:       raw,
	}
	return r, err
}

// Cycle measures once and reports the result. Implausible readings and
// sensor faults are logged and never reported.
func (s *Sampler) Cycle(ctx context.Context) {
	r, err := s.Measure(ctx)
	switch {
	case ctx.Err() != nil:
		return
	case errors.Is(err, logic.ErrOutOfRange):
		log.Printf("sampler: discarding reading: %v (raw=%.2f voltage=%.4f)", err, r.Raw, r.Voltage)
		if s.Tracker != nil {
			s.Tracker.ReadingRejected(r.PH, r.Timestamp)
		}
	case err != nil:
		log.Printf("sampler: skipping cycle: %v", err)
		if s.Tracker != nil {
			s.Tracker.CycleSkipped()
		}
	default:
		log.Printf("sampler: pH %.3f (voltage=%.4f raw=%.2f)", r.PH, r.Voltage, r.Raw)
		if err := s.Reporter.Report(ctx, r); err != nil {
			log.Printf("sampler: report failed: %v", err)
			if s.Tracker != nil {
				s.Tracker.ReportFailed(r)
			}
			return
		}
		if s.Tracker != nil {
			s.Tracker.ReadingReported(r)
		}
	}
}

// Interval returns the wait between cycles: the configured measurement
// interval, or the fallback while no settings are known.
func (s *Sampler) Interval() time.Duration {
	if cfg, ok := s.Store.Get(); ok {
		return cfg.MeasurementInterval
	}
	if s.Fallback > 0 {
		return s.Fallback
	}
	return DefaultFallback
}

// Run samples until ctx is cancelled. Sampling does not wait for settings;
// readings are taken on the fallback interval until the first poll lands.
func (s *Sampler) Run(ctx context.Context) error {
	log.Printf("sampler: started, sensor=%s", s.SensorID)
	for {
		s.Cycle(ctx)
		if err := s.sleep(ctx, s.Interval()); err != nil {
			return nil
		}
	}
}

func (s *Sampler) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Sampler) sleep(ctx context.Context, d time.Duration) error {
	if s.Sleep != nil {
		return s.Sleep(ctx, d)
	}
	return Sleep(ctx, d)
}
