package control

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/sweeney/ph-doser/internal/analog"
	"github.com/sweeney/ph-doser/internal/logic"
	"github.com/sweeney/ph-doser/internal/settings"
	"github.com/sweeney/ph-doser/internal/status"
)

type fakeReporter struct {
	mu       sync.Mutex
	readings []logic.Reading
	err      error
}

func (f *fakeReporter) Report(ctx context.Context, r logic.Reading) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.readings = append(f.readings, r)
	return nil
}

func (f *fakeReporter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.readings)
}

var noisySamples = []uint16{10, 4090, 2000, 2010, 2005, 1995, 2000, 2010, 2005, 1990}

func newSampler(clock *fakeClock, adc analog.Reader, store *settings.Store) (*Sampler, *fakeReporter, *status.Tracker) {
	rep := &fakeReporter{}
	tracker := status.NewTracker(clock.Now(), status.Config{})
	s := &Sampler{
		ADC:         adc,
		Store:       store,
		Reporter:    rep,
		Tracker:     tracker,
		Calibration: logic.DefaultCalibration(),
		SensorID:    "tank-1",
		Now:         clock.Now,
		Sleep:       clock.Sleep,
	}
	return s, rep, tracker
}

func TestMeasureFiltersAndCalibrates(t *testing.T) {
	clock := newFakeClock(at(12, 0))
	s, _, _ := newSampler(clock, analog.NewFakeReader(noisySamples), settings.NewStore())

	r, err := s.Measure(context.Background())
	if err != nil {
		t.Fatalf("Measure: %v", err)
	}
	if r.Raw != 2002.5 {
		t.Errorf("raw = %v, want 2002.5", r.Raw)
	}
	if got := fmt.Sprintf("%.3f", r.PH); got != "5.592" {
		t.Errorf("pH = %s, want 5.592", got)
	}
	if r.SensorID != "tank-1" {
		t.Errorf("sensor id = %q", r.SensorID)
	}

	sleeps := clock.Sleeps()
	if len(sleeps) != logic.SampleCount {
		t.Fatalf("expected %d settle delays, got %d", logic.SampleCount, len(sleeps))
	}
	for _, d := range sleeps {
		if d != DefaultSettle {
			t.Errorf("settle = %v, want %v", d, DefaultSettle)
		}
	}
	// Timestamp is taken after the samples.
	if !r.Timestamp.Equal(at(12, 0).Add(10 * DefaultSettle)) {
		t.Errorf("timestamp = %v", r.Timestamp)
	}
}

func TestAcquireSubstitutesFailedReads(t *testing.T) {
	clock := newFakeClock(at(12, 0))
	adc := analog.NewFakeReader(noisySamples)
	adc.Errors = []error{nil, nil, errBoom}
	s, _, tracker := newSampler(clock, adc, settings.NewStore())

	samples, failed, err := s.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if failed != 1 || samples[2] != 0 {
		t.Errorf("failed=%d samples[2]=%d, want 1 and 0", failed, samples[2])
	}
	if len(samples) != logic.SampleCount {
		t.Errorf("len = %d", len(samples))
	}

	adc.Reset()
	_, _ = s.Measure(context.Background())
	if got := tracker.Snapshot().Counts.SampleErrors; got != 1 {
		t.Errorf("SampleErrors = %d, want 1", got)
	}
}

func TestCycleReportsPlausibleReading(t *testing.T) {
	clock := newFakeClock(at(12, 0))
	s, rep, tracker := newSampler(clock, analog.NewFakeReader(noisySamples), settings.NewStore())

	s.Cycle(context.Background())

	if rep.count() != 1 {
		t.Fatalf("expected 1 report, got %d", rep.count())
	}
	snap := tracker.Snapshot()
	if !snap.HasReading || snap.Counts.ReadingsReported != 1 {
		t.Errorf("tracker: %+v", snap.Counts)
	}
}

func TestCycleNeverReportsOutOfRange(t *testing.T) {
	// raw 0 gives pH 21, far outside [2, 14].
	clock := newFakeClock(at(12, 0))
	s, rep, tracker := newSampler(clock, analog.NewFakeReader([]uint16{0}), settings.NewStore())

	s.Cycle(context.Background())

	if rep.count() != 0 {
		t.Errorf("out-of-range reading was reported")
	}
	snap := tracker.Snapshot()
	if snap.Counts.ReadingsRejected != 1 || snap.LastRejected != 21 {
		t.Errorf("rejected=%d last=%v", snap.Counts.ReadingsRejected, snap.LastRejected)
	}
}

func TestCycleSkipsWhenAllReadsFail(t *testing.T) {
	clock := newFakeClock(at(12, 0))
	adc := analog.NewFakeReader(noisySamples)
	adc.ReadError = errBoom
	s, rep, tracker := newSampler(clock, adc, settings.NewStore())

	_, err := s.Measure(context.Background())
	if !errors.Is(err, ErrSensorFault) {
		t.Fatalf("err = %v, want ErrSensorFault", err)
	}

	s.Cycle(context.Background())
	if rep.count() != 0 {
		t.Error("sensor fault must not be reported")
	}
	if got := tracker.Snapshot().Counts.SkippedCycles; got != 1 {
		t.Errorf("SkippedCycles = %d, want 1", got)
	}
}

func TestCycleReportFailure(t *testing.T) {
	clock := newFakeClock(at(12, 0))
	s, rep, tracker := newSampler(clock, analog.NewFakeReader(noisySamples), settings.NewStore())
	rep.err = errBoom

	s.Cycle(context.Background())

	snap := tracker.Snapshot()
	if snap.Counts.ReportErrors != 1 || !snap.HasReading {
		t.Errorf("tracker: %+v", snap.Counts)
	}
}

func TestIntervalFollowsSettings(t *testing.T) {
	clock := newFakeClock(at(12, 0))
	store := settings.NewStore()
	s, _, _ := newSampler(clock, analog.NewFakeReader(noisySamples), store)

	if got := s.Interval(); got != DefaultFallback {
		t.Errorf("interval without settings = %v, want %v", got, DefaultFallback)
	}
	store.Set(mustParse(dayNightDoc))
	if got := s.Interval(); got != 60*time.Second {
		t.Errorf("interval = %v, want 60s", got)
	}
}

func TestSamplerRunStopsOnCancel(t *testing.T) {
	clock := newFakeClock(at(12, 0))
	store := settings.NewStore()
	store.Set(mustParse(dayNightDoc))
	s, rep, _ := newSampler(clock, analog.NewFakeReader(noisySamples), store)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	clock.cancel = cancel
	clock.stopAfter = logic.SampleCount + 1 // one cycle, then the interval sleep

	if err := s.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.count() != 1 {
		t.Errorf("reports = %d, want 1", rep.count())
	}
	sleeps := clock.Sleeps()
	if last := sleeps[len(sleeps)-1]; last != 60*time.Second {
		t.Errorf("interval sleep = %v, want 60s", last)
	}
}

func TestSleepHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := Sleep(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("Sleep = %v, want context.Canceled", err)
	}
	if err := Sleep(context.Background(), time.Millisecond); err != nil {
		t.Errorf("Sleep = %v", err)
	}
}
