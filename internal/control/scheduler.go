package control

import (
	"context"
	"log"
	"time"

	"github.com/sweeney/ph-doser/internal/gpio"
	"github.com/sweeney/ph-doser/internal/logic"
	"github.com/sweeney/ph-doser/internal/settings"
	"github.com/sweeney/ph-doser/internal/status"
)

// PumpPublisher receives pump transitions.
type PumpPublisher interface {
	PublishPump(e logic.PumpEvent) error
}

// Scheduler drives the pump through one ON/OFF duty cycle at a time.
// It is the only writer of the pump output.
//
// Actuator faults are skip-and-continue: a failed ON is followed by a
// forced OFF and a fallback wait, a failed OFF is retried once and the
// cycle carries on. The pump is driven OFF when Run returns.
type Scheduler struct {
	Store    *settings.Store
	Pump     gpio.Actuator
	Events   PumpPublisher // optional
	Tracker  *status.Tracker
	Fallback time.Duration
	Location *time.Location // regime boundaries are in this zone; nil = time.Local

	Now   func() time.Time
	Sleep Sleeper

	on bool
}

// Run executes cycles until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	log.Printf("scheduler: started, fallback=%v", s.fallback())
	if _, err := s.drive(false, "", 0); err != nil {
		log.Printf("scheduler: initial pump off: %v", err)
	}
	defer func() {
		if _, err := s.drive(false, "", 0); err != nil {
			log.Printf("scheduler: pump off at shutdown: %v", err)
		}
	}()

	for {
		if err := s.Cycle(ctx); err != nil {
			return nil
		}
	}
}

// Cycle runs one duty cycle: pump ON for the regime's pump duration, then
// OFF for its break duration. Settings and regime are read once at the
// start, so changes only take effect at the next cycle. It returns a
// non-nil error only when ctx ends.
func (s *Scheduler) Cycle(ctx context.Context) error {
	cfg, ok := s.Store.Get()
	if !ok {
		if s.on {
			s.forceOff("", "no settings")
		}
		return s.sleep(ctx, s.fallback())
	}

	now := s.now()
	regime := cfg.Regime(now)
	pump, pause := cfg.Cycle(regime)

	if pump+pause <= 0 {
		log.Printf("scheduler: %s cycle has zero length, waiting %v", regime, s.fallback())
		if s.on {
			s.forceOff(regime, "zero-length cycle")
		}
		return s.sleep(ctx, s.fallback())
	}

	// Durations run from the moment the output changed, so time spent
	// publishing the transition is not added to them.
	if pump > 0 {
		onAt, err := s.drive(true, regime, pump)
		if err != nil {
			log.Printf("scheduler: pump on failed: %v", err)
			s.forceOff(regime, "after failed on")
			return s.sleep(ctx, s.fallback())
		}
		if err := s.sleepUntil(ctx, onAt.Add(pump)); err != nil {
			return err
		}
	}

	offAt := s.clock()
	if s.on {
		offAt = s.forceOff(regime, "")
	}
	return s.sleepUntil(ctx, offAt.Add(pause))
}

// forceOff drives the pump OFF, retrying once on failure. It returns when
// the output was switched, or the current time if both attempts failed.
func (s *Scheduler) forceOff(regime logic.Regime, why string) time.Time {
	at, err := s.drive(false, regime, 0)
	if err == nil {
		return at
	}
	if why != "" {
		log.Printf("scheduler: pump off (%s) failed: %v; retrying", why, err)
	} else {
		log.Printf("scheduler: pump off failed: %v; retrying", err)
	}
	at, err = s.drive(false, regime, 0)
	if err != nil {
		log.Printf("scheduler: pump off retry failed, pump may still be running: %v", err)
		return s.clock()
	}
	return at
}

// drive sets the pump output and records the transition. It returns the
// time the output changed.
func (s *Scheduler) drive(on bool, regime logic.Regime, d time.Duration) (time.Time, error) {
	if err := s.Pump.Set(on); err != nil {
		if s.Tracker != nil {
			s.Tracker.ActuatorError()
		}
		return time.Time{}, err
	}
	at := s.clock()
	s.on = on

	state := logic.PumpStateOf(on)
	if regime != "" {
		log.Printf("scheduler: %s pump %s for %v", regime, state, d)
	}
	if s.Tracker != nil {
		s.Tracker.SetPump(state, regime, at)
	}
	if s.Events != nil {
		if err := s.Events.PublishPump(logic.PumpEvent{Timestamp: at, State: state, Regime: regime, Duration: d}); err != nil {
			log.Printf("scheduler: publish pump event: %v", err)
		}
	}
	return at, nil
}

// clock is the unzoned current time. Deadlines use it because In drops
// the monotonic reading.
func (s *Scheduler) clock() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// now is the wall clock in the regime's time zone.
func (s *Scheduler) now() time.Time {
	t := s.clock()
	if s.Location != nil {
		t = t.In(s.Location)
	}
	return t
}

func (s *Scheduler) fallback() time.Duration {
	if s.Fallback > 0 {
		return s.Fallback
	}
	return DefaultFallback
}

// sleepUntil sleeps until deadline, not at all if it has passed.
func (s *Scheduler) sleepUntil(ctx context.Context, deadline time.Time) error {
	d := deadline.Sub(s.clock())
	if d < 0 {
		d = 0
	}
	return s.sleep(ctx, d)
}

func (s *Scheduler) sleep(ctx context.Context, d time.Duration) error {
	if s.Sleep != nil {
		return s.Sleep(ctx, d)
	}
	return Sleep(ctx, d)
}
