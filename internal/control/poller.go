package control

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/sweeney/ph-doser/internal/settings"
	"github.com/sweeney/ph-doser/internal/status"
)

// DefaultPollPeriod matches the settings server's expected refresh rate.
const DefaultPollPeriod = 10 * time.Minute

// SettingsSource fetches the raw settings document.
type SettingsSource interface {
	FetchSettings(ctx context.Context) ([]byte, error)
}

// Poller keeps the settings store fresh.
type Poller struct {
	Source  SettingsSource
	Store   *settings.Store
	Tracker *status.Tracker
	Period  time.Duration

	Now   func() time.Time
	Sleep Sleeper
}

// Poll performs one fetch. The store is only written when the whole
// document parses; on any error the previous settings stay in place.
func (p *Poller) Poll(ctx context.Context) error {
	body, err := p.Source.FetchSettings(ctx)
	if err != nil {
		return fmt.Errorf("fetch settings: %w", err)
	}

	s, err := settings.Parse(body)
	if err != nil {
		return fmt.Errorf("parse settings %q: %w", body, err)
	}

	at := p.now()
	p.Store.SetAt(s, at)
	if p.Tracker != nil {
		p.Tracker.PollSucceeded(s, at)
	}
	return nil
}

// Run polls immediately and then once per Period until ctx is cancelled.
// A failed poll is logged and waits the full period; there is no fast retry.
func (p *Poller) Run(ctx context.Context) error {
	period := p.Period
	if period <= 0 {
		period = DefaultPollPeriod
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = Sleep
	}

	log.Printf("poller: started, period=%v", period)
	for {
		if err := p.Poll(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Printf("poller: %v", err)
			if p.Tracker != nil {
				p.Tracker.PollFailed(err)
			}
		} else {
			s, _ := p.Store.Get()
			log.Printf("poller: settings applied: day %v-%v pump=%v break=%v, night pump=%v break=%v, interval=%v",
				s.DayStart, s.NightStart, s.DayPump, s.DayBreak, s.NightPump, s.NightBreak, s.MeasurementInterval)
		}

		if err := sleep(ctx, period); err != nil {
			return nil
		}
	}
}

func (p *Poller) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}
