package control

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sweeney/ph-doser/internal/settings"
)

// fakeClock advances virtual time on every sleep and records the requested
// durations. When stopAfter > 0 the context's cancel func is called on that
// sleep, which ends the loop under test.
type fakeClock struct {
	mu        sync.Mutex
	now       time.Time
	sleeps    []time.Duration
	stopAfter int
	cancel    context.CancelFunc
}

func newFakeClock(start time.Time) *fakeClock {
	return &fakeClock{now: start}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.mu.Lock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	n := len(c.sleeps)
	stop := c.stopAfter > 0 && n >= c.stopAfter
	c.mu.Unlock()

	if stop && c.cancel != nil {
		c.cancel()
	}
	return ctx.Err()
}

// Advance moves virtual time forward without recording a sleep.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *fakeClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]time.Duration, len(c.sleeps))
	copy(out, c.sleeps)
	return out
}

func mustParse(doc string) settings.Settings {
	s, err := settings.Parse([]byte(doc))
	if err != nil {
		panic(err)
	}
	return s
}

const dayNightDoc = `{"day_pump":5,"day_break":10,"night_pump":3,"night_break":20,` +
	`"mess_interval":60,"day_start":"06:00:00","night_start":"20:00:00"}`

var errBoom = errors.New("boom")

func at(hour, min int) time.Time {
	return time.Date(2024, 6, 1, hour, min, 0, 0, time.UTC)
}
