// Package control runs the three independent loops of the doser: the
// settings poller, the duty-cycle scheduler and the sensor sampler.
//
// The loops share nothing but the settings store (and the status tracker,
// which only records what happened). Each loop owns its hardware and does
// its own sleeping, so a slow network call never delays the pump.
package control

import (
	"context"
	"time"
)

// DefaultFallback is the idle interval used while no settings are known.
const DefaultFallback = 30 * time.Second

// Sleeper pauses the calling loop for d. It returns ctx.Err() if the
// context ends first.
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep is the production Sleeper.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
