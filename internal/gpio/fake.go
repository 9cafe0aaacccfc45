package gpio

import "sync"

// FakeActuator is a test double that records every Set call.
type FakeActuator struct {
	mu sync.Mutex

	// Levels contains every level passed to Set, in order.
	Levels []bool

	// On is the current output level.
	On bool

	// Closed tracks if Close was called
	Closed bool

	// SetError, if set, will be returned by Set() and the level is not changed.
	SetError error

	// FailOn, if set, is returned only when driving the output high.
	FailOn error
}

// NewFakeActuator creates a FakeActuator with the output low.
func NewFakeActuator() *FakeActuator {
	return &FakeActuator{}
}

// Set records the requested level.
func (f *FakeActuator) Set(on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.SetError != nil {
		return f.SetError
	}
	if on && f.FailOn != nil {
		return f.FailOn
	}

	f.Levels = append(f.Levels, on)
	f.On = on
	return nil
}

// Close marks the actuator as closed and drives it low.
func (f *FakeActuator) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	f.On = false
	return nil
}

// History returns a copy of the recorded levels.
func (f *FakeActuator) History() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]bool, len(f.Levels))
	copy(out, f.Levels)
	return out
}

// IsOn reports the current output level.
func (f *FakeActuator) IsOn() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.On
}

// Reset clears recorded levels and injected errors.
func (f *FakeActuator) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Levels = nil
	f.On = false
	f.Closed = false
	f.SetError = nil
	f.FailOn = nil
}
