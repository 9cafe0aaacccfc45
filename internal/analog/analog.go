// Package analog reads raw samples from the pH probe's analog front end.
// The real implementation reads an ADS1015 over I2C.
// The fake implementation allows testing without hardware.
package analog

import "errors"

// MaxRaw is the largest value Read returns (12-bit converter).
const MaxRaw = 4095

// ErrNoSamples is returned by a fake with nothing scripted.
var ErrNoSamples = errors.New("analog: no samples configured")

// Reader returns one raw sample per call.
type Reader interface {
	// Read blocks until a conversion completes and returns it in 0..MaxRaw.
	Read() (uint16, error)

	// Close releases the converter.
	Close() error
}

// clampRaw maps a signed converter result onto 0..MaxRaw.
func clampRaw(v int32) uint16 {
	if v < 0 {
		return 0
	}
	if v > MaxRaw {
		return MaxRaw
	}
	return uint16(v)
}
