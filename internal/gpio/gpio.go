// Package gpio drives the dosing pump relay with hardware abstraction.
// The real implementation uses Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

// Actuator drives a single digital output.
type Actuator interface {
	// Set drives the output high (on) or low (off).
	Set(on bool) error

	// Close releases GPIO resources.
	Close() error
}

// Defaults for a Raspberry Pi relay HAT.
const (
	DefaultChip    = "gpiochip0"
	DefaultPinPump = 27 // BCM numbering
)
