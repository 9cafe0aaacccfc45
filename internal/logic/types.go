// Package logic contains the pure control logic of the pH doser:
// regime classification, sample filtering and probe calibration.
// This package has NO external dependencies (no GPIO, ADC, HTTP, OS, or time.Sleep).
// Time is always injectable via time.Time parameters.
package logic

import "time"

// Regime is the operating mode selected from the time of day.
type Regime string

const (
	RegimeDay   Regime = "DAY"
	RegimeNight Regime = "NIGHT"
)

// PumpState is the logical state of the dosing pump.
type PumpState string

const (
	PumpOn  PumpState = "ON"
	PumpOff PumpState = "OFF"
)

// PumpStateOf converts an actuator level into a PumpState.
func PumpStateOf(on bool) PumpState {
	if on {
		return PumpOn
	}
	return PumpOff
}

// Reading is one validated pH measurement.
type Reading struct {
	Timestamp time.Time
	SensorID  string
	PH        float64
	Voltage   float64 // probe voltage after correction
	Raw       float64 // trimmed mean of the raw ADC samples
}

// PumpEvent records a pump transition made by the scheduler.
type PumpEvent struct {
	Timestamp time.Time
	State     PumpState
	Regime    Regime
	Duration  time.Duration // how long the pump will stay in State
}
