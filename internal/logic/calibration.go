package logic

import (
	"errors"
	"fmt"
)

// Probe calibration for the reference pH sensor board. These are physical
// constants of one probe/ADC pairing, not tunable algorithm parameters.
const (
	ReferenceVoltage  = 3.3    // ADC reference, volts
	FullScale         = 4095.0 // max digital value of a 12-bit converter
	CorrectionDivisor = 0.597  // board divider correction applied to the raw mean
	CalibrationOffset = 21.00  // pH at 0 V
	CalibrationSlope  = -5.70  // pH per volt

	MinPH = 2.0
	MaxPH = 14.0
)

// ErrOutOfRange is returned for a pH outside the plausible range.
var ErrOutOfRange = errors.New("logic: pH out of range")

// Calibration converts a filtered ADC value into pH.
type Calibration struct {
	ReferenceVoltage  float64 `yaml:"reference_voltage"`
	FullScale         float64 `yaml:"full_scale"`
	CorrectionDivisor float64 `yaml:"correction_divisor"`
	Offset            float64 `yaml:"offset"`
	Slope             float64 `yaml:"slope"`
	MinPH             float64 `yaml:"min_ph"`
	MaxPH             float64 `yaml:"max_ph"`
}

// DefaultCalibration returns the calibration of the reference probe.
func DefaultCalibration() Calibration {
	return Calibration{
		ReferenceVoltage:  ReferenceVoltage,
		FullScale:         FullScale,
		CorrectionDivisor: CorrectionDivisor,
		Offset:            CalibrationOffset,
		Slope:             CalibrationSlope,
		MinPH:             MinPH,
		MaxPH:             MaxPH,
	}
}

// Voltage applies the correction divisor to a raw mean and scales it to volts.
func (c Calibration) Voltage(raw float64) float64 {
	corrected := raw / c.CorrectionDivisor
	return corrected * c.ReferenceVoltage / c.FullScale
}

// PH returns offset + slope * volts.
func (c Calibration) PH(volts float64) float64 {
	return c.Offset + c.Slope*volts
}

// Convert runs a raw mean through Voltage and PH and validates the result.
// The computed values are returned even when the range check fails so the
// caller can log them.
func (c Calibration) Convert(raw float64) (ph, volts float64, err error) {
	volts = c.Voltage(raw)
	ph = c.PH(volts)
	if err := c.Validate(ph); err != nil {
		return ph, volts, err
	}
	return ph, volts, nil
}

// Validate checks ph against the inclusive [MinPH, MaxPH] range.
func (c Calibration) Validate(ph float64) error {
	if ph < c.MinPH || ph > c.MaxPH {
		return fmt.Errorf("%w: %.3f not in [%.1f, %.1f]", ErrOutOfRange, ph, c.MinPH, c.MaxPH)
	}
	return nil
}

// Check reports whether the calibration can produce finite values.
func (c Calibration) Check() error {
	switch {
	case c.CorrectionDivisor == 0:
		return errors.New("calibration: correction_divisor must not be zero")
	case c.FullScale <= 0:
		return errors.New("calibration: full_scale must be positive")
	case c.ReferenceVoltage <= 0:
		return errors.New("calibration: reference_voltage must be positive")
	case c.MinPH > c.MaxPH:
		return errors.New("calibration: min_ph greater than max_ph")
	}
	return nil
}
