package analog

import (
	"fmt"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/ads1x15"
	"periph.io/x/host/v3"
)

// ADS1015Config selects the converter and channel the probe is wired to.
type ADS1015Config struct {
	Bus     string // I2C bus name, empty for the first bus
	Address uint16 // I2C address, 0x48 by default
	Channel int    // single-ended input 0..3
	// FullScale is the voltage that maps to MaxRaw.
	FullScale physic.ElectricPotential
}

// ADS1015Reader reads single-ended conversions from an ADS1015.
type ADS1015Reader struct {
	bus       i2c.BusCloser
	pin       ads1x15.PinADC
	fullScale physic.ElectricPotential
}

var channels = [...]ads1x15.Channel{
	ads1x15.Channel0,
	ads1x15.Channel1,
	ads1x15.Channel2,
	ads1x15.Channel3,
}

// NewADS1015Reader initialises the host drivers and opens the converter.
func NewADS1015Reader(cfg ADS1015Config) (*ADS1015Reader, error) {
	if cfg.Channel < 0 || cfg.Channel >= len(channels) {
		return nil, fmt.Errorf("adc channel %d out of range 0..3", cfg.Channel)
	}
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("init host drivers: %w", err)
	}

	bus, err := i2creg.Open(cfg.Bus)
	if err != nil {
		return nil, fmt.Errorf("open i2c bus %q: %w", cfg.Bus, err)
	}

	opts := ads1x15.DefaultOpts
	if cfg.Address != 0 {
		opts.I2cAddress = cfg.Address
	}
	dev, err := ads1x15.NewADS1015(bus, &opts)
	if err != nil {
		bus.Close()
		return nil, fmt.Errorf("open ads1015 at %#x: %w", opts.I2cAddress, err)
	}

	fullScale := cfg.FullScale
	if fullScale == 0 {
		fullScale = 3300 * physic.MilliVolt
	}
	pin, err := dev.PinForChannel(channels[cfg.Channel], fullScale, 1*physic.KiloHertz, ads1x15.BestQuality)
	if err != nil {
		bus.Close()
		return nil, fmt.Errorf("configure adc channel %d: %w", cfg.Channel, err)
	}

	return &ADS1015Reader{bus: bus, pin: pin, fullScale: fullScale}, nil
}

// Read performs one conversion and rescales the measured voltage onto the
// 12-bit range the calibration was taken with.
func (r *ADS1015Reader) Read() (uint16, error) {
	s, err := r.pin.Read()
	if err != nil {
		return 0, fmt.Errorf("read adc: %w", err)
	}
	return scaleVoltage(s.V, r.fullScale), nil
}

func scaleVoltage(v, fullScale physic.ElectricPotential) uint16 {
	if fullScale <= 0 {
		return 0
	}
	return clampRaw(int32(float64(v)/float64(fullScale)*MaxRaw + 0.5))
}

// Close halts the channel and releases the bus.
func (r *ADS1015Reader) Close() error {
	var errs []error
	if r.pin != nil {
		if err := r.pin.Halt(); err != nil {
			errs = append(errs, fmt.Errorf("halt adc: %w", err))
		}
	}
	if r.bus != nil {
		if err := r.bus.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close i2c bus: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
