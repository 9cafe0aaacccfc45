// Package settings holds the remotely managed duty-cycle settings and the
// store that shares them between the control loops.
package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sweeney/ph-doser/internal/logic"
)

var (
	// ErrMissingField is returned when a required field is absent.
	ErrMissingField = errors.New("settings: missing field")
	// ErrBadTimeOfDay is returned for a time that is not HH:MM:SS.
	ErrBadTimeOfDay = errors.New("settings: bad time of day")
)

// Settings is one complete, validated set of duty-cycle parameters.
// It is a value type and is never modified after Parse returns it.
type Settings struct {
	DayPump             time.Duration
	DayBreak            time.Duration
	NightPump           time.Duration
	NightBreak          time.Duration
	MeasurementInterval time.Duration
	DayStart            logic.TimeOfDay
	NightStart          logic.TimeOfDay
}

// Regime classifies now against the configured boundaries.
func (s Settings) Regime(now time.Time) logic.Regime {
	return logic.Classify(s.DayStart, s.NightStart, logic.TimeOfDayOf(now))
}

// Cycle returns the pump-on and break durations for a regime.
func (s Settings) Cycle(r logic.Regime) (pump, pause time.Duration) {
	if r == logic.RegimeDay {
		return s.DayPump, s.DayBreak
	}
	return s.NightPump, s.NightBreak
}

// wireSettings is the JSON document served by the settings endpoint.
// Pointers distinguish a missing field from a zero value. uint32 rejects
// negative numbers at decode time and keeps seconds within time.Duration.
type wireSettings struct {
	DayPump      *uint32 `json:"day_pump"`
	DayBreak     *uint32 `json:"day_break"`
	NightPump    *uint32 `json:"night_pump"`
	NightBreak   *uint32 `json:"night_break"`
	MessInterval *uint32 `json:"mess_interval"`
	NightStart   *string `json:"night_start"`
	DayStart     *string `json:"day_start"`
}

// Parse decodes a settings document. Every field is required.
func Parse(data []byte) (Settings, error) {
	var w wireSettings
	if err := json.Unmarshal(data, &w); err != nil {
		return Settings{}, fmt.Errorf("decode settings: %w", err)
	}

	var s Settings
	durations := []struct {
		name string
		v    *uint32
		dst  *time.Duration
	}{
		{"day_pump", w.DayPump, &s.DayPump},
		{"day_break", w.DayBreak, &s.DayBreak},
		{"night_pump", w.NightPump, &s.NightPump},
		{"night_break", w.NightBreak, &s.NightBreak},
		{"mess_interval", w.MessInterval, &s.MeasurementInterval},
	}
	for _, f := range durations {
		if f.v == nil {
			return Settings{}, fmt.Errorf("%w: %s", ErrMissingField, f.name)
		}
		*f.dst = time.Duration(*f.v) * time.Second
	}

	var err error
	if s.DayStart, err = parseTimeOfDay("day_start", w.DayStart); err != nil {
		return Settings{}, err
	}
	if s.NightStart, err = parseTimeOfDay("night_start", w.NightStart); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// parseTimeOfDay accepts HH:MM:SS. time.Parse also accepts a trailing
// fractional second.
func parseTimeOfDay(name string, v *string) (logic.TimeOfDay, error) {
	if v == nil {
		return 0, fmt.Errorf("%w: %s", ErrMissingField, name)
	}
	t, err := time.Parse("15:04:05", *v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q", ErrBadTimeOfDay, name, *v)
	}
	return logic.TimeOfDayOf(t), nil
}
