package logic

import (
	"fmt"
	"time"
)

// TimeOfDay is an offset from local midnight, without a date.
type TimeOfDay time.Duration

// NewTimeOfDay builds a TimeOfDay from wall-clock components.
func NewTimeOfDay(hour, min, sec int) TimeOfDay {
	return TimeOfDay(time.Duration(hour)*time.Hour +
		time.Duration(min)*time.Minute +
		time.Duration(sec)*time.Second)
}

// TimeOfDayOf extracts the time of day from t in t's location.
// Sub-second precision is kept so that comparisons against boundaries
// behave like a wall clock.
func TimeOfDayOf(t time.Time) TimeOfDay {
	return NewTimeOfDay(t.Hour(), t.Minute(), t.Second()) + TimeOfDay(t.Nanosecond())
}

// String formats the value as HH:MM:SS.
func (t TimeOfDay) String() string {
	d := time.Duration(t).Truncate(time.Second)
	h := int(d / time.Hour)
	m := int(d/time.Minute) % 60
	s := int(d/time.Second) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// Classify returns RegimeDay when dayStart <= now < nightStart and
// RegimeNight otherwise.
//
// The comparison is literal: with nightStart <= dayStart no instant satisfies
// it, so such a schedule runs the night regime around the clock.
func Classify(dayStart, nightStart, now TimeOfDay) Regime {
	if dayStart <= now && now < nightStart {
		return RegimeDay
	}
	return RegimeNight
}
