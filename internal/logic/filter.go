package logic

import (
	"errors"
	"fmt"
	"sort"
)

// SampleCount is the number of raw ADC samples taken per measurement.
const SampleCount = 10

// TrimCount is how many samples are dropped from each end before averaging.
const TrimCount = 2

// ErrSampleCount is returned when a sample set is not SampleCount long.
var ErrSampleCount = errors.New("logic: wrong number of samples")

// TrimmedMean sorts a copy of samples, drops the TrimCount lowest and the
// TrimCount highest values and averages the rest. The input is not modified.
func TrimmedMean(samples []uint16) (float64, error) {
	if len(samples) != SampleCount {
		return 0, fmt.Errorf("%w: got %d, want %d", ErrSampleCount, len(samples), SampleCount)
	}

	sorted := make([]uint16, len(samples))
	copy(sorted, samples)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	middle := sorted[TrimCount : len(sorted)-TrimCount]
	var sum uint32
	for _, v := range middle {
		sum += uint32(v)
	}
	return float64(sum) / float64(len(middle)), nil
}
