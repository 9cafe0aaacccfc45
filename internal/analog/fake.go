package analog

import "sync"

// FakeReader is a test double that returns scripted raw samples.
type FakeReader struct {
	mu sync.Mutex

	// Samples contains scripted values to return.
	// Each call to Read() consumes the next sample.
	Samples []uint16

	// Errors, if non-nil at the current index, is returned instead of the sample.
	// The sample at that index is still consumed.
	Errors []error

	// ReadError, if set, will be returned by every Read()
	ReadError error

	// index tracks current position in Samples
	index int

	// Reads counts calls to Read
	Reads int

	// Closed tracks if Close was called
	Closed bool
}

// NewFakeReader creates a FakeReader with the given samples.
func NewFakeReader(samples []uint16) *FakeReader {
	return &FakeReader{Samples: samples}
}

// Read returns the next scripted sample.
// If samples are exhausted, returns the last sample repeatedly.
func (f *FakeReader) Read() (uint16, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Reads++

	if f.ReadError != nil {
		return 0, f.ReadError
	}
	if len(f.Samples) == 0 {
		return 0, ErrNoSamples
	}

	i := f.index
	if f.index < len(f.Samples)-1 {
		f.index++
	}
	if i < len(f.Errors) && f.Errors[i] != nil {
		return 0, f.Errors[i]
	}
	return f.Samples[i], nil
}

// Close marks the reader as closed.
func (f *FakeReader) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// Reset rewinds to the first sample.
func (f *FakeReader) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.index = 0
	f.Reads = 0
	f.Closed = false
}
