package sensor

import "errors"

// Fake is a test double that returns scripted process values.
type Fake struct {
	// Samples contains scripted values to return.
	// Each call to Read() consumes the next sample.
	Samples []float64

	// index tracks current position in Samples
	index int

	// Closed tracks if Close was called
	Closed bool

	// ReadError, if set, will be returned by Read()
	ReadError error
}

// NewFake creates a Fake with the given samples.
func NewFake(samples []float64) *Fake {
	return &Fake{Samples: samples}
}

// Read returns the next scripted sample.
// If samples are exhausted, returns the last sample repeatedly.
func (f *Fake) Read() (float64, error) {
	if f.ReadError != nil {
		return 0, f.ReadError
	}

	if len(f.Samples) == 0 {
		return 0, errors.New("no samples configured")
	}

	sample := f.Samples[f.index]
	if f.index < len(f.Samples)-1 {
		f.index++
	}

	return sample, nil
}

// Close marks the source as closed.
func (f *Fake) Close() error {
	f.Closed = true
	return nil
}

// Reset resets the source to the beginning of samples.
func (f *Fake) Reset() {
	f.index = 0
	f.Closed = false
}
