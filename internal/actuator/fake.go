package actuator

// Fake records written output values for test assertions.
type Fake struct {
	// Writes contains every value passed to Write, in order.
	Writes []float64

	// WriteError, if set, will be returned by Write.
	WriteError error

	// Closed tracks if Close was called.
	Closed bool
}

// NewFake creates a Fake driver.
func NewFake() *Fake {
	return &Fake{}
}

// Write records the value.
func (f *Fake) Write(value float64) error {
	if f.WriteError != nil {
		return f.WriteError
	}
	f.Writes = append(f.Writes, value)
	return nil
}

// Last returns the most recently written value, or 0 if none.
func (f *Fake) Last() float64 {
	if len(f.Writes) == 0 {
		return 0
	}
	return f.Writes[len(f.Writes)-1]
}

// Close marks the driver as closed.
func (f *Fake) Close() error {
	f.Closed = true
	return nil
}

// Reset clears recorded writes.
func (f *Fake) Reset() {
	f.Writes = nil
	f.Closed = false
	f.WriteError = nil
}
