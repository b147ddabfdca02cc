package influx

// FakeWriter records written points for test assertions.
type FakeWriter struct {
	// Points contains every point that was written.
	Points []Point

	// WriteError, if set, will be returned by Write.
	WriteError error

	// Closed tracks if Close was called.
	Closed bool
}

// NewFakeWriter creates a FakeWriter for testing.
func NewFakeWriter() *FakeWriter {
	return &FakeWriter{}
}

// Write records the point.
func (f *FakeWriter) Write(p Point) error {
	if f.WriteError != nil {
		return f.WriteError
	}
	f.Points = append(f.Points, p)
	return nil
}

// Close marks the writer as closed.
func (f *FakeWriter) Close() error {
	f.Closed = true
	return nil
}
