package gpio

import (
	"errors"
	"math/rand"
	"sync"
)

// FakeReader is a test double that returns scripted snapshot bytes.
type FakeReader struct {
	mu sync.Mutex

	// Samples contains scripted bytes to return.
	// Each call to Read() consumes the next sample.
	Samples []uint8

	// index tracks current position in Samples
	index int

	// Closed tracks if Close was called
	Closed bool

	// ReadError, if set, will be returned by Read()
	ReadError error
}

// NewFakeReader creates a FakeReader with the given samples.
func NewFakeReader(samples ...uint8) *FakeReader {
	return &FakeReader{Samples: samples}
}

// Read returns the next scripted sample.
// If samples are exhausted, returns the last sample repeatedly.
func (f *FakeReader) Read() (uint8, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

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

// Close marks the reader as closed.
func (f *FakeReader) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}

// Reset resets the reader to the beginning of samples.
func (f *FakeReader) Reset() {
	f.mu.Lock()
	f.index = 0
	f.Closed = false
	f.mu.Unlock()
}

// SimulatedReader produces random activity on pins DQ.0 to DQ.3, the
// power and cycle inputs of a two-machine bench. Higher pins stay low.
type SimulatedReader struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSimulatedReader creates a generator seeded with seed.
func NewSimulatedReader(seed int64) *SimulatedReader {
	return &SimulatedReader{rng: rand.New(rand.NewSource(seed))}
}

// Read returns a byte with each of the low four bits set at random.
func (s *SimulatedReader) Read() (uint8, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return uint8(s.rng.Intn(16)), nil
}

// Close is a no-op.
func (s *SimulatedReader) Close() error {
	return nil
}
