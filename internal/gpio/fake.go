package gpio

import (
	"sync"
	"time"
)

// FakeLine is a test double. Fire simulates kernel edge events.
type FakeLine struct {
	mu sync.Mutex

	// Pressed is returned by Read.
	Pressed bool

	// ReadError, if set, will be returned by Read.
	ReadError error

	// Closed tracks if Close was called.
	Closed bool

	onEdge EdgeHandler
}

// NewFakeLine creates a FakeLine delivering edges to onEdge.
func NewFakeLine(onEdge EdgeHandler) *FakeLine {
	return &FakeLine{onEdge: onEdge}
}

// Fire delivers falling edges at the given times, in order, the way the
// kernel event goroutine would. Edges after Close are ignored.
func (f *FakeLine) Fire(at ...time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Closed || f.onEdge == nil {
		return
	}
	for _, t := range at {
		f.onEdge(t)
	}
}

// Read returns the scripted button state.
func (f *FakeLine) Read() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ReadError != nil {
		return false, f.ReadError
	}
	return f.Pressed, nil
}

// Close marks the line as closed.
func (f *FakeLine) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}
