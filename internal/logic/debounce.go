package logic

import (
	"sync/atomic"
	"time"

	"github.com/sweeney/press-logger/internal/queue"
)

// DefaultDebounce is the minimum quiet interval between accepted presses.
const DefaultDebounce = 250 * time.Millisecond

// Sink receives accepted presses. Push must not block.
type Sink interface {
	Push(queue.Signal)
}

// Debouncer turns raw falling edges into press signals.
//
// Edge runs in the GPIO edge handler, the only writer of the debounce state.
// It does no I/O, takes no locks, and does not allocate. Counters are atomic
// so the main loop may read them at any time.
type Debouncer struct {
	window   time.Duration
	sink     Sink
	seen     atomic.Bool
	last     atomic.Int64 // edge time of the last accepted press
	accepted atomic.Uint64
	rejected atomic.Uint64
}

// NewDebouncer creates a Debouncer that pushes accepted presses into sink.
func NewDebouncer(window time.Duration, sink Sink) *Debouncer {
	return &Debouncer{window: window, sink: sink}
}

// Edge reports an edge at monotonic time at. The edge is accepted only if it
// is the first one seen or more than the window after the last accepted edge.
// Rejected edges do not move the window.
func (d *Debouncer) Edge(at time.Duration) bool {
	if d.seen.Load() && at-time.Duration(d.last.Load()) <= d.window {
		d.rejected.Add(1)
		return false
	}
	d.last.Store(int64(at))
	d.seen.Store(true)
	d.accepted.Add(1)
	d.sink.Push(queue.Signal{At: at})
	return true
}

// Window returns the debounce window.
func (d *Debouncer) Window() time.Duration {
	return d.window
}

// Accepted returns the number of edges accepted as presses.
func (d *Debouncer) Accepted() uint64 {
	return d.accepted.Load()
}

// Rejected returns the number of edges discarded as bounce.
func (d *Debouncer) Rejected() uint64 {
	return d.rejected.Load()
}
