// Package queue hands debounced press signals from the GPIO edge handler to
// the main loop.
package queue

import (
	"sync/atomic"
	"time"
)

// DefaultCapacity is the number of signals held before the oldest is dropped.
const DefaultCapacity = 64

// Signal marks one debounced press. At is the monotonic edge time reported
// by the kernel (time since boot).
type Signal struct {
	At time.Duration
}

// Ring is a bounded single-producer/single-consumer FIFO of signals.
//
// Push never blocks and never allocates, so it is safe to call from the edge
// handler. When the ring is full the oldest signal is overwritten and counted
// in Dropped. Exactly one goroutine may Push and exactly one may drain.
type Ring struct {
	slots    []atomic.Int64
	capacity uint64
	head     atomic.Uint64 // next read position
	tail     atomic.Uint64 // next write position, written by the producer only
	dropped  atomic.Uint64
}

// NewRing creates a ring holding up to capacity signals.
// A capacity below 1 is treated as 1.
func NewRing(capacity int) *Ring {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring{
		slots:    make([]atomic.Int64, capacity),
		capacity: uint64(capacity),
	}
}

// Push appends s. Called from the producer only.
func (r *Ring) Push(s Signal) {
	t := r.tail.Load()
	for {
		h := r.head.Load()
		if t-h < r.capacity {
			break
		}
		// Full. Advance head past the oldest entry; losing the race means
		// the consumer took it and there is room now.
		if r.head.CompareAndSwap(h, h+1) {
			r.dropped.Add(1)
			break
		}
	}
	r.slots[t%r.capacity].Store(int64(s.At))
	r.tail.Store(t + 1)
}

func (r *Ring) pop() (Signal, bool) {
	for {
		h := r.head.Load()
		if h == r.tail.Load() {
			return Signal{}, false
		}
		v := r.slots[h%r.capacity].Load()
		// The producer only overwrites slot h after moving head past h, so a
		// successful swap means v was read before any overwrite.
		if r.head.CompareAndSwap(h, h+1) {
			return Signal{At: time.Duration(v)}, true
		}
	}
}

// DrainAll removes and returns every pending signal in FIFO order.
// Returns nil when nothing is pending. Called from the consumer only.
func (r *Ring) DrainAll() []Signal {
	var out []Signal
	for {
		s, ok := r.pop()
		if !ok {
			return out
		}
		out = append(out, s)
	}
}

// Len returns the number of pending signals.
func (r *Ring) Len() int {
	h := r.head.Load()
	n := r.tail.Load() - h
	if n > r.capacity {
		n = r.capacity
	}
	return int(n)
}

// Cap returns the ring capacity.
func (r *Ring) Cap() int {
	return int(r.capacity)
}

// Dropped returns the total number of signals overwritten because the ring
// was full.
func (r *Ring) Dropped() uint64 {
	return r.dropped.Load()
}
