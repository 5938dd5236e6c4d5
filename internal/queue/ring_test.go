package queue

import (
	"sync"
	"testing"
	"time"
)

func TestRingEmptyDrain(t *testing.T) {
	r := NewRing(8)
	if got := r.DrainAll(); got != nil {
		t.Errorf("expected nil from empty drain, got %d items", len(got))
	}
	if r.Len() != 0 {
		t.Errorf("Len: got %d, want 0", r.Len())
	}
}

func TestRingFIFO(t *testing.T) {
	r := NewRing(8)
	for i := 1; i <= 5; i++ {
		r.Push(Signal{At: time.Duration(i) * time.Millisecond})
	}
	if r.Len() != 5 {
		t.Errorf("Len: got %d, want 5", r.Len())
	}

	got := r.DrainAll()
	if len(got) != 5 {
		t.Fatalf("expected 5 signals, got %d", len(got))
	}
	for i, s := range got {
		want := time.Duration(i+1) * time.Millisecond
		if s.At != want {
			t.Errorf("signal %d: got %v, want %v", i, s.At, want)
		}
	}

	if got := r.DrainAll(); got != nil {
		t.Errorf("expected nil from second drain, got %d items", len(got))
	}
}

func TestRingOverflowDropsOldest(t *testing.T) {
	r := NewRing(4)
	// Push 0..6, ring keeps the most recent 4 (3..6)
	for i := 0; i < 7; i++ {
		r.Push(Signal{At: time.Duration(i)})
	}

	if r.Dropped() != 3 {
		t.Errorf("Dropped: got %d, want 3", r.Dropped())
	}
	if r.Len() != 4 {
		t.Errorf("Len: got %d, want 4", r.Len())
	}

	got := r.DrainAll()
	if len(got) != 4 {
		t.Fatalf("expected 4 signals, got %d", len(got))
	}
	for i, s := range got {
		if want := time.Duration(i + 3); s.At != want {
			t.Errorf("signal %d: got %v, want %v", i, s.At, want)
		}
	}
}

func TestRingWrapAround(t *testing.T) {
	r := NewRing(3)
	next := 0
	for cycle := 0; cycle < 5; cycle++ {
		for i := 0; i < 2; i++ {
			r.Push(Signal{At: time.Duration(next)})
			next++
		}
		got := r.DrainAll()
		if len(got) != 2 {
			t.Fatalf("cycle %d: expected 2 signals, got %d", cycle, len(got))
		}
		if got[0].At != time.Duration(next-2) || got[1].At != time.Duration(next-1) {
			t.Errorf("cycle %d: got %v, %v", cycle, got[0].At, got[1].At)
		}
	}
	if r.Dropped() != 0 {
		t.Errorf("Dropped: got %d, want 0", r.Dropped())
	}
}

func TestRingMinimumCapacity(t *testing.T) {
	r := NewRing(0)
	if r.Cap() != 1 {
		t.Fatalf("Cap: got %d, want 1", r.Cap())
	}
	r.Push(Signal{At: 1})
	r.Push(Signal{At: 2})
	got := r.DrainAll()
	if len(got) != 1 || got[0].At != 2 {
		t.Errorf("expected only the newest signal, got %v", got)
	}
}

// TestRingConcurrentProducerConsumer runs one producer against one consumer.
// Every pushed signal must be either received exactly once, in order, or
// counted as dropped.
func TestRingConcurrentProducerConsumer(t *testing.T) {
	const total = 20000
	r := NewRing(16)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 1; i <= total; i++ {
			r.Push(Signal{At: time.Duration(i)})
		}
	}()

	var received []Signal
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	for finished := false; !finished; {
		select {
		case <-done:
			finished = true
		default:
		}
		received = append(received, r.DrainAll()...)
	}
	received = append(received, r.DrainAll()...)

	if uint64(len(received))+r.Dropped() != total {
		t.Fatalf("received %d + dropped %d != pushed %d", len(received), r.Dropped(), total)
	}
	for i := 1; i < len(received); i++ {
		if received[i].At <= received[i-1].At {
			t.Fatalf("out of order at %d: %v after %v", i, received[i].At, received[i-1].At)
		}
	}
	if last := received[len(received)-1].At; last != total {
		t.Errorf("last signal: got %v, want %v", last, time.Duration(total))
	}
}
