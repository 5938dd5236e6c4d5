// Package broadcast fans press events out to connected observers and
// replays the stored history to each new observer before live delivery.
package broadcast

import (
	"fmt"
	"iter"
	"log"
	"sync"

	"github.com/sweeney/press-logger/internal/logic"
)

// Observer is a connected client.
type Observer interface {
	// ID identifies the observer in logs.
	ID() string
	// Send queues msg for delivery without blocking. It returns false when
	// the observer is gone or cannot keep up.
	Send(msg []byte) bool
	// Close disconnects the observer. Safe to call more than once.
	Close()
}

// HistoryReceiver is implemented by observers that accept the replayed
// history as one batch, outside their live backlog limit.
type HistoryReceiver interface {
	SendHistory(msgs [][]byte) bool
}

// Hub tracks observers and delivers records to them.
//
// Attach and Publish must be called from a single goroutine (the main loop).
// That is what guarantees an observer receives the full history before any
// live event and never receives an event twice. Detach and Count are safe
// from any goroutine.
type Hub struct {
	mu        sync.Mutex
	observers map[string]Observer
	onChange  func(n int)
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{observers: make(map[string]Observer)}
}

// OnChange registers f to be called with the observer count after every
// attach or detach.
func (h *Hub) OnChange(f func(n int)) {
	h.mu.Lock()
	h.onChange = f
	h.mu.Unlock()
}

// Attach replays history to obs in order and then registers it for live
// delivery. It returns the number of records replayed. If the replay cannot
// be delivered the observer is closed and not registered.
func (h *Hub) Attach(obs Observer, history iter.Seq[logic.PressEvent]) (int, error) {
	var batch [][]byte
	for ev := range history {
		msg, err := logic.EncodeRecord(ev)
		if err != nil {
			obs.Close()
			return 0, fmt.Errorf("encode history record %d: %w", ev.Sequence, err)
		}
		batch = append(batch, msg)
	}

	if !deliverHistory(obs, batch) {
		obs.Close()
		return 0, fmt.Errorf("observer %s: history delivery failed", obs.ID())
	}

	h.mu.Lock()
	h.observers[obs.ID()] = obs
	n := len(h.observers)
	f := h.onChange
	h.mu.Unlock()

	if f != nil {
		f(n)
	}
	return len(batch), nil
}

func deliverHistory(obs Observer, batch [][]byte) bool {
	if len(batch) == 0 {
		return true
	}
	if hr, ok := obs.(HistoryReceiver); ok {
		return hr.SendHistory(batch)
	}
	for _, msg := range batch {
		if !obs.Send(msg) {
			return false
		}
	}
	return true
}

// Detach removes obs and closes it. Unknown observers are only closed.
func (h *Hub) Detach(obs Observer) {
	h.mu.Lock()
	cur, ok := h.observers[obs.ID()]
	if ok && cur == obs {
		delete(h.observers, obs.ID())
	}
	n := len(h.observers)
	f := h.onChange
	h.mu.Unlock()

	obs.Close()
	if ok && f != nil {
		f(n)
	}
}

// Publish sends ev to every registered observer. An observer that fails to
// accept the message is detached; the others are unaffected.
func (h *Hub) Publish(ev logic.PressEvent) error {
	msg, err := logic.EncodeRecord(ev)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}

	h.mu.Lock()
	targets := make([]Observer, 0, len(h.observers))
	for _, obs := range h.observers {
		targets = append(targets, obs)
	}
	h.mu.Unlock()

	for _, obs := range targets {
		if !obs.Send(msg) {
			log.Printf("ws: dropping observer %s: send failed", obs.ID())
			h.Detach(obs)
		}
	}
	return nil
}

// Count returns the number of registered observers.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.observers)
}

// CloseAll detaches every observer.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	all := make([]Observer, 0, len(h.observers))
	for _, obs := range h.observers {
		all = append(all, obs)
	}
	h.mu.Unlock()

	for _, obs := range all {
		h.Detach(obs)
	}
}
