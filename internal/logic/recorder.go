package logic

import (
	"errors"
	"fmt"
	"time"

	"github.com/sweeney/press-logger/internal/queue"
)

// Appender persists press events.
type Appender interface {
	Append(ev PressEvent) error
}

// Publisher delivers press events to live consumers.
type Publisher interface {
	Publish(ev PressEvent) error
}

// TimeSource formats the current wall-clock time. ok is false while the
// clock is not synchronized.
type TimeSource interface {
	Now() (ts string, ok bool)
}

// PersistError reports a press that was counted but could not be stored.
// The press was not published.
type PersistError struct {
	Sequence uint64
	Err      error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("persist press %d: %v", e.Sequence, e.Err)
}

func (e *PersistError) Unwrap() error {
	return e.Err
}

// RetryPolicy controls how often a failed append is retried before the press
// is abandoned. The zero value never retries.
type RetryPolicy struct {
	Attempts int
	Delay    time.Duration
}

// RecorderStats counts recorder outcomes since startup.
type RecorderStats struct {
	Recorded       uint64
	Untimed        uint64
	AppendFailures uint64
	PublishErrors  uint64
}

// Recorder assigns sequence numbers and timestamps to press signals, persists
// the resulting events, and fans them out to publishers.
// Not safe for concurrent use; the main loop owns it.
type Recorder struct {
	count uint64
	store Appender
	clock TimeSource
	sinks []Publisher
	retry RetryPolicy
	sleep func(time.Duration)
	last  PressEvent
	stats RecorderStats
}

// NewRecorder creates a Recorder whose next press is numbered start+1.
func NewRecorder(start uint64, store Appender, clock TimeSource, retry RetryPolicy, sinks ...Publisher) *Recorder {
	return &Recorder{
		count: start,
		store: store,
		clock: clock,
		sinks: sinks,
		retry: retry,
		sleep: time.Sleep,
	}
}

// Record turns one signal into a PressEvent.
//
// The counter is incremented before persisting and is not rolled back when
// the append fails: a gap in the log is preferred over reusing a sequence
// number after restart. A failed append returns a *PersistError and the event
// is not published. Publisher errors are joined and returned after every
// publisher has been tried.
func (r *Recorder) Record(sig queue.Signal) (PressEvent, error) {
	ts, ok := r.clock.Now()
	if !ok {
		ts = ""
		r.stats.Untimed++
	}

	r.count++
	ev := PressEvent{Sequence: r.count, Timestamp: ts}

	if err := r.append(ev); err != nil {
		r.stats.AppendFailures++
		return ev, &PersistError{Sequence: ev.Sequence, Err: err}
	}
	r.stats.Recorded++
	r.last = ev

	var errs []error
	for _, s := range r.sinks {
		if err := s.Publish(ev); err != nil {
			r.stats.PublishErrors++
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return ev, fmt.Errorf("publish press %d: %w", ev.Sequence, errors.Join(errs...))
	}
	return ev, nil
}

func (r *Recorder) append(ev PressEvent) error {
	err := r.store.Append(ev)
	for i := 0; err != nil && i < r.retry.Attempts; i++ {
		if r.retry.Delay > 0 {
			r.sleep(r.retry.Delay)
		}
		err = r.store.Append(ev)
	}
	return err
}

// Reset zeroes the counter. The caller resets the store in the same step.
func (r *Recorder) Reset() {
	r.count = 0
	r.last = PressEvent{}
}

// Count returns the sequence number of the most recent press.
func (r *Recorder) Count() uint64 {
	return r.count
}

// Last returns the most recently persisted event, if any.
func (r *Recorder) Last() (PressEvent, bool) {
	return r.last, r.last.Sequence != 0
}

// Stats returns a copy of the recorder counters.
func (r *Recorder) Stats() RecorderStats {
	return r.stats
}
