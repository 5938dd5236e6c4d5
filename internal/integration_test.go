package internal

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/sweeney/press-logger/internal/broadcast"
	"github.com/sweeney/press-logger/internal/gpio"
	"github.com/sweeney/press-logger/internal/logic"
	"github.com/sweeney/press-logger/internal/mqtt"
	"github.com/sweeney/press-logger/internal/queue"
	"github.com/sweeney/press-logger/internal/store"
	"github.com/sweeney/press-logger/internal/timesource"
)

type captureObserver struct {
	msgs [][]byte
}

func (c *captureObserver) ID() string { return "capture" }

func (c *captureObserver) Send(msg []byte) bool {
	c.msgs = append(c.msgs, msg)
	return true
}

func (c *captureObserver) Close() {}

// TestIntegrationFullFlow tests the complete flow from GPIO edge to store,
// websocket hub and MQTT using fakes.
func TestIntegrationFullFlow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ButtonLog.txt")
	st, err := store.Open(path, store.Options{Sync: true})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer st.Close()

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := timesource.NewWithFunc(func() time.Time { return now }, time.UTC, timesource.DefaultFloor)

	ring := queue.NewRing(queue.DefaultCapacity)
	debouncer := logic.NewDebouncer(logic.DefaultDebounce, ring)
	line := gpio.NewFakeLine(func(at time.Duration) { debouncer.Edge(at) })

	hub := broadcast.NewHub()
	publisher := mqtt.NewFakePublisher()
	recorder := logic.NewRecorder(st.LoadLastCount(), st, clock, logic.RetryPolicy{}, hub, publisher)

	obs := &captureObserver{}
	if _, err := hub.Attach(obs, st.Replay()); err != nil {
		t.Fatalf("attach: %v", err)
	}

	// A press with contact bounce, a clean press, then a press whose last
	// bounce lands exactly on the debounce window.
	line.Fire(0, 2*time.Millisecond, 5*time.Millisecond)
	line.Fire(600 * time.Millisecond)
	line.Fire(1200*time.Millisecond, 1210*time.Millisecond, 1450*time.Millisecond)

	for _, sig := range ring.DrainAll() {
		now = now.Add(time.Second)
		if _, err := recorder.Record(sig); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	if debouncer.Accepted() != 3 {
		t.Errorf("accepted: got %d, want 3", debouncer.Accepted())
	}
	if debouncer.Rejected() != 4 {
		t.Errorf("rejected: got %d, want 4", debouncer.Rejected())
	}

	// Store, hub and MQTT all carry the same three records.
	var stored []logic.PressEvent
	for ev := range st.Replay() {
		stored = append(stored, ev)
	}
	if len(stored) != 3 {
		t.Fatalf("stored: got %d records, want 3", len(stored))
	}
	if len(obs.msgs) != 3 {
		t.Fatalf("observer: got %d messages, want 3", len(obs.msgs))
	}
	if len(publisher.Payloads) != 3 {
		t.Fatalf("mqtt: got %d payloads, want 3", len(publisher.Payloads))
	}

	for i, ev := range stored {
		if ev.Sequence != uint64(i+1) {
			t.Errorf("record %d: sequence %d", i, ev.Sequence)
		}
		wantTS := time.Date(2026, 1, 1, 12, 0, i+1, 0, time.UTC).Format(timesource.Layout)
		if ev.Timestamp != wantTS {
			t.Errorf("record %d: timestamp %q, want %q", i, ev.Timestamp, wantTS)
		}
		if string(obs.msgs[i]) != string(publisher.Payloads[i]) {
			t.Errorf("record %d: websocket %s != mqtt %s", i, obs.msgs[i], publisher.Payloads[i])
		}

		var wire map[string]any
		if err := json.Unmarshal(obs.msgs[i], &wire); err != nil {
			t.Fatalf("record %d: invalid JSON: %v", i, err)
		}
		if wire["buttonPressCount"] != float64(i+1) {
			t.Errorf("record %d: buttonPressCount %v", i, wire["buttonPressCount"])
		}
		if wire["buttonPressTimestamp"] != wantTS {
			t.Errorf("record %d: buttonPressTimestamp %v", i, wire["buttonPressTimestamp"])
		}
	}

	// A new observer sees the same history.
	late := &captureObserver{}
	n, err := hub.Attach(late, st.Replay())
	if err != nil {
		t.Fatalf("attach late: %v", err)
	}
	if n != 3 {
		t.Errorf("replayed: got %d, want 3", n)
	}
}
