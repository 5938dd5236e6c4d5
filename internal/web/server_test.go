package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sweeney/press-logger/internal/broadcast"
	"github.com/sweeney/press-logger/internal/logic"
	"github.com/sweeney/press-logger/internal/status"
)

// fakeControl attaches observers to a real hub with a fixed history.
type fakeControl struct {
	hub *broadcast.Hub

	mu       sync.Mutex
	history  []logic.PressEvent
	resets   int
	resetErr error
	attachCh chan struct{}
}

func newFakeControl(history ...logic.PressEvent) *fakeControl {
	return &fakeControl{
		hub:      broadcast.NewHub(),
		history:  history,
		attachCh: make(chan struct{}, 8),
	}
}

func (f *fakeControl) Attach(ctx context.Context, obs broadcast.Observer) error {
	f.mu.Lock()
	hist := slices.Clone(f.history)
	f.mu.Unlock()
	if _, err := f.hub.Attach(obs, slices.Values(hist)); err != nil {
		return err
	}
	f.attachCh <- struct{}{}
	return nil
}

func (f *fakeControl) Detach(obs broadcast.Observer) {
	f.hub.Detach(obs)
}

func (f *fakeControl) Reset(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.resetErr != nil {
		return f.resetErr
	}
	f.resets++
	f.history = nil
	return nil
}

func (f *fakeControl) resetCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resets
}

func press(seq uint64) logic.PressEvent {
	return logic.PressEvent{Sequence: seq, Timestamp: fmt.Sprintf("2026-01-01 00:00:%02d", seq)}
}

func newTestServer(t *testing.T, ctl *fakeControl) (*httptest.Server, *status.Tracker) {
	t.Helper()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := status.Config{
		Pin:           4,
		PollMs:        50,
		DebounceMs:    250,
		HeartbeatMs:   900000,
		QueueCapacity: 64,
		LogPath:       "/var/lib/press-logger/ButtonLog.txt",
		Broker:        "tcp://192.168.1.200:1883",
		HTTPAddr:      ":80",
	}
	tr := status.NewTracker(start, cfg)
	srv := New(":0", tr, ctl, 16)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, tr
}

func dialWS(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial /ws: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readRecord(t *testing.T, conn *websocket.Conn) logic.Record {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var rec logic.Record
	if err := json.Unmarshal(msg, &rec); err != nil {
		t.Fatalf("decode %s: %v", msg, err)
	}
	return rec
}

func TestJSONEndpoint(t *testing.T) {
	ts, tr := newTestServer(t, newFakeControl())
	tr.Update(status.Counters{Count: 5, LastPress: "2026-01-01 00:00:05", Stored: 5, QueueDropped: 1})
	tr.SetMQTTConnected(true)

	resp, err := http.Get(ts.URL + "/index.json")
	if err != nil {
		t.Fatalf("GET /index.json: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: got %q, want application/json", ct)
	}

	var sj status.StatusJSON
	if err := json.NewDecoder(resp.Body).Decode(&sj); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}

	if sj.Status.Count != 5 {
		t.Errorf("Count: got %d, want 5", sj.Status.Count)
	}
	if sj.Status.LastPress != "2026-01-01 00:00:05" {
		t.Errorf("LastPress: got %q", sj.Status.LastPress)
	}
	if sj.Status.Pipeline.QueueDropped != 1 {
		t.Errorf("Pipeline.QueueDropped: got %d, want 1", sj.Status.Pipeline.QueueDropped)
	}
	if !sj.Status.MQTT.Connected {
		t.Error("expected MQTT.Connected=true")
	}
	if sj.Status.Config.Pin != 4 {
		t.Errorf("Config.Pin: got %d, want 4", sj.Status.Config.Pin)
	}
}

func TestHTMLEndpointRoot(t *testing.T) {
	ts, tr := newTestServer(t, newFakeControl())
	tr.Update(status.Counters{Count: 42})

	resp, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	ct := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type: got %q, want text/html", ct)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `<td id="press-count" class="count">42</td>`) {
		t.Error("page does not show the press count")
	}
}

func TestHTMLEndpointIndexHTML(t *testing.T) {
	ts, _ := newTestServer(t, newFakeControl())

	resp, err := http.Get(ts.URL + "/index.html")
	if err != nil {
		t.Fatalf("GET /index.html: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
}

func TestNotFoundForUnknownPath(t *testing.T) {
	ts, _ := newTestServer(t, newFakeControl())

	resp, err := http.Get(ts.URL + "/nonexistent")
	if err != nil {
		t.Fatalf("GET /nonexistent: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 404 {
		t.Errorf("status: got %d, want 404", resp.StatusCode)
	}
}

func TestHealthz(t *testing.T) {
	ts, _ := newTestServer(t, newFakeControl())

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != 200 || string(body) != "ok" {
		t.Errorf("got %d %q, want 200 ok", resp.StatusCode, body)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts, _ := newTestServer(t, newFakeControl())

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "button_presses_total") {
		t.Error("metrics output missing button_presses_total")
	}
}

func TestResetEndpoint(t *testing.T) {
	ctl := newFakeControl(press(1), press(2))
	ts, _ := newTestServer(t, ctl)

	resp, err := http.Post(ts.URL+"/reset", "text/plain", nil)
	if err != nil {
		t.Fatalf("POST /reset: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	if n := ctl.resetCount(); n != 1 {
		t.Errorf("resets: got %d, want 1", n)
	}
}

func TestResetEndpointError(t *testing.T) {
	ctl := newFakeControl()
	ctl.resetErr = errors.New("disk full")
	ts, _ := newTestServer(t, ctl)

	resp, err := http.Post(ts.URL+"/reset", "text/plain", nil)
	if err != nil {
		t.Fatalf("POST /reset: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 500 {
		t.Errorf("status: got %d, want 500", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "disk full") {
		t.Errorf("body: got %q, want error text", body)
	}
}

func TestResetRequiresPost(t *testing.T) {
	ctl := newFakeControl()
	ts, _ := newTestServer(t, ctl)

	resp, err := http.Get(ts.URL + "/reset")
	if err != nil {
		t.Fatalf("GET /reset: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("status: got %d, want 405", resp.StatusCode)
	}
	if n := ctl.resetCount(); n != 0 {
		t.Errorf("resets: got %d, want 0", n)
	}
}

func TestWebsocketHistoryThenLive(t *testing.T) {
	ctl := newFakeControl(press(1), press(2), press(3))
	ts, _ := newTestServer(t, ctl)

	conn := dialWS(t, ts)
	<-ctl.attachCh

	ctl.hub.Publish(press(4))

	for want := uint64(1); want <= 4; want++ {
		rec := readRecord(t, conn)
		if rec.Count != want {
			t.Fatalf("record: got count %d, want %d", rec.Count, want)
		}
		if rec.Timestamp != press(want).Timestamp {
			t.Errorf("record %d timestamp: got %q", want, rec.Timestamp)
		}
	}
}

func TestWebsocketDisconnectDetaches(t *testing.T) {
	ctl := newFakeControl()
	ts, _ := newTestServer(t, ctl)

	conn := dialWS(t, ts)
	<-ctl.attachCh
	if n := ctl.hub.Count(); n != 1 {
		t.Fatalf("observers: got %d, want 1", n)
	}

	conn.Close()

	deadline := time.Now().Add(5 * time.Second)
	for ctl.hub.Count() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("observer not detached after disconnect")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
