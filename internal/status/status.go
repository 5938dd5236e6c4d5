// Package status provides a thread-safe status tracker for the press-logger daemon.
// It is written by the main loop and read by HTTP handlers and heartbeats.
package status

import (
	"sync"
	"time"
)

// NetworkInfo contains network state as reported by the provisioning helper.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	Pin           int
	DebounceMs    int64
	PollMs        int64
	HeartbeatMs   int64
	QueueCapacity int
	LogPath       string
	Broker        string // empty = MQTT disabled
	HTTPAddr      string
}

// Counters are the pipeline figures refreshed by the main loop.
type Counters struct {
	Count            uint64 // sequence number of the latest press
	LastPress        string // timestamp of the latest press
	Stored           int    // records in the log
	Observers        int
	DebounceRejected uint64
	QueueDropped     uint64
	AppendFailures   uint64
	Untimed          uint64 // presses recorded without a timestamp
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Counters
	ClockSynced   bool
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	MQTTBuffered  int // messages held for the next reconnect
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
	now  func() time.Time
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
		now: time.Now,
	}
}

// Update replaces the pipeline counters.
func (t *Tracker) Update(c Counters) {
	t.mu.Lock()
	t.snap.Counters = c
	t.mu.Unlock()
}

// SetObservers sets the connected observer count.
func (t *Tracker) SetObservers(n int) {
	t.mu.Lock()
	t.snap.Observers = n
	t.mu.Unlock()
}

// SetClockSynced records whether the wall clock is usable for timestamps.
func (t *Tracker) SetClockSynced(synced bool) {
	t.mu.Lock()
	t.snap.ClockSynced = synced
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetMQTTBuffered sets the number of MQTT messages awaiting a reconnect.
func (t *Tracker) SetMQTTBuffered(n int) {
	t.mu.Lock()
	t.snap.MQTTBuffered = n
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = t.now()
	return s
}
