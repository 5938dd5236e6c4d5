package main

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/sweeney/press-logger/internal/broadcast"
	"github.com/sweeney/press-logger/internal/config"
	"github.com/sweeney/press-logger/internal/logic"
	"github.com/sweeney/press-logger/internal/metrics"
	"github.com/sweeney/press-logger/internal/mqtt"
	"github.com/sweeney/press-logger/internal/queue"
	"github.com/sweeney/press-logger/internal/status"
	"github.com/sweeney/press-logger/internal/timesource"
)

// errStopped is returned to HTTP handlers once the main loop has exited.
var errStopped = errors.New("daemon stopped")

// pressLog is the part of the store the main loop uses.
type pressLog interface {
	logic.Appender
	Replay() iter.Seq[logic.PressEvent]
	Reset() error
}

type attachRequest struct {
	obs  broadcast.Observer
	done chan error
}

// daemon owns the pipeline. Everything after the ring runs on the runLoop
// goroutine; HTTP handlers reach it through attachCh and resetCh.
type daemon struct {
	ring       *queue.Ring
	debouncer  *logic.Debouncer
	recorder   *logic.Recorder
	store      pressLog
	hub        *broadcast.Hub
	publisher  mqtt.Publisher
	mqttStatus mqtt.ConnectionStatus
	clock      *timesource.Clock
	tracker    *status.Tracker
	heartbeat  *logic.Heartbeat
	now        func() time.Time

	attachCh chan attachRequest
	resetCh  chan chan error
	quit     chan struct{}

	stored       int // records in the log
	seenDropped  uint64
	seenRejected uint64
}

// newDaemon wires the pipeline around an opened store. last is the highest
// stored sequence and stored the number of records in the log.
func newDaemon(cfg config.Config, st pressLog, last uint64, stored int, publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, clock *timesource.Clock, tracker *status.Tracker, now func() time.Time) *daemon {
	ring := queue.NewRing(cfg.QueueCapacity)
	hub := broadcast.NewHub()
	hub.OnChange(func(n int) {
		tracker.SetObservers(n)
		metrics.SetObservers(n)
	})

	d := &daemon{
		ring:       ring,
		debouncer:  logic.NewDebouncer(cfg.Debounce, ring),
		recorder:   logic.NewRecorder(last, st, clock, cfg.Retry(), hub, publisher),
		store:      st,
		hub:        hub,
		publisher:  publisher,
		mqttStatus: mqttStatus,
		clock:      clock,
		tracker:    tracker,
		heartbeat:  logic.NewHeartbeat(cfg.Heartbeat, now()),
		now:        now,
		attachCh:   make(chan attachRequest),
		resetCh:    make(chan chan error),
		quit:       make(chan struct{}),
		stored:     stored,
	}
	d.refreshStatus()
	return d
}

// onEdge is the GPIO edge handler.
func (d *daemon) onEdge(at time.Duration) {
	d.debouncer.Edge(at)
}

// Attach hands obs to the main loop, which replays the log to it and
// registers it for live events.
func (d *daemon) Attach(ctx context.Context, obs broadcast.Observer) error {
	req := attachRequest{obs: obs, done: make(chan error, 1)}
	select {
	case d.attachCh <- req:
	case <-d.quit:
		return errStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Detach removes obs from the hub.
func (d *daemon) Detach(obs broadcast.Observer) {
	d.hub.Detach(obs)
}

// Reset asks the main loop to clear the log and zero the counter.
func (d *daemon) Reset(ctx context.Context) error {
	done := make(chan error, 1)
	select {
	case d.resetCh <- done:
	case <-d.quit:
		return errStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *daemon) runLoop(tick <-chan time.Time, sig <-chan os.Signal) error {
	defer close(d.quit)

	for {
		select {
		case s := <-sig:
			log.Printf("received %v, shutting down", s)
			// Record anything still queued before announcing shutdown.
			d.poll()
			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}
			d.publishSystem("SHUTDOWN", signalName, true)
			return nil

		case <-tick:
			d.poll()

			if hb := d.heartbeat.Check(d.now()); hb != nil {
				log.Printf("heartbeat: uptime=%v count=%d observers=%d", hb.Uptime, d.recorder.Count(), d.hub.Count())
				// Refresh network info for heartbeat
				if net := readNetworkInfo(); net != nil {
					d.tracker.SetNetwork(net)
				}
				d.publishSystem("HEARTBEAT", "", false)
			}

		case req := <-d.attachCh:
			n, err := d.hub.Attach(req.obs, d.store.Replay())
			if err != nil {
				log.Printf("ws: attach %s: %v", req.obs.ID(), err)
			} else {
				log.Printf("ws: observer %s attached, replayed %d records", req.obs.ID(), n)
			}
			req.done <- err

		case done := <-d.resetCh:
			done <- d.reset()
		}
	}
}

// poll records every queued signal, then refreshes counters.
func (d *daemon) poll() {
	for _, sig := range d.ring.DrainAll() {
		ev, err := d.recorder.Record(sig)
		var perr *logic.PersistError
		if errors.As(err, &perr) {
			metrics.IncAppendFailure()
			log.Printf("event: press %d not stored: %v", ev.Sequence, err)
			continue
		}
		d.stored++
		metrics.ObservePress(ev.Sequence)
		log.Printf("event: press %d at %q", ev.Sequence, ev.Timestamp)
		if err != nil {
			log.Printf("publish error: %v", err)
		}
	}

	if dropped := d.ring.Dropped(); dropped > d.seenDropped {
		log.Printf("queue: overflow, dropped %d press signals (capacity %d)", dropped-d.seenDropped, d.ring.Cap())
		metrics.AddQueueDropped(dropped - d.seenDropped)
		d.seenDropped = dropped
	}
	if rejected := d.debouncer.Rejected(); rejected > d.seenRejected {
		metrics.AddDebounceRejected(rejected - d.seenRejected)
		d.seenRejected = rejected
	}

	d.refreshStatus()
}

// reset clears the log and zeroes the counter. Presses already queued are
// recorded first; they happened before the reset was asked for. Observers
// are disconnected so they reconnect to the emptied history.
func (d *daemon) reset() error {
	d.poll()

	if err := d.store.Reset(); err != nil {
		log.Printf("reset failed: %v", err)
		return fmt.Errorf("reset log: %w", err)
	}
	d.recorder.Reset()
	d.stored = 0
	d.hub.CloseAll()
	log.Printf("reset: log cleared, counter zeroed")

	d.publishSystem("RESET", "", false)
	return nil
}

func (d *daemon) refreshStatus() {
	stats := d.recorder.Stats()
	last, _ := d.recorder.Last()
	d.tracker.Update(status.Counters{
		Count:            d.recorder.Count(),
		LastPress:        last.Timestamp,
		Stored:           d.stored,
		Observers:        d.hub.Count(),
		DebounceRejected: d.debouncer.Rejected(),
		QueueDropped:     d.ring.Dropped(),
		AppendFailures:   stats.AppendFailures,
		Untimed:          stats.Untimed,
	})
	d.tracker.SetClockSynced(d.clock.Synced())
	if d.mqttStatus != nil {
		d.tracker.SetMQTTConnected(d.mqttStatus.IsConnected())
		d.tracker.SetMQTTBuffered(d.mqttStatus.Buffered())
	}
	metrics.SetCount(d.recorder.Count())
}

// publishSystem sends a lifecycle event carrying a full status snapshot.
func (d *daemon) publishSystem(event, reason string, retained bool) {
	d.refreshStatus()
	snap := d.tracker.Snapshot()
	ev := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      event,
		Reason:     reason,
		Retained:   retained,
		RawPayload: status.FormatStatusEvent(snap, event, reason),
	}
	if err := d.publisher.PublishSystem(ev); err != nil {
		log.Printf("failed to publish %s event: %v", strings.ToLower(event), err)
	} else {
		log.Printf("published %s event", strings.ToLower(event))
	}
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}
