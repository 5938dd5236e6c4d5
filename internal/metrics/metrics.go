// Package metrics exposes pipeline counters on the default Prometheus registry.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	initOnce sync.Once

	pressesCounter          prometheus.Counter
	appendFailuresCounter   prometheus.Counter
	queueDroppedCounter     prometheus.Counter
	debounceRejectedCounter prometheus.Counter
	observersGauge          prometheus.Gauge
	countGauge              prometheus.Gauge
)

// Init registers metrics on the default Prometheus registry exactly once.
func Init() {
	initOnce.Do(func() {
		pressesCounter = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "button_presses_total",
				Help: "Total number of presses recorded since start.",
			},
		)

		appendFailuresCounter = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "button_press_append_failures_total",
				Help: "Total number of presses that could not be persisted.",
			},
		)

		queueDroppedCounter = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "button_press_queue_dropped_total",
				Help: "Total number of press signals dropped on queue overflow.",
			},
		)

		debounceRejectedCounter = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "button_press_debounce_rejected_total",
				Help: "Total number of edges rejected by the debounce filter.",
			},
		)

		observersGauge = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "button_press_observers",
				Help: "Number of connected websocket observers.",
			},
		)

		countGauge = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "button_press_count",
				Help: "Current press counter value.",
			},
		)

		prometheus.MustRegister(
			pressesCounter,
			appendFailuresCounter,
			queueDroppedCounter,
			debounceRejectedCounter,
			observersGauge,
			countGauge,
		)
	})
}

// ObservePress counts a persisted press and updates the counter gauge.
func ObservePress(seq uint64) {
	Init()
	pressesCounter.Inc()
	countGauge.Set(float64(seq))
}

// IncAppendFailure counts a press that could not be written to the log.
func IncAppendFailure() {
	Init()
	appendFailuresCounter.Inc()
}

// AddQueueDropped counts presses dropped from a full queue.
func AddQueueDropped(n uint64) {
	Init()
	queueDroppedCounter.Add(float64(n))
}

// AddDebounceRejected counts edges rejected as bounce.
func AddDebounceRejected(n uint64) {
	Init()
	debounceRejectedCounter.Add(float64(n))
}

// SetObservers sets the number of connected observers.
func SetObservers(n int) {
	Init()
	observersGauge.Set(float64(n))
}

// SetCount sets the current press counter, e.g. after a reset.
func SetCount(n uint64) {
	Init()
	countGauge.Set(float64(n))
}
