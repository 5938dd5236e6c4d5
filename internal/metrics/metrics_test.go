package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func gather(t *testing.T) map[string]float64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	out := make(map[string]float64)
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			out[mf.GetName()] = value(m)
		}
	}
	return out
}

func value(m *dto.Metric) float64 {
	if c := m.GetCounter(); c != nil {
		return c.GetValue()
	}
	if g := m.GetGauge(); g != nil {
		return g.GetValue()
	}
	return 0
}

func TestInitIsIdempotent(t *testing.T) {
	Init()
	Init()

	got := gather(t)
	for _, name := range []string{
		"button_presses_total",
		"button_press_append_failures_total",
		"button_press_queue_dropped_total",
		"button_press_debounce_rejected_total",
		"button_press_observers",
		"button_press_count",
	} {
		if _, ok := got[name]; !ok {
			t.Errorf("metric %s not registered", name)
		}
	}
}

func TestCountersAccumulate(t *testing.T) {
	before := gather(t)

	ObservePress(7)
	ObservePress(8)
	IncAppendFailure()
	AddQueueDropped(3)
	AddDebounceRejected(2)

	after := gather(t)
	if d := after["button_presses_total"] - before["button_presses_total"]; d != 2 {
		t.Errorf("button_presses_total delta: got %v, want 2", d)
	}
	if d := after["button_press_append_failures_total"] - before["button_press_append_failures_total"]; d != 1 {
		t.Errorf("append failures delta: got %v, want 1", d)
	}
	if d := after["button_press_queue_dropped_total"] - before["button_press_queue_dropped_total"]; d != 3 {
		t.Errorf("queue dropped delta: got %v, want 3", d)
	}
	if d := after["button_press_debounce_rejected_total"] - before["button_press_debounce_rejected_total"]; d != 2 {
		t.Errorf("debounce rejected delta: got %v, want 2", d)
	}
	if after["button_press_count"] != 8 {
		t.Errorf("button_press_count: got %v, want 8", after["button_press_count"])
	}
}

func TestGauges(t *testing.T) {
	SetObservers(3)
	SetCount(0)

	got := gather(t)
	if got["button_press_observers"] != 3 {
		t.Errorf("observers: got %v, want 3", got["button_press_observers"])
	}
	if got["button_press_count"] != 0 {
		t.Errorf("count: got %v, want 0", got["button_press_count"])
	}
}
