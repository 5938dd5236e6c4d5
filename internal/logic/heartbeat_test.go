package logic

import (
	"testing"
	"time"
)

func TestHeartbeatDisabledWithZeroInterval(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	h := NewHeartbeat(0, start)

	if hb := h.Check(start.Add(24 * time.Hour)); hb != nil {
		t.Error("expected nil heartbeat when disabled")
	}
}

func TestHeartbeatBeforeInterval(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	h := NewHeartbeat(15*time.Minute, start)

	if hb := h.Check(start.Add(14 * time.Minute)); hb != nil {
		t.Error("expected nil heartbeat before interval")
	}
}

func TestHeartbeatAtInterval(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	h := NewHeartbeat(15*time.Minute, start)

	now := start.Add(15 * time.Minute)
	hb := h.Check(now)
	if hb == nil {
		t.Fatal("expected heartbeat at interval")
	}
	if !hb.Timestamp.Equal(now) {
		t.Errorf("Timestamp: got %v, want %v", hb.Timestamp, now)
	}
	if hb.Uptime != 15*time.Minute {
		t.Errorf("Uptime: got %v, want 15m", hb.Uptime)
	}
}

func TestHeartbeatUpdatesLastTime(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	h := NewHeartbeat(15*time.Minute, start)

	if h.Check(start.Add(15*time.Minute)) == nil {
		t.Fatal("expected first heartbeat")
	}
	if h.Check(start.Add(20*time.Minute)) != nil {
		t.Error("expected no heartbeat 5m after the previous one")
	}
	hb := h.Check(start.Add(30 * time.Minute))
	if hb == nil {
		t.Fatal("expected second heartbeat")
	}
	if hb.Uptime != 30*time.Minute {
		t.Errorf("Uptime: got %v, want 30m", hb.Uptime)
	}
}
