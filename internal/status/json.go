package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	Count         uint64       `json:"press_count"`
	LastPress     string       `json:"last_press,omitempty"`
	Stored        int          `json:"stored_records"`
	Observers     int          `json:"observers"`
	ClockSynced   bool         `json:"clock_synced"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Pipeline      PipelineJSON `json:"pipeline"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
	Buffered  int    `json:"buffered"`
}

// PipelineJSON reports loss and failure counters.
type PipelineJSON struct {
	DebounceRejected uint64 `json:"debounce_rejected"`
	QueueDropped     uint64 `json:"queue_dropped"`
	AppendFailures   uint64 `json:"append_failures"`
	Untimed          uint64 `json:"untimed"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	Pin           int    `json:"pin"`
	DebounceMs    int64  `json:"debounce_ms"`
	PollMs        int64  `json:"poll_ms"`
	HeartbeatMs   int64  `json:"heartbeat_ms"`
	QueueCapacity int    `json:"queue_capacity"`
	LogPath       string `json:"log_path"`
	Broker        string `json:"broker,omitempty"`
	HTTPAddr      string `json:"http_addr"`
}

func buildInner(snap Snapshot) StatusInner {
	inner := StatusInner{
		Count:         snap.Count,
		LastPress:     snap.LastPress,
		Stored:        snap.Stored,
		Observers:     snap.Observers,
		ClockSynced:   snap.ClockSynced,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker, Buffered: snap.MQTTBuffered},
		Pipeline: PipelineJSON{
			DebounceRejected: snap.DebounceRejected,
			QueueDropped:     snap.QueueDropped,
			AppendFailures:   snap.AppendFailures,
			Untimed:          snap.Untimed,
		},
		Config: ConfigJSON{
			Pin:           snap.Config.Pin,
			DebounceMs:    snap.Config.DebounceMs,
			PollMs:        snap.Config.PollMs,
			HeartbeatMs:   snap.Config.HeartbeatMs,
			QueueCapacity: snap.Config.QueueCapacity,
			LogPath:       snap.Config.LogPath,
			Broker:        snap.Config.Broker,
			HTTPAddr:      snap.Config.HTTPAddr,
		},
	}

	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
