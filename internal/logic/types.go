// Package logic contains the press pipeline's business logic: debouncing,
// counting, and the wire record format.
// This package has NO GPIO, MQTT, network, or filesystem dependencies.
// Time is always injectable.
package logic

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// RecordVersion is the schema version written into every wire record.
const RecordVersion = 1

// PressEvent is one counted button press. Immutable once created.
type PressEvent struct {
	// Sequence starts at 1 and increases by exactly 1 per press.
	Sequence uint64
	// Timestamp is the formatted local time of the press, or empty when the
	// clock was not synchronized.
	Timestamp string
}

// Record is the JSON shape used both for the persisted log (one per line)
// and for live/replay delivery to observers.
type Record struct {
	Version   int    `json:"v"`
	Timestamp string `json:"buttonPressTimestamp"`
	Count     uint64 `json:"buttonPressCount"`
}

// rawRecord mirrors Record with optional fields so decoding can tell a
// missing value from a zero one.
type rawRecord struct {
	Version   *int    `json:"v"`
	Timestamp string  `json:"buttonPressTimestamp"`
	Count     *uint64 `json:"buttonPressCount"`
}

var (
	// ErrMalformedRecord is returned for records that are not valid JSON or
	// lack a press count.
	ErrMalformedRecord = errors.New("malformed record")
	// ErrUnsupportedVersion is returned for records with an unknown version.
	ErrUnsupportedVersion = errors.New("unsupported record version")
)

// EncodeRecord serializes ev as a single-line JSON record (no trailing newline).
func EncodeRecord(ev PressEvent) ([]byte, error) {
	return json.Marshal(Record{
		Version:   RecordVersion,
		Timestamp: ev.Timestamp,
		Count:     ev.Sequence,
	})
}

// DecodeRecord parses a single record. Records without a version tag were
// written before versioning and are read as version 1.
func DecodeRecord(data []byte) (PressEvent, error) {
	var raw rawRecord
	if err := json.Unmarshal(data, &raw); err != nil {
		return PressEvent{}, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	if raw.Version != nil && *raw.Version != RecordVersion {
		return PressEvent{}, fmt.Errorf("%w: %d", ErrUnsupportedVersion, *raw.Version)
	}
	if raw.Count == nil || *raw.Count == 0 {
		return PressEvent{}, fmt.Errorf("%w: missing press count", ErrMalformedRecord)
	}
	return PressEvent{Sequence: *raw.Count, Timestamp: raw.Timestamp}, nil
}

// HeartbeatData contains information for a heartbeat event.
type HeartbeatData struct {
	Timestamp time.Time
	Uptime    time.Duration
}
