// Package timesource formats press timestamps from the system wall clock.
//
// Boards without a battery-backed clock boot with a time near the epoch
// until NTP has synchronized. Readings before a plausibility floor are
// reported as unavailable instead of producing a bogus date.
package timesource

import (
	"fmt"
	"time"
)

// Layout is the local date-time format written into press records.
const Layout = "2006-01-02 15:04:05"

// DefaultFloor is the earliest wall-clock time treated as synchronized.
var DefaultFloor = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// Clock formats the current time in a fixed location.
type Clock struct {
	now   func() time.Time
	loc   *time.Location
	floor time.Time
}

// New creates a Clock reading the system time.
// A nil loc means time.Local.
func New(loc *time.Location, floor time.Time) *Clock {
	return NewWithFunc(time.Now, loc, floor)
}

// NewWithFunc creates a Clock reading time from now. Useful for tests.
func NewWithFunc(now func() time.Time, loc *time.Location, floor time.Time) *Clock {
	if loc == nil {
		loc = time.Local
	}
	return &Clock{now: now, loc: loc, floor: floor}
}

// Now returns the formatted local time. ok is false, with an empty string,
// while the clock reads earlier than the floor.
func (c *Clock) Now() (string, bool) {
	t := c.now()
	if t.Before(c.floor) {
		return "", false
	}
	return t.In(c.loc).Format(Layout), true
}

// Synced reports whether the clock currently reads past the floor.
func (c *Clock) Synced() bool {
	return !c.now().Before(c.floor)
}

// LoadLocation resolves a timezone name. Empty or "Local" means the system
// zone.
func LoadLocation(name string) (*time.Location, error) {
	if name == "" || name == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", name, err)
	}
	return loc, nil
}
