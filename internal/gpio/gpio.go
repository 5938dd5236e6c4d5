// Package gpio provides the button input line with hardware abstraction.
// The real implementation uses the Linux GPIO character device and delivers
// falling edges from the kernel's edge-event stream.
// The fake implementation allows testing without hardware.
package gpio

import "time"

// Line is a button input.
type Line interface {
	// Read returns whether the button is currently held down.
	// The line is pulled up, so raw 0 = pressed.
	Read() (bool, error)

	// Close releases GPIO resources and stops edge delivery.
	Close() error
}

// EdgeHandler is called for every falling edge with the kernel's monotonic
// event time. It runs on the edge-delivery goroutine and must not block.
type EdgeHandler func(at time.Duration)

// Pin defaults (BCM numbering)
const (
	DefaultChip = "gpiochip0"
	DefaultPin  = 4
)
