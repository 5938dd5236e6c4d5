//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// RealLine reads a button from actual hardware using the Linux GPIO
// character device.
type RealLine struct {
	line *gpiocdev.Line
	pin  int
}

// NewRealLine requests pin on chip as a pulled-up input. If onEdge is non-nil
// falling-edge detection is enabled and every edge is passed to onEdge.
func NewRealLine(chip string, pin int, onEdge EdgeHandler) (*RealLine, error) {
	opts := []gpiocdev.LineReqOption{
		gpiocdev.WithConsumer("press-logger"),
		gpiocdev.AsInput,
		gpiocdev.WithPullUp,
	}
	if onEdge != nil {
		opts = append(opts,
			gpiocdev.WithFallingEdge,
			gpiocdev.WithEventHandler(func(evt gpiocdev.LineEvent) {
				onEdge(evt.Timestamp)
			}),
		)
	}

	line, err := gpiocdev.RequestLine(chip, pin, opts...)
	if err != nil {
		return nil, fmt.Errorf("request pin %d on %s: %w", pin, chip, err)
	}

	return &RealLine{line: line, pin: pin}, nil
}

// Read returns whether the button is held down.
func (r *RealLine) Read() (bool, error) {
	v, err := r.line.Value()
	if err != nil {
		return false, fmt.Errorf("read pin %d: %w", r.pin, err)
	}
	return v == 0, nil
}

// Close releases the line. Edge delivery stops before Close returns.
func (r *RealLine) Close() error {
	if r.line == nil {
		return nil
	}
	if err := r.line.Close(); err != nil {
		return fmt.Errorf("close pin %d: %w", r.pin, err)
	}
	return nil
}
