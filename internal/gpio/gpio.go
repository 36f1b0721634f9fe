// Package gpio reads the eight digital inputs of a pin snapshot with
// hardware abstraction. The real implementation uses the Linux GPIO
// character device; the fake allows testing without hardware.
package gpio

import (
	"errors"
	"fmt"

	"github.com/sweeney/molding-monitor/internal/logic"
)

// Reader samples all input lines at once.
type Reader interface {
	// Read returns one snapshot byte: bit n is the logical value of
	// the line mapped to pin DQ.n.
	Read() (uint8, error)

	// Close releases GPIO resources.
	Close() error
}

// DefaultLines are the BCM line offsets for DQ.0 through DQ.7.
var DefaultLines = []int{17, 27, 22, 23, 24, 25, 5, 6}

// Options configure a RealReader.
type Options struct {
	Chip      string // e.g. gpiochip0
	Lines     []int  // one offset per bit, bit 0 first; DefaultLines when empty
	ActiveLow bool   // optocoupler inputs that pull the line low when active
}

func (o Options) lines() ([]int, error) {
	if len(o.Lines) == 0 {
		return DefaultLines, nil
	}
	if len(o.Lines) > logic.PinCount {
		return nil, fmt.Errorf("gpio: %d lines configured, at most %d", len(o.Lines), logic.PinCount)
	}
	return o.Lines, nil
}

// Pack folds per-line values into a snapshot byte. Non-zero is high.
func Pack(values []int) uint8 {
	var b uint8
	for i, v := range values {
		if i >= logic.PinCount {
			break
		}
		if v != 0 {
			b |= 1 << uint(i)
		}
	}
	return b
}

var errNotSupported = errors.New("gpio: not supported on this platform (requires Linux)")
