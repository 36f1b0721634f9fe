//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// RealReader reads input lines from actual hardware using the Linux GPIO
// character device.
type RealReader struct {
	chip   *gpiocdev.Chip
	lines  *gpiocdev.Lines
	values []int
}

// NewRealReader requests the configured lines as inputs.
func NewRealReader(opts Options) (*RealReader, error) {
	offsets, err := opts.lines()
	if err != nil {
		return nil, err
	}
	name := opts.Chip
	if name == "" {
		name = "gpiochip0"
	}

	chip, err := gpiocdev.NewChip(name)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", name, err)
	}

	// Pull-down matches Pi boot defaults so floating inputs read low.
	reqOpts := []gpiocdev.LineReqOption{gpiocdev.AsInput, gpiocdev.WithPullDown}
	if opts.ActiveLow {
		reqOpts = append(reqOpts, gpiocdev.AsActiveLow)
	}
	lines, err := chip.RequestLines(offsets, reqOpts...)
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request lines %v: %w", offsets, err)
	}

	return &RealReader{
		chip:   chip,
		lines:  lines,
		values: make([]int, len(offsets)),
	}, nil
}

// Read samples every line and packs them into one byte.
func (r *RealReader) Read() (uint8, error) {
	if err := r.lines.Values(r.values); err != nil {
		return 0, fmt.Errorf("read lines: %w", err)
	}
	return Pack(r.values), nil
}

// Close releases GPIO resources.
// Lines are reconfigured to input with pull-down (matching Pi boot defaults)
// before closing.
func (r *RealReader) Close() error {
	var errs []error

	if r.lines != nil {
		if err := r.lines.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure lines: %w", err))
		}
		if err := r.lines.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close lines: %w", err))
		}
	}
	if r.chip != nil {
		if err := r.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
