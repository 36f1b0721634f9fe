package logic

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
)

// PinCount is the number of digital inputs carried by one snapshot byte.
const PinCount = 8

var (
	// ErrInvalidPinData is returned when the hex payload is not exactly one byte.
	ErrInvalidPinData = errors.New("pin data must be one hex-encoded byte")
	// ErrInvalidTimestamp is returned when a snapshot timestamp cannot be parsed.
	ErrInvalidTimestamp = errors.New("invalid snapshot timestamp")
)

// Snapshot is one sample of all eight digital inputs.
type Snapshot struct {
	Byte uint8
	Time time.Time
}

// PinReading is the decoded value of a single pin.
type PinReading struct {
	Bit   int
	PinID string
	Value PinValue
}

// PinID returns the physical pin identifier for a bit position.
func PinID(bit int) string {
	return fmt.Sprintf("DQ.%d", bit)
}

// Pins decodes the snapshot byte, bit 0 first.
func (s Snapshot) Pins() []PinReading {
	pins := make([]PinReading, PinCount)
	for bit := 0; bit < PinCount; bit++ {
		pins[bit] = PinReading{
			Bit:   bit,
			PinID: PinID(bit),
			Value: PinValue((s.Byte >> bit) & 1),
		}
	}
	return pins
}

// ParsePinData decodes the agent's hex payload.
func ParsePinData(s string) (uint8, error) {
	s = strings.TrimSpace(s)
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != 1 {
		return 0, ErrInvalidPinData
	}
	return b[0], nil
}

// timestampLayouts are tried in order. Layouts without a zone are read in
// the plant location.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ParseTimestamp parses an RFC 3339 timestamp, or an ISO 8601 timestamp
// without zone interpreted in loc.
func ParseTimestamp(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, ErrInvalidTimestamp
	}
	if loc == nil {
		loc = time.Local
	}
	for i, layout := range timestampLayouts {
		var t time.Time
		var err error
		if i == 0 {
			t, err = time.Parse(layout, s)
		} else {
			t, err = time.ParseInLocation(layout, s, loc)
		}
		if err == nil {
			return t, nil
		}
	}
	return time.Time{}, ErrInvalidTimestamp
}

// DescribePins returns a human readable list of active pins.
func DescribePins(b uint8) string {
	var active []string
	for _, p := range (Snapshot{Byte: b}).Pins() {
		if p.Value.High() {
			active = append(active, p.PinID)
		}
	}
	if len(active) == 0 {
		return "Active pins: None"
	}
	return "Active pins: " + strings.Join(active, ", ")
}

// EncodePinData is the inverse of ParsePinData.
func EncodePinData(b uint8) string {
	return hex.EncodeToString([]byte{b})
}
