package logic

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Shift is a named time-of-day window. End before Start wraps past midnight.
// Start equal to End covers the whole day.
type Shift struct {
	Name      string
	StartHour int
	EndHour   int
	Active    bool
}

// ParseClock parses "HH:MM" (or "HH") and returns the hour. Shifts are
// hour-aligned, so minutes must be 00.
func ParseClock(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty clock value")
	}
	hourPart := s
	if i := strings.IndexByte(s, ':'); i >= 0 {
		hourPart = s[:i]
		m, err := strconv.Atoi(s[i+1:])
		if err != nil || m < 0 || m > 59 {
			return 0, fmt.Errorf("invalid clock %q", s)
		}
		if m != 0 {
			return 0, fmt.Errorf("clock %q: shifts must start and end on the hour", s)
		}
	}
	h, err := strconv.Atoi(hourPart)
	if err != nil || h < 0 || h > 24 {
		return 0, fmt.Errorf("invalid clock %q", s)
	}
	return h % 24, nil
}

// Contains reports whether the hour of day falls inside the shift.
func (s Shift) Contains(hour int) bool {
	switch {
	case s.StartHour == s.EndHour:
		return true
	case s.StartHour < s.EndHour:
		return hour >= s.StartHour && hour < s.EndHour
	default:
		return hour >= s.StartHour || hour < s.EndHour
	}
}

// Length returns the number of hours in the shift.
func (s Shift) Length() int {
	n := (s.EndHour - s.StartHour + 24) % 24
	if n == 0 {
		return 24
	}
	return n
}

// ShiftFor returns the first active shift containing hour.
func ShiftFor(shifts []Shift, hour int) (Shift, bool) {
	for _, s := range shifts {
		if s.Active && s.Contains(hour) {
			return s, true
		}
	}
	return Shift{}, false
}

// Window returns the start of every hour of the shift occurrence that
// contains at. For a wrapping shift the occurrence may begin on the
// previous calendar day or end on the next one.
func (s Shift) Window(at time.Time, loc *time.Location) []time.Time {
	at = HourStart(at, loc)
	offset := (at.Hour() - s.StartHour + 24) % 24
	start := at.Add(-time.Duration(offset) * time.Hour)
	hours := make([]time.Time, 0, s.Length())
	for i := 0; i < s.Length(); i++ {
		hours = append(hours, start.Add(time.Duration(i)*time.Hour))
	}
	return hours
}
