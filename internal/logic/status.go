package logic

import "time"

// Activity holds the two signal freshness flags for a machine.
type Activity struct {
	HasPower bool
	HasCycle bool
}

// Status maps the freshness flags onto the four machine states.
func (a Activity) Status() Status {
	switch {
	case a.HasPower && a.HasCycle:
		return StatusRunning
	case a.HasPower:
		return StatusStoppage
	case a.HasCycle:
		return StatusStoppedYetProducing
	default:
		return StatusInactive
	}
}

// Evaluate computes signal freshness at now. A zero last time means the
// signal was never seen. A signal exactly as old as its timeout is stale.
func Evaluate(now, lastPower, lastCycle time.Time, t Timeouts) Activity {
	return Activity{
		HasPower: fresh(now, lastPower, t.Power),
		HasCycle: fresh(now, lastCycle, t.Cycle),
	}
}

// DeriveStatus is a pure function of the two signal ages and timeouts.
func DeriveStatus(now, lastPower, lastCycle time.Time, t Timeouts) Status {
	return Evaluate(now, lastPower, lastCycle, t).Status()
}

func fresh(now, last time.Time, timeout time.Duration) bool {
	if last.IsZero() {
		return false
	}
	return now.Sub(last) < timeout
}

// DayKey returns the calendar day of t in loc as YYYY-MM-DD.
func DayKey(t time.Time, loc *time.Location) string {
	return t.In(location(loc)).Format("2006-01-02")
}

// HourOf returns the hour of day of t in loc.
func HourOf(t time.Time, loc *time.Location) int {
	return t.In(location(loc)).Hour()
}

// MinuteKey identifies the wall-clock minute containing t. It is used to
// credit at most one running minute per machine per minute.
func MinuteKey(t time.Time) int64 {
	return t.Unix() / 60
}

// HourStart truncates t to the start of its hour in loc.
func HourStart(t time.Time, loc *time.Location) time.Time {
	t = t.In(location(loc))
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, t.Location())
}

// ParseDay parses a YYYY-MM-DD key in loc.
func ParseDay(day string, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation("2006-01-02", day, location(loc))
}

// DurationMinutes returns the whole minutes elapsed between start and end.
func DurationMinutes(start, end time.Time) int {
	if end.Before(start) {
		return 0
	}
	return int(end.Sub(start) / time.Minute)
}

// ClampMinutes bounds a per-hour minute counter to [0, 60].
func ClampMinutes(m int) int {
	if m < 0 {
		return 0
	}
	if m > 60 {
		return 60
	}
	return m
}

func location(loc *time.Location) *time.Location {
	if loc == nil {
		return time.Local
	}
	return loc
}
