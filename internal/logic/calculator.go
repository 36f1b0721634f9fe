package logic

import (
	"math"
	"time"
)

// DefaultPerformance is used when no mold capacity is known for any hour.
const DefaultPerformance = 0.85

// HourSample is the ledger data for one machine hour.
type HourSample struct {
	Start            time.Time
	Hour             int
	Units            int
	Defects          int
	RunningMinutes   int
	StoppageMinutes  int
	MoldCapacity     float64 // units per hour, 0 if no mold assigned
	BreakdownCount   int
	BreakdownMinutes int
}

// Metrics are the reliability and efficiency figures for a set of hours.
// Percentages and minutes are rounded to the nearest integer.
type Metrics struct {
	Hours            int `json:"hours"`
	Units            int `json:"unitsProduced"`
	Defects          int `json:"defectiveUnits"`
	RunningMinutes   int `json:"runningMinutes"`
	StoppageMinutes  int `json:"stoppageMinutes"`
	BreakdownCount   int `json:"breakdownCount"`
	BreakdownMinutes int `json:"breakdownMinutes"`

	Availability int `json:"availability"`
	Quality      int `json:"quality"`
	Performance  int `json:"performance"`
	OEE          int `json:"oee"`
	MTBF         int `json:"mtbf"`
	MTTR         int `json:"mttr"`
}

// ShiftMetrics is Metrics restricted to the hours of one shift.
type ShiftMetrics struct {
	Name string `json:"name"`
	Metrics
}

// Report is the calculator output for a window.
type Report struct {
	Metrics
	Shifts []ShiftMetrics `json:"shifts"`
}

// Calculate derives availability, quality, performance, OEE, MTBF and MTTR
// from hour samples, overall and per active shift. fallback is the
// performance ratio used when no hour carries a mold capacity.
func Calculate(samples []HourSample, shifts []Shift, fallback float64) Report {
	r := Report{Metrics: calculate(samples, fallback)}
	for _, s := range shifts {
		if !s.Active {
			continue
		}
		var in []HourSample
		for _, h := range samples {
			if owner, ok := ShiftFor(shifts, h.Hour); ok && owner.Name == s.Name {
				in = append(in, h)
			}
		}
		r.Shifts = append(r.Shifts, ShiftMetrics{Name: s.Name, Metrics: calculate(in, fallback)})
	}
	return r
}

func calculate(samples []HourSample, fallback float64) Metrics {
	var m Metrics
	var expected float64
	var moldUnits int
	for _, h := range samples {
		m.Hours++
		m.Units += h.Units
		m.Defects += h.Defects
		m.RunningMinutes += h.RunningMinutes
		m.StoppageMinutes += h.StoppageMinutes
		m.BreakdownCount += h.BreakdownCount
		m.BreakdownMinutes += h.BreakdownMinutes
		if h.MoldCapacity > 0 {
			expected += h.MoldCapacity / 60 * float64(h.RunningMinutes)
			moldUnits += h.Units
		}
	}

	availability := ratio(float64(m.RunningMinutes), float64(m.RunningMinutes+m.StoppageMinutes))
	quality := ratio(float64(m.Units-m.Defects), float64(m.Units))
	performance := fallback
	if expected > 0 {
		performance = math.Min(1, float64(moldUnits)/expected)
	}

	m.Availability = percent(availability)
	m.Quality = percent(quality)
	m.Performance = percent(performance)
	m.OEE = percent(availability * quality * performance)

	if m.BreakdownCount > 0 {
		m.MTBF = int(math.Round(float64(m.RunningMinutes) / float64(m.BreakdownCount)))
		m.MTTR = int(math.Round(float64(m.BreakdownMinutes) / float64(m.BreakdownCount)))
	} else {
		m.MTBF = m.RunningMinutes
	}
	return m
}

func ratio(num, den float64) float64 {
	if den <= 0 {
		return 0
	}
	return num / den
}

func percent(v float64) int {
	return int(math.Round(v * 100))
}
