package engine

import (
	"context"
	"time"

	"github.com/sweeney/molding-monitor/internal/logic"
	"github.com/sweeney/molding-monitor/internal/store"
)

const (
	DefaultTimelineDays = 7
	MaxTimelineDays     = 90
)

// Timeline is a machine's ledger over recent days. Days without any
// recorded activity are omitted.
type Timeline struct {
	MachineID string        `json:"machineId"`
	From      string        `json:"from"`
	To        string        `json:"to"`
	Days      []DayTimeline `json:"days"`
}

type DayTimeline struct {
	Date           string         `json:"date"`
	UnitsProduced  int            `json:"unitsProduced"`
	DefectiveUnits int            `json:"defectiveUnits"`
	Hours          []HourTimeline `json:"hours"`
}

type HourTimeline struct {
	Hour            int            `json:"hour"`
	UnitsProduced   int            `json:"unitsProduced"`
	DefectiveUnits  int            `json:"defectiveUnits"`
	RunningMinutes  int            `json:"runningMinutes"`
	StoppageMinutes int            `json:"stoppageMinutes"`
	Status          string         `json:"status,omitempty"`
	OperatorID      string         `json:"operatorId,omitempty"`
	MoldID          string         `json:"moldId,omitempty"`
	Stoppages       []StoppageView `json:"stoppages"`
}

type StoppageView struct {
	ID                    string     `json:"id"`
	Reason                string     `json:"reason"`
	Description           string     `json:"description,omitempty"`
	StartTime             time.Time  `json:"startTime"`
	EndTime               *time.Time `json:"endTime"`
	Duration              int        `json:"duration"`
	IsPending             bool       `json:"isPending"`
	IsClassified          bool       `json:"isClassified"`
	SAPNotificationNumber string     `json:"sapNotificationNumber,omitempty"`
}

// Timeline returns the machine's last days calendar days up to today.
func (e *Engine) Timeline(ctx context.Context, machineID string, days int) (Timeline, error) {
	if days <= 0 {
		days = DefaultTimelineDays
	}
	if days > MaxTimelineDays {
		days = MaxTimelineDays
	}
	if err := e.machineExists(ctx, machineID); err != nil {
		return Timeline{}, err
	}

	now := e.now().In(e.loc)
	from := logic.DayKey(now.AddDate(0, 0, -(days - 1)), e.loc)
	to := logic.DayKey(now, e.loc)
	recs, err := e.store.Records(ctx, machineID, from, to)
	if err != nil {
		return Timeline{}, err
	}

	tl := Timeline{MachineID: machineID, From: from, To: to, Days: make([]DayTimeline, 0, len(recs))}
	for _, r := range recs {
		d := DayTimeline{
			Date:           r.Day,
			UnitsProduced:  r.UnitsProduced,
			DefectiveUnits: r.DefectiveUnits,
			Hours:          make([]HourTimeline, 0, len(r.Hours)),
		}
		for _, b := range r.Hours {
			d.Hours = append(d.Hours, hourView(b))
		}
		tl.Days = append(tl.Days, d)
	}
	return tl, nil
}

func hourView(b store.HourBucket) HourTimeline {
	h := HourTimeline{
		Hour:            b.Hour,
		UnitsProduced:   b.UnitsProduced,
		DefectiveUnits:  b.DefectiveUnits,
		RunningMinutes:  b.RunningMinutes,
		StoppageMinutes: b.StoppageMinutes,
		Status:          b.Status,
		OperatorID:      b.OperatorID,
		MoldID:          b.MoldID,
		Stoppages:       make([]StoppageView, 0, len(b.Stoppages)),
	}
	for _, s := range b.Stoppages {
		h.Stoppages = append(h.Stoppages, ViewStoppage(s))
	}
	return h
}

// ViewStoppage converts a stored entry to its API form.
func ViewStoppage(s store.StoppageEntry) StoppageView {
	return StoppageView{
		ID:                    s.ID,
		Reason:                s.Reason,
		Description:           s.Description,
		StartTime:             s.StartTime,
		EndTime:               s.EndTime,
		Duration:              s.Duration,
		IsPending:             s.IsPending,
		IsClassified:          s.IsClassified,
		SAPNotificationNumber: s.SAPNotificationNumber,
	}
}

// Stats is the calculator output for one machine over a trailing period.
type Stats struct {
	MachineID string    `json:"machineId"`
	Period    string    `json:"period"`
	From      time.Time `json:"from"`
	To        time.Time `json:"to"`
	logic.Report
}

// ParsePeriod maps 24h, 7d and 30d onto durations.
func ParsePeriod(p string) (time.Duration, error) {
	switch p {
	case "", "24h":
		return 24 * time.Hour, nil
	case "7d":
		return 7 * 24 * time.Hour, nil
	case "30d":
		return 30 * 24 * time.Hour, nil
	}
	return 0, ErrInvalidPeriod
}

// Stats computes availability, quality, performance, OEE, MTBF and MTTR
// over the hours in (now-period, now], with a per-shift breakdown.
func (e *Engine) Stats(ctx context.Context, machineID, period string) (Stats, error) {
	d, err := ParsePeriod(period)
	if err != nil {
		return Stats{}, err
	}
	if period == "" {
		period = "24h"
	}
	if err := e.machineExists(ctx, machineID); err != nil {
		return Stats{}, err
	}

	to := e.now().In(e.loc)
	from := to.Add(-d)
	samples, err := e.samples(ctx, machineID, from, to)
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		MachineID: machineID,
		Period:    period,
		From:      from,
		To:        to,
		Report:    logic.Calculate(samples, e.shifts, e.fallback),
	}, nil
}

// samples collects calculator inputs for buckets whose hour overlaps (from, to].
func (e *Engine) samples(ctx context.Context, machineID string, from, to time.Time) ([]logic.HourSample, error) {
	recs, err := e.store.Records(ctx, machineID, logic.DayKey(from, e.loc), logic.DayKey(to, e.loc))
	if err != nil {
		return nil, err
	}

	var moldIDs []string
	for _, r := range recs {
		for _, b := range r.Hours {
			if b.MoldID != "" {
				moldIDs = append(moldIDs, b.MoldID)
			}
		}
	}
	molds, err := e.store.Molds(ctx, moldIDs)
	if err != nil {
		return nil, err
	}

	firstHour := logic.HourStart(from, e.loc).Add(time.Hour)
	if from.Equal(logic.HourStart(from, e.loc)) {
		firstHour = from
	}
	var out []logic.HourSample
	for _, r := range recs {
		for _, b := range r.Hours {
			start, err := e.hourTime(r.Day, b.Hour)
			if err != nil || start.Before(firstHour) || start.After(to) {
				continue
			}
			s := logic.HourSample{
				Start:           start,
				Hour:            b.Hour,
				Units:           b.UnitsProduced,
				Defects:         b.DefectiveUnits,
				RunningMinutes:  b.RunningMinutes,
				StoppageMinutes: b.StoppageMinutes,
			}
			if m, ok := molds[b.MoldID]; ok {
				s.MoldCapacity = m.CapacityPerHour
			}
			for _, st := range b.Stoppages {
				if logic.Reason(st.Reason) == logic.ReasonBreakdown {
					s.BreakdownCount++
					s.BreakdownMinutes += st.Duration
				}
			}
			out = append(out, s)
		}
	}
	return out, nil
}
