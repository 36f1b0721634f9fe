package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/sweeney/molding-monitor/internal/logic"
	"github.com/sweeney/molding-monitor/internal/metrics"
	"github.com/sweeney/molding-monitor/internal/store"
)

// creditUnit adds one produced unit to the bucket of at's hour.
func (e *Engine) creditUnit(ctx context.Context, machineID string, at time.Time) (logic.Event, error) {
	day, hour := e.dayHour(at)
	_, b, err := e.store.UpdateBucket(ctx, machineID, day, hour, func(_ *gorm.DB, b *store.HourBucket) error {
		b.UnitsProduced++
		return nil
	})
	if err != nil {
		return logic.Event{}, fmt.Errorf("credit unit: %w", err)
	}
	metrics.IncUnits(machineID)
	return logic.Event{
		Type:           logic.EventProductionUpdate,
		MachineID:      machineID,
		Timestamp:      at,
		Date:           day,
		Hour:           hour,
		UnitsProduced:  b.UnitsProduced,
		DefectiveUnits: b.DefectiveUnits,
	}, nil
}

// creditRunningMinute adds one running minute to the bucket of now's hour.
// Deduplication per wall-clock minute is the caller's job.
func (e *Engine) creditRunningMinute(ctx context.Context, machineID string, now time.Time) (logic.Event, error) {
	day, hour := e.dayHour(now)
	_, b, err := e.store.UpdateBucket(ctx, machineID, day, hour, func(_ *gorm.DB, b *store.HourBucket) error {
		b.RunningMinutes++
		b.Status = string(logic.StatusRunning)
		return nil
	})
	if err != nil {
		return logic.Event{}, fmt.Errorf("credit running minute: %w", err)
	}
	return logic.Event{
		Type:           logic.EventRunningTimeUpdate,
		MachineID:      machineID,
		Timestamp:      now,
		Date:           day,
		Hour:           hour,
		RunningMinutes: b.RunningMinutes,
	}, nil
}

// SetDefects overwrites the defective unit count of one hour.
func (e *Engine) SetDefects(ctx context.Context, machineID, date string, hour, count int) error {
	if count < 0 {
		return ErrInvalidDefects
	}
	at, err := e.hourTime(date, hour)
	if err != nil {
		return err
	}
	if err := e.machineExists(ctx, machineID); err != nil {
		return err
	}
	day, h := e.dayHour(at)
	_, b, err := e.store.UpdateBucket(ctx, machineID, day, h, func(_ *gorm.DB, b *store.HourBucket) error {
		b.DefectiveUnits = count
		return nil
	})
	if err != nil {
		e.logger.Printf("ledger: %s: set defects: %v", machineID, err)
		return err
	}
	e.emit([]logic.Event{{
		Type:           logic.EventProductionUpdate,
		MachineID:      machineID,
		Timestamp:      e.now(),
		Date:           day,
		Hour:           h,
		UnitsProduced:  b.UnitsProduced,
		DefectiveUnits: b.DefectiveUnits,
	}})
	return nil
}

// AssignRequest sets who ran a machine and with which mold. Nil fields are
// left unchanged.
type AssignRequest struct {
	MachineID      string
	Hour           int
	Date           string
	OperatorID     *string
	MoldID         *string
	DefectiveUnits *int
	ApplyToShift   bool
}

// AssignedHour identifies one bucket touched by an assignment.
type AssignedHour struct {
	Date string `json:"date"`
	Hour int    `json:"hour"`
}

// AssignProduction applies operator and mold to the addressed hour, or to
// every hour of the shift containing it when ApplyToShift is set. Defective
// units only ever apply to the addressed hour.
func (e *Engine) AssignProduction(ctx context.Context, req AssignRequest) ([]AssignedHour, error) {
	at, err := e.hourTime(req.Date, req.Hour)
	if err != nil {
		return nil, err
	}
	if req.DefectiveUnits != nil && *req.DefectiveUnits < 0 {
		return nil, ErrInvalidDefects
	}
	if err := e.machineExists(ctx, req.MachineID); err != nil {
		return nil, err
	}
	if req.MoldID != nil && *req.MoldID != "" {
		molds, err := e.store.Molds(ctx, []string{*req.MoldID})
		if err != nil {
			return nil, err
		}
		if _, ok := molds[*req.MoldID]; !ok {
			return nil, ErrUnknownMold
		}
	}

	hours := []time.Time{at}
	if req.ApplyToShift {
		if shift, ok := logic.ShiftFor(e.shifts, req.Hour); ok {
			hours = shift.Window(at, e.loc)
		}
	}

	now := e.now()
	var (
		out  []AssignedHour
		evs  []logic.Event
		errs []error
	)
	for _, h := range hours {
		day, hour := e.dayHour(h)
		addressed := h.Equal(at)
		_, b, err := e.store.UpdateBucket(ctx, req.MachineID, day, hour, func(_ *gorm.DB, b *store.HourBucket) error {
			if req.OperatorID != nil {
				b.OperatorID = *req.OperatorID
			}
			if req.MoldID != nil {
				b.MoldID = *req.MoldID
			}
			if addressed && req.DefectiveUnits != nil {
				b.DefectiveUnits = *req.DefectiveUnits
			}
			return nil
		})
		if err != nil {
			e.logger.Printf("ledger: %s: assign %s %02d: %v", req.MachineID, day, hour, err)
			errs = append(errs, err)
			continue
		}
		out = append(out, AssignedHour{Date: day, Hour: hour})
		evs = append(evs, logic.Event{
			Type:           logic.EventProductionAssignmentUpdated,
			MachineID:      req.MachineID,
			Timestamp:      now,
			Date:           day,
			Hour:           hour,
			OperatorID:     b.OperatorID,
			MoldID:         b.MoldID,
			UnitsProduced:  b.UnitsProduced,
			DefectiveUnits: b.DefectiveUnits,
		})
	}
	e.emit(evs)
	return out, errors.Join(errs...)
}
