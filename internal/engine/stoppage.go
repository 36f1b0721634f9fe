package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sweeney/molding-monitor/internal/logic"
	"github.com/sweeney/molding-monitor/internal/store"
)

// openUnclassified creates the machine's pending stoppage starting at now.
// The caller holds the machine lock and has checked no entry is open.
func (e *Engine) openUnclassified(ctx context.Context, machineID string, sig *MachineSignals, now time.Time) ([]logic.Event, error) {
	entry, err := e.createPending(ctx, machineID, now)
	if err != nil {
		return nil, fmt.Errorf("open stoppage: %w", err)
	}
	sig.PendingID = entry.ID
	sig.PendingStart = entry.StartTime
	sig.PendingUntil = entry.StartTime

	day, hour := e.dayHour(now)
	return []logic.Event{{
		Type:       logic.EventUnclassifiedStoppage,
		MachineID:  machineID,
		Timestamp:  now,
		Date:       day,
		Hour:       hour,
		StoppageID: entry.ID,
		Reason:     logic.ReasonUnclassified,
	}}, nil
}

func (e *Engine) createPending(ctx context.Context, machineID string, start time.Time) (store.StoppageEntry, error) {
	entry := store.StoppageEntry{
		ID:        uuid.NewString(),
		MachineID: machineID,
		Reason:    string(logic.ReasonUnclassified),
		StartTime: start,
		IsPending: true,
	}
	day, hour := e.dayHour(start)
	_, _, err := e.store.UpdateBucket(ctx, machineID, day, hour, func(tx *gorm.DB, b *store.HourBucket) error {
		entry.BucketID = b.ID
		b.Status = string(logic.StatusStoppage)
		return tx.Create(&entry).Error
	})
	return entry, err
}

// advancePending extends the open entry to until. An entry that started in
// an earlier hour is closed at each hour boundary and continued in the next
// hour, so every bucket only carries minutes of its own hour. The accrued
// end never moves backwards.
func (e *Engine) advancePending(ctx context.Context, machineID string, sig *MachineSignals, until, now time.Time) ([]logic.Event, error) {
	if until.Before(sig.PendingUntil) {
		until = sig.PendingUntil
	}
	var evs []logic.Event
	for sig.HasPending() {
		boundary := logic.HourStart(sig.PendingStart, e.loc).Add(time.Hour)
		if until.Before(boundary) {
			break
		}
		closed, found, err := e.closeEntry(ctx, machineID, sig.PendingID, sig.PendingStart, boundary)
		if err != nil {
			return evs, fmt.Errorf("split stoppage: %w", err)
		}
		if found {
			evs = append(evs, e.stoppageEvent(logic.EventStoppageUpdated, closed, now))
		}
		next, err := e.createPending(ctx, machineID, boundary)
		if err != nil {
			clearPending(sig)
			return evs, fmt.Errorf("continue stoppage: %w", err)
		}
		sig.PendingID = next.ID
		sig.PendingStart = next.StartTime
		sig.PendingUntil = next.StartTime
	}
	if !sig.HasPending() {
		return evs, nil
	}

	var updated store.StoppageEntry
	found := false
	day, hour := e.dayHour(sig.PendingStart)
	_, _, err := e.store.UpdateBucket(ctx, machineID, day, hour, func(tx *gorm.DB, b *store.HourBucket) error {
		entry, ok, err := store.FindStoppage(tx, sig.PendingID)
		if err != nil || !ok {
			return err
		}
		entry.Duration = logic.ClampMinutes(logic.DurationMinutes(entry.StartTime, until))
		if err := tx.Save(&entry).Error; err != nil {
			return err
		}
		updated, found = entry, true
		return store.SyncStoppageMinutes(tx, b)
	})
	if err != nil {
		return evs, fmt.Errorf("extend stoppage: %w", err)
	}
	if !found {
		e.logger.Printf("stoppage: %s: pending entry %s vanished from storage", machineID, sig.PendingID)
		clearPending(sig)
		return evs, nil
	}
	sig.PendingUntil = until
	return append(evs, e.stoppageEvent(logic.EventStoppageUpdated, updated, now)), nil
}

// closePending closes the open entry where it stopped accruing. The entry
// is kept with its end time and duration and stays unclassified.
func (e *Engine) closePending(ctx context.Context, machineID string, sig *MachineSignals, t logic.EventType, now time.Time) ([]logic.Event, error) {
	end := sig.PendingUntil
	if end.Before(sig.PendingStart) {
		end = sig.PendingStart
	}
	closed, found, err := e.closeEntry(ctx, machineID, sig.PendingID, sig.PendingStart, end)
	if err != nil {
		return nil, fmt.Errorf("close stoppage: %w", err)
	}
	clearPending(sig)
	if !found {
		return nil, nil
	}
	return []logic.Event{e.stoppageEvent(t, closed, now)}, nil
}

func clearPending(sig *MachineSignals) {
	sig.PendingID = ""
	sig.PendingStart = time.Time{}
	sig.PendingUntil = time.Time{}
}

func (e *Engine) closeEntry(ctx context.Context, machineID, id string, start, end time.Time) (store.StoppageEntry, bool, error) {
	var (
		closed store.StoppageEntry
		found  bool
	)
	day, hour := e.dayHour(start)
	_, _, err := e.store.UpdateBucket(ctx, machineID, day, hour, func(tx *gorm.DB, b *store.HourBucket) error {
		entry, ok, err := store.FindStoppage(tx, id)
		if err != nil || !ok {
			return err
		}
		entry.EndTime = &end
		entry.Duration = logic.ClampMinutes(logic.DurationMinutes(entry.StartTime, end))
		entry.IsPending = false
		if err := tx.Save(&entry).Error; err != nil {
			return err
		}
		closed, found = entry, true
		return store.SyncStoppageMinutes(tx, b)
	})
	return closed, found, err
}

func (e *Engine) stoppageEvent(t logic.EventType, entry store.StoppageEntry, now time.Time) logic.Event {
	day, hour := e.dayHour(entry.StartTime)
	return logic.Event{
		Type:       t,
		MachineID:  entry.MachineID,
		Timestamp:  now,
		Date:       day,
		Hour:       hour,
		StoppageID: entry.ID,
		Reason:     logic.Reason(entry.Reason),
		Duration:   entry.Duration,
	}
}

// ClassifyRequest is an operator's reason for a stop.
type ClassifyRequest struct {
	MachineID             string
	Hour                  int
	Date                  string
	Reason                logic.Reason
	Description           string
	Duration              int
	PendingStoppageID     string
	SAPNotificationNumber string
}

// Classify records the reason for a stop. When PendingStoppageID names an
// entry of the machine, that entry is closed and classified in place;
// otherwise a new closed entry is added to (Date, Hour). Invalid requests
// are rejected without mutation.
func (e *Engine) Classify(ctx context.Context, req ClassifyRequest) (store.StoppageEntry, error) {
	if err := logic.ValidateClassification(req.Reason, req.SAPNotificationNumber); err != nil {
		return store.StoppageEntry{}, err
	}
	if req.Duration < 0 {
		return store.StoppageEntry{}, ErrInvalidDuration
	}
	hourStart, err := e.hourTime(req.Date, req.Hour)
	if err != nil {
		return store.StoppageEntry{}, err
	}
	if err := e.machineExists(ctx, req.MachineID); err != nil {
		return store.StoppageEntry{}, err
	}

	unlock := e.machines.Lock(req.MachineID)
	now := e.now()

	var (
		entry store.StoppageEntry
		evs   []logic.Event
	)
	existing, found, err := e.lookupEntry(ctx, req.MachineID, req.PendingStoppageID)
	if err == nil && found {
		sig := e.signals.Get(req.MachineID)
		accruing := sig.PendingID == existing.ID && sig.Status == logic.StatusStoppage
		entry, err = e.classifyExisting(ctx, existing, req, accruing, now)
		if err == nil {
			if sig.PendingID == entry.ID {
				sig.PendingID = ""
				sig.PendingStart = time.Time{}
				e.signals.Put(req.MachineID, sig)
			}
			evs = append(evs, e.stoppageEvent(logic.EventStoppageUpdated, entry, now))
		}
	} else if err == nil {
		if req.PendingStoppageID != "" {
			e.logger.Printf("stoppage: %s: unknown stoppage id %s, adding new entry", req.MachineID, req.PendingStoppageID)
		}
		entry, err = e.addClassified(ctx, req, hourStart)
		if err == nil {
			evs = append(evs, e.stoppageEvent(logic.EventStoppageAdded, entry, now))
		}
	}
	unlock()

	if err != nil {
		e.logger.Printf("stoppage: %s: classify: %v", req.MachineID, err)
		return store.StoppageEntry{}, err
	}
	e.emit(evs)
	return entry, nil
}

func (e *Engine) lookupEntry(ctx context.Context, machineID, id string) (store.StoppageEntry, bool, error) {
	if id == "" {
		return store.StoppageEntry{}, false, nil
	}
	entry, err := e.store.Stoppage(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return entry, false, nil
	}
	if err != nil {
		return entry, false, err
	}
	return entry, entry.MachineID == machineID, nil
}

// classifyExisting closes and classifies an entry. Without a supplied
// duration, an entry that is still accruing runs until now and any other
// keeps its own. The end time is always start plus duration so a repeated
// call stores the same fields.
func (e *Engine) classifyExisting(ctx context.Context, existing store.StoppageEntry, req ClassifyRequest, accruing bool, now time.Time) (store.StoppageEntry, error) {
	var out store.StoppageEntry
	day, hour := e.dayHour(existing.StartTime)
	_, _, err := e.store.UpdateBucket(ctx, existing.MachineID, day, hour, func(tx *gorm.DB, b *store.HourBucket) error {
		entry, ok, err := store.FindStoppage(tx, existing.ID)
		if err != nil {
			return err
		}
		if !ok {
			return store.ErrNotFound
		}
		duration := req.Duration
		if duration == 0 {
			if accruing && entry.EndTime == nil {
				duration = logic.DurationMinutes(entry.StartTime, now)
			} else {
				duration = entry.Duration
			}
		}
		end := entry.StartTime.Add(time.Duration(duration) * time.Minute)

		entry.Reason = string(req.Reason)
		entry.Description = req.Description
		entry.SAPNotificationNumber = req.SAPNotificationNumber
		entry.Duration = duration
		entry.EndTime = &end
		entry.IsPending = false
		entry.IsClassified = true
		if err := tx.Save(&entry).Error; err != nil {
			return err
		}
		out = entry
		return store.SyncStoppageMinutes(tx, b)
	})
	return out, err
}

func (e *Engine) addClassified(ctx context.Context, req ClassifyRequest, hourStart time.Time) (store.StoppageEntry, error) {
	end := hourStart.Add(time.Duration(req.Duration) * time.Minute)
	entry := store.StoppageEntry{
		ID:                    uuid.NewString(),
		MachineID:             req.MachineID,
		Reason:                string(req.Reason),
		Description:           req.Description,
		StartTime:             hourStart,
		EndTime:               &end,
		Duration:              req.Duration,
		IsClassified:          true,
		SAPNotificationNumber: req.SAPNotificationNumber,
	}
	day, hour := e.dayHour(hourStart)
	_, _, err := e.store.UpdateBucket(ctx, req.MachineID, day, hour, func(tx *gorm.DB, b *store.HourBucket) error {
		entry.BucketID = b.ID
		if err := tx.Create(&entry).Error; err != nil {
			return err
		}
		return store.SyncStoppageMinutes(tx, b)
	})
	return entry, err
}
