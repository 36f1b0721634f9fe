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

var allStatuses = func() []string {
	out := make([]string, len(logic.AllStatuses))
	for i, s := range logic.AllStatuses {
		out[i] = string(s)
	}
	return out
}()

// evaluate derives the machine's status at now and applies the side
// effects of that status. The caller holds the machine lock.
func (e *Engine) evaluate(ctx context.Context, machineID string, sig *MachineSignals, now time.Time) ([]logic.Event, error) {
	status := logic.DeriveStatus(now, sig.LastPower, sig.LastCycle, e.timeouts)
	prev := sig.Status

	var (
		evs  []logic.Event
		errs []error
	)
	add := func(ev []logic.Event, err error) {
		evs = append(evs, ev...)
		if err != nil {
			errs = append(errs, err)
		}
	}

	// An open stop accrues minutes only while the machine is in stoppage.
	if sig.HasPending() {
		switch {
		case prev == logic.StatusStoppage:
			add(e.advancePending(ctx, machineID, sig, e.accrueUntil(sig, status, now), now))
		case status == logic.StatusStoppage:
			// Power is back without cycles after an unpowered spell: the
			// frozen entry ends where it stopped and a new one opens below.
			add(e.closePending(ctx, machineID, sig, logic.EventStoppageUpdated, now))
		}
	}

	switch status {
	case logic.StatusRunning:
		// Snapshot and tick clocks interleave; a minute at or before the
		// last credited one is never credited again.
		if key := logic.MinuteKey(now); key > sig.LastCreditedMinute {
			ev, err := e.creditRunningMinute(ctx, machineID, now)
			if err == nil {
				sig.LastCreditedMinute = key
				evs = append(evs, ev)
			} else {
				errs = append(errs, err)
			}
		}
	case logic.StatusStoppage:
		if prev != logic.StatusStoppage && !sig.HasPending() {
			add(e.openUnclassified(ctx, machineID, sig, now))
		}
	}

	// A resumed cycle closes the open stop. Losing power freezes it.
	if sig.HasPending() && (status == logic.StatusRunning || status == logic.StatusStoppedYetProducing) {
		add(e.closePending(ctx, machineID, sig, logic.EventStoppageResolved, now))
	}

	if status != prev {
		if err := e.persistStatus(ctx, machineID, status, now); err != nil {
			e.logger.Printf("tracker: %s: persist status %s: %v", machineID, status, err)
			errs = append(errs, err)
		} else {
			sig.Status = status
			metrics.SetMachineStatus(machineID, string(status), allStatuses)
			evs = append(evs, logic.Event{
				Type:           logic.EventMachineStateUpdate,
				MachineID:      machineID,
				Timestamp:      now,
				Status:         status,
				PreviousStatus: prev,
			})
		}
	}
	return evs, errors.Join(errs...)
}

// accrueUntil is how far an open stop extends when evaluated at now. A
// machine that lost power stopped accruing when the power signal went stale.
func (e *Engine) accrueUntil(sig *MachineSignals, status logic.Status, now time.Time) time.Time {
	if status != logic.StatusInactive || sig.LastPower.IsZero() {
		return now
	}
	if stale := sig.LastPower.Add(e.timeouts.Power); stale.Before(now) {
		return stale
	}
	return now
}

// persistStatus stores the status on the machine and labels the current
// hour bucket with it.
func (e *Engine) persistStatus(ctx context.Context, machineID string, status logic.Status, now time.Time) error {
	if err := e.store.SetMachineStatus(ctx, machineID, status, now); err != nil {
		return fmt.Errorf("machine status: %w", err)
	}
	day, hour := e.dayHour(now)
	_, _, err := e.store.UpdateBucket(ctx, machineID, day, hour, func(_ *gorm.DB, b *store.HourBucket) error {
		b.Status = string(status)
		return nil
	})
	if err != nil {
		return fmt.Errorf("bucket status: %w", err)
	}
	return nil
}
