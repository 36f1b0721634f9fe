package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sweeney/molding-monitor/internal/logic"
	"github.com/sweeney/molding-monitor/internal/metrics"
)

// Run re-evaluates every machine once per interval until ctx is done.
// Only one Run may be active per Engine.
func (e *Engine) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Minute
	}
	if !e.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer e.running.Store(false)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := e.Tick(ctx, e.now()); err != nil {
				e.logger.Printf("reconcile: %v", err)
			}
		}
	}
}

// Tick re-derives the status of every machine
// in the directory at now.
func (e *Engine) Tick(ctx context.Context, now time.Time) error {
	start := time.Now()
	machines, err := e.store.Machines(ctx)
	if err != nil {
		metrics.ObserveTick(metrics.ResultError, time.Since(start))
		return fmt.Errorf("list machines: %w", err)
	}

	var errs []error
	for _, m := range machines {
		evs, err := e.tickMachine(ctx, m.ID, now)
		e.emit(evs)
		if err != nil {
			e.logger.Printf("reconcile: %s: %v", m.ID, err)
			errs = append(errs, fmt.Errorf("%s: %w", m.ID, err))
		}
	}

	result := metrics.ResultSuccess
	if len(errs) > 0 {
		result = metrics.ResultError
	}
	metrics.ObserveTick(result, time.Since(start))
	if e.onTick != nil {
		e.onTick(now)
	}
	return errors.Join(errs...)
}

func (e *Engine) tickMachine(ctx context.Context, machineID string, now time.Time) ([]logic.Event, error) {
	unlock := e.machines.Lock(machineID)
	defer unlock()

	sig := e.signals.Get(machineID)
	evs, err := e.evaluate(ctx, machineID, &sig, now)
	e.signals.Put(machineID, sig)
	return evs, err
}
