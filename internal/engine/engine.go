// Package engine turns pin snapshots into machine states, stoppage entries
// and hourly production figures. All mutation of one machine's state is
// serialized behind a per-machine lock shared by snapshot ingestion, the
// reconciliation tick and operator requests.
package engine

import (
	"context"
	"errors"
	"log"
	"sync/atomic"
	"time"

	"github.com/sweeney/molding-monitor/internal/keylock"
	"github.com/sweeney/molding-monitor/internal/logic"
	"github.com/sweeney/molding-monitor/internal/store"
)

var (
	ErrInvalidSnapshot = errors.New("invalid snapshot")
	ErrInvalidHour     = errors.New("hour must be between 0 and 23")
	ErrInvalidDate     = errors.New("date must be YYYY-MM-DD")
	ErrInvalidDuration = errors.New("duration must not be negative")
	ErrInvalidDefects  = errors.New("defective units must not be negative")
	ErrInvalidPeriod   = errors.New("period must be one of 24h, 7d, 30d")
	ErrUnknownMachine  = errors.New("unknown machine")
	ErrUnknownMold     = errors.New("unknown mold")
	ErrAlreadyRunning  = errors.New("reconciliation already running")
)

// Notifier receives engine events. Implementations must not block.
type Notifier interface {
	Notify(ev logic.Event)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ev logic.Event)

// Notify calls f(ev).
func (f NotifierFunc) Notify(ev logic.Event) { f(ev) }

// Config holds engine settings. Zero values fall back to defaults.
type Config struct {
	Timeouts            logic.Timeouts
	Shifts              []logic.Shift
	PerformanceFallback float64
	Location            *time.Location

	Notifier Notifier
	Logger   *log.Logger
	Now      func() time.Time
	OnTick   func(at time.Time) // called after every reconciliation pass
}

// Engine is the signal interpretation and production state service.
type Engine struct {
	store    *store.Store
	signals  *SignalStore
	machines *keylock.Map

	timeouts logic.Timeouts
	shifts   []logic.Shift
	fallback float64
	loc      *time.Location

	notifier Notifier
	logger   *log.Logger
	now      func() time.Time
	onTick   func(time.Time)

	running atomic.Bool
}

// New creates an Engine backed by st. Call Rehydrate before serving.
func New(st *store.Store, cfg Config) *Engine {
	e := &Engine{
		store:    st,
		signals:  NewSignalStore(),
		machines: keylock.New(),
		timeouts: cfg.Timeouts,
		shifts:   cfg.Shifts,
		fallback: cfg.PerformanceFallback,
		loc:      cfg.Location,
		notifier: cfg.Notifier,
		logger:   cfg.Logger,
		now:      cfg.Now,
		onTick:   cfg.OnTick,
	}
	if e.timeouts.Power <= 0 {
		e.timeouts.Power = 5 * time.Minute
	}
	if e.timeouts.Cycle <= 0 {
		e.timeouts.Cycle = 2 * time.Minute
	}
	if e.fallback <= 0 {
		e.fallback = logic.DefaultPerformance
	}
	if e.loc == nil {
		e.loc = time.Local
	}
	if e.logger == nil {
		e.logger = log.Default()
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e
}

// Signals exposes the in-memory signal state.
func (e *Engine) Signals() *SignalStore {
	return e.signals
}

// Location is the plant timezone used for day and hour keys.
func (e *Engine) Location() *time.Location {
	return e.loc
}

// Rehydrate rebuilds the signal state from durable storage.
func (e *Engine) Rehydrate(ctx context.Context) error {
	return e.signals.Rehydrate(ctx, e.store, e.logger)
}

func (e *Engine) emit(evs []logic.Event) {
	if e.notifier == nil {
		return
	}
	for _, ev := range evs {
		e.notifier.Notify(ev)
	}
}

func (e *Engine) machineExists(ctx context.Context, id string) error {
	if _, err := e.store.Machine(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrUnknownMachine
		}
		return err
	}
	return nil
}

// hourTime returns the start of (day, hour) in the plant timezone.
func (e *Engine) hourTime(day string, hour int) (time.Time, error) {
	if hour < 0 || hour > 23 {
		return time.Time{}, ErrInvalidHour
	}
	d, err := logic.ParseDay(day, e.loc)
	if err != nil {
		return time.Time{}, ErrInvalidDate
	}
	return time.Date(d.Year(), d.Month(), d.Day(), hour, 0, 0, 0, e.loc), nil
}

func (e *Engine) dayHour(t time.Time) (string, int) {
	return logic.DayKey(t, e.loc), logic.HourOf(t, e.loc)
}
