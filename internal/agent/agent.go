// Package agent samples pin snapshots on a fixed interval and pushes
// them to the molding monitor.
package agent

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/sweeney/molding-monitor/internal/gpio"
	"github.com/sweeney/molding-monitor/internal/logic"
)

// Config controls the send loop. Zero values fall back to defaults.
type Config struct {
	Interval      time.Duration
	RetryAttempts int
	RetryDelay    time.Duration
}

// Stats counts submissions since start.
type Stats struct {
	Sent     int
	Failed   int
	Backoffs int
}

// Agent reads a snapshot each interval and submits it. After RetryAttempts
// consecutive failures it waits RetryDelay before the next attempt.
type Agent struct {
	reader gpio.Reader
	sub    Submitter
	cfg    Config
	logger *log.Logger
	now    func() time.Time

	mu       sync.Mutex
	failures int
	stats    Stats
}

// New creates an Agent.
func New(reader gpio.Reader, sub Submitter, cfg Config, logger *log.Logger) *Agent {
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Second
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 5 * time.Second
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Agent{reader: reader, sub: sub, cfg: cfg, logger: logger, now: time.Now}
}

// Run sends snapshots until ctx is cancelled.
func (a *Agent) Run(ctx context.Context) error {
	a.logger.Printf("agent: started, sending every %v", a.cfg.Interval)
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			a.logger.Printf("agent: stopped")
			return ctx.Err()
		case <-timer.C:
			timer.Reset(a.Step(ctx))
		}
	}
}

// Step performs one read and submit, and returns how long to wait before
// the next one.
func (a *Agent) Step(ctx context.Context) time.Duration {
	b, err := a.reader.Read()
	if err == nil {
		var processed []string
		processed, err = a.sub.Submit(ctx, b, a.now())
		var partial *PartialError
		if errors.As(err, &partial) {
			a.logger.Printf("agent: %v", err)
			err = nil
		}
		if err == nil {
			a.succeeded(b, processed)
			return a.cfg.Interval
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.stats.Failed++
	a.failures++
	a.logger.Printf("agent: send failed (%d/%d): %v", a.failures, a.cfg.RetryAttempts, err)
	if a.failures >= a.cfg.RetryAttempts {
		a.failures = 0
		a.stats.Backoffs++
		a.logger.Printf("agent: %d consecutive failures, backing off %v", a.cfg.RetryAttempts, a.cfg.RetryDelay)
		return a.cfg.RetryDelay
	}
	return a.cfg.Interval
}

func (a *Agent) succeeded(b uint8, processed []string) {
	a.mu.Lock()
	a.failures = 0
	a.stats.Sent++
	a.mu.Unlock()

	if len(processed) > 0 {
		a.logger.Printf("agent: processed machines %s (%s)", strings.Join(processed, ", "), logic.DescribePins(b))
	} else {
		a.logger.Printf("agent: sent %s", logic.DescribePins(b))
	}
}

// Stats returns a copy of the counters.
func (a *Agent) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stats
}
