package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sweeney/molding-monitor/internal/logic"
	"github.com/sweeney/molding-monitor/internal/metrics"
	"github.com/sweeney/molding-monitor/internal/store"
)

type resolvedPin struct {
	reading logic.PinReading
	sensor  store.Sensor
}

// SubmitSnapshot decodes a hex pin byte and its timestamp and ingests it.
// A malformed payload is rejected before any state is touched.
func (e *Engine) SubmitSnapshot(ctx context.Context, pinData, timestamp string) ([]string, error) {
	if strings.TrimSpace(pinData) == "" || strings.TrimSpace(timestamp) == "" {
		metrics.ObserveSnapshot(metrics.ResultRejected, 0)
		return nil, fmt.Errorf("%w: pinData and timestamp are required", ErrInvalidSnapshot)
	}
	b, err := logic.ParsePinData(pinData)
	if err != nil {
		metrics.ObserveSnapshot(metrics.ResultRejected, 0)
		return nil, fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}
	ts, err := logic.ParseTimestamp(timestamp, e.loc)
	if err != nil {
		metrics.ObserveSnapshot(metrics.ResultRejected, 0)
		return nil, fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}
	return e.Ingest(ctx, logic.Snapshot{Byte: b, Time: ts})
}

// Ingest applies one snapshot. It returns the ids of machines with at least
// one mapped, active pin in the snapshot. Persistence failures on one
// machine are logged and returned joined after the other machines ran.
func (e *Engine) Ingest(ctx context.Context, snap logic.Snapshot) ([]string, error) {
	start := time.Now()

	byMachine := make(map[string][]resolvedPin)
	var errs []error
	for _, r := range snap.Pins() {
		res, ok, err := e.store.ResolvePin(ctx, r.PinID)
		if err != nil {
			errs = append(errs, fmt.Errorf("resolve %s: %w", r.PinID, err))
			continue
		}
		if !ok || !res.Sensor.Active || !logic.SensorType(res.Sensor.SensorType).Valid() {
			continue
		}
		byMachine[res.Machine.ID] = append(byMachine[res.Machine.ID], resolvedPin{reading: r, sensor: res.Sensor})
	}

	processed := make([]string, 0, len(byMachine))
	for id := range byMachine {
		processed = append(processed, id)
	}
	sort.Strings(processed)

	for _, id := range processed {
		evs, err := e.applySnapshot(ctx, id, byMachine[id], snap.Time)
		e.emit(evs)
		if err != nil {
			e.logger.Printf("ingest: %s: %v", id, err)
			errs = append(errs, fmt.Errorf("%s: %w", id, err))
		}
	}

	err := errors.Join(errs...)
	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
	}
	metrics.ObserveSnapshot(result, time.Since(start))
	return processed, err
}

func (e *Engine) applySnapshot(ctx context.Context, machineID string, pins []resolvedPin, at time.Time) ([]logic.Event, error) {
	unlock := e.machines.Lock(machineID)
	defer unlock()

	sig := e.signals.Get(machineID)
	var (
		evs  []logic.Event
		errs []error
	)
	for _, p := range pins {
		if err := e.store.RecordSensorValue(ctx, p.sensor.ID, p.reading.PinID, p.reading.Value, at); err != nil {
			errs = append(errs, fmt.Errorf("record %s: %w", p.sensor.ID, err))
		}
		if !p.reading.Value.High() {
			continue
		}
		switch logic.SensorType(p.sensor.SensorType) {
		case logic.SensorPower:
			if at.After(sig.LastPower) {
				sig.LastPower = at
			}
			evs = append(evs, logic.Event{Type: logic.EventPowerSignal, MachineID: machineID, Timestamp: at})
		case logic.SensorUnitCycle:
			if at.After(sig.LastCycle) {
				sig.LastCycle = at
			}
			ev, err := e.creditUnit(ctx, machineID, at)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			evs = append(evs, ev)
		}
	}

	more, err := e.evaluate(ctx, machineID, &sig, at)
	evs = append(evs, more...)
	if err != nil {
		errs = append(errs, err)
	}
	e.signals.Put(machineID, sig)
	return evs, errors.Join(errs...)
}
