package store

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/sweeney/molding-monitor/internal/logic"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestResolveUnmappedPinLogsNothing(t *testing.T) {
	var logs bytes.Buffer
	db, err := openDB(filepath.Join(t.TempDir(), "quiet.db"), &logs)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	s := New(db)
	t.Cleanup(func() { s.Close() })
	ctx := context.Background()
	if err := s.Seed(ctx, testSeed()); err != nil {
		t.Fatalf("seed: %v", err)
	}
	logs.Reset()

	for _, pin := range []string{"DQ.2", "DQ.3", "DQ.7"} {
		_, ok, err := s.ResolvePin(ctx, pin)
		if err != nil || ok {
			t.Errorf("ResolvePin(%s): ok=%v err=%v", pin, ok, err)
		}
	}
	if _, err := s.Stoppage(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Stoppage(missing): got %v, want ErrNotFound", err)
	}
	if logs.Len() != 0 {
		t.Errorf("expected no log output for misses, got:\n%s", logs.String())
	}
}

func testSeed() Seed {
	return Seed{
		Machines: []Machine{{ID: "press-1", Name: "Press 1", DepartmentID: "molding"}},
		Sensors: []Sensor{
			{ID: "p1-power", Name: "Press 1 power", SensorType: "power", MachineID: "press-1", Active: true},
			{ID: "p1-cycle", Name: "Press 1 cycle", SensorType: "unit-cycle", MachineID: "press-1", Active: true},
			{ID: "orphan", Name: "Orphan", SensorType: "power", MachineID: "missing", Active: true},
		},
		Pins: []PinMapping{
			{PinID: "DQ.0", SensorID: "p1-power"},
			{PinID: "DQ.1", SensorID: "p1-cycle"},
			{PinID: "DQ.7", SensorID: "orphan"},
		},
		Molds: []Mold{{ID: "m-100", Name: "Cap 100", CapacityPerHour: 120}},
	}
}

func TestResolvePin(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	if err := s.Seed(ctx, testSeed()); err != nil {
		t.Fatalf("seed: %v", err)
	}

	res, ok, err := s.ResolvePin(ctx, "DQ.1")
	if err != nil || !ok {
		t.Fatalf("expected DQ.1 to resolve, ok=%v err=%v", ok, err)
	}
	if res.Sensor.ID != "p1-cycle" || res.Machine.ID != "press-1" {
		t.Errorf("unexpected resolution: %+v", res)
	}

	if _, ok, err := s.ResolvePin(ctx, "DQ.5"); ok || err != nil {
		t.Errorf("unmapped pin: ok=%v err=%v", ok, err)
	}
	if _, ok, err := s.ResolvePin(ctx, "DQ.7"); ok || err != nil {
		t.Errorf("pin with missing machine: ok=%v err=%v", ok, err)
	}
}

func TestSeedPreservesStatus(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	if err := s.Seed(ctx, testSeed()); err != nil {
		t.Fatalf("seed: %v", err)
	}
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	if err := s.SetMachineStatus(ctx, "press-1", logic.StatusRunning, now); err != nil {
		t.Fatalf("set status: %v", err)
	}
	if err := s.Seed(ctx, testSeed()); err != nil {
		t.Fatalf("reseed: %v", err)
	}
	m, err := s.Machine(ctx, "press-1")
	if err != nil {
		t.Fatalf("machine: %v", err)
	}
	if m.Status != string(logic.StatusRunning) {
		t.Errorf("expected status to survive reseed, got %q", m.Status)
	}
	if err := s.SetMachineStatus(ctx, "nope", logic.StatusRunning, now); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRecordSensorValueAndLastSignals(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	if err := s.Seed(ctx, testSeed()); err != nil {
		t.Fatalf("seed: %v", err)
	}
	t0 := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatal(err)
		}
	}
	must(s.RecordSensorValue(ctx, "p1-power", "DQ.0", logic.PinHigh, t0))
	must(s.RecordSensorValue(ctx, "p1-cycle", "DQ.1", logic.PinHigh, t0.Add(time.Minute)))
	// A later low reading must not erase the last high time.
	must(s.RecordSensorValue(ctx, "p1-power", "DQ.0", logic.PinLow, t0.Add(2*time.Minute)))

	sig, err := s.LastSignals(ctx)
	if err != nil {
		t.Fatalf("last signals: %v", err)
	}
	got := sig["press-1"]
	if !got.Power.Equal(t0) {
		t.Errorf("power: got %v, want %v", got.Power, t0)
	}
	if !got.Cycle.Equal(t0.Add(time.Minute)) {
		t.Errorf("cycle: got %v, want %v", got.Cycle, t0.Add(time.Minute))
	}

	var sv SensorValue
	must(s.DB().First(&sv, "sensor_id = ?", "p1-power").Error)
	if sv.Value != 0 {
		t.Errorf("expected latest value 0, got %d", sv.Value)
	}
}

func TestUpdateBucketTotals(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, h := range []int{0, 0, 5} {
		_, _, err := s.UpdateBucket(ctx, "press-1", "2026-03-01", h, func(tx *gorm.DB, b *HourBucket) error {
			b.UnitsProduced++
			b.RunningMinutes += 90
			return nil
		})
		if err != nil {
			t.Fatalf("update bucket: %v", err)
		}
	}

	rec, b, err := s.UpdateBucket(ctx, "press-1", "2026-03-01", 0, func(tx *gorm.DB, b *HourBucket) error {
		b.DefectiveUnits = 1
		return nil
	})
	if err != nil {
		t.Fatalf("update bucket: %v", err)
	}
	if b.UnitsProduced != 2 || b.RunningMinutes != 60 {
		t.Errorf("hour 0: got units=%d running=%d", b.UnitsProduced, b.RunningMinutes)
	}
	if rec.UnitsProduced != 3 || rec.DefectiveUnits != 1 {
		t.Errorf("record totals: got units=%d defects=%d", rec.UnitsProduced, rec.DefectiveUnits)
	}

	if _, _, err := s.UpdateBucket(ctx, "press-1", "2026-03-01", 24, func(*gorm.DB, *HourBucket) error { return nil }); err == nil {
		t.Error("expected error for hour 24")
	}
}

func TestUpdateBucketConcurrent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := s.UpdateBucket(ctx, "press-1", "2026-03-01", 9, func(tx *gorm.DB, b *HourBucket) error {
				b.UnitsProduced++
				return nil
			})
			if err != nil {
				t.Errorf("update bucket: %v", err)
			}
		}()
	}
	wg.Wait()

	recs, err := s.Records(ctx, "press-1", "2026-03-01", "2026-03-01")
	if err != nil {
		t.Fatalf("records: %v", err)
	}
	if len(recs) != 1 || recs[0].UnitsProduced != 20 {
		t.Fatalf("expected one record with 20 units, got %+v", recs)
	}
}

func TestStoppageMinutesSync(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 10, 5, 0, 0, time.UTC)
	end := start.Add(20 * time.Minute)

	_, b, err := s.UpdateBucket(ctx, "press-1", "2026-03-01", 10, func(tx *gorm.DB, b *HourBucket) error {
		for i, d := range []int{20, 50} {
			e := StoppageEntry{
				ID: []string{"a", "b"}[i], MachineID: "press-1", BucketID: b.ID,
				Reason: string(logic.ReasonUnclassified), StartTime: start, EndTime: &end, Duration: d,
			}
			if err := tx.Create(&e).Error; err != nil {
				return err
			}
		}
		return SyncStoppageMinutes(tx, b)
	})
	if err != nil {
		t.Fatalf("update bucket: %v", err)
	}
	if b.StoppageMinutes != 60 {
		t.Errorf("expected clamped 60 stoppage minutes, got %d", b.StoppageMinutes)
	}

	recs, err := s.Records(ctx, "press-1", "2026-03-01", "2026-03-01")
	if err != nil {
		t.Fatalf("records: %v", err)
	}
	if len(recs) != 1 || len(recs[0].Hours) != 1 || len(recs[0].Hours[0].Stoppages) != 2 {
		t.Fatalf("expected preloaded stoppages, got %+v", recs)
	}

	if _, err := s.Stoppage(ctx, "zzz"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestPendingStoppages(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 10, 5, 0, 0, time.UTC)

	_, _, err := s.UpdateBucket(ctx, "press-1", "2026-03-01", 10, func(tx *gorm.DB, b *HourBucket) error {
		return tx.Create(&StoppageEntry{ID: "p", MachineID: "press-1", BucketID: b.ID, StartTime: start, IsPending: true}).Error
	})
	if err != nil {
		t.Fatalf("update bucket: %v", err)
	}

	all, err := s.PendingStoppages(ctx, "")
	if err != nil || len(all) != 1 {
		t.Fatalf("expected 1 pending entry, got %d (%v)", len(all), err)
	}
	other, err := s.PendingStoppages(ctx, "press-2")
	if err != nil || len(other) != 0 {
		t.Errorf("expected no pending entries for press-2, got %d (%v)", len(other), err)
	}
}
