package store

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/sweeney/molding-monitor/internal/logic"
)

// BucketFunc mutates one hour bucket inside a ledger transaction. Any
// additional reads or writes must go through tx.
type BucketFunc func(tx *gorm.DB, b *HourBucket) error

// UpdateBucket finds or creates the record for (machineID, day) and the
// bucket for hour, applies fn, clamps the minute counters and recomputes
// the day totals. Calls for the same (machine, day) are serialized.
func (s *Store) UpdateBucket(ctx context.Context, machineID, day string, hour int, fn BucketFunc) (ProductionRecord, HourBucket, error) {
	var (
		rec ProductionRecord
		b   HourBucket
	)
	if hour < 0 || hour > 23 {
		return rec, b, errors.New("hour out of range")
	}

	unlock := s.days.Lock(machineID + "|" + day)
	defer unlock()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where(ProductionRecord{MachineID: machineID, Day: day}).FirstOrCreate(&rec).Error; err != nil {
			return err
		}
		// String conditions: struct conditions would drop hour 0.
		b = HourBucket{RecordID: rec.ID, Hour: hour}
		if err := tx.Where("record_id = ? AND hour = ?", rec.ID, hour).FirstOrCreate(&b).Error; err != nil {
			return err
		}

		if err := fn(tx, &b); err != nil {
			return err
		}
		b.RunningMinutes = logic.ClampMinutes(b.RunningMinutes)
		b.StoppageMinutes = logic.ClampMinutes(b.StoppageMinutes)
		if b.UnitsProduced < 0 {
			b.UnitsProduced = 0
		}
		if b.DefectiveUnits < 0 {
			b.DefectiveUnits = 0
		}
		if err := tx.Omit("Stoppages").Save(&b).Error; err != nil {
			return err
		}

		var totals struct {
			Units   int
			Defects int
		}
		if err := tx.Model(&HourBucket{}).
			Select("COALESCE(SUM(units_produced), 0) AS units, COALESCE(SUM(defective_units), 0) AS defects").
			Where("record_id = ?", rec.ID).
			Scan(&totals).Error; err != nil {
			return err
		}
		rec.UnitsProduced = totals.Units
		rec.DefectiveUnits = totals.Defects
		return tx.Omit("Hours").Save(&rec).Error
	})
	return rec, b, err
}

// SyncStoppageMinutes sets the bucket's stoppage minutes to the sum of its
// entry durations, clamped to the hour.
func SyncStoppageMinutes(tx *gorm.DB, b *HourBucket) error {
	var sum int
	if err := tx.Model(&StoppageEntry{}).
		Select("COALESCE(SUM(duration), 0)").
		Where("bucket_id = ?", b.ID).
		Scan(&sum).Error; err != nil {
		return err
	}
	b.StoppageMinutes = logic.ClampMinutes(sum)
	return nil
}

// FindStoppage loads an entry inside a transaction. ok is false when absent.
func FindStoppage(tx *gorm.DB, id string) (StoppageEntry, bool, error) {
	var e StoppageEntry
	err := tx.First(&e, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return e, false, nil
	}
	return e, err == nil, err
}

// PendingStoppages returns open entries, all machines when machineID is empty.
func (s *Store) PendingStoppages(ctx context.Context, machineID string) ([]StoppageEntry, error) {
	q := s.db.WithContext(ctx).Where("is_pending = ?", true)
	if machineID != "" {
		q = q.Where("machine_id = ?", machineID)
	}
	var out []StoppageEntry
	err := q.Order("start_time").Find(&out).Error
	return out, err
}

// Stoppage returns one entry or ErrNotFound.
func (s *Store) Stoppage(ctx context.Context, id string) (StoppageEntry, error) {
	var e StoppageEntry
	err := s.db.WithContext(ctx).First(&e, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return e, ErrNotFound
	}
	return e, err
}

// Records returns a machine's day records in [fromDay, toDay] with their
// hours and stoppages, ordered chronologically.
func (s *Store) Records(ctx context.Context, machineID, fromDay, toDay string) ([]ProductionRecord, error) {
	var out []ProductionRecord
	err := s.db.WithContext(ctx).
		Preload("Hours", func(db *gorm.DB) *gorm.DB { return db.Order("hour") }).
		Preload("Hours.Stoppages", func(db *gorm.DB) *gorm.DB { return db.Order("start_time") }).
		Where("machine_id = ? AND day >= ? AND day <= ?", machineID, fromDay, toDay).
		Order("day").
		Find(&out).Error
	return out, err
}
