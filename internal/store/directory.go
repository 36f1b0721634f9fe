package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/sweeney/molding-monitor/internal/logic"
)

// Resolution is the sensor and machine a pin is wired to.
type Resolution struct {
	Sensor  Sensor
	Machine Machine
}

// ResolvePin looks up the sensor mapped to pinID and its machine.
// ok is false when the pin is unmapped or the sensor or machine is missing.
func (s *Store) ResolvePin(ctx context.Context, pinID string) (Resolution, bool, error) {
	var pm PinMapping
	if err := s.db.WithContext(ctx).First(&pm, "pin_id = ?", pinID).Error; err != nil {
		return Resolution{}, false, ignoreNotFound(err)
	}
	var res Resolution
	if err := s.db.WithContext(ctx).First(&res.Sensor, "id = ?", pm.SensorID).Error; err != nil {
		return Resolution{}, false, ignoreNotFound(err)
	}
	if err := s.db.WithContext(ctx).First(&res.Machine, "id = ?", res.Sensor.MachineID).Error; err != nil {
		return Resolution{}, false, ignoreNotFound(err)
	}
	return res, true, nil
}

// Machines lists every machine ordered by id.
func (s *Store) Machines(ctx context.Context) ([]Machine, error) {
	var ms []Machine
	err := s.db.WithContext(ctx).Order("id").Find(&ms).Error
	return ms, err
}

// Machine returns one machine or ErrNotFound.
func (s *Store) Machine(ctx context.Context, id string) (Machine, error) {
	var m Machine
	err := s.db.WithContext(ctx).First(&m, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return m, ErrNotFound
	}
	return m, err
}

// SetMachineStatus stores the derived status of a machine.
func (s *Store) SetMachineStatus(ctx context.Context, id string, status logic.Status, at time.Time) error {
	res := s.db.WithContext(ctx).Model(&Machine{}).Where("id = ?", id).
		Updates(map[string]any{"status": string(status), "status_at": at})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Molds returns the molds with the given ids keyed by id. Unknown ids are absent.
func (s *Store) Molds(ctx context.Context, ids []string) (map[string]Mold, error) {
	out := make(map[string]Mold)
	if len(ids) == 0 {
		return out, nil
	}
	var ms []Mold
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&ms).Error; err != nil {
		return nil, err
	}
	for _, m := range ms {
		out[m.ID] = m
	}
	return out, nil
}

// RecordSensorValue overwrites the latest value of a sensor. LastHighAt only
// moves forward when the pin is high.
func (s *Store) RecordSensorValue(ctx context.Context, sensorID, pinID string, v logic.PinValue, at time.Time) error {
	row := SensorValue{SensorID: sensorID, PinID: pinID, Value: uint8(v), UpdatedAt: at}
	cols := []string{"pin_id", "value", "updated_at"}
	if v.High() {
		row.LastHighAt = &at
		cols = append(cols, "last_high_at")
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "sensor_id"}},
		DoUpdates: clause.AssignmentColumns(cols),
	}).Create(&row).Error
}

// SignalTimes are the last times each signal kind was seen high on a machine.
// Zero means never.
type SignalTimes struct {
	Power time.Time
	Cycle time.Time
}

// LastSignals rebuilds per-machine signal times from stored sensor values.
func (s *Store) LastSignals(ctx context.Context) (map[string]SignalTimes, error) {
	type row struct {
		MachineID  string
		SensorType string
		LastHighAt *time.Time
	}
	var rows []row
	err := s.db.WithContext(ctx).Table("sensor_values").
		Select("sensors.machine_id, sensors.sensor_type, sensor_values.last_high_at").
		Joins("JOIN sensors ON sensors.id = sensor_values.sensor_id").
		Where("sensors.active = ? AND sensor_values.last_high_at IS NOT NULL", true).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make(map[string]SignalTimes)
	for _, r := range rows {
		if r.LastHighAt == nil {
			continue
		}
		st := out[r.MachineID]
		switch logic.SensorType(r.SensorType) {
		case logic.SensorPower:
			if r.LastHighAt.After(st.Power) {
				st.Power = *r.LastHighAt
			}
		case logic.SensorUnitCycle:
			if r.LastHighAt.After(st.Cycle) {
				st.Cycle = *r.LastHighAt
			}
		}
		out[r.MachineID] = st
	}
	return out, nil
}

// Seed is the static directory loaded from configuration.
type Seed struct {
	Machines []Machine
	Sensors  []Sensor
	Pins     []PinMapping
	Molds    []Mold
}

// Seed upserts the directory. Existing machine statuses are preserved.
func (s *Store) Seed(ctx context.Context, seed Seed) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, m := range seed.Machines {
			m := m
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "id"}},
				DoUpdates: clause.AssignmentColumns([]string{"name", "department_id", "updated_at"}),
			}).Create(&m).Error
			if err != nil {
				return err
			}
		}
		if len(seed.Sensors) > 0 {
			if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&seed.Sensors).Error; err != nil {
				return err
			}
		}
		if len(seed.Pins) > 0 {
			if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&seed.Pins).Error; err != nil {
				return err
			}
		}
		if len(seed.Molds) > 0 {
			if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&seed.Molds).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func ignoreNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	return err
}
