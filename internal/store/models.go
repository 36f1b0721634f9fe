package store

import "time"

// Machine is a molding machine. Status is the last derived state.
type Machine struct {
	ID           string `gorm:"primaryKey;size:64"`
	Name         string `gorm:"size:128"`
	DepartmentID string `gorm:"index;size:64"`
	Status       string `gorm:"index;size:32"`
	StatusAt     *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Sensor is a digital input attached to a machine.
type Sensor struct {
	ID         string `gorm:"primaryKey;size:64"`
	Name       string `gorm:"size:128"`
	SensorType string `gorm:"index;size:32"` // power, unit-cycle
	MachineID  string `gorm:"index;size:64"`
	Active     bool
}

// PinMapping binds one physical pin to at most one sensor.
type PinMapping struct {
	PinID    string `gorm:"primaryKey;size:16"`
	SensorID string `gorm:"index;size:64"`
}

// Mold is a tool with a nominal output rate.
type Mold struct {
	ID              string `gorm:"primaryKey;size:64"`
	Name            string `gorm:"size:128"`
	CapacityPerHour float64
}

// SensorValue holds only the latest value per sensor. LastHighAt is the
// last time the pin was seen set and is what rebuilds signal timestamps.
type SensorValue struct {
	SensorID   string `gorm:"primaryKey;size:64"`
	PinID      string `gorm:"size:16"`
	Value      uint8
	UpdatedAt  time.Time
	LastHighAt *time.Time
}

// ProductionRecord is one machine's ledger for one calendar day.
// UnitsProduced and DefectiveUnits are sums over Hours.
type ProductionRecord struct {
	ID             uint   `gorm:"primaryKey"`
	MachineID      string `gorm:"uniqueIndex:uniq_machine_day;size:64"`
	Day            string `gorm:"uniqueIndex:uniq_machine_day;size:10"` // YYYY-MM-DD in plant time
	UnitsProduced  int
	DefectiveUnits int
	Hours          []HourBucket `gorm:"foreignKey:RecordID"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// HourBucket accumulates one hour of a ProductionRecord.
type HourBucket struct {
	ID              uint `gorm:"primaryKey"`
	RecordID        uint `gorm:"uniqueIndex:uniq_record_hour"`
	Hour            int  `gorm:"uniqueIndex:uniq_record_hour"`
	UnitsProduced   int
	DefectiveUnits  int
	RunningMinutes  int
	StoppageMinutes int
	Status          string          `gorm:"size:32"`
	OperatorID      string          `gorm:"size:64"`
	MoldID          string          `gorm:"size:64"`
	Stoppages       []StoppageEntry `gorm:"foreignKey:BucketID"`
	UpdatedAt       time.Time
}

// StoppageEntry is one stop inside an hour bucket. Pending entries are
// open and have no EndTime.
type StoppageEntry struct {
	ID                    string `gorm:"primaryKey;size:36"`
	MachineID             string `gorm:"index;size:64"`
	BucketID              uint   `gorm:"index"`
	Reason                string `gorm:"index;size:32"`
	Description           string `gorm:"type:text"`
	StartTime             time.Time
	EndTime               *time.Time
	Duration              int
	IsPending             bool   `gorm:"index"`
	IsClassified          bool   `gorm:"index"`
	SAPNotificationNumber string `gorm:"size:32"`
	CreatedAt             time.Time
	UpdatedAt             time.Time
}
