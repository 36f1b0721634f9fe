// Package logic contains pure business logic for molding machine signal interpretation.
// This package has NO external dependencies (no database, MQTT, HTTP, or time.Sleep).
// Time is always injectable via time.Time parameters.
package logic

import "time"

// PinValue is the logical level of one digital input.
type PinValue uint8

const (
	PinLow  PinValue = 0
	PinHigh PinValue = 1
)

// PinValueOf converts a bool into a PinValue.
func PinValueOf(high bool) PinValue {
	if high {
		return PinHigh
	}
	return PinLow
}

// High reports whether the pin is set.
func (v PinValue) High() bool {
	return v == PinHigh
}

func (v PinValue) String() string {
	if v == PinHigh {
		return "1"
	}
	return "0"
}

// SensorType identifies what a sensor pin reports.
type SensorType string

const (
	SensorPower     SensorType = "power"
	SensorUnitCycle SensorType = "unit-cycle"
)

// Valid reports whether t is a known sensor type.
func (t SensorType) Valid() bool {
	return t == SensorPower || t == SensorUnitCycle
}

// Status is the derived operating state of a machine.
type Status string

const (
	StatusRunning             Status = "running"
	StatusStoppage            Status = "stoppage"
	StatusStoppedYetProducing Status = "stopped_yet_producing"
	StatusInactive            Status = "inactive"
)

// AllStatuses lists every machine status in display order.
var AllStatuses = []Status{StatusRunning, StatusStoppage, StatusStoppedYetProducing, StatusInactive}

// Reason classifies why a machine stopped.
type Reason string

const (
	ReasonPlanned          Reason = "planned"
	ReasonMoldChange       Reason = "mold_change"
	ReasonBreakdown        Reason = "breakdown"
	ReasonMaintenance      Reason = "maintenance"
	ReasonMaterialShortage Reason = "material_shortage"
	ReasonOther            Reason = "other"
	ReasonUnclassified     Reason = "unclassified"
)

// Valid reports whether r is a known stoppage reason.
func (r Reason) Valid() bool {
	switch r {
	case ReasonPlanned, ReasonMoldChange, ReasonBreakdown, ReasonMaintenance,
		ReasonMaterialShortage, ReasonOther, ReasonUnclassified:
		return true
	}
	return false
}

// EventType names a notification emitted by the engine.
type EventType string

const (
	EventPowerSignal                 EventType = "power-signal"
	EventMachineStateUpdate          EventType = "machine-state-update"
	EventProductionUpdate            EventType = "production-update"
	EventUnclassifiedStoppage        EventType = "unclassified-stoppage-detected"
	EventStoppageUpdated             EventType = "stoppage-updated"
	EventStoppageResolved            EventType = "stoppage-resolved"
	EventStoppageAdded               EventType = "stoppage-added"
	EventProductionAssignmentUpdated EventType = "production-assignment-updated"
	EventRunningTimeUpdate           EventType = "running-time-update"
)

// Event is a fire-and-forget notification about one machine.
// Only the fields relevant to Type are set.
type Event struct {
	Type      EventType
	MachineID string
	Timestamp time.Time

	Status         Status
	PreviousStatus Status

	Date           string
	Hour           int
	UnitsProduced  int
	DefectiveUnits int
	RunningMinutes int

	StoppageID string
	Reason     Reason
	Duration   int

	OperatorID string
	MoldID     string
}

// Timeouts bounds how old the last power and cycle pulses may be before
// the machine is considered to have lost that signal.
type Timeouts struct {
	Power time.Duration
	Cycle time.Duration
}
