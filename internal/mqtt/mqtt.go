// Package mqtt publishes machine events and daemon lifecycle events to an
// MQTT broker, with an abstraction for testing.
package mqtt

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/sweeney/molding-monitor/internal/logic"
)

// DefaultTopicPrefix is the root under which all topics are published.
const DefaultTopicPrefix = "factory/molding"

// EventTopic returns the topic for a machine event:
// <prefix>/<machineId>/<event type>.
func EventTopic(prefix string, event logic.Event) string {
	return strings.TrimSuffix(prefix, "/") + "/" + event.MachineID + "/" + string(event.Type)
}

// SystemTopic returns the topic for daemon lifecycle events.
func SystemTopic(prefix string) string {
	return strings.TrimSuffix(prefix, "/") + "/system"
}

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a machine event to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(event logic.Event) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload is the JSON body of a machine event. Fields that do not apply
// to the event type are omitted.
type Payload struct {
	MachineID string `json:"machineId"`
	Event     string `json:"event"`
	Timestamp string `json:"timestamp"`

	Status         string `json:"status,omitempty"`
	PreviousStatus string `json:"previousStatus,omitempty"`

	Date           string `json:"date,omitempty"`
	Hour           *int   `json:"hour,omitempty"`
	UnitsProduced  *int   `json:"unitsProduced,omitempty"`
	DefectiveUnits *int   `json:"defectiveUnits,omitempty"`
	RunningMinutes *int   `json:"runningMinutes,omitempty"`

	StoppageID string `json:"stoppageId,omitempty"`
	Reason     string `json:"reason,omitempty"`
	Duration   *int   `json:"duration,omitempty"`

	OperatorID string `json:"operatorId,omitempty"`
	MoldID     string `json:"moldId,omitempty"`
}

// NewPayload builds the payload for an event.
func NewPayload(event logic.Event) Payload {
	p := Payload{
		MachineID:      event.MachineID,
		Event:          string(event.Type),
		Timestamp:      event.Timestamp.UTC().Format(time.RFC3339),
		Status:         string(event.Status),
		PreviousStatus: string(event.PreviousStatus),
		Date:           event.Date,
		StoppageID:     event.StoppageID,
		Reason:         string(event.Reason),
		OperatorID:     event.OperatorID,
		MoldID:         event.MoldID,
	}
	if event.Date != "" {
		p.Hour = intPtr(event.Hour)
	}

	switch event.Type {
	case logic.EventProductionUpdate, logic.EventProductionAssignmentUpdated:
		p.UnitsProduced = intPtr(event.UnitsProduced)
		p.DefectiveUnits = intPtr(event.DefectiveUnits)
	case logic.EventRunningTimeUpdate:
		p.RunningMinutes = intPtr(event.RunningMinutes)
	case logic.EventUnclassifiedStoppage, logic.EventStoppageUpdated,
		logic.EventStoppageResolved, logic.EventStoppageAdded:
		p.Duration = intPtr(event.Duration)
	}
	return p
}

func intPtr(v int) *int { return &v }

// FormatPayload creates the JSON payload for a machine event.
func FormatPayload(event logic.Event) ([]byte, error) {
	return json.Marshal(NewPayload(event))
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}

// WillPayload is the retained last-will message the broker publishes when
// the daemon disappears without a clean shutdown.
func WillPayload() []byte {
	b, _ := json.Marshal(SystemPayload{System: SystemPayloadInner{Event: "OFFLINE", Reason: "CONNECTION_LOST"}})
	return b
}
