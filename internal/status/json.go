package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string        `json:"event,omitempty"`
	Reason        string        `json:"reason,omitempty"`
	Ready         bool          `json:"ready"`
	UptimeSeconds int64         `json:"uptime_seconds"`
	StartTime     string        `json:"start_time"`
	Timestamp     string        `json:"timestamp"`
	LastSnapshot  string        `json:"last_snapshot,omitempty"`
	LastTick      string        `json:"last_tick,omitempty"`
	MQTT          MQTTStatus    `json:"mqtt"`
	SSEClients    int           `json:"sse_clients"`
	Counts        CountsJSON    `json:"counts"`
	Machines      []MachineJSON `json:"machines"`
	Config        ConfigJSON    `json:"config"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of daemon counters.
type CountsJSON struct {
	SnapshotsAccepted int `json:"snapshots_accepted"`
	SnapshotsRejected int `json:"snapshots_rejected"`
	ProductionUpdates int `json:"production_updates"`
	StoppagesDetected int `json:"stoppages_detected"`
	StateChanges      int `json:"state_changes"`
}

// MachineJSON is one machine's last known status.
type MachineJSON struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	TickMs         int64  `json:"tick_ms"`
	HeartbeatMs    int64  `json:"heartbeat_ms"`
	PowerTimeoutMs int64  `json:"power_timeout_ms"`
	CycleTimeoutMs int64  `json:"cycle_timeout_ms"`
	Broker         string `json:"broker"`
	TopicPrefix    string `json:"topic_prefix"`
	HTTPAddr       string `json:"http_addr"`
	Timezone       string `json:"timezone"`
	Database       string `json:"database"`
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func buildInner(snap Snapshot) StatusInner {
	machines := make([]MachineJSON, 0, len(snap.Machines))
	for _, m := range snap.Machines {
		machines = append(machines, MachineJSON{ID: m.ID, Status: string(m.Status), UpdatedAt: formatTime(m.UpdatedAt)})
	}

	return StatusInner{
		Ready:         snap.Ready(),
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     formatTime(snap.StartTime),
		Timestamp:     formatTime(snap.Now),
		LastSnapshot:  formatTime(snap.LastSnapshot),
		LastTick:      formatTime(snap.LastTick),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		SSEClients:    snap.SSEClients,
		Counts: CountsJSON{
			SnapshotsAccepted: snap.Counts.SnapshotsAccepted,
			SnapshotsRejected: snap.Counts.SnapshotsRejected,
			ProductionUpdates: snap.Counts.ProductionUpdates,
			StoppagesDetected: snap.Counts.StoppagesDetected,
			StateChanges:      snap.Counts.StateChanges,
		},
		Machines: machines,
		Config: ConfigJSON{
			TickMs:         snap.Config.TickMs,
			HeartbeatMs:    snap.Config.HeartbeatMs,
			PowerTimeoutMs: snap.Config.PowerTimeoutMs,
			CycleTimeoutMs: snap.Config.CycleTimeoutMs,
			Broker:         snap.Config.Broker,
			TopicPrefix:    snap.Config.TopicPrefix,
			HTTPAddr:       snap.Config.HTTPAddr,
			Timezone:       snap.Config.Timezone,
			Database:       snap.Config.Database,
		},
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
