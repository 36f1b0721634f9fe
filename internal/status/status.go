// Package status provides a thread-safe status tracker for the molding
// monitor daemon. It is read by the HTTP status page and heartbeats.
package status

import (
	"sort"
	"sync"
	"time"

	"github.com/sweeney/molding-monitor/internal/logic"
)

// Config contains daemon configuration for display.
type Config struct {
	TickMs         int64
	HeartbeatMs    int64
	PowerTimeoutMs int64
	CycleTimeoutMs int64
	Broker         string
	TopicPrefix    string
	HTTPAddr       string
	Timezone       string
	Database       string
}

// Counts are totals since the daemon started.
type Counts struct {
	SnapshotsAccepted int
	SnapshotsRejected int
	ProductionUpdates int
	StoppagesDetected int
	StateChanges      int
}

// MachineState is the last known status of one machine.
type MachineState struct {
	ID        string
	Status    logic.Status
	UpdatedAt time.Time
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	StartTime     time.Time
	Now           time.Time
	LastSnapshot  time.Time
	LastTick      time.Time
	MQTTConnected bool
	SSEClients    int
	Counts        Counts
	Machines      []MachineState // sorted by ID
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Ready reports whether the daemon has seen at least one snapshot or tick.
func (s Snapshot) Ready() bool {
	return !s.LastSnapshot.IsZero() || !s.LastTick.IsZero()
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu       sync.RWMutex
	snap     Snapshot
	machines map[string]MachineState
	now      func() time.Time
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
		machines: make(map[string]MachineState),
		now:      time.Now,
	}
}

// SetMachines seeds the machine table, typically after rehydration.
func (t *Tracker) SetMachines(statuses map[string]logic.Status, at time.Time) {
	t.mu.Lock()
	for id, st := range statuses {
		t.machines[id] = MachineState{ID: id, Status: st, UpdatedAt: at}
	}
	t.mu.Unlock()
}

// RecordSnapshot counts one pin snapshot submission.
func (t *Tracker) RecordSnapshot(accepted bool, at time.Time) {
	t.mu.Lock()
	if accepted {
		t.snap.Counts.SnapshotsAccepted++
		t.snap.LastSnapshot = at
	} else {
		t.snap.Counts.SnapshotsRejected++
	}
	t.mu.Unlock()
}

// RecordTick notes a completed reconciliation pass.
func (t *Tracker) RecordTick(at time.Time) {
	t.mu.Lock()
	t.snap.LastTick = at
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetSSEClients sets the number of connected event stream clients.
func (t *Tracker) SetSSEClients(n int) {
	t.mu.Lock()
	t.snap.SSEClients = n
	t.mu.Unlock()
}

// Notify folds an engine event into the counters and machine table.
func (t *Tracker) Notify(ev logic.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch ev.Type {
	case logic.EventMachineStateUpdate:
		t.machines[ev.MachineID] = MachineState{ID: ev.MachineID, Status: ev.Status, UpdatedAt: ev.Timestamp}
		t.snap.Counts.StateChanges++
	case logic.EventProductionUpdate:
		t.snap.Counts.ProductionUpdates++
	case logic.EventUnclassifiedStoppage:
		t.snap.Counts.StoppagesDetected++
	}
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	s.Machines = make([]MachineState, 0, len(t.machines))
	for _, m := range t.machines {
		s.Machines = append(s.Machines, m)
	}
	t.mu.RUnlock()
	sort.Slice(s.Machines, func(i, j int) bool { return s.Machines[i].ID < s.Machines[j].ID })
	s.Now = t.now()
	return s
}
