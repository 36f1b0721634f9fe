package status

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/sweeney/molding-monitor/internal/logic"
)

func TestNewTracker(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := Config{TickMs: 60000, Broker: "tcp://localhost:1883", HTTPAddr: ":8080"}
	tr := NewTracker(start, cfg)

	snap := tr.Snapshot()
	if !snap.StartTime.Equal(start) {
		t.Errorf("StartTime: got %v, want %v", snap.StartTime, start)
	}
	if snap.Config.TickMs != 60000 {
		t.Errorf("Config.TickMs: got %d, want 60000", snap.Config.TickMs)
	}
	if snap.Ready() {
		t.Error("expected Ready=false initially")
	}
	if snap.MQTTConnected {
		t.Error("expected MQTTConnected=false initially")
	}
	if len(snap.Machines) != 0 {
		t.Errorf("expected no machines, got %d", len(snap.Machines))
	}
}

func TestRecordSnapshot(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	at := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)

	tr.RecordSnapshot(true, at)
	tr.RecordSnapshot(true, at.Add(time.Second))
	tr.RecordSnapshot(false, at.Add(2*time.Second))

	snap := tr.Snapshot()
	if snap.Counts.SnapshotsAccepted != 2 || snap.Counts.SnapshotsRejected != 1 {
		t.Errorf("counts: got %+v", snap.Counts)
	}
	if !snap.LastSnapshot.Equal(at.Add(time.Second)) {
		t.Errorf("LastSnapshot: got %v", snap.LastSnapshot)
	}
	if !snap.Ready() {
		t.Error("expected Ready=true after a snapshot")
	}
}

func TestNotify(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	at := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)

	tr.SetMachines(map[string]logic.Status{"press-2": logic.StatusInactive, "press-1": logic.StatusInactive}, at)
	tr.Notify(logic.Event{Type: logic.EventMachineStateUpdate, MachineID: "press-1", Status: logic.StatusRunning, Timestamp: at})
	tr.Notify(logic.Event{Type: logic.EventProductionUpdate, MachineID: "press-1"})
	tr.Notify(logic.Event{Type: logic.EventProductionUpdate, MachineID: "press-1"})
	tr.Notify(logic.Event{Type: logic.EventUnclassifiedStoppage, MachineID: "press-2"})
	tr.Notify(logic.Event{Type: logic.EventPowerSignal, MachineID: "press-2"})

	snap := tr.Snapshot()
	if len(snap.Machines) != 2 {
		t.Fatalf("expected 2 machines, got %d", len(snap.Machines))
	}
	if snap.Machines[0].ID != "press-1" || snap.Machines[0].Status != logic.StatusRunning {
		t.Errorf("machines not sorted or not updated: %+v", snap.Machines)
	}
	if snap.Machines[1].Status != logic.StatusInactive {
		t.Errorf("press-2: got %s", snap.Machines[1].Status)
	}
	if snap.Counts.ProductionUpdates != 2 || snap.Counts.StoppagesDetected != 1 || snap.Counts.StateChanges != 1 {
		t.Errorf("counts: got %+v", snap.Counts)
	}
}

func TestSetMQTTConnected(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})

	tr.SetMQTTConnected(true)
	if !tr.Snapshot().MQTTConnected {
		t.Error("expected MQTTConnected=true")
	}

	tr.SetMQTTConnected(false)
	if tr.Snapshot().MQTTConnected {
		t.Error("expected MQTTConnected=false")
	}
}

func TestSnapshotUptime(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	snap := Snapshot{
		StartTime: start,
		Now:       start.Add(15 * time.Minute),
	}

	if snap.Uptime() != 15*time.Minute {
		t.Errorf("Uptime: got %v, want 15m", snap.Uptime())
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	tr.Notify(logic.Event{Type: logic.EventMachineStateUpdate, MachineID: "press-1", Status: logic.StatusRunning})

	snap1 := tr.Snapshot()

	tr.Notify(logic.Event{Type: logic.EventMachineStateUpdate, MachineID: "press-1", Status: logic.StatusStoppage})

	if snap1.Machines[0].Status != logic.StatusRunning {
		t.Error("snapshot should be a copy; machine status was modified")
	}
}

func TestConcurrentAccess(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			tr.Notify(logic.Event{Type: logic.EventProductionUpdate, MachineID: "press-1"})
			tr.RecordSnapshot(true, time.Now())
		}()
		go func() {
			defer wg.Done()
			_ = tr.Snapshot()
		}()
	}
	wg.Wait()

	if got := tr.Snapshot().Counts.ProductionUpdates; got != 10 {
		t.Errorf("ProductionUpdates: got %d, want 10", got)
	}
}

func TestFormatJSON(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	snap := Snapshot{
		StartTime:     start,
		Now:           start.Add(15 * time.Minute),
		LastSnapshot:  start.Add(14 * time.Minute),
		MQTTConnected: true,
		Counts:        Counts{SnapshotsAccepted: 5, ProductionUpdates: 3},
		Machines:      []MachineState{{ID: "press-1", Status: logic.StatusRunning}},
		Config:        Config{TickMs: 60000, HeartbeatMs: 900000, Broker: "tcp://localhost:1883", HTTPAddr: ":8080"},
	}

	data := FormatJSON(snap)

	var parsed StatusJSON
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	if !parsed.Status.Ready {
		t.Error("expected Ready=true")
	}
	if parsed.Status.UptimeSeconds != 900 {
		t.Errorf("UptimeSeconds: got %d, want 900", parsed.Status.UptimeSeconds)
	}
	if !parsed.Status.MQTT.Connected {
		t.Error("expected MQTT.Connected=true")
	}
	if parsed.Status.Counts.SnapshotsAccepted != 5 || parsed.Status.Counts.ProductionUpdates != 3 {
		t.Errorf("Counts: got %+v", parsed.Status.Counts)
	}
	if len(parsed.Status.Machines) != 1 || parsed.Status.Machines[0].Status != "running" {
		t.Errorf("Machines: got %+v", parsed.Status.Machines)
	}
	if parsed.Status.LastTick != "" {
		t.Errorf("expected empty LastTick, got %q", parsed.Status.LastTick)
	}
	if parsed.Status.Event != "" || parsed.Status.Reason != "" {
		t.Errorf("expected no event/reason for web format, got %q/%q", parsed.Status.Event, parsed.Status.Reason)
	}
}

func TestFormatStatusEvent(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	snap := Snapshot{StartTime: start, Now: start.Add(time.Hour)}

	data := FormatStatusEvent(snap, "SHUTDOWN", "SIGTERM")

	var parsed StatusJSON
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.Status.Event != "SHUTDOWN" || parsed.Status.Reason != "SIGTERM" {
		t.Errorf("event/reason: got %q/%q", parsed.Status.Event, parsed.Status.Reason)
	}
	if parsed.Status.Machines == nil {
		t.Error("expected machines to encode as an empty list")
	}
}
