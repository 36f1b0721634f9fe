package mqtt

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/sweeney/molding-monitor/internal/logic"
)

func TestEventTopic(t *testing.T) {
	ev := logic.Event{Type: logic.EventMachineStateUpdate, MachineID: "press-1"}
	if got := EventTopic("factory/molding/", ev); got != "factory/molding/press-1/machine-state-update" {
		t.Errorf("unexpected topic: %s", got)
	}
	if got := SystemTopic("factory/molding"); got != "factory/molding/system" {
		t.Errorf("unexpected system topic: %s", got)
	}
}

func TestFormatPayloadStateUpdate(t *testing.T) {
	ev := logic.Event{
		Type:           logic.EventMachineStateUpdate,
		MachineID:      "press-1",
		Timestamp:      time.Date(2026, 3, 2, 9, 15, 0, 0, time.FixedZone("plant", 3600)),
		Status:         logic.StatusStoppage,
		PreviousStatus: logic.StatusRunning,
	}
	payload, err := FormatPayload(ev)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := `{"machineId":"press-1","event":"machine-state-update","timestamp":"2026-03-02T08:15:00Z","status":"stoppage","previousStatus":"running"}`
	if string(payload) != want {
		t.Errorf("got  %s\nwant %s", payload, want)
	}
}

func TestFormatPayloadFieldsPerType(t *testing.T) {
	base := logic.Event{MachineID: "press-2", Timestamp: time.Now(), Date: "2026-03-02", Hour: 0}

	tests := []struct {
		typ     logic.EventType
		present []string
		absent  []string
	}{
		{logic.EventPowerSignal, nil, []string{`"hour"`, `"unitsProduced"`, `"duration"`}},
		{logic.EventProductionUpdate, []string{`"hour":0`, `"unitsProduced":0`, `"defectiveUnits":0`}, []string{`"duration"`}},
		{logic.EventRunningTimeUpdate, []string{`"runningMinutes":0`}, []string{`"unitsProduced"`}},
		{logic.EventStoppageResolved, []string{`"duration":0`}, []string{`"runningMinutes"`}},
		{logic.EventProductionAssignmentUpdated, []string{`"unitsProduced":0`}, []string{`"duration"`}},
	}
	for _, tt := range tests {
		t.Run(string(tt.typ), func(t *testing.T) {
			ev := base
			ev.Type = tt.typ
			if tt.typ == logic.EventPowerSignal {
				ev.Date = ""
			}
			b, err := FormatPayload(ev)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			s := string(b)
			for _, p := range tt.present {
				if !strings.Contains(s, p) {
					t.Errorf("expected %s in %s", p, s)
				}
			}
			for _, a := range tt.absent {
				if strings.Contains(s, a) {
					t.Errorf("did not expect %s in %s", a, s)
				}
			}
		})
	}
}

func TestFormatSystemPayload(t *testing.T) {
	ev := SystemEvent{
		Timestamp: time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC),
		Event:     "SHUTDOWN",
		Reason:    "SIGTERM",
	}
	b, err := FormatSystemPayload(ev)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := `{"system":{"timestamp":"2026-03-02T06:00:00Z","event":"SHUTDOWN","reason":"SIGTERM"}}`
	if string(b) != want {
		t.Errorf("got  %s\nwant %s", b, want)
	}

	raw := []byte(`{"system":{"event":"HEARTBEAT"}}`)
	b, _ = FormatSystemPayload(SystemEvent{Event: "HEARTBEAT", RawPayload: raw})
	if string(b) != string(raw) {
		t.Errorf("raw payload not passed through: %s", b)
	}
}

func TestWillPayload(t *testing.T) {
	var p SystemPayload
	if err := json.Unmarshal(WillPayload(), &p); err != nil {
		t.Fatalf("invalid will payload: %v", err)
	}
	if p.System.Event != "OFFLINE" || p.System.Reason != "CONNECTION_LOST" {
		t.Errorf("unexpected will payload: %+v", p)
	}
}

func TestFakePublisher(t *testing.T) {
	f := NewFakePublisher()
	ev := logic.Event{Type: logic.EventPowerSignal, MachineID: "press-1", Timestamp: time.Now()}
	if err := f.Publish(ev); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if f.EventCount() != 1 || f.Topics[0] != "factory/molding/press-1/power-signal" {
		t.Errorf("unexpected fake state: %+v", f.Topics)
	}

	if err := f.PublishSystem(SystemEvent{Event: "STARTUP", Retained: true}); err != nil {
		t.Fatalf("publish system: %v", err)
	}
	if len(f.SystemEvents) != 1 || !f.SystemEvents[0].Retained {
		t.Errorf("system event not recorded: %+v", f.SystemEvents)
	}

	f.PublishError = errors.New("broker down")
	if err := f.Publish(ev); err == nil {
		t.Error("expected publish error")
	}
	if f.EventCount() != 1 {
		t.Errorf("failed publish should not be recorded, got %d", f.EventCount())
	}

	f.Close()
	if !f.Closed {
		t.Error("expected Closed")
	}
	f.Reset()
	if f.EventCount() != 0 || f.Closed || f.PublishError != nil {
		t.Error("expected Reset to clear state")
	}
}
