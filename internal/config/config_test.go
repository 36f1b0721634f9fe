package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sampleYAML = `
timeouts:
  power_signal_minutes: 4
  cycle_signal_minutes: 1.5
performance_fallback: 0.9
tick_interval: 30s
timezone: UTC
database: /tmp/test.db
mqtt:
  broker: tcp://localhost:1883
shifts:
  - name: day
    start: "06:00"
    end: "18:00"
  - name: night
    start: "18:00"
    end: "06:00"
  - name: spare
    start: "00:00"
    end: "01:00"
    active: false
directory:
  machines:
    - id: press-1
      name: Press 1
      department: molding
      sensors:
        - {id: p1-power, type: power, pin: DQ.0}
        - {id: p1-cycle, type: unit-cycle, pin: DQ.1}
        - {id: p1-spare, type: power, active: false}
  molds:
    - {id: m-100, name: Cap, capacity_per_hour: 120}
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaults(t *testing.T) {
	c := Default()
	to := c.LogicTimeouts()
	if to.Power != 5*time.Minute || to.Cycle != 2*time.Minute {
		t.Errorf("timeouts: got %+v", to)
	}
	if c.PerformanceFallback != 0.85 {
		t.Errorf("fallback: got %v", c.PerformanceFallback)
	}
	if c.TickInterval != time.Minute || c.Heartbeat != 15*time.Minute {
		t.Errorf("intervals: tick %v heartbeat %v", c.TickInterval, c.Heartbeat)
	}
	if c.MQTT.TopicPrefix != "factory/molding" || c.HTTPAddr != ":8080" {
		t.Errorf("unexpected defaults: %+v", c)
	}
	if err := c.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestLoad(t *testing.T) {
	c, err := Load(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	to := c.LogicTimeouts()
	if to.Power != 4*time.Minute || to.Cycle != 90*time.Second {
		t.Errorf("timeouts: got %+v", to)
	}
	if c.TickInterval != 30*time.Second {
		t.Errorf("tick: got %v", c.TickInterval)
	}
	if c.MQTT.Broker != "tcp://localhost:1883" || c.MQTT.ClientID != "molding-monitor" {
		t.Errorf("mqtt: got %+v", c.MQTT)
	}

	shifts, err := c.LogicShifts()
	if err != nil {
		t.Fatal(err)
	}
	if len(shifts) != 3 {
		t.Fatalf("expected 3 shifts, got %d", len(shifts))
	}
	if shifts[1].StartHour != 18 || shifts[1].EndHour != 6 || !shifts[1].Active {
		t.Errorf("night: got %+v", shifts[1])
	}
	if shifts[2].Active {
		t.Error("spare shift should be inactive")
	}

	loc, err := c.Location()
	if err != nil || loc != time.UTC {
		t.Errorf("location: %v %v", loc, err)
	}
}

func TestSeed(t *testing.T) {
	c, err := Load(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatal(err)
	}
	seed := c.Seed()
	if len(seed.Machines) != 1 || seed.Machines[0].DepartmentID != "molding" {
		t.Errorf("machines: %+v", seed.Machines)
	}
	if len(seed.Sensors) != 3 {
		t.Fatalf("expected 3 sensors, got %d", len(seed.Sensors))
	}
	if !seed.Sensors[0].Active || seed.Sensors[2].Active {
		t.Errorf("active flags: %+v", seed.Sensors)
	}
	if len(seed.Pins) != 2 || seed.Pins[1].PinID != "DQ.1" || seed.Pins[1].SensorID != "p1-cycle" {
		t.Errorf("pins: %+v", seed.Pins)
	}
	if len(seed.Molds) != 1 || seed.Molds[0].CapacityPerHour != 120 {
		t.Errorf("molds: %+v", seed.Molds)
	}
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"bad fallback", "performance_fallback: 1.5", "performance_fallback"},
		{"bad timezone", "timezone: Mars/Olympus", "timezone"},
		{"bad shift", "shifts: [{name: x, start: '25:00', end: '06:00'}]", "shifts[0].start"},
		{"half-hour shift", "shifts: [{name: x, start: '06:30', end: '14:00'}]", "on the hour"},
		{"bad pin", `directory: {machines: [{id: a, sensors: [{id: s, type: power, pin: DQ.9}]}]}`, "not DQ.0-DQ.7"},
		{"bad type", `directory: {machines: [{id: a, sensors: [{id: s, type: heat}]}]}`, "type must be"},
		{"duplicate pin", `directory: {machines: [{id: a, sensors: [{id: s1, type: power, pin: DQ.0}, {id: s2, type: unit-cycle, pin: DQ.0}]}]}`, "mapped to both"},
		{"duplicate machine", `directory: {machines: [{id: a}, {id: a}]}`, "duplicate machine"},
		{"missing id", `directory: {machines: [{name: x}]}`, "without id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); !os.IsNotExist(err) {
		t.Errorf("expected not-exist error, got %v", err)
	}
}

func TestLoadMalformed(t *testing.T) {
	if _, err := Load(writeConfig(t, "timeouts: [")); err == nil {
		t.Error("expected parse error")
	}
}
