// Package config loads the molding monitor YAML configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sweeney/molding-monitor/internal/logic"
	"github.com/sweeney/molding-monitor/internal/mqtt"
	"github.com/sweeney/molding-monitor/internal/store"
)

// Config is the daemon and agent configuration file.
type Config struct {
	Timeouts            TimeoutsConfig `yaml:"timeouts"`
	Shifts              []ShiftConfig  `yaml:"shifts"`
	PerformanceFallback float64        `yaml:"performance_fallback"`

	TickInterval time.Duration `yaml:"tick_interval"`
	Heartbeat    time.Duration `yaml:"heartbeat"` // negative disables
	Timezone     string        `yaml:"timezone"`

	Database string     `yaml:"database"`
	HTTPAddr string     `yaml:"http_addr"`
	MQTT     MQTTConfig `yaml:"mqtt"`

	Directory DirectoryConfig `yaml:"directory"`
	Agent     AgentConfig     `yaml:"agent"`
}

type TimeoutsConfig struct {
	PowerSignalMinutes float64 `yaml:"power_signal_minutes"`
	CycleSignalMinutes float64 `yaml:"cycle_signal_minutes"`
}

// ShiftConfig uses "HH:MM" clocks. Active defaults to true.
type ShiftConfig struct {
	Name   string `yaml:"name"`
	Start  string `yaml:"start"`
	End    string `yaml:"end"`
	Active *bool  `yaml:"active"`
}

// MQTTConfig disables publishing when Broker is empty.
type MQTTConfig struct {
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"`
}

// DirectoryConfig seeds machines, their sensors and molds at startup.
type DirectoryConfig struct {
	Machines []MachineConfig `yaml:"machines"`
	Molds    []MoldConfig    `yaml:"molds"`
}

type MachineConfig struct {
	ID         string         `yaml:"id"`
	Name       string         `yaml:"name"`
	Department string         `yaml:"department"`
	Sensors    []SensorConfig `yaml:"sensors"`
}

type SensorConfig struct {
	ID     string `yaml:"id"`
	Name   string `yaml:"name"`
	Type   string `yaml:"type"` // power or unit-cycle
	Pin    string `yaml:"pin"`  // DQ.0 .. DQ.7
	Active *bool  `yaml:"active"`
}

type MoldConfig struct {
	ID              string  `yaml:"id"`
	Name            string  `yaml:"name"`
	CapacityPerHour float64 `yaml:"capacity_per_hour"`
}

// AgentConfig drives the pin agent.
type AgentConfig struct {
	URL           string        `yaml:"url"`
	Interval      time.Duration `yaml:"interval"`
	RetryAttempts int           `yaml:"retry_attempts"`
	RetryDelay    time.Duration `yaml:"retry_delay"`
	Timeout       time.Duration `yaml:"timeout"`
	Simulate      bool          `yaml:"simulate"`
	Chip          string        `yaml:"chip"`
	Lines         []int         `yaml:"lines"` // one GPIO line offset per bit, bit 0 first
}

// Default returns a configuration with every default applied.
func Default() *Config {
	c := &Config{}
	c.ApplyDefaults()
	return c
}

// Load reads path, applies defaults and validates the result.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &cfg, nil
}

// ApplyDefaults fills zero values.
func (c *Config) ApplyDefaults() {
	if c.Timeouts.PowerSignalMinutes <= 0 {
		c.Timeouts.PowerSignalMinutes = 5
	}
	if c.Timeouts.CycleSignalMinutes <= 0 {
		c.Timeouts.CycleSignalMinutes = 2
	}
	if c.PerformanceFallback <= 0 {
		c.PerformanceFallback = logic.DefaultPerformance
	}
	if c.TickInterval <= 0 {
		c.TickInterval = 60 * time.Second
	}
	if c.Heartbeat == 0 {
		c.Heartbeat = 15 * time.Minute
	}
	if c.Timezone == "" {
		c.Timezone = "Local"
	}
	if c.Database == "" {
		c.Database = "molding-monitor.db"
	}
	if c.HTTPAddr == "" {
		c.HTTPAddr = ":8080"
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = mqtt.DefaultTopicPrefix
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "molding-monitor"
	}
	if c.Agent.URL == "" {
		c.Agent.URL = "http://localhost:8080/api/signals/pin-data"
	}
	if c.Agent.Interval <= 0 {
		c.Agent.Interval = 2 * time.Second
	}
	if c.Agent.RetryAttempts <= 0 {
		c.Agent.RetryAttempts = 3
	}
	if c.Agent.RetryDelay <= 0 {
		c.Agent.RetryDelay = 5 * time.Second
	}
	if c.Agent.Timeout <= 0 {
		c.Agent.Timeout = 10 * time.Second
	}
	if c.Agent.Chip == "" {
		c.Agent.Chip = "gpiochip0"
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.PerformanceFallback > 1 {
		return errors.New("performance_fallback must be in (0, 1]")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if _, err := c.LogicShifts(); err != nil {
		return err
	}
	if len(c.Agent.Lines) > logic.PinCount {
		return fmt.Errorf("agent.lines: at most %d lines", logic.PinCount)
	}

	pins := make(map[string]string)
	machines := make(map[string]bool)
	sensors := make(map[string]bool)
	for _, m := range c.Directory.Machines {
		if strings.TrimSpace(m.ID) == "" {
			return errors.New("directory: machine without id")
		}
		if machines[m.ID] {
			return fmt.Errorf("directory: duplicate machine %q", m.ID)
		}
		machines[m.ID] = true
		for _, s := range m.Sensors {
			if s.ID == "" {
				return fmt.Errorf("directory: machine %q has a sensor without id", m.ID)
			}
			if sensors[s.ID] {
				return fmt.Errorf("directory: duplicate sensor %q", s.ID)
			}
			sensors[s.ID] = true
			if !logic.SensorType(s.Type).Valid() {
				return fmt.Errorf("directory: sensor %q: type must be power or unit-cycle", s.ID)
			}
			if s.Pin == "" {
				continue
			}
			if !validPin(s.Pin) {
				return fmt.Errorf("directory: sensor %q: pin %q is not DQ.0-DQ.7", s.ID, s.Pin)
			}
			if other, ok := pins[s.Pin]; ok {
				return fmt.Errorf("directory: pin %s mapped to both %q and %q", s.Pin, other, s.ID)
			}
			pins[s.Pin] = s.ID
		}
	}
	for _, m := range c.Directory.Molds {
		if m.ID == "" || m.CapacityPerHour < 0 {
			return fmt.Errorf("directory: invalid mold %q", m.ID)
		}
	}
	return nil
}

func validPin(p string) bool {
	for i := 0; i < logic.PinCount; i++ {
		if p == logic.PinID(i) {
			return true
		}
	}
	return false
}

// LogicTimeouts converts the minute settings.
func (c *Config) LogicTimeouts() logic.Timeouts {
	return logic.Timeouts{
		Power: time.Duration(c.Timeouts.PowerSignalMinutes * float64(time.Minute)),
		Cycle: time.Duration(c.Timeouts.CycleSignalMinutes * float64(time.Minute)),
	}
}

// LogicShifts parses the shift clocks.
func (c *Config) LogicShifts() ([]logic.Shift, error) {
	out := make([]logic.Shift, 0, len(c.Shifts))
	for i, s := range c.Shifts {
		start, err := logic.ParseClock(s.Start)
		if err != nil {
			return nil, fmt.Errorf("shifts[%d].start: %w", i, err)
		}
		end, err := logic.ParseClock(s.End)
		if err != nil {
			return nil, fmt.Errorf("shifts[%d].end: %w", i, err)
		}
		name := s.Name
		if name == "" {
			name = fmt.Sprintf("shift-%d", i+1)
		}
		out = append(out, logic.Shift{Name: name, StartHour: start, EndHour: end, Active: boolOr(s.Active, true)})
	}
	return out, nil
}

// Location loads the plant timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Seed converts the directory section for store.Seed.
func (c *Config) Seed() store.Seed {
	var seed store.Seed
	for _, m := range c.Directory.Machines {
		name := m.Name
		if name == "" {
			name = m.ID
		}
		seed.Machines = append(seed.Machines, store.Machine{ID: m.ID, Name: name, DepartmentID: m.Department})
		for _, s := range m.Sensors {
			seed.Sensors = append(seed.Sensors, store.Sensor{
				ID:         s.ID,
				Name:       s.Name,
				SensorType: s.Type,
				MachineID:  m.ID,
				Active:     boolOr(s.Active, true),
			})
			if s.Pin != "" {
				seed.Pins = append(seed.Pins, store.PinMapping{PinID: s.Pin, SensorID: s.ID})
			}
		}
	}
	for _, m := range c.Directory.Molds {
		seed.Molds = append(seed.Molds, store.Mold{ID: m.ID, Name: m.Name, CapacityPerHour: m.CapacityPerHour})
	}
	return seed
}

func boolOr(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}
