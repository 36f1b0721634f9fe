package engine

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/sweeney/molding-monitor/internal/logic"
	"github.com/sweeney/molding-monitor/internal/store"
)

// MachineSignals is the in-memory view of one machine. It is an index over
// durable state, not the source of truth.
type MachineSignals struct {
	LastPower time.Time
	LastCycle time.Time
	Status    logic.Status

	PendingID    string
	PendingStart time.Time
	// End of the stretch the open entry has accrued. It stops moving while
	// the machine is not in stoppage.
	PendingUntil time.Time

	// Wall-clock minute of the last running-minute credit.
	LastCreditedMinute int64
}

// HasPending reports whether an open stoppage entry is indexed.
func (m MachineSignals) HasPending() bool {
	return m.PendingID != ""
}

// SignalStore holds MachineSignals for every machine seen since startup.
type SignalStore struct {
	mu       sync.RWMutex
	machines map[string]MachineSignals
}

// NewSignalStore creates an empty store.
func NewSignalStore() *SignalStore {
	return &SignalStore{machines: make(map[string]MachineSignals)}
}

// Get returns a copy of the machine's signals. Unknown machines return
// the zero value.
func (s *SignalStore) Get(machineID string) MachineSignals {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.machines[machineID]
}

// Put replaces the machine's signals.
func (s *SignalStore) Put(machineID string, m MachineSignals) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.machines[machineID] = m
}

// MachineIDs returns the indexed machine ids in sorted order.
func (s *SignalStore) MachineIDs() []string {
	s.mu.RLock()
	ids := make([]string, 0, len(s.machines))
	for id := range s.machines {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// Statuses returns the last known status per machine.
func (s *SignalStore) Statuses() map[string]logic.Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]logic.Status, len(s.machines))
	for id, m := range s.machines {
		out[id] = m.Status
	}
	return out
}

// Rehydrate loads last signal times, persisted statuses and open pending
// stoppages. Existing entries are replaced.
func (s *SignalStore) Rehydrate(ctx context.Context, st *store.Store, logger *log.Logger) error {
	machines, err := st.Machines(ctx)
	if err != nil {
		return err
	}
	signals, err := st.LastSignals(ctx)
	if err != nil {
		return err
	}
	pending, err := st.PendingStoppages(ctx, "")
	if err != nil {
		return err
	}

	next := make(map[string]MachineSignals, len(machines))
	for _, m := range machines {
		sig := signals[m.ID]
		next[m.ID] = MachineSignals{
			LastPower: sig.Power,
			LastCycle: sig.Cycle,
			Status:    logic.Status(m.Status),
		}
	}
	// Ordered by start time; the latest wins if storage ever holds two.
	for _, p := range pending {
		m := next[p.MachineID]
		if m.PendingID != "" && logger != nil {
			logger.Printf("signals: %s: multiple pending stoppages, keeping %s over %s", p.MachineID, p.ID, m.PendingID)
		}
		m.PendingID = p.ID
		m.PendingStart = p.StartTime
		m.PendingUntil = p.StartTime.Add(time.Duration(p.Duration) * time.Minute)
		next[p.MachineID] = m
	}

	s.mu.Lock()
	s.machines = next
	s.mu.Unlock()
	return nil
}
