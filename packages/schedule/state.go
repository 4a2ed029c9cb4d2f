package schedule

import (
	"fmt"
	"sync"
)

// State is the phase of one run. Phases only move forward; a non-terminal
// state can never be re-entered.
type State int

const (
	StateCollecting State = iota
	StatePlanning
	StateExecuting
	StateAggregating
	StateDone
)

func (s State) String() string {
	switch s {
	case StateCollecting:
		return "collecting"
	case StatePlanning:
		return "planning"
	case StateExecuting:
		return "executing"
	case StateAggregating:
		return "aggregating"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// Machine enforces the run phase ordering
// Collecting -> Planning -> Executing -> Aggregating -> Done.
type Machine struct {
	mu    sync.Mutex
	state State
}

// NewMachine starts in Collecting.
func NewMachine() *Machine {
	return &Machine{state: StateCollecting}
}

// State returns the current phase.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Advance moves to the next phase. Moving backward or skipping forward is
// a programming error and is reported, not silently accepted.
func (m *Machine) Advance(next State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if next != m.state+1 {
		return fmt.Errorf("invalid phase transition %s -> %s", m.state, next)
	}
	m.state = next
	return nil
}

// Abort short-circuits a failed run straight to Aggregating, so a fatal
// collection error still produces a (zero-item) report.
func (m *Machine) Abort() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state < StateAggregating {
		m.state = StateAggregating
	}
}
