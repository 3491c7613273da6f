package platform

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/pyatkov/telecord/internal/bus"
)

// State is a session lifecycle state.
type State string

const (
	Disconnected     State = "DISCONNECTED"
	Connecting       State = "CONNECTING"
	AwaitingCode     State = "AWAITING_CODE"
	AwaitingPassword State = "AWAITING_PASSWORD"
	Authenticated    State = "AUTHENTICATED"
)

// validTransitions defines allowed state transitions. Every failure path
// must land a session back on Disconnected or Authenticated, never in
// between.
var validTransitions = map[State][]State{
	Disconnected:     {Connecting},
	Connecting:       {AwaitingCode, Authenticated, Disconnected},
	AwaitingCode:     {AwaitingPassword, Authenticated, Disconnected},
	AwaitingPassword: {Authenticated, Disconnected},
	Authenticated:    {Disconnected},
}

// Machine tracks and enforces one session's lifecycle transitions and
// optionally publishes them for diagnostics.
type Machine struct {
	mu      sync.RWMutex
	side    string
	current State
	bus     *bus.Bus
}

// NewMachine creates a state machine starting in Disconnected. side is a
// label carried on published events; b may be nil.
func NewMachine(side string, b *bus.Bus) *Machine {
	return &Machine{side: side, current: Disconnected, bus: b}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Transition attempts to move to a new state. Returns an error and stays
// put if the transition is not allowed.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !slices.Contains(validTransitions[m.current], to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	if m.bus != nil {
		m.bus.Publish(bus.Event{
			Kind:      "session.state_changed",
			Timestamp: time.Now(),
			Payload:   StateChange{Side: m.side, From: from, To: to},
		})
	}
	return nil
}

// Reset forces the machine back to Disconnected from any state. Used on
// fatal errors and disconnects, which are always legal.
func (m *Machine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == Disconnected {
		return
	}
	from := m.current
	m.current = Disconnected
	if m.bus != nil {
		m.bus.Publish(bus.Event{
			Kind:      "session.state_changed",
			Timestamp: time.Now(),
			Payload:   StateChange{Side: m.side, From: from, To: Disconnected},
		})
	}
}

// StateChange is the payload for state change events.
type StateChange struct {
	Side string
	From State
	To   State
}
