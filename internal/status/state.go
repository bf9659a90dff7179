package status

import (
	"fmt"
	"slices"
	"sync"

	"github.com/whitemax/maxd/internal/bus"
)

// State represents a session lifecycle state.
type State string

const (
	// Uninitialized: the worker and runtime session do not exist yet.
	Uninitialized State = "UNINITIALIZED"
	// Initializing: the worker is starting and the runtime session is being
	// created.
	Initializing State = "INITIALIZING"
	// Ready: the runtime session exists; authentication not yet decided.
	Ready State = "READY"
	// NoModule: the embedded runtime reported its module unavailable.
	// Every operation fails fast until a retry re-initializes.
	NoModule State = "NO_MODULE"
	// AuthRequired: no usable credential; login flow needed.
	AuthRequired State = "AUTH_REQUIRED"
	// Authenticated: a credential was accepted by the remote side.
	Authenticated State = "AUTHENTICATED"
	// Stopped: the session was shut down cleanly.
	Stopped State = "STOPPED"
)

// validTransitions defines allowed state transitions.
var validTransitions = map[State][]State{
	Uninitialized: {Initializing},
	// Self re-entry: session creation can fail without a module verdict
	// (transport error); the retry starts over from INITIALIZING.
	Initializing: {Initializing, Ready, NoModule},
	Ready:         {AuthRequired, Authenticated, Stopped},
	NoModule:      {Initializing},
	AuthRequired:  {Authenticated, Stopped},
	Authenticated: {AuthRequired, Stopped},
	Stopped:       {Initializing},
}

// Machine tracks and enforces session state transitions.
type Machine struct {
	mu      sync.RWMutex
	current State
	bus     *bus.Bus
}

// NewMachine creates a new state machine starting in Uninitialized.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{
		current: Uninitialized,
		bus:     b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Operational reports whether façade operations may call into the runtime.
func (m *Machine) Operational() bool {
	switch m.Current() {
	case Ready, AuthRequired, Authenticated:
		return true
	}
	return false
}

// Transition attempts to move to a new state. Returns an error if the
// transition is invalid; the state is left unchanged in that case.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	allowed := validTransitions[m.current]
	if !slices.Contains(allowed, to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	if m.bus != nil {
		m.bus.Publish(bus.KindStatusChanged, StatusChange{From: from, To: to})
	}
	return nil
}

// StatusChange is the payload for status change events.
type StatusChange struct {
	From State
	To   State
}
