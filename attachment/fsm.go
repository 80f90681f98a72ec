// Package attachment implements the top-level attach/detach state machine
// that owns the network manager's run loop.
package attachment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// State names one node of the attachment machine.
type State int

const (
	Detached State = iota
	Attaching
	AttachedWeak
	AttachedGood
	AttachedStrong
	FullyAttached
	OverAttached
	Detaching
)

func (s State) String() string {
	switch s {
	case Detached:
		return "Detached"
	case Attaching:
		return "Attaching"
	case AttachedWeak:
		return "AttachedWeak"
	case AttachedGood:
		return "AttachedGood"
	case AttachedStrong:
		return "AttachedStrong"
	case FullyAttached:
		return "FullyAttached"
	case OverAttached:
		return "OverAttached"
	case Detaching:
		return "Detaching"
	default:
		return "Unknown"
	}
}

// Input is an event fed into the machine.
type Input int

const (
	AttachRequested Input = iota
	DetachRequested
	AttachmentStopped
	NoPeers
	WeakPeers
	GoodPeers
	StrongPeers
	FullPeers
	TooManyPeers
)

func (i Input) String() string {
	switch i {
	case AttachRequested:
		return "AttachRequested"
	case DetachRequested:
		return "DetachRequested"
	case AttachmentStopped:
		return "AttachmentStopped"
	case NoPeers:
		return "NoPeers"
	case WeakPeers:
		return "WeakPeers"
	case GoodPeers:
		return "GoodPeers"
	case StrongPeers:
		return "StrongPeers"
	case FullPeers:
		return "FullPeers"
	case TooManyPeers:
		return "TooManyPeers"
	default:
		return "Unknown"
	}
}

// Action is a side effect the caller must perform after a transition.
type Action int

const (
	ActionNone Action = iota
	ActionStartMaintainer
	ActionStopMaintainer
)

// ErrNoTransition is returned when an input has no transition defined for
// the current state.
var ErrNoTransition = errors.New("attachment: no transition for this input in the current state")

var attachedStates = map[State]bool{
	Attaching:      true,
	AttachedWeak:   true,
	AttachedGood:   true,
	AttachedStrong: true,
	FullyAttached:  true,
	OverAttached:   true,
}

var peerQualityTarget = map[Input]State{
	NoPeers:      Attaching,
	WeakPeers:    AttachedWeak,
	GoodPeers:    AttachedGood,
	StrongPeers:  AttachedStrong,
	FullPeers:    FullyAttached,
	TooManyPeers: OverAttached,
}

// transition computes the next state and output action for (state, input),
// or reports that none applies.
func transition(state State, input Input) (State, Action, bool) {
	if state == Detached && input == AttachRequested {
		return Attaching, ActionStartMaintainer, true
	}
	if attachedStates[state] && input == DetachRequested {
		return Detaching, ActionStopMaintainer, true
	}
	if attachedStates[state] {
		if target, ok := peerQualityTarget[input]; ok {
			return target, ActionNone, true
		}
		if input == AttachmentStopped {
			// The maintainer died on its own (fatal network error) with no
			// DetachRequested in between; collapse straight to Detached.
			return Detached, ActionNone, true
		}
	}
	if state == Detaching && input == AttachmentStopped {
		return Detached, ActionNone, true
	}
	return state, ActionNone, false
}

// PeerInputFor maps a peer count against max_connections to the matching
// quality input, per the 4*count/max clamp-to-0..4 rule.
func PeerInputFor(count, max int) Input {
	if max <= 0 {
		return NoPeers
	}
	if count > max {
		return TooManyPeers
	}
	level := 4 * count / max
	switch {
	case level <= 0:
		return NoPeers
	case level == 1:
		return WeakPeers
	case level == 2:
		return GoodPeers
	case level == 3:
		return StrongPeers
	default:
		return FullPeers
	}
}

// Observer is notified of every state the machine enters, for update-sink
// wiring (S5's {Attaching}, {AttachedGood}, ... observation sequence).
type Observer func(State)

// Machine is the attach/detach state machine plus whatever runs the
// maintainer loop StartMaintainer/StopMaintainer name.
type Machine struct {
	mu       sync.Mutex
	state    State
	observer Observer

	maintainer Maintainer
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

// Maintainer runs the network manager tick loop started by
// ActionStartMaintainer. Run blocks until ctx is cancelled, or until the
// maintainer hits a fatal condition, which it reports by returning an error.
type Maintainer interface {
	Run(ctx context.Context, feed func(Input)) error
}

// NewMachine builds a Detached machine wired to maintainer.
func NewMachine(maintainer Maintainer, observer Observer) *Machine {
	return &Machine{state: Detached, maintainer: maintainer, observer: observer}
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Feed applies one input, performing whatever action it names, and returns
// the resulting state.
func (m *Machine) Feed(input Input) (State, error) {
	m.mu.Lock()
	next, action, ok := transition(m.state, input)
	if !ok {
		from := m.state
		m.mu.Unlock()
		return from, fmt.Errorf("attachment: %w: state=%s input=%s", ErrNoTransition, from, input)
	}
	m.state = next
	m.mu.Unlock()

	if m.observer != nil {
		m.observer(next)
	}

	switch action {
	case ActionStartMaintainer:
		m.startMaintainer()
	case ActionStopMaintainer:
		m.stopMaintainer()
	}

	return next, nil
}

// startMaintainer spawns the maintainer loop; any fatal error it returns is
// fed back into the machine as AttachmentStopped, collapsing it to Detached
// even from an Attached* state.
func (m *Machine) startMaintainer() {
	ctx, cancel := context.WithCancel(context.Background())
	m.mu.Lock()
	m.cancel = cancel
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		err := m.maintainer.Run(ctx, func(in Input) { _, _ = m.Feed(in) })
		if err != nil {
			// Fatal network error: the maintainer died on its own, with
			// no DetachRequested in between. A clean stop (triggered by
			// DetachRequested) is expected to feed AttachmentStopped
			// itself, as its last action inside Run.
			_, _ = m.Feed(AttachmentStopped)
		}
	}()
}

func (m *Machine) stopMaintainer() {
	m.mu.Lock()
	cancel := m.cancel
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	m.wg.Wait()
}

// TickInterval is how often a real Maintainer re-evaluates peer quality.
const TickInterval = time.Second
