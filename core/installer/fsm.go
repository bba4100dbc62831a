package installer

import (
	"github.com/pkg/errors"
)

// Phase is the step a work item is in.
type Phase string

const (
	PhaseQueued     Phase = "queued"
	PhaseBinding    Phase = "binding"
	PhaseVerifying  Phase = "verifying"
	PhaseCopying    Phase = "copying"
	PhaseScanning   Phase = "scanning"
	PhaseCommitting Phase = "committing"
	PhaseRenaming   Phase = "renaming"
	PhaseFinalizing Phase = "finalizing"
	PhaseDone       Phase = "done"
	PhaseFailed     Phase = "failed"
)

var phaseOrder = map[Phase]int{
	PhaseQueued:     0,
	PhaseBinding:    1,
	PhaseVerifying:  2,
	PhaseCopying:    3,
	PhaseScanning:   4,
	PhaseCommitting: 5,
	PhaseRenaming:   6,
	PhaseFinalizing: 7,
	PhaseDone:       8,
}

// NeedsRollback reports whether a failure in p may have left storage
// artifacts behind.
func (p Phase) NeedsRollback() bool {
	return phaseOrder[p] >= phaseOrder[PhaseCopying] && p != PhaseDone && p != PhaseFailed
}

var errInvalidTransition = errors.New("invalid state transition")

// Install items walk the whole table; moves skip verification, scanning
// and renaming; measures go from binding straight to finalizing; deletes
// never bind.
var transitions = map[Phase]map[Phase]struct{}{
	PhaseQueued: {
		PhaseBinding:    struct{}{},
		PhaseCommitting: struct{}{},
	},
	PhaseBinding: {
		PhaseBinding:    struct{}{},
		PhaseVerifying:  struct{}{},
		PhaseCopying:    struct{}{},
		PhaseFinalizing: struct{}{},
	},
	PhaseVerifying: {
		PhaseCopying: struct{}{},
	},
	PhaseCopying: {
		PhaseScanning:   struct{}{},
		PhaseCommitting: struct{}{},
	},
	PhaseScanning: {
		PhaseCommitting: struct{}{},
	},
	PhaseCommitting: {
		PhaseRenaming:   struct{}{},
		PhaseFinalizing: struct{}{},
	},
	PhaseRenaming: {
		PhaseFinalizing: struct{}{},
	},
	PhaseFinalizing: {
		PhaseDone: struct{}{},
	},
}

type stateMachine struct {
	current  Phase
	failedAt Phase
	history  []Phase
}

func newStateMachine() *stateMachine {
	return &stateMachine{current: PhaseQueued, history: []Phase{PhaseQueued}}
}

func (sm *stateMachine) Transition(next Phase) error {
	if allowed, ok := transitions[sm.current]; ok {
		if _, ok = allowed[next]; ok {
			sm.current = next
			if sm.history[len(sm.history)-1] != next {
				sm.history = append(sm.history, next)
			}
			return nil
		}
	}

	return errors.Wrapf(errInvalidTransition, "%s -> %s", sm.current, next)
}

// Fail moves to the terminal failed phase, remembering where it happened.
// Failing a finished item is a no-op.
func (sm *stateMachine) Fail() {
	if sm.current == PhaseDone || sm.current == PhaseFailed {
		return
	}
	sm.failedAt = sm.current
	sm.current = PhaseFailed
	sm.history = append(sm.history, PhaseFailed)
}

func (sm *stateMachine) Current() Phase  { return sm.current }
func (sm *stateMachine) FailedAt() Phase { return sm.failedAt }

func (sm *stateMachine) Terminal() bool {
	return sm.current == PhaseDone || sm.current == PhaseFailed
}

// History returns the distinct phases visited in order.
func (sm *stateMachine) History() []Phase {
	return append([]Phase(nil), sm.history...)
}
