// Package statemachine implements the node lifecycle transition table from
// spec section 4.7: transitions are a pure function of (actual, desired).
package statemachine

import (
	"time"

	"github.com/archetype-labs/agent/internal/model"
)

// Action is what the caller must actually do to carry out a transition —
// the table names it (e.g. "starting (deploy+start)"), but only the
// transition itself is pure; performing the action is the caller's job.
type Action string

const (
	ActionNone           Action = ""
	ActionDeployAndStart Action = "deploy_and_start"
	ActionStart          Action = "start"
	ActionStop           Action = "stop"
	ActionReverse        Action = "reverse" // abort an in-flight start
	ActionRestart        Action = "restart"
)

type transition struct {
	next   model.ActualState
	action Action
}

// table is spec section 4.7's transition table, transcribed directly. A
// missing (actual, desired) entry means "no transition" (the dash cells).
var table = map[model.ActualState]map[model.DesiredState]transition{
	model.StateUndeployed: {
		model.DesiredRunning: {model.StateStarting, ActionDeployAndStart},
		model.DesiredStopped: {model.StateStopped, ActionNone},
	},
	model.StatePending: {
		model.DesiredRunning: {model.StateStarting, ActionDeployAndStart},
		model.DesiredStopped: {model.StateStopped, ActionNone},
	},
	model.StateStopped: {
		model.DesiredRunning: {model.StateStarting, ActionStart},
	},
	model.StateError: {
		model.DesiredRunning: {model.StateStarting, ActionStart},
	},
	model.StateStarting: {
		model.DesiredStopped: {model.StateStopping, ActionReverse},
	},
	model.StateRunning: {
		model.DesiredStopped: {model.StateStopping, ActionStop},
	},
	model.StateStopping: {
		model.DesiredRunning: {model.StateStarting, ActionRestart},
	},
	model.StateExited: {
		model.DesiredRunning: {model.StateStarting, ActionStart},
		model.DesiredStopped: {model.StateStopped, ActionNone},
	},
}

// Next returns the state to transition to and the action that accomplishes
// it, for the given (actual, desired) pair. ok is false when the table has
// no transition for this pair (the actual state already matches intent, or
// this transition is simply not listed — e.g. running->running).
func Next(actual model.ActualState, desired model.DesiredState) (next model.ActualState, action Action, ok bool) {
	row, ok := table[actual]
	if !ok {
		return actual, ActionNone, false
	}
	t, ok := row[desired]
	if !ok {
		return actual, ActionNone, false
	}
	return t.next, t.action, true
}

// IsTransitional reports whether actual is one of the states that stamps a
// timestamp and is subject to timeout escalation (spec section 4.7).
func IsTransitional(actual model.ActualState) bool {
	switch actual {
	case model.StateStarting, model.StateStopping, model.StatePending:
		return true
	default:
		return false
	}
}

// Escalator periodically checks transitional NodeStates and escalates any
// older than its state-specific timeout to error.
type Escalator struct {
	StartingTimeout time.Duration
	StoppingTimeout time.Duration
	PendingTimeout  time.Duration
}

// ShouldEscalate reports whether a NodeState that has been in a
// transitional actual state for the given elapsed duration should be
// escalated to StateError.
func (e Escalator) ShouldEscalate(actual model.ActualState, elapsed time.Duration) bool {
	switch actual {
	case model.StateStarting:
		return elapsed > e.StartingTimeout
	case model.StateStopping:
		return elapsed > e.StoppingTimeout
	case model.StatePending:
		return elapsed > e.PendingTimeout
	default:
		return false
	}
}
