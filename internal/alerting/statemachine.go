// Package alerting implements alert evaluation for BlazeAlert: the
// per-alert state machine, severity timing, the evaluator that drives it,
// and loading of alert definitions.
package alerting

import (
	"time"

	"github.com/good-yellow-bee/blazealert/internal/models"
)

// TransitionInput is everything the state machine needs to decide the next state.
type TransitionInput struct {
	State           models.AlertState
	ConditionMet    bool
	StateChangedAt  *time.Time
	LastTriggeredAt *time.Time
	Now             time.Time
	Timing          Timing
}

// TransitionResult is the state machine decision.
type TransitionResult struct {
	Next         models.AlertState
	Notify       bool
	StateChanged bool
}

// Transition computes the next alert state. It has no side effects.
//
// A nil StateChangedAt in PENDING, or a nil LastTriggeredAt in FIRING,
// counts as elapsed.
func Transition(in TransitionInput) TransitionResult {
	next, notify := decide(in)
	return TransitionResult{
		Next:         next,
		Notify:       notify,
		StateChanged: next != in.State,
	}
}

func decide(in TransitionInput) (models.AlertState, bool) {
	switch in.State {
	case models.StatePending:
		if !in.ConditionMet {
			return models.StateInactive, false
		}
		if elapsed(in.StateChangedAt, in.Now, in.Timing.Pending) {
			return models.StateFiring, true
		}
		return models.StatePending, false

	case models.StateFiring:
		if !in.ConditionMet {
			return models.StateResolved, true
		}
		return models.StateFiring, elapsed(in.LastTriggeredAt, in.Now, in.Timing.Cooldown)

	case models.StateResolved:
		if in.ConditionMet {
			return models.StatePending, false
		}
		return models.StateInactive, false

	default:
		// INACTIVE, and any unrecognized stored state.
		if in.ConditionMet {
			return models.StatePending, false
		}
		return models.StateInactive, false
	}
}

func elapsed(since *time.Time, now time.Time, d time.Duration) bool {
	if since == nil {
		return true
	}
	return now.Sub(*since) >= d
}

// ConditionMet reports whether value breaches threshold under op.
// A metric computed from zero samples never breaches.
func ConditionMet(op models.Operator, value, threshold float64, samples int64) bool {
	if samples <= 0 {
		return false
	}
	switch op {
	case models.OperatorGreaterThan:
		return value > threshold
	case models.OperatorLessThan:
		return value < threshold
	default:
		return false
	}
}
