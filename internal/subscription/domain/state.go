package domain

import "errors"

type State string

const (
	StatePending State = "pending"
	StateFree    State = "free"
	StateTrial   State = "trial"
	StateActive  State = "active"
	StatePastDue State = "past_due"
	StateExpired State = "expired"
)

type Event string

const (
	EventFree    Event = "free"
	EventTrial   Event = "trial"
	EventActive  Event = "active"
	EventPastDue Event = "past_due"
	EventExpire  Event = "expire"
)

var ErrInvalidTransition = errors.New("invalid_transition")

// Transition is the pure lifecycle table. It decides the target state only;
// side effects (renewal dates, warning resets) are applied by the caller.
// The due guard on past_due is also the caller's job since it needs a clock.
func Transition(from State, ev Event) (State, error) {
	switch ev {
	case EventFree:
		return StateFree, nil
	case EventTrial:
		if from == StatePending || from == StateFree {
			return StateTrial, nil
		}
		return from, ErrInvalidTransition
	case EventActive:
		return StateActive, nil
	case EventPastDue:
		if from == StateExpired {
			return from, ErrInvalidTransition
		}
		return StatePastDue, nil
	case EventExpire:
		return StateExpired, nil
	}
	return from, ErrInvalidTransition
}
