package workflow

import (
	"fmt"
	"strings"
)

// State is the lifecycle position of a workflow item.
// An item is in exactly one state at all times.
type State string

const (
	StateCreated  State = "CREATED"
	StateReviewed State = "REVIEWED"
	StateApproved State = "APPROVED"
	StateRejected State = "REJECTED"
	StateReopened State = "REOPENED"
)

// Action is a named intent that, when authorized and defined, produces a
// state transition.
type Action string

const (
	ActionSubmit  Action = "SUBMIT"
	ActionReview  Action = "REVIEW"
	ActionApprove Action = "APPROVE"
	ActionReject  Action = "REJECT"
	ActionReopen  Action = "REOPEN"
)

func (s State) String() string  { return string(s) }
func (a Action) String() string { return string(a) }

func (s State) Valid() bool {
	switch s {
	case StateCreated, StateReviewed, StateApproved, StateRejected, StateReopened:
		return true
	default:
		return false
	}
}

// ParseState maps raw input to a State. Case-insensitive at the boundary;
// everything past the boundary works with canonical values only.
func ParseState(v string) (State, error) {
	s := State(strings.ToUpper(strings.TrimSpace(v)))
	if !s.Valid() {
		return "", fmt.Errorf("workflow: unknown state %q", v)
	}
	return s, nil
}

// ParseAction maps raw input to an Action, case-insensitively.
func ParseAction(v string) (Action, error) {
	a := Action(strings.ToUpper(strings.TrimSpace(v)))
	switch a {
	case ActionSubmit, ActionReview, ActionApprove, ActionReject, ActionReopen:
		return a, nil
	default:
		return "", fmt.Errorf("workflow: unknown action %q", v)
	}
}
