package workflow

import (
	"errors"
	"fmt"

	"ops-platform/internal/rbac"
)

var (
	// ErrNotFound is returned when a workflow item does not exist.
	ErrNotFound = errors.New("workflow: item not found")

	// ErrVersionConflict is returned when a conditional persist observes a
	// version other than the one loaded. The whole unit of work is rolled
	// back; callers may reload and retry.
	ErrVersionConflict = errors.New("workflow: item version conflict")

	// ErrItemLocked is returned when another transition currently holds the
	// per-item lock. Retryable by the caller.
	ErrItemLocked = errors.New("workflow: item transition in progress")

	// ErrInvalidArgument covers malformed service inputs.
	ErrInvalidArgument = errors.New("workflow: invalid argument")
)

// ForbiddenError: the acting role holds no permission entry covering the
// requested action in the item's current state. Evaluated first, so an
// unauthorized caller learns nothing about which transitions exist.
type ForbiddenError struct {
	Actor  string
	Role   rbac.Role
	Action Action
	State  State
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("workflow: actor %q with role %s is not permitted to %s in state %s",
		e.Actor, e.Role, e.Action, e.State)
}

// InvalidTransitionError: no transition rule is defined for (state, action).
type InvalidTransitionError struct {
	State  State
	Action Action
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("workflow: action %s is not defined from state %s", e.Action, e.State)
}

// RuleViolationError: the transition table resolved a target the state graph
// does not allow. This means corrupted seed data, not user error; callers
// should log it at error severity. The message deliberately does not
// enumerate the legal edges.
type RuleViolationError struct {
	State  State
	Target State
	Action Action
}

func (e *RuleViolationError) Error() string {
	return fmt.Sprintf("workflow: transition %s from state %s is not permitted", e.Action, e.State)
}
