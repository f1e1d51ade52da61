package workflow

import (
	"sort"

	"ops-platform/internal/rbac"
)

// RuleSource is the read-only view of the seeded tables the engine runs on.
// A *Tables satisfies it; tests may substitute fixtures.
type RuleSource interface {
	Permits(from State, role rbac.Role, action Action) bool
	PermittedActions(from State, role rbac.Role) []Action
	Lookup(from State, action Action) (Rule, bool)
}

// Engine decides the next state for a workflow item.
//
// It is pure and stateless: no shared mutable state, no persistence, safe to
// call concurrently. Persisting the returned state and emitting the audit
// record are the caller's job, inside one transaction.
//
// Checks run in a fixed order and short-circuit:
//  1. permission entry for (state, role) covering the action  -> ForbiddenError
//  2. transition rule for (state, action)                     -> InvalidTransitionError
//  3. resolved target against the hardcoded state graph       -> RuleViolationError
//
// Authorization runs first on purpose: an unauthorized role must not be able
// to probe which transitions exist.
type Engine struct {
	rules RuleSource
}

func NewEngine(rules RuleSource) *Engine {
	return &Engine{rules: rules}
}

// ProcessTransition validates the requested action for the item and returns
// the resulting state. The item itself is not mutated.
func (e *Engine) ProcessTransition(item *Item, action Action, actor string, role rbac.Role) (State, error) {
	if !e.rules.Permits(item.State, role, action) {
		return "", &ForbiddenError{Actor: actor, Role: role, Action: action, State: item.State}
	}

	rule, ok := e.rules.Lookup(item.State, action)
	if !ok {
		return "", &InvalidTransitionError{State: item.State, Action: action}
	}

	// Defense in depth: the transition table is seeded data and must never
	// be trusted alone for a state change.
	if !ValidEdge(item.State, rule.ToState) {
		return "", &RuleViolationError{State: item.State, Target: rule.ToState, Action: action}
	}

	return rule.ToState, nil
}

// AllowedActions returns the distinct actions the role may perform on the
// item in its current state, sorted for stable output. It reads the exact
// same permission entries as ProcessTransition's first check, so what is
// offered never drifts from what is accepted.
func (e *Engine) AllowedActions(item *Item, role rbac.Role) []Action {
	actions := e.rules.PermittedActions(item.State, role)
	sort.Slice(actions, func(i, j int) bool { return actions[i] < actions[j] })
	return actions
}
