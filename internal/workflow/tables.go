package workflow

import (
	"fmt"

	"ops-platform/internal/rbac"
)

// Rule is one seeded transition: (FromState, Action) resolves to ToState and
// Role may invoke it. The role on a rule also feeds the permission table;
// the engine never authorizes off the transition lookup itself.
type Rule struct {
	FromState   State
	ToState     State
	Action      Action
	Role        rbac.Role
	Description string
}

type transitionKey struct {
	From   State
	Action Action
}

type permissionKey struct {
	From State
	Role rbac.Role
}

// Tables are the two read-only lookup structures the engine runs on.
//
// Both are derived from the same seed rules but kept as independent maps,
// because they answer different questions: "may this role act here at all"
// (permissions) vs "what does this action produce" (transitions). A Tables
// value is immutable after Build; migrations build a fresh value and swap it.
type Tables struct {
	transitions map[transitionKey]Rule
	permissions map[permissionKey]map[Action]struct{}
}

// BuildTables constructs the lookup tables from seed rules.
//
// Duplicate (from, action) keys with the same target accumulate permissions;
// a duplicate that disagrees on the target state is a seeding defect and is
// ignored keep-first, never silently overwritten.
func BuildTables(rules []Rule) (*Tables, error) {
	t := &Tables{
		transitions: make(map[transitionKey]Rule, len(rules)),
		permissions: make(map[permissionKey]map[Action]struct{}, len(rules)),
	}
	for _, r := range rules {
		if !r.FromState.Valid() || !r.ToState.Valid() {
			return nil, fmt.Errorf("workflow: rule %s -> %s has an unknown state", r.FromState, r.ToState)
		}
		if !r.Role.Valid() {
			return nil, fmt.Errorf("workflow: rule %s/%s names unknown role %q", r.FromState, r.Action, r.Role)
		}

		tk := transitionKey{From: r.FromState, Action: r.Action}
		if existing, ok := t.transitions[tk]; !ok {
			t.transitions[tk] = r
		} else if existing.ToState != r.ToState {
			// Keep-first. The first seeded target wins; conflicting
			// duplicates must not change an established mapping.
			continue
		}

		pk := permissionKey{From: r.FromState, Role: r.Role}
		if t.permissions[pk] == nil {
			t.permissions[pk] = make(map[Action]struct{})
		}
		t.permissions[pk][r.Action] = struct{}{}
	}
	return t, nil
}

// Lookup resolves the canonical transition for (state, action).
func (t *Tables) Lookup(from State, action Action) (Rule, bool) {
	r, ok := t.transitions[transitionKey{From: from, Action: action}]
	return r, ok
}

// PermittedActions returns the distinct actions the role may perform in the
// given state. Missing entry means the role may do nothing there.
func (t *Tables) PermittedActions(from State, role rbac.Role) []Action {
	set := t.permissions[permissionKey{From: from, Role: role}]
	if len(set) == 0 {
		return nil
	}
	out := make([]Action, 0, len(set))
	for a := range set {
		out = append(out, a)
	}
	return out
}

// Permits reports whether the role may perform the action in the given state.
// This is the single authorization data path; AllowedActions and the engine's
// first check both go through it.
func (t *Tables) Permits(from State, role rbac.Role, action Action) bool {
	_, ok := t.permissions[permissionKey{From: from, Role: role}][action]
	return ok
}

// DefaultRules is the administrative bootstrap seed.
// The (from, action) -> target mapping here must stay stable; role
// assignments may evolve via migration.
func DefaultRules() []Rule {
	rule := func(from, to State, action Action, role rbac.Role) Rule {
		return Rule{
			FromState:   from,
			ToState:     to,
			Action:      action,
			Role:        role,
			Description: fmt.Sprintf("%s -> %s via %s", from, to, action),
		}
	}
	return []Rule{
		rule(StateCreated, StateReviewed, ActionSubmit, rbac.RoleViewer),
		rule(StateCreated, StateReviewed, ActionSubmit, rbac.RoleAdmin),
		rule(StateCreated, StateReviewed, ActionReview, rbac.RoleManager),
		rule(StateCreated, StateReviewed, ActionReview, rbac.RoleAdmin),

		rule(StateReviewed, StateApproved, ActionApprove, rbac.RoleManager),
		rule(StateReviewed, StateApproved, ActionApprove, rbac.RoleAdmin),
		rule(StateReviewed, StateRejected, ActionReject, rbac.RoleManager),
		rule(StateReviewed, StateRejected, ActionReject, rbac.RoleAdmin),

		rule(StateApproved, StateRejected, ActionReject, rbac.RoleAdmin),

		rule(StateRejected, StateReopened, ActionReopen, rbac.RoleViewer),
		rule(StateRejected, StateReopened, ActionReopen, rbac.RoleManager),

		rule(StateReopened, StateCreated, ActionSubmit, rbac.RoleViewer),
	}
}
