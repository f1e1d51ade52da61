package workflow

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"ops-platform/internal/audit"
	"ops-platform/internal/rbac"
)

func defaultEngine(t *testing.T) *Engine {
	t.Helper()
	tables, err := BuildTables(DefaultRules())
	if err != nil {
		t.Fatalf("BuildTables: %v", err)
	}
	return NewEngine(tables)
}

func TestProcessTransition_ManagerApprovesReviewed(t *testing.T) {
	e := defaultEngine(t)
	it := &Item{ID: "it-1", State: StateReviewed}

	next, err := e.ProcessTransition(it, ActionApprove, "morgan", rbac.RoleManager)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if next != StateApproved {
		t.Fatalf("expected %s, got %s", StateApproved, next)
	}
	if it.State != StateReviewed {
		t.Fatalf("engine must not mutate the item; state changed to %s", it.State)
	}
}

func TestProcessTransition_UnpermittedRoleIsForbidden(t *testing.T) {
	e := defaultEngine(t)
	it := &Item{ID: "it-1", State: StateReviewed}

	_, err := e.ProcessTransition(it, ActionApprove, "vic", rbac.RoleViewer)
	var forbidden *ForbiddenError
	if !errors.As(err, &forbidden) {
		t.Fatalf("expected ForbiddenError, got %v", err)
	}
	if forbidden.Role != rbac.RoleViewer || forbidden.State != StateReviewed {
		t.Fatalf("error carries wrong context: %+v", forbidden)
	}
}

func TestProcessTransition_ApprovedRejectIsAdminOnly(t *testing.T) {
	// (APPROVED, REJECT) is defined, but only for admins. A manager must get
	// a permission failure, not an undefined-transition one.
	e := defaultEngine(t)
	it := &Item{ID: "it-1", State: StateApproved}

	_, err := e.ProcessTransition(it, ActionReject, "morgan", rbac.RoleManager)
	var forbidden *ForbiddenError
	if !errors.As(err, &forbidden) {
		t.Fatalf("expected ForbiddenError, got %v", err)
	}

	next, err := e.ProcessTransition(it, ActionReject, "adm", rbac.RoleAdmin)
	if err != nil {
		t.Fatalf("admin reject: %v", err)
	}
	if next != StateRejected {
		t.Fatalf("expected %s, got %s", StateRejected, next)
	}
}

func TestProcessTransition_ForbiddenBeforeTableLookup(t *testing.T) {
	// REOPEN is undefined from APPROVED, and the viewer also holds no
	// permission there. Authorization must answer first so an unauthorized
	// caller cannot probe which transitions exist.
	e := defaultEngine(t)
	it := &Item{ID: "it-1", State: StateApproved}

	_, err := e.ProcessTransition(it, ActionReopen, "vic", rbac.RoleViewer)
	var forbidden *ForbiddenError
	if !errors.As(err, &forbidden) {
		t.Fatalf("expected ForbiddenError to win over InvalidTransitionError, got %v", err)
	}
}

// ruleSourceStub lets a test grant a permission with no matching transition.
type ruleSourceStub struct {
	permit bool
	rule   Rule
	found  bool
}

func (s ruleSourceStub) Permits(State, rbac.Role, Action) bool      { return s.permit }
func (s ruleSourceStub) PermittedActions(State, rbac.Role) []Action { return nil }
func (s ruleSourceStub) Lookup(State, Action) (Rule, bool)          { return s.rule, s.found }

func TestProcessTransition_PermittedButUndefinedIsInvalid(t *testing.T) {
	e := NewEngine(ruleSourceStub{permit: true})
	it := &Item{ID: "it-1", State: StateApproved}

	_, err := e.ProcessTransition(it, ActionSubmit, "adm", rbac.RoleAdmin)
	var invalid *InvalidTransitionError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidTransitionError, got %v", err)
	}
	if invalid.State != StateApproved || invalid.Action != ActionSubmit {
		t.Fatalf("error carries wrong context: %+v", invalid)
	}
}

func TestProcessTransition_MisconfiguredTargetIsRuleViolation(t *testing.T) {
	// APPROVED -> CREATED is not an edge of the state graph; a seeded rule
	// claiming it must be rejected, not applied.
	tables, err := BuildTables([]Rule{
		{FromState: StateApproved, ToState: StateCreated, Action: ActionSubmit, Role: rbac.RoleAdmin},
	})
	if err != nil {
		t.Fatalf("BuildTables: %v", err)
	}
	e := NewEngine(tables)
	it := &Item{ID: "it-1", State: StateApproved}

	_, err = e.ProcessTransition(it, ActionSubmit, "adm", rbac.RoleAdmin)
	var violation *RuleViolationError
	if !errors.As(err, &violation) {
		t.Fatalf("expected RuleViolationError, got %v", err)
	}
	if violation.Target != StateCreated {
		t.Fatalf("expected resolved target %s in error, got %s", StateCreated, violation.Target)
	}
}

func TestAllowedActions_SortedAndScopedToRole(t *testing.T) {
	e := defaultEngine(t)

	got := e.AllowedActions(&Item{State: StateReviewed}, rbac.RoleManager)
	want := []Action{ActionApprove, ActionReject}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("manager actions in %s: got %v, want %v", StateReviewed, got, want)
	}

	if got := e.AllowedActions(&Item{State: StateReviewed}, rbac.RoleViewer); len(got) != 0 {
		t.Fatalf("viewer should have no actions in %s, got %v", StateReviewed, got)
	}
}

func TestFullCycle_ReturnsToCreatedWithAuditTrail(t *testing.T) {
	e := defaultEngine(t)
	sink := audit.NewMemoryRepo()
	recorder := audit.NewRecorder(sink)
	ctx := context.Background()

	it := Item{ID: "it-cycle", State: StateCreated, Version: 1}

	steps := []struct {
		action Action
		role   rbac.Role
		want   State
	}{
		{ActionSubmit, rbac.RoleViewer, StateReviewed},
		{ActionApprove, rbac.RoleManager, StateApproved},
		{ActionReject, rbac.RoleAdmin, StateRejected},
		{ActionReopen, rbac.RoleViewer, StateReopened},
		{ActionSubmit, rbac.RoleViewer, StateCreated},
	}

	for i, st := range steps {
		next, err := e.ProcessTransition(&it, st.action, "actor", st.role)
		if err != nil {
			t.Fatalf("step %d (%s as %s): %v", i, st.action, st.role, err)
		}
		if next != st.want {
			t.Fatalf("step %d: expected %s, got %s", i, st.want, next)
		}

		err = recorder.Record(ctx, nil, audit.ActionWorkflowTransitioned, "WorkflowItem", it.ID,
			"Workflow transitioned", audit.Actor{ID: "u-1", Username: "actor", Role: st.role},
			map[string]string{"state": string(it.State)},
			map[string]string{"state": string(next)})
		if err != nil {
			t.Fatalf("step %d audit: %v", i, err)
		}

		it.State = next
		it.Version++
	}

	if it.State != StateCreated {
		t.Fatalf("cycle should end back in %s, got %s", StateCreated, it.State)
	}
	recs := sink.Records()
	if len(recs) != 5 {
		t.Fatalf("expected 5 audit records for 5 transitions, got %d", len(recs))
	}
	if recs[0].OldValues != `{"state":"CREATED"}` || recs[0].NewValues != `{"state":"REVIEWED"}` {
		t.Fatalf("first record snapshots wrong: old=%s new=%s", recs[0].OldValues, recs[0].NewValues)
	}
}
