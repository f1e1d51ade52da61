package workflow

import (
	"testing"

	"ops-platform/internal/rbac"
)

func TestBuildTables_DefaultRules(t *testing.T) {
	tables, err := BuildTables(DefaultRules())
	if err != nil {
		t.Fatalf("BuildTables: %v", err)
	}

	rule, ok := tables.Lookup(StateReviewed, ActionApprove)
	if !ok {
		t.Fatalf("expected a rule for %s/%s", StateReviewed, ActionApprove)
	}
	if rule.ToState != StateApproved {
		t.Fatalf("expected target %s, got %s", StateApproved, rule.ToState)
	}

	if !tables.Permits(StateReviewed, rbac.RoleManager, ActionApprove) {
		t.Fatalf("manager should be permitted to approve a reviewed item")
	}
	if tables.Permits(StateReviewed, rbac.RoleViewer, ActionApprove) {
		t.Fatalf("viewer must not be permitted to approve")
	}
	// Only admin may reject an already approved item.
	if tables.Permits(StateApproved, rbac.RoleManager, ActionReject) {
		t.Fatalf("manager must not reject an approved item")
	}
	if !tables.Permits(StateApproved, rbac.RoleAdmin, ActionReject) {
		t.Fatalf("admin should reject an approved item")
	}
}

func TestBuildTables_DuplicateSameTargetAccumulatesPermissions(t *testing.T) {
	tables, err := BuildTables([]Rule{
		{FromState: StateCreated, ToState: StateReviewed, Action: ActionSubmit, Role: rbac.RoleViewer},
		{FromState: StateCreated, ToState: StateReviewed, Action: ActionSubmit, Role: rbac.RoleAdmin},
	})
	if err != nil {
		t.Fatalf("BuildTables: %v", err)
	}
	if !tables.Permits(StateCreated, rbac.RoleViewer, ActionSubmit) {
		t.Fatalf("first role lost its permission")
	}
	if !tables.Permits(StateCreated, rbac.RoleAdmin, ActionSubmit) {
		t.Fatalf("second role of the same rule did not accumulate")
	}
}

func TestBuildTables_ConflictingDuplicateKeepsFirstTarget(t *testing.T) {
	tables, err := BuildTables([]Rule{
		{FromState: StateCreated, ToState: StateReviewed, Action: ActionSubmit, Role: rbac.RoleViewer},
		{FromState: StateCreated, ToState: StateApproved, Action: ActionSubmit, Role: rbac.RoleAdmin},
	})
	if err != nil {
		t.Fatalf("BuildTables: %v", err)
	}
	rule, ok := tables.Lookup(StateCreated, ActionSubmit)
	if !ok {
		t.Fatalf("rule disappeared after conflicting duplicate")
	}
	if rule.ToState != StateReviewed {
		t.Fatalf("conflicting duplicate overwrote the target: got %s", rule.ToState)
	}
	// The conflicting row contributes nothing, including its permission.
	if tables.Permits(StateCreated, rbac.RoleAdmin, ActionSubmit) {
		t.Fatalf("conflicting duplicate must not grant a permission")
	}
}

func TestBuildTables_RejectsUnknownStateAndRole(t *testing.T) {
	if _, err := BuildTables([]Rule{
		{FromState: "LIMBO", ToState: StateReviewed, Action: ActionSubmit, Role: rbac.RoleAdmin},
	}); err == nil {
		t.Fatalf("expected error for unknown from state")
	}
	if _, err := BuildTables([]Rule{
		{FromState: StateCreated, ToState: StateReviewed, Action: ActionSubmit, Role: "SUPERVISOR"},
	}); err == nil {
		t.Fatalf("expected error for unknown role")
	}
}

func TestPermittedActions_MissingEntryMeansNothing(t *testing.T) {
	tables, err := BuildTables(DefaultRules())
	if err != nil {
		t.Fatalf("BuildTables: %v", err)
	}
	if got := tables.PermittedActions(StateApproved, rbac.RoleViewer); len(got) != 0 {
		t.Fatalf("viewer should have no actions in %s, got %v", StateApproved, got)
	}
}
