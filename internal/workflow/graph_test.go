package workflow

import "testing"

func TestValidEdge(t *testing.T) {
	cases := []struct {
		from, to State
		want     bool
	}{
		{StateCreated, StateReviewed, true},
		{StateReviewed, StateApproved, true},
		{StateReviewed, StateRejected, true},
		{StateApproved, StateRejected, true},
		{StateRejected, StateReopened, true},
		{StateReopened, StateCreated, true},

		{StateCreated, StateApproved, false},
		{StateApproved, StateReviewed, false},
		{StateApproved, StateApproved, false},
		{StateRejected, StateCreated, false},
		{StateReopened, StateReviewed, false},
	}
	for _, tc := range cases {
		if got := ValidEdge(tc.from, tc.to); got != tc.want {
			t.Fatalf("ValidEdge(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestGraphSuccessors_ReviewedBranches(t *testing.T) {
	next := GraphSuccessors(StateReviewed)
	if len(next) != 2 {
		t.Fatalf("expected 2 successors for %s, got %v", StateReviewed, next)
	}
}

func TestGraphSuccessors_ReturnsCopy(t *testing.T) {
	next := GraphSuccessors(StateCreated)
	if len(next) != 1 || next[0] != StateReviewed {
		t.Fatalf("unexpected successors: %v", next)
	}
	next[0] = StateApproved
	if got := GraphSuccessors(StateCreated)[0]; got != StateReviewed {
		t.Fatalf("mutating the returned slice leaked into the graph: %s", got)
	}
}
