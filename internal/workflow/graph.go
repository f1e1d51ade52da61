package workflow

// stateGraph is the fixed set of legal state-to-state edges.
//
// It lives in code on purpose: the transition table is seeded data and could
// in principle be misconfigured, so the engine re-checks every resolved
// target against this set. Changing it is a code change, never a data change.
var stateGraph = map[State][]State{
	StateCreated:  {StateReviewed},
	StateReviewed: {StateApproved, StateRejected},
	StateApproved: {StateRejected},
	StateRejected: {StateReopened},
	StateReopened: {StateCreated},
}

// ValidEdge reports whether from -> to is a legal edge.
func ValidEdge(from, to State) bool {
	for _, next := range stateGraph[from] {
		if next == to {
			return true
		}
	}
	return false
}

// GraphSuccessors returns the legal target states from the given state.
// The returned slice is a copy; callers may not mutate the graph.
func GraphSuccessors(from State) []State {
	next := stateGraph[from]
	out := make([]State, len(next))
	copy(out, next)
	return out
}
