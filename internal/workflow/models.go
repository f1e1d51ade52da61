package workflow

import "time"

// Item is a governed workflow item.
//
// Invariants:
// - State is always exactly one of the five enumerated values.
// - Only the engine computes the next state; callers perform the write.
// - CreatedBy is immutable once assigned; AssignedTo may change.
// - Version increments on every persisted mutation and gates conditional
//   updates (optimistic concurrency).
type Item struct {
	ID          string `json:"id" db:"id"`
	Title       string `json:"title" db:"title"`
	Description string `json:"description,omitempty" db:"description"`
	State       State  `json:"state" db:"state"`
	Priority    string `json:"priority,omitempty" db:"priority"`
	Category    string `json:"category,omitempty" db:"category"`
	Comments    string `json:"comments,omitempty" db:"comments"`

	CreatedBy  string `json:"created_by" db:"created_by"`
	AssignedTo string `json:"assigned_to,omitempty" db:"assigned_to"`

	Version   int64     `json:"version" db:"version"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
