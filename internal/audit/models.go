package audit

import "time"

// Record is an immutable, append-only audit log entry documenting one
// mutating operation.
//
// Invariants:
// - Records are never updated or deleted, and never deduplicated: two
//   identical calls produce two distinct records.
// - A record is written in the same transaction as the mutation it
//   documents. If that transaction rolls back, the record must not persist.
// - Request metadata (ip, user agent, method, path, correlation id) is
//   captured when an inbound request context exists and simply omitted
//   otherwise; it is never filled with placeholders.
//
// Storage (Postgres): table audit_logs, INSERT-only. Collaborators query by
// action, actor, (entity_type, entity_id), created_at and correlation_id
// independently, so each carries an index.
type Record struct {
	ID string `json:"id" db:"id"`

	// Action is the business category of the mutation.
	Action Action `json:"action" db:"action"`

	EntityType string `json:"entity_type" db:"entity_type"`
	EntityID   string `json:"entity_id,omitempty" db:"entity_id"`

	// Details is a short human-readable description for internal ops.
	Details string `json:"details,omitempty" db:"details"`

	ActorID   string `json:"actor_id,omitempty" db:"actor_id"`
	ActorName string `json:"actor_name,omitempty" db:"actor_name"`
	ActorRole string `json:"actor_role,omitempty" db:"actor_role"`

	IPAddress     string `json:"ip_address,omitempty" db:"ip_address"`
	UserAgent     string `json:"user_agent,omitempty" db:"user_agent"`
	RequestMethod string `json:"request_method,omitempty" db:"request_method"`
	RequestPath   string `json:"request_path,omitempty" db:"request_path"`
	CorrelationID string `json:"correlation_id,omitempty" db:"correlation_id"`

	// OldValues/NewValues are flat key-value snapshots serialized as JSON
	// objects of strings. Flat and key-sorted so compliance readers can
	// diff them without knowing the writing code.
	OldValues string `json:"old_values,omitempty" db:"old_values"`
	NewValues string `json:"new_values,omitempty" db:"new_values"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type Action string

const (
	ActionWorkflowCreated      Action = "workflow_created"
	ActionWorkflowUpdated      Action = "workflow_updated"
	ActionWorkflowTransitioned Action = "workflow_transitioned"
	ActionWorkflowDeleted      Action = "workflow_deleted"
	ActionRoleMigrated         Action = "role_migrated"
)
