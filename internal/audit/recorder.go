package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"ops-platform/internal/rbac"

	"github.com/google/uuid"
)

// Sink is the persistence contract for audit records.
//
// It MUST be append-only; no update or delete methods exist by design.
// AppendTx writes within the caller's transaction when tx is non-nil, so a
// rolled-back mutation leaves no record behind.
type Sink interface {
	AppendTx(ctx context.Context, tx *sql.Tx, rec Record) error
}

// Actor identifies who performed a mutation.
type Actor struct {
	ID       string
	Username string
	Role     rbac.Role
}

// Recorder builds and persists audit records.
//
// It fills ids, timestamps and the ambient request metadata found in ctx;
// callers supply only the business facts of the mutation.
type Recorder struct {
	sink  Sink
	clock func() time.Time
}

func NewRecorder(sink Sink) *Recorder {
	return &Recorder{sink: sink, clock: time.Now}
}

var ErrInvalidRecord = errors.New("audit: invalid record")

// Record appends one audit record inside the given transaction. tx may be
// nil only for mutations that have no surrounding transaction of their own.
func (r *Recorder) Record(ctx context.Context, tx *sql.Tx, action Action, entityType, entityID, details string, actor Actor, oldValues, newValues map[string]string) error {
	if r.sink == nil {
		return errors.New("audit: sink not configured")
	}
	if action == "" || entityType == "" {
		return ErrInvalidRecord
	}

	old, err := FlattenValues(oldValues)
	if err != nil {
		return err
	}
	updated, err := FlattenValues(newValues)
	if err != nil {
		return err
	}

	rec := Record{
		ID:         uuid.NewString(),
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Details:    details,
		ActorID:    actor.ID,
		ActorName:  actor.Username,
		ActorRole:  string(actor.Role),
		OldValues:  old,
		NewValues:  updated,
		CreatedAt:  r.clock().UTC(),
	}

	// Ambient request metadata, when an inbound request context exists.
	if m, ok := MetaFromContext(ctx); ok {
		rec.IPAddress = m.IPAddress
		rec.UserAgent = m.UserAgent
		rec.RequestMethod = m.Method
		rec.RequestPath = m.Path
		rec.CorrelationID = m.CorrelationID
	}

	return r.sink.AppendTx(ctx, tx, rec)
}

// FlattenValues serializes a flat string map to its stored form: a JSON
// object with sorted keys. Stable output for identical input, and no nesting
// by construction.
func FlattenValues(values map[string]string) (string, error) {
	if len(values) == 0 {
		return "", nil
	}
	b, err := json.Marshal(values)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
