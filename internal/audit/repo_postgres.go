package audit

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// PostgresRepo persists audit records in the audit_logs table.
//
// The table is INSERT-only; a trigger preventing UPDATE/DELETE is
// recommended. Expected indexes: action, actor_id, (entity_type, entity_id),
// created_at, correlation_id.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) AppendTx(ctx context.Context, tx *sql.Tx, rec Record) error {
	const q = `
INSERT INTO audit_logs (
  id, action, entity_type, entity_id, details,
  actor_id, actor_name, actor_role,
  ip_address, user_agent, request_method, request_path, correlation_id,
  old_values, new_values, created_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16
)
`
	args := []any{
		rec.ID,
		rec.Action,
		rec.EntityType,
		nullable(rec.EntityID),
		rec.Details,
		rec.ActorID,
		rec.ActorName,
		rec.ActorRole,
		rec.IPAddress,
		rec.UserAgent,
		rec.RequestMethod,
		rec.RequestPath,
		rec.CorrelationID,
		rec.OldValues,
		rec.NewValues,
		rec.CreatedAt,
	}
	if tx != nil {
		_, err := tx.ExecContext(ctx, q, args...)
		return err
	}
	_, err := r.db.ExecContext(ctx, q, args...)
	return err
}

// Filter narrows Search. Zero values mean "no constraint".
type Filter struct {
	Action        Action
	EntityType    string
	EntityID      string
	ActorID       string
	CorrelationID string
	From          time.Time
	To            time.Time
}

func (r *PostgresRepo) Search(ctx context.Context, f Filter, limit, offset int) ([]Record, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.Action != "" {
		where = append(where, "action = "+arg(f.Action))
	}
	if f.EntityType != "" {
		where = append(where, "entity_type = "+arg(f.EntityType))
	}
	if f.EntityID != "" {
		where = append(where, "entity_id = "+arg(f.EntityID))
	}
	if f.ActorID != "" {
		where = append(where, "actor_id = "+arg(f.ActorID))
	}
	if f.CorrelationID != "" {
		where = append(where, "correlation_id = "+arg(f.CorrelationID))
	}
	if !f.From.IsZero() {
		where = append(where, "created_at >= "+arg(f.From))
	}
	if !f.To.IsZero() {
		where = append(where, "created_at <= "+arg(f.To))
	}

	q := recordSelect
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY created_at DESC LIMIT " + arg(limit) + " OFFSET " + arg(offset)

	return r.queryRecords(ctx, q, args...)
}

// ListByEntity returns the audit trail of one entity, newest first.
func (r *PostgresRepo) ListByEntity(ctx context.Context, entityType, entityID string, limit, offset int) ([]Record, error) {
	q := recordSelect + ` WHERE entity_type = $1 AND entity_id = $2
ORDER BY created_at DESC LIMIT $3 OFFSET $4`
	return r.queryRecords(ctx, q, entityType, entityID, limit, offset)
}

const recordSelect = `
SELECT id, action, entity_type, COALESCE(entity_id, ''), details,
       actor_id, actor_name, actor_role,
       ip_address, user_agent, request_method, request_path, correlation_id,
       old_values, new_values, created_at
FROM audit_logs`

func (r *PostgresRepo) queryRecords(ctx context.Context, q string, args ...any) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(
			&rec.ID,
			&rec.Action,
			&rec.EntityType,
			&rec.EntityID,
			&rec.Details,
			&rec.ActorID,
			&rec.ActorName,
			&rec.ActorRole,
			&rec.IPAddress,
			&rec.UserAgent,
			&rec.RequestMethod,
			&rec.RequestPath,
			&rec.CorrelationID,
			&rec.OldValues,
			&rec.NewValues,
			&rec.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
