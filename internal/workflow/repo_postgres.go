package workflow

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"ops-platform/internal/rbac"
)

// NOTE: This repository assumes the following tables exist:
// - workflow_items (current item state, version-gated updates)
// - workflow_transitions (seeded rules; UNIQUE (from_state, action, allowed_role))
//
// workflow_items.version backs optimistic concurrency: every mutation is
// conditional on the version the caller loaded.

func insertItem(ctx context.Context, tx *sql.Tx, it Item) error {
	const q = `
INSERT INTO workflow_items (
  id, title, description, state, priority, category, comments,
  created_by, assigned_to, version, created_at, updated_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12
)
`
	_, err := tx.ExecContext(ctx, q,
		it.ID,
		it.Title,
		it.Description,
		it.State,
		it.Priority,
		it.Category,
		it.Comments,
		it.CreatedBy,
		nullable(it.AssignedTo),
		it.Version,
		it.CreatedAt,
		it.UpdatedAt,
	)
	return err
}

func getItem(ctx context.Context, db *sql.DB, id string) (Item, error) {
	const q = itemSelect + ` WHERE id = $1`
	return scanItem(db.QueryRowContext(ctx, q, id))
}

// lockItem loads the item row FOR UPDATE to serialize concurrent mutations
// within the surrounding transaction.
func lockItem(ctx context.Context, tx *sql.Tx, id string) (Item, error) {
	const q = itemSelect + ` WHERE id = $1 FOR UPDATE`
	return scanItem(tx.QueryRowContext(ctx, q, id))
}

// updateItem persists the item conditionally on the version the caller
// loaded. A committed row always carries version expect+1.
func updateItem(ctx context.Context, tx *sql.Tx, it Item, expect int64) (Item, error) {
	const q = `
UPDATE workflow_items
SET title = $3, description = $4, state = $5, priority = $6, category = $7,
    comments = $8, assigned_to = $9, version = version + 1, updated_at = $10
WHERE id = $1 AND version = $2
RETURNING ` + itemColumns
	out, err := scanItem(tx.QueryRowContext(ctx, q,
		it.ID,
		expect,
		it.Title,
		it.Description,
		it.State,
		it.Priority,
		it.Category,
		it.Comments,
		nullable(it.AssignedTo),
		it.UpdatedAt,
	))
	if err == nil {
		return out, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Item{}, err
	}

	// No row matched: either the item is gone or the version moved on.
	var exists bool
	if err := tx.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM workflow_items WHERE id = $1)`, it.ID).Scan(&exists); err != nil {
		return Item{}, err
	}
	if exists {
		return Item{}, ErrVersionConflict
	}
	return Item{}, ErrNotFound
}

func deleteItem(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM workflow_items WHERE id = $1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ItemFilter narrows searchItems. Zero values mean "no constraint".
type ItemFilter struct {
	State      State
	Search     string
	AssignedTo string
	From       time.Time
	To         time.Time
}

func searchItems(ctx context.Context, db *sql.DB, f ItemFilter, limit, offset int) ([]Item, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.State != "" {
		where = append(where, "state = "+arg(f.State))
	}
	if f.Search != "" {
		p := arg("%" + strings.ToLower(f.Search) + "%")
		where = append(where, "(LOWER(title) LIKE "+p+" OR LOWER(description) LIKE "+p+")")
	}
	if f.AssignedTo != "" {
		where = append(where, "assigned_to = "+arg(f.AssignedTo))
	}
	if !f.From.IsZero() {
		where = append(where, "created_at >= "+arg(f.From))
	}
	if !f.To.IsZero() {
		where = append(where, "created_at <= "+arg(f.To))
	}

	q := itemSelect
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY created_at DESC LIMIT " + arg(limit) + " OFFSET " + arg(offset)

	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

const itemColumns = `id, title, description, state, priority, category, comments,
       created_by, assigned_to, version, created_at, updated_at`

const itemSelect = `SELECT ` + itemColumns + ` FROM workflow_items`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (Item, error) {
	var it Item
	var assignedTo sql.NullString
	err := row.Scan(
		&it.ID,
		&it.Title,
		&it.Description,
		&it.State,
		&it.Priority,
		&it.Category,
		&it.Comments,
		&it.CreatedBy,
		&assignedTo,
		&it.Version,
		&it.CreatedAt,
		&it.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Item{}, ErrNotFound
		}
		return Item{}, err
	}
	it.AssignedTo = assignedTo.String
	return it, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

/* ----- seeded transition rules ----- */

// seedRules inserts the bootstrap rule set. Existing rows are left
// untouched, and a grant whose (from_state, action) already resolves to a
// different target is skipped entirely: seeding is a no-op on duplicates,
// never an overwrite with a conflicting target.
func seedRules(ctx context.Context, tx *sql.Tx, rules []Rule) error {
	const q = `
INSERT INTO workflow_transitions (from_state, to_state, action, allowed_role, description)
SELECT $1,$2,$3,$4,$5
WHERE NOT EXISTS (
  SELECT 1 FROM workflow_transitions
  WHERE from_state = $1 AND action = $3 AND to_state <> $2
)
ON CONFLICT (from_state, action, allowed_role) DO NOTHING
`
	for _, r := range rules {
		if _, err := tx.ExecContext(ctx, q, r.FromState, r.ToState, r.Action, r.Role, r.Description); err != nil {
			return err
		}
	}
	return nil
}

func loadRules(ctx context.Context, db *sql.DB) ([]Rule, error) {
	const q = `
SELECT from_state, to_state, action, allowed_role, description
FROM workflow_transitions
ORDER BY from_state, action, allowed_role
`
	rows, err := db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Rule
	for rows.Next() {
		var r Rule
		if err := rows.Scan(&r.FromState, &r.ToState, &r.Action, &r.Role, &r.Description); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// renameRuleRole rewrites a stored role name across the rule set. Only the
// allowed_role column changes; the (from_state, action) -> to_state mapping
// stays as seeded.
//
// Source rows whose grant already exists under the target role are dropped
// first, otherwise the rename would trip the UNIQUE(from_state, action,
// allowed_role) constraint when the two role names merge. Returns the number
// of rows the migration touched, merged rows included.
func renameRuleRole(ctx context.Context, tx *sql.Tx, from string, to rbac.Role) (int64, error) {
	res, err := tx.ExecContext(ctx, `
DELETE FROM workflow_transitions src
WHERE src.allowed_role = $1
  AND EXISTS (
    SELECT 1 FROM workflow_transitions dst
    WHERE dst.from_state = src.from_state
      AND dst.action = src.action
      AND dst.allowed_role = $2
  )`, from, to)
	if err != nil {
		return 0, err
	}
	merged, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}

	res, err = tx.ExecContext(ctx,
		`UPDATE workflow_transitions SET allowed_role = $2 WHERE allowed_role = $1`, from, to)
	if err != nil {
		return 0, err
	}
	renamed, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return merged + renamed, nil
}
