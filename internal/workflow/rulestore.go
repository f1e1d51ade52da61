package workflow

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync/atomic"

	"ops-platform/pkg/utils"
)

// RuleStore owns the persisted transition rules and the in-memory tables
// built from them.
//
// The tables are immutable snapshots: request-time reads never see a
// half-applied change. Administrative migrations rewrite the rows in one
// transaction and swap in a freshly built snapshot before returning, so
// there is no window in which a renamed role still authorizes.
type RuleStore struct {
	db     *sql.DB
	tables atomic.Pointer[Tables]
}

func NewRuleStore(db *sql.DB) *RuleStore {
	return &RuleStore{db: db}
}

// Bootstrap seeds the default rule set (no-op for rows already present) and
// loads the snapshot. Called once at startup.
func (s *RuleStore) Bootstrap(ctx context.Context) error {
	err := utils.WithTx(ctx, s.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		return seedRules(ctx, tx, DefaultRules())
	})
	if err != nil {
		return fmt.Errorf("workflow: seeding transition rules: %w", err)
	}
	return s.Reload(ctx)
}

// Reload rebuilds the snapshot from storage and swaps it in.
//
// Rows still carrying legacy role names are skipped, not fatal: they grant
// nothing (absence denies) until the role-rename migration rewrites them,
// and that migration has to be reachable on exactly such a database.
func (s *RuleStore) Reload(ctx context.Context) error {
	rules, err := loadRules(ctx, s.db)
	if err != nil {
		return fmt.Errorf("workflow: loading transition rules: %w", err)
	}
	canonical, legacy := splitCanonicalRules(rules)
	for _, r := range legacy {
		slog.Warn("skipping transition rule with legacy role; run the role-rename migration",
			"from_state", r.FromState, "action", r.Action, "role", r.Role)
	}
	t, err := BuildTables(canonical)
	if err != nil {
		return err
	}
	s.tables.Store(t)
	return nil
}

// splitCanonicalRules separates rules naming canonical roles from rows that
// still carry pre-migration role names.
func splitCanonicalRules(rules []Rule) (canonical, legacy []Rule) {
	for _, r := range rules {
		if r.Role.Valid() {
			canonical = append(canonical, r)
		} else {
			legacy = append(legacy, r)
		}
	}
	return canonical, legacy
}

// Tables returns the current immutable snapshot.
func (s *RuleStore) Tables() *Tables {
	t := s.tables.Load()
	if t == nil {
		// Bootstrap not run; an empty snapshot denies everything.
		empty, _ := BuildTables(nil)
		return empty
	}
	return t
}

// The *Tables returned by RuleStore satisfies the engine's RuleSource.
var _ RuleSource = (*Tables)(nil)
