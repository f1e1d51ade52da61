package workflow

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ops-platform/internal/audit"
	"ops-platform/internal/rbac"
	"ops-platform/pkg/utils"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Service orchestrates workflow item operations.
//
// The contract for every state-changing request:
//  1. load the item
//  2. ask the engine for a decision; abort on error without writing
//  3. apply the returned state (plus any field edits) in memory
//  4. persist the item, conditional on the loaded version
//  5. append the audit record
// Steps 4-5 run inside one transaction: both commit or neither does.
//
// Tenancy of reads: viewers only see items assigned to them; reviewers list
// their assigned items, managers and admins see everything.
type Service struct {
	db       *sql.DB
	rules    *RuleStore
	recorder *audit.Recorder

	// rdb, when set, backs a per-item transition lock. The lock is an
	// extra guard on top of version-gated updates, not a substitute.
	rdb     *redis.Client
	lockTTL time.Duration

	clock func() time.Time
}

// ErrAccessDenied covers read-path role restrictions (e.g. a viewer reading
// an item not assigned to them).
var ErrAccessDenied = errors.New("workflow: access denied")

const itemLockPrefix = "workflow:item-lock:"

func NewService(db *sql.DB, rules *RuleStore, recorder *audit.Recorder, rdb *redis.Client, lockTTL time.Duration) *Service {
	if lockTTL <= 0 {
		lockTTL = 30 * time.Second
	}
	return &Service{
		db:       db,
		rules:    rules,
		recorder: recorder,
		rdb:      rdb,
		lockTTL:  lockTTL,
		clock:    time.Now,
	}
}

// engine returns an engine over the current rule snapshot. Snapshots are
// immutable, so one request never observes a half-applied migration.
func (s *Service) engine() *Engine {
	return NewEngine(s.rules.Tables())
}

type CreateRequest struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Priority    string `json:"priority,omitempty"`
	Category    string `json:"category,omitempty"`
	AssignedTo  string `json:"assigned_to,omitempty"`
}

func (s *Service) Create(ctx context.Context, actor audit.Actor, req CreateRequest) (Item, error) {
	if actor.ID == "" || req.Title == "" {
		return Item{}, ErrInvalidArgument
	}

	now := s.clock().UTC()
	it := Item{
		ID:          uuid.NewString(),
		Title:       req.Title,
		Description: req.Description,
		State:       StateCreated,
		Priority:    req.Priority,
		Category:    req.Category,
		CreatedBy:   actor.ID,
		AssignedTo:  req.AssignedTo,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := utils.WithTx(ctx, s.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		if err := insertItem(ctx, tx, it); err != nil {
			return err
		}
		return s.recorder.Record(ctx, tx, audit.ActionWorkflowCreated, entityTypeItem, it.ID,
			"Workflow created", actor, nil, nil)
	})
	if err != nil {
		return Item{}, err
	}
	return it, nil
}

func (s *Service) Get(ctx context.Context, actor audit.Actor, id string) (Item, error) {
	if id == "" {
		return Item{}, ErrInvalidArgument
	}
	it, err := getItem(ctx, s.db, id)
	if err != nil {
		return Item{}, err
	}
	if actor.Role == rbac.RoleViewer && it.AssignedTo != actor.ID {
		return Item{}, ErrAccessDenied
	}
	return it, nil
}

// List returns items visible to the actor, newest first. Viewers and
// reviewers only see items assigned to them.
func (s *Service) List(ctx context.Context, actor audit.Actor, limit, offset int) ([]Item, error) {
	f := ItemFilter{}
	if actor.Role == rbac.RoleViewer || actor.Role == rbac.RoleReviewer {
		f.AssignedTo = actor.ID
	}
	return searchItems(ctx, s.db, f, clampLimit(limit), maxInt(offset, 0))
}

// Search filters items by state, free text and creation window.
func (s *Service) Search(ctx context.Context, f ItemFilter, limit, offset int) ([]Item, error) {
	return searchItems(ctx, s.db, f, clampLimit(limit), maxInt(offset, 0))
}

type UpdateRequest struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Priority    *string `json:"priority,omitempty"`
	AssignedTo  *string `json:"assigned_to,omitempty"`
}

// Update edits non-state fields, capturing per-field before/after snapshots
// for the audit record. While an item is still in CREATED, only its creator
// or current assignee may edit it.
func (s *Service) Update(ctx context.Context, actor audit.Actor, id string, req UpdateRequest) (Item, error) {
	if id == "" || actor.ID == "" {
		return Item{}, ErrInvalidArgument
	}

	it, err := getItem(ctx, s.db, id)
	if err != nil {
		return Item{}, err
	}
	if it.State == StateCreated && it.CreatedBy != actor.ID && it.AssignedTo != actor.ID {
		return Item{}, ErrAccessDenied
	}

	oldValues := map[string]string{}
	newValues := map[string]string{}
	apply := func(field string, dst *string, v *string) {
		if v == nil || *v == *dst {
			return
		}
		oldValues[field] = *dst
		newValues[field] = *v
		*dst = *v
	}
	apply("title", &it.Title, req.Title)
	apply("description", &it.Description, req.Description)
	apply("priority", &it.Priority, req.Priority)
	apply("assignedTo", &it.AssignedTo, req.AssignedTo)

	if len(newValues) == 0 {
		return it, nil
	}

	loaded := it.Version
	it.UpdatedAt = s.clock().UTC()

	var out Item
	err = utils.WithTx(ctx, s.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		persisted, err := updateItem(ctx, tx, it, loaded)
		if err != nil {
			return err
		}
		out = persisted
		return s.recorder.Record(ctx, tx, audit.ActionWorkflowUpdated, entityTypeItem, it.ID,
			"Workflow updated", actor, oldValues, newValues)
	})
	if err != nil {
		return Item{}, err
	}
	return out, nil
}

// Transition runs the engine's decision for (item, action, role) and, on
// success, persists the new state and its audit record atomically.
//
// Concurrency: the persist is conditional on the version loaded in step 1;
// a concurrent writer causes ErrVersionConflict and no audit row. When redis
// is configured, a per-item lock additionally serializes transitions so most
// races fail fast with ErrItemLocked instead.
func (s *Service) Transition(ctx context.Context, actor audit.Actor, id string, action Action, comments string) (Item, error) {
	if id == "" || actor.ID == "" {
		return Item{}, ErrInvalidArgument
	}

	if s.rdb != nil {
		ok, err := utils.AcquireCap(ctx, s.rdb, itemLockPrefix+id, 1, s.lockTTL)
		if err != nil {
			return Item{}, err
		}
		if !ok {
			return Item{}, ErrItemLocked
		}
		defer func() { _ = utils.ReleaseCap(ctx, s.rdb, itemLockPrefix+id) }()
	}

	it, err := getItem(ctx, s.db, id)
	if err != nil {
		return Item{}, err
	}

	next, err := s.engine().ProcessTransition(&it, action, actor.Username, actor.Role)
	if err != nil {
		return Item{}, err
	}

	oldState := it.State
	loaded := it.Version
	it.State = next
	if comments != "" {
		it.Comments = comments
	}
	it.UpdatedAt = s.clock().UTC()

	oldValues := map[string]string{"state": string(oldState)}
	newValues := map[string]string{"state": string(next)}
	if comments != "" {
		newValues["comments"] = comments
	}

	var out Item
	err = utils.WithTx(ctx, s.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		persisted, err := updateItem(ctx, tx, it, loaded)
		if err != nil {
			return err
		}
		out = persisted
		return s.recorder.Record(ctx, tx, audit.ActionWorkflowTransitioned, entityTypeItem, it.ID,
			fmt.Sprintf("Workflow transitioned: %s -> %s", oldState, next),
			actor, oldValues, newValues)
	})
	if err != nil {
		return Item{}, err
	}
	return out, nil
}

// AllowedActions reports what the actor's role may do with the item in its
// current state, off the same permission entries the transition check uses.
func (s *Service) AllowedActions(ctx context.Context, actor audit.Actor, id string) ([]Action, error) {
	it, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	return s.engine().AllowedActions(&it, actor.Role), nil
}

// Delete removes an item. The delete and its terminal audit record commit
// together; an item never disappears without one.
func (s *Service) Delete(ctx context.Context, actor audit.Actor, id string) error {
	if id == "" || actor.ID == "" {
		return ErrInvalidArgument
	}

	return utils.WithTx(ctx, s.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		// Lock the row so the terminal snapshot is exact even under
		// concurrent transitions.
		it, err := lockItem(ctx, tx, id)
		if err != nil {
			return err
		}
		final := map[string]string{
			"title": it.Title,
			"state": string(it.State),
		}
		if err := deleteItem(ctx, tx, id); err != nil {
			return err
		}
		return s.recorder.Record(ctx, tx, audit.ActionWorkflowDeleted, entityTypeItem, id,
			"Workflow deleted", actor, final, nil)
	})
}

// MigrateRole renames a stored role across the seeded rules and swaps in a
// rebuilt snapshot before returning. Invalidation is synchronous with the
// migration: once this returns, no request can authorize against the old
// name. The (from, action) -> target mapping is untouched.
func (s *Service) MigrateRole(ctx context.Context, actor audit.Actor, from string, to rbac.Role) (int64, error) {
	if from == "" {
		return 0, ErrInvalidArgument
	}
	if !to.Valid() {
		return 0, fmt.Errorf("workflow: %q is not a canonical role: %w", to, ErrInvalidArgument)
	}

	var updated int64
	err := utils.WithTx(ctx, s.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		n, err := renameRuleRole(ctx, tx, from, to)
		if err != nil {
			return err
		}
		updated = n
		return s.recorder.Record(ctx, tx, audit.ActionRoleMigrated, entityTypeRules, "",
			fmt.Sprintf("Role renamed in %d transition rules", n), actor,
			map[string]string{"role": from},
			map[string]string{"role": string(to)})
	})
	if err != nil {
		return 0, err
	}
	if err := s.rules.Reload(ctx); err != nil {
		return updated, err
	}
	return updated, nil
}

// TriggerRequest is an integration-originated workflow trigger (external
// schedulers, analytics services). An empty Action acknowledges without a
// state change and without an audit record.
type TriggerRequest struct {
	Source   string `json:"source"`
	Action   string `json:"action,omitempty"`
	Comments string `json:"comments,omitempty"`
}

func (s *Service) Trigger(ctx context.Context, actor audit.Actor, id string, req TriggerRequest) (Item, bool, error) {
	if req.Action == "" {
		it, err := s.Get(ctx, actor, id)
		return it, false, err
	}
	action, err := ParseAction(req.Action)
	if err != nil {
		return Item{}, false, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	it, err := s.Transition(ctx, actor, id, action, req.Comments)
	if err != nil {
		return Item{}, false, err
	}
	return it, true, nil
}

const (
	entityTypeItem  = "WorkflowItem"
	entityTypeRules = "WorkflowTransition"
)

func clampLimit(limit int) int {
	if limit <= 0 || limit > 200 {
		return 50
	}
	return limit
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
