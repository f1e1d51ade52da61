package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"ops-platform/internal/audit"
	"ops-platform/internal/auth"
	"ops-platform/internal/rbac"
	"ops-platform/internal/workflow"
	"ops-platform/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Auth     *auth.Manager
	Workflow *workflow.Service
	Audit    *audit.PostgresRepo
}

// currentActor resolves the authenticated identity from the request context.
func currentActor(c *gin.Context) (audit.Actor, bool) {
	userID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "identity required"})
		return audit.Actor{}, false
	}
	username, _ := auth.Username(c.Request.Context())
	role, err := rbac.FromContext(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "role required"})
		return audit.Actor{}, false
	}
	return audit.Actor{ID: userID, Username: username, Role: role}, true
}

// writeWorkflowError maps service errors to HTTP responses. The three engine
// failure kinds stay distinguishable via the code field since they call for
// different client remediations.
func writeWorkflowError(c *gin.Context, err error) {
	var forbidden *workflow.ForbiddenError
	var invalid *workflow.InvalidTransitionError
	var violation *workflow.RuleViolationError

	switch {
	case errors.As(err, &forbidden):
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": err.Error(), "code": "forbidden"})
	case errors.As(err, &invalid):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "invalid_transition"})
	case errors.As(err, &violation):
		// The seeded table disagrees with the state graph. Louder than
		// ordinary user error: this is a configuration defect.
		logger.FromGin(c).Error("transition rule violates state graph",
			"state", violation.State, "action", violation.Action, "target", violation.Target)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "rule_violation"})
	case errors.Is(err, workflow.ErrAccessDenied):
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden", "code": "forbidden"})
	case errors.Is(err, workflow.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "workflow not found", "code": "not_found"})
	case errors.Is(err, workflow.ErrVersionConflict):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "workflow was modified concurrently, retry", "code": "version_conflict"})
	case errors.Is(err, workflow.ErrItemLocked):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "another transition is in progress, retry", "code": "item_locked"})
	case errors.Is(err, workflow.ErrInvalidArgument):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "invalid_argument"})
	default:
		logger.FromGin(c).Error("workflow operation failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

/* ----- auth ----- */

type loginRequest struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// Login issues a JWT token pair.
//
// NOTE: credential verification is delegated to the upstream identity
// provider; this endpoint only mints tokens for an already-vetted identity.
func (h Handlers) Login(c *gin.Context) {
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.UserID == "" || req.Username == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user_id and username required"})
		return
	}
	role, err := rbac.ParseRole(req.Role)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unknown role"})
		return
	}
	pair, err := h.Auth.IssuePair(time.Now(), req.UserID, req.Username, string(role))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": pair.AccessToken, "refresh_token": pair.RefreshToken})
}

/* ----- workflows ----- */

func (h Handlers) CreateWorkflow(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var req workflow.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	it, err := h.Workflow.Create(c.Request.Context(), actor, req)
	if err != nil {
		writeWorkflowError(c, err)
		return
	}
	c.JSON(http.StatusCreated, it)
}

func (h Handlers) GetWorkflow(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	it, err := h.Workflow.Get(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		writeWorkflowError(c, err)
		return
	}
	c.JSON(http.StatusOK, it)
}

func (h Handlers) ListWorkflows(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	limit, offset := pagination(c)
	items, err := h.Workflow.List(c.Request.Context(), actor, limit, offset)
	if err != nil {
		writeWorkflowError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "limit": limit, "offset": offset})
}

func (h Handlers) SearchWorkflows(c *gin.Context) {
	if _, ok := currentActor(c); !ok {
		return
	}
	var f workflow.ItemFilter
	if v := c.Query("state"); v != "" {
		state, err := workflow.ParseState(v)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unknown state"})
			return
		}
		f.State = state
	}
	f.Search = c.Query("search")
	f.AssignedTo = c.Query("assigned_to")
	var err error
	if f.From, err = parseTime(c.Query("from")); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid from timestamp"})
		return
	}
	if f.To, err = parseTime(c.Query("to")); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid to timestamp"})
		return
	}

	limit, offset := pagination(c)
	items, err := h.Workflow.Search(c.Request.Context(), f, limit, offset)
	if err != nil {
		writeWorkflowError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "limit": limit, "offset": offset})
}

func (h Handlers) UpdateWorkflow(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var req workflow.UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	it, err := h.Workflow.Update(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		writeWorkflowError(c, err)
		return
	}
	c.JSON(http.StatusOK, it)
}

type transitionRequest struct {
	Action   string `json:"action"`
	Comments string `json:"comments,omitempty"`
}

func (h Handlers) TransitionWorkflow(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var req transitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	action, err := workflow.ParseAction(req.Action)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unknown action"})
		return
	}
	it, err := h.Workflow.Transition(c.Request.Context(), actor, c.Param("id"), action, req.Comments)
	if err != nil {
		writeWorkflowError(c, err)
		return
	}
	c.JSON(http.StatusOK, it)
}

func (h Handlers) DeleteWorkflow(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	if err := h.Workflow.Delete(c.Request.Context(), actor, c.Param("id")); err != nil {
		writeWorkflowError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func (h Handlers) AllowedActions(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	actions, err := h.Workflow.AllowedActions(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		writeWorkflowError(c, err)
		return
	}
	if actions == nil {
		actions = []workflow.Action{}
	}
	c.JSON(http.StatusOK, gin.H{"actions": actions})
}

func (h Handlers) TriggerWorkflow(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var req workflow.TriggerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	it, transitioned, err := h.Workflow.Trigger(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		writeWorkflowError(c, err)
		return
	}
	msg := "workflow trigger acknowledged"
	if transitioned {
		msg = "workflow transitioned"
	}
	c.JSON(http.StatusOK, gin.H{"status": "SUCCESS", "message": msg, "item": it})
}

/* ----- admin ----- */

type roleRenameRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// MigrateRoleRename rewrites a legacy role name across the stored transition
// rules. Admin-only; the in-memory tables are swapped before this returns.
func (h Handlers) MigrateRoleRename(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var req roleRenameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	to, err := rbac.ParseRole(req.To)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "target must be a canonical role"})
		return
	}
	n, err := h.Workflow.MigrateRole(c.Request.Context(), actor, req.From, to)
	if err != nil {
		writeWorkflowError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated_rules": n})
}

/* ----- audit ----- */

func (h Handlers) SearchAudit(c *gin.Context) {
	if h.Audit == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "audit not configured"})
		return
	}
	var f audit.Filter
	f.Action = audit.Action(c.Query("action"))
	f.EntityType = c.Query("entity_type")
	f.EntityID = c.Query("entity_id")
	f.ActorID = c.Query("actor_id")
	f.CorrelationID = c.Query("correlation_id")
	var err error
	if f.From, err = parseTime(c.Query("from")); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid from timestamp"})
		return
	}
	if f.To, err = parseTime(c.Query("to")); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid to timestamp"})
		return
	}

	limit, offset := pagination(c)
	recs, err := h.Audit.Search(c.Request.Context(), f, limit, offset)
	if err != nil {
		logger.FromGin(c).Error("audit search failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": recs, "limit": limit, "offset": offset})
}

func (h Handlers) AuditByEntity(c *gin.Context) {
	if h.Audit == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "audit not configured"})
		return
	}
	limit, offset := pagination(c)
	recs, err := h.Audit.ListByEntity(c.Request.Context(), c.Param("entity_type"), c.Param("entity_id"), limit, offset)
	if err != nil {
		logger.FromGin(c).Error("audit entity listing failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": recs, "limit": limit, "offset": offset})
}

/* ----- helpers ----- */

func pagination(c *gin.Context) (limit, offset int) {
	limit = 50
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}
	if v := c.Query("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}

func parseTime(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, v)
}
