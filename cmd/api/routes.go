package main

import (
	"ops-platform/internal/httpapi"
	"ops-platform/internal/rbac"

	"github.com/gin-gonic/gin"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, h httpapi.Handlers, authMW gin.HandlerFunc) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	v1 := r.Group("/v1")

	// AUTH routes (token issuance).
	v1.POST("/auth/login", h.Login)

	// protected API group
	api := v1.Group("")
	api.Use(authMW)
	{
		workflows := api.Group("/workflows")
		{
			workflows.POST("",
				rbac.RequireAnyRole(rbac.RoleAdmin, rbac.RoleManager), h.CreateWorkflow)
			workflows.GET("",
				rbac.RequireAnyRole(rbac.RoleAdmin, rbac.RoleManager, rbac.RoleReviewer, rbac.RoleViewer), h.ListWorkflows)
			workflows.GET("/search",
				rbac.RequireAnyRole(rbac.RoleAdmin, rbac.RoleManager, rbac.RoleReviewer), h.SearchWorkflows)
			workflows.GET("/:id",
				rbac.RequireAnyRole(rbac.RoleAdmin, rbac.RoleManager, rbac.RoleReviewer, rbac.RoleViewer), h.GetWorkflow)
			workflows.PUT("/:id",
				rbac.RequireAnyRole(rbac.RoleAdmin, rbac.RoleManager), h.UpdateWorkflow)
			workflows.DELETE("/:id",
				rbac.RequireAnyRole(rbac.RoleAdmin), h.DeleteWorkflow)

			// Transition access is enforced again per-rule by the engine;
			// the route guard only trims roles that hold no grant at all.
			workflows.POST("/:id/transition",
				rbac.RequireAnyRole(rbac.RoleAdmin, rbac.RoleManager, rbac.RoleReviewer, rbac.RoleViewer), h.TransitionWorkflow)
			workflows.GET("/:id/actions",
				rbac.RequireAnyRole(rbac.RoleAdmin, rbac.RoleManager, rbac.RoleReviewer, rbac.RoleViewer), h.AllowedActions)
			workflows.POST("/:id/trigger",
				rbac.RequireAnyRole(rbac.RoleAdmin, rbac.RoleManager, rbac.RoleReviewer, rbac.RoleViewer), h.TriggerWorkflow)
		}

		auditGroup := api.Group("/audit")
		{
			auditGroup.GET("",
				rbac.RequireAnyRole(rbac.RoleAdmin, rbac.RoleManager, rbac.RoleReviewer), h.SearchAudit)
			auditGroup.GET("/entity/:entity_type/:entity_id",
				rbac.RequireAnyRole(rbac.RoleAdmin, rbac.RoleReviewer), h.AuditByEntity)
		}

		admin := api.Group("/admin")
		admin.Use(rbac.RequireAnyRole(rbac.RoleAdmin))
		{
			admin.POST("/migrations/role-rename", h.MigrateRoleRename)
		}
	}
}
