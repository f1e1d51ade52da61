package rbac

import (
	"context"
	"net/http"

	"ops-platform/internal/auth"

	"github.com/gin-gonic/gin"
)

// FromContext resolves the caller's canonical role from the request identity.
// Unknown or missing role claims are an authorization failure, not a parse
// detail handlers should deal with individually.
func FromContext(ctx context.Context) (Role, error) {
	raw, err := auth.Role(ctx)
	if err != nil {
		return "", err
	}
	return ParseRole(raw)
}

// RequireAnyRole allows access if the caller holds any of the provided roles.
// The role claim is parsed to its canonical value first, so token casing
// never influences the outcome.
func RequireAnyRole(allowed ...Role) gin.HandlerFunc {
	allowedSet := make(map[Role]struct{}, len(allowed))
	for _, r := range allowed {
		allowedSet[r] = struct{}{}
	}

	return func(c *gin.Context) {
		role, err := FromContext(c.Request.Context())
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "role required"})
			return
		}
		if _, ok := allowedSet[role]; !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}
