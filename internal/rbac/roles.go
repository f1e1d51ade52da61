package rbac

import (
	"fmt"
	"strings"
)

// Role is a closed actor category used for authorization lookups.
// Values are canonical upper-case; parse at the boundary, compare by value
// everywhere else. Keep these stable; they are part of auth/RBAC contracts.
type Role string

const (
	RoleAdmin    Role = "ADMIN"
	RoleManager  Role = "MANAGER"
	RoleReviewer Role = "REVIEWER"
	RoleViewer   Role = "VIEWER"
)

// ParseRole maps a raw role claim to its canonical value.
// Matching is case-insensitive; unknown names are rejected.
func ParseRole(s string) (Role, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case string(RoleAdmin):
		return RoleAdmin, nil
	case string(RoleManager):
		return RoleManager, nil
	case string(RoleReviewer):
		return RoleReviewer, nil
	case string(RoleViewer):
		return RoleViewer, nil
	default:
		return "", fmt.Errorf("rbac: unknown role %q", s)
	}
}

func (r Role) String() string { return string(r) }

// Valid reports whether r is one of the canonical roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleManager, RoleReviewer, RoleViewer:
		return true
	default:
		return false
	}
}
