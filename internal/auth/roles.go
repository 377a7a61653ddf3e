package auth

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"

	apperrors "github.com/spec-kit/itsm-triage/pkg/util"
)

// Role grants access to parts of the triage API.
type Role string

const (
	// RoleOperator may submit tickets for triage.
	RoleOperator Role = "operator"
	// RoleAuditor may read metrics only.
	RoleAuditor Role = "auditor"
)

// ParseRole accepts a role name in any case.
func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleOperator, RoleAuditor:
		return r, nil
	default:
		return "", fmt.Errorf("unknown role %q (want %s or %s)", s, RoleOperator, RoleAuditor)
	}
}

// RequireRole ensures the principal holds one of the allowed roles. With no
// roles given any authenticated principal passes.
func RequireRole(allowed ...Role) fiber.Handler {
	allowedSet := make(map[Role]struct{}, len(allowed))
	for _, role := range allowed {
		allowedSet[role] = struct{}{}
	}

	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		if len(allowedSet) == 0 {
			return c.Next()
		}
		if _, exists := allowedSet[principal.Role]; !exists {
			return apperrors.NewForbidden("insufficient role")
		}
		return c.Next()
	}
}
