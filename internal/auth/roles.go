package auth

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ads-users/internal/domain"
	apperrors "github.com/spec-kit/ads-users/pkg/util/errorutil"
)

// RequireRole ensures the principal has one of the allowed roles.
func RequireRole(allowed ...domain.Role) fiber.Handler {
	allowedSet := make(map[domain.Role]struct{}, len(allowed))
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

// RequireSelfOrRole lets a principal act on the user named by the route
// parameter, or on any user when holding one of the allowed roles.
func RequireSelfOrRole(param string, allowed ...domain.Role) fiber.Handler {
	byRole := RequireRole(allowed...)
	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		if id, err := strconv.ParseInt(c.Params(param), 10, 64); err == nil && id == principal.UserID {
			return c.Next()
		}
		return byRole(c)
	}
}

// RequireRoleUnchanged stops non-admin principals from writing a role other
// than their own. Bodies that are not JSON objects are left to the handler.
func RequireRoleUnchanged() fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		if principal.Role == domain.RoleAdmin {
			return c.Next()
		}
		var body struct {
			Role *string `json:"role"`
		}
		if err := c.App().Config().JSONDecoder(c.Body(), &body); err != nil || body.Role == nil {
			return c.Next()
		}
		if domain.Role(*body.Role) != principal.Role {
			return apperrors.NewForbidden("only admins may change roles")
		}
		return c.Next()
	}
}
