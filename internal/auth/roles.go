package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/fieldops/auth-service/internal/domain"
	apperrors "github.com/fieldops/auth-service/pkg/util"
)

// RequireRole passes when the principal's role is one of allowed.
// A nil principal is Unauthorized, never Forbidden.
func RequireRole(principal *Principal, allowed ...domain.Role) error {
	if principal == nil {
		return apperrors.NewUnauthorized("authentication required")
	}
	if hasRole(principal.Role, allowed) {
		return nil
	}
	return apperrors.NewForbidden("insufficient role")
}

// RequireSelfOrRole passes when the principal owns the resource or holds a privileged role.
func RequireSelfOrRole(principal *Principal, ownerID string, privileged ...domain.Role) error {
	if principal == nil {
		return apperrors.NewUnauthorized("authentication required")
	}
	if ownerID != "" && principal.AccountID == ownerID {
		return nil
	}
	if hasRole(principal.Role, privileged) {
		return nil
	}
	return apperrors.NewForbidden("access to this resource is not allowed")
}

// RoleGuard is the fiber form of RequireRole.
func RoleGuard(allowed ...domain.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, _ := PrincipalFromContext(c)
		if err := RequireRole(principal, allowed...); err != nil {
			return err
		}
		return c.Next()
	}
}

// SelfOrRoleGuard is the fiber form of RequireSelfOrRole; the owner id comes from the named route param.
func SelfOrRoleGuard(param string, privileged ...domain.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, _ := PrincipalFromContext(c)
		if err := RequireSelfOrRole(principal, c.Params(param), privileged...); err != nil {
			return err
		}
		return c.Next()
	}
}

// RequireAuthenticated ensures a principal is present.
func RequireAuthenticated() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if _, ok := PrincipalFromContext(c); !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		return c.Next()
	}
}

func hasRole(role domain.Role, allowed []domain.Role) bool {
	for _, candidate := range allowed {
		if candidate == role {
			return true
		}
	}
	return false
}
