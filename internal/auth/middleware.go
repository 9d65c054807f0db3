package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/fieldops/auth-service/internal/domain"
	apperrors "github.com/fieldops/auth-service/pkg/util"
)

const principalKey = "auth_principal"

// Principal represents the authenticated caller as asserted by a verified access token.
type Principal struct {
	AccountID string
	Role      domain.Role
}

// AccessVerifier is the subset of TokenManager the middleware needs.
type AccessVerifier interface {
	VerifyAccess(token string) (*AccessClaims, error)
}

// AuthMiddleware validates bearer tokens and stores the principal on the request.
type AuthMiddleware struct {
	tokens AccessVerifier
}

// NewAuthMiddleware constructs middleware.
func NewAuthMiddleware(tokens AccessVerifier) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens}
}

// Handle enforces authentication for protected routes.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	authHeader := c.Get(fiber.HeaderAuthorization)
	if authHeader == "" {
		return apperrors.NewUnauthorized("missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return apperrors.NewUnauthorized("invalid authorization header")
	}

	claims, err := m.tokens.VerifyAccess(strings.TrimSpace(parts[1]))
	if err != nil {
		return apperrors.NewUnauthorized("invalid or expired token")
	}

	c.Locals(principalKey, &Principal{AccountID: claims.Subject, Role: claims.Role})
	return c.Next()
}

// PrincipalFromContext retrieves the authenticated entity.
func PrincipalFromContext(c *fiber.Ctx) (*Principal, bool) {
	val := c.Locals(principalKey)
	if val == nil {
		return nil, false
	}
	principal, ok := val.(*Principal)
	return principal, ok && principal != nil
}
