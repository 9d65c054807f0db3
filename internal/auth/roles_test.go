package auth

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/fieldops/auth-service/internal/domain"
	apperrors "github.com/fieldops/auth-service/pkg/util"
)

func TestRequireRole(t *testing.T) {
	t.Parallel()

	psr := &Principal{AccountID: "p1", Role: domain.RolePSR}
	admin := &Principal{AccountID: "a1", Role: domain.RoleAdmin}

	require.NoError(t, RequireRole(admin, domain.RoleAdmin))
	require.True(t, apperrors.IsCode(RequireRole(psr, domain.RoleAdmin), apperrors.CodeForbidden))
	require.True(t, apperrors.IsCode(RequireRole(nil, domain.RoleAdmin), apperrors.CodeUnauthorized))
	require.True(t, apperrors.IsCode(RequireRole(admin), apperrors.CodeForbidden))
}

func TestRequireSelfOrRole(t *testing.T) {
	t.Parallel()

	psr := &Principal{AccountID: "p1", Role: domain.RolePSR}
	admin := &Principal{AccountID: "a1", Role: domain.RoleAdmin}

	require.NoError(t, RequireSelfOrRole(psr, "p1", domain.RoleAdmin))
	require.NoError(t, RequireSelfOrRole(admin, "p1", domain.RoleAdmin))
	require.True(t, apperrors.IsCode(RequireSelfOrRole(psr, "p2", domain.RoleAdmin), apperrors.CodeForbidden))
	require.True(t, apperrors.IsCode(RequireSelfOrRole(psr, "", domain.RoleAdmin), apperrors.CodeForbidden))
	require.True(t, apperrors.IsCode(RequireSelfOrRole(nil, "p1", domain.RoleAdmin), apperrors.CodeUnauthorized))
}

func newGuardedApp(tm *TokenManager) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			de := apperrors.ToDomainError(err)
			return c.Status(de.HTTPStatus).SendString(de.Code)
		},
	})
	mw := NewAuthMiddleware(tm)
	app.Get("/me", mw.Handle, RequireAuthenticated(), func(c *fiber.Ctx) error {
		p, _ := PrincipalFromContext(c)
		return c.SendString(p.AccountID)
	})
	app.Get("/admin", mw.Handle, RoleGuard(domain.RoleAdmin), func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})
	app.Get("/accounts/:id", mw.Handle, SelfOrRoleGuard("id", domain.RoleAdmin), func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})
	// Guard without the middleware: no principal at all.
	app.Get("/unguarded-admin", RoleGuard(domain.RoleAdmin), func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})
	return app
}

func doGet(t *testing.T, app *fiber.App, path, bearer string) (int, string) {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodGet, path, nil)
	if bearer != "" {
		req.Header.Set(fiber.HeaderAuthorization, bearer)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestGuards_HTTP(t *testing.T) {
	t.Parallel()

	tm := NewTokenManager(TokenConfig{AccessSecret: "s", AccessTTL: time.Hour})
	app := newGuardedApp(tm)

	psrPair, err := tm.IssuePair(&domain.Account{ID: "p1", Role: domain.RolePSR})
	require.NoError(t, err)
	adminPair, err := tm.IssuePair(&domain.Account{ID: "a1", Role: domain.RoleAdmin})
	require.NoError(t, err)

	status, body := doGet(t, app, "/me", "Bearer "+psrPair.AccessToken)
	require.Equal(t, fiber.StatusOK, status)
	require.Equal(t, "p1", body)

	status, body = doGet(t, app, "/admin", "Bearer "+psrPair.AccessToken)
	require.Equal(t, fiber.StatusForbidden, status)
	require.Equal(t, apperrors.CodeForbidden, body)

	status, _ = doGet(t, app, "/admin", "bearer "+adminPair.AccessToken)
	require.Equal(t, fiber.StatusOK, status)

	status, _ = doGet(t, app, "/accounts/p1", "Bearer "+psrPair.AccessToken)
	require.Equal(t, fiber.StatusOK, status)
	status, _ = doGet(t, app, "/accounts/a1", "Bearer "+psrPair.AccessToken)
	require.Equal(t, fiber.StatusForbidden, status)
	status, _ = doGet(t, app, "/accounts/p1", "Bearer "+adminPair.AccessToken)
	require.Equal(t, fiber.StatusOK, status)

	status, _ = doGet(t, app, "/unguarded-admin", "")
	require.Equal(t, fiber.StatusUnauthorized, status)
}

func TestAuthMiddleware_RejectsMissingOrGarbledToken(t *testing.T) {
	t.Parallel()

	tm := NewTokenManager(TokenConfig{AccessSecret: "s"})
	app := newGuardedApp(tm)
	pair, err := tm.IssuePair(&domain.Account{ID: "p1", Role: domain.RolePSR})
	require.NoError(t, err)

	for _, header := range []string{"", "Bearer", "Bearer ", "Token abc", "Bearer garbage", "Bearer " + pair.RefreshToken} {
		status, body := doGet(t, app, "/admin", header)
		require.Equal(t, fiber.StatusUnauthorized, status, header)
		require.Equal(t, apperrors.CodeUnauthorized, body, header)
	}
}
