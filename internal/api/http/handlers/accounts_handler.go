package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/fieldops/auth-service/internal/api/dto"
	"github.com/fieldops/auth-service/internal/domain"
	"github.com/fieldops/auth-service/internal/repository"
	"github.com/fieldops/auth-service/internal/service"
	apperrors "github.com/fieldops/auth-service/pkg/util"
)

// AccountsHandler serves account lookups behind role guards.
type AccountsHandler struct {
	auth *service.AuthService
}

// NewAccountsHandler constructs handler.
func NewAccountsHandler(authService *service.AuthService) *AccountsHandler {
	return &AccountsHandler{auth: authService}
}

// Get handles GET /accounts/:id.
func (h *AccountsHandler) Get(c *fiber.Ctx) error {
	account, err := h.auth.GetAccount(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewAccountResponse(account)})
}

// List handles GET /admin/accounts?role=&limit=&offset=.
func (h *AccountsHandler) List(c *fiber.Ctx) error {
	filter := repository.AccountFilter{}
	fields := map[string]string{}

	if raw := c.Query("role"); raw != "" {
		role, err := domain.ParseRole(raw)
		if err != nil {
			fields["role"] = "must be admin or psr"
		} else {
			filter.Role = &role
		}
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > 200 {
			fields["limit"] = "must be between 1 and 200"
		}
		filter.Limit = limit
	}
	if raw := c.Query("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			fields["offset"] = "must be a non-negative integer"
		}
		filter.Offset = offset
	}
	if len(fields) > 0 {
		return apperrors.NewValidationError("invalid query", fields)
	}

	accounts, err := h.auth.ListAccounts(c.UserContext(), filter)
	if err != nil {
		return err
	}
	limit := filter.Limit
	if limit == 0 {
		limit = repository.DefaultListLimit
	}
	return c.JSON(fiber.Map{
		"data": dto.NewAccountResponses(accounts),
		"meta": fiber.Map{"count": len(accounts), "limit": limit, "offset": filter.Offset},
	})
}
