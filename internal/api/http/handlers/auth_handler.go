package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/fieldops/auth-service/internal/api/dto"
	"github.com/fieldops/auth-service/internal/auth"
	"github.com/fieldops/auth-service/internal/domain"
	"github.com/fieldops/auth-service/internal/service"
	apperrors "github.com/fieldops/auth-service/pkg/util"
)

// AuthHandler exposes the /auth endpoints.
type AuthHandler struct {
	auth *service.AuthService
}

// NewAuthHandler constructs handler.
func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{auth: authService}
}

// Register handles POST /auth/register.
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req dto.RegisterRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	res, err := h.auth.Register(c.UserContext(), service.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		FullName: req.FullName,
		RoleID:   req.RoleID,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": authResponse(res)})
}

// Login handles POST /auth/login.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	res, err := h.auth.Login(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": authResponse(res)})
}

// Refresh handles POST /auth/refresh-token.
func (h *AuthHandler) Refresh(c *fiber.Ctx) error {
	var req dto.RefreshRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if req.RefreshToken == "" {
		return apperrors.NewValidationError("refresh token required", map[string]string{"refresh_token": "is required"})
	}

	res, err := h.auth.Refresh(c.UserContext(), req.RefreshToken)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": authResponse(res)})
}

// Me handles GET /auth/me.
func (h *AuthHandler) Me(c *fiber.Ctx) error {
	principal, _ := auth.PrincipalFromContext(c)
	account, err := h.auth.Me(c.UserContext(), principal.AccountID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewAccountResponse(account)})
}

// ChangePassword handles POST /auth/change-password.
func (h *AuthHandler) ChangePassword(c *fiber.Ctx) error {
	var req dto.PasswordChangeRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	principal, _ := auth.PrincipalFromContext(c)
	if err := h.auth.ChangePassword(c.UserContext(), principal.AccountID, req.CurrentPassword, req.NewPassword); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.MessageResponse{Message: "password updated"}})
}

// ForgotPassword handles POST /auth/forgot-password.
func (h *AuthHandler) ForgotPassword(c *fiber.Ctx) error {
	var req dto.PasswordResetRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	msg, err := h.auth.ForgotPassword(c.UserContext(), req.Email)
	if err != nil {
		return err
	}
	return c.Status(http.StatusAccepted).JSON(fiber.Map{"data": dto.MessageResponse{Message: msg}})
}

// ResetPassword handles POST /auth/reset-password.
func (h *AuthHandler) ResetPassword(c *fiber.Ctx) error {
	var req dto.PasswordResetConfirmRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if req.Token == "" {
		return apperrors.NewValidationError("token required", map[string]string{"token": "is required"})
	}

	if err := h.auth.ResetPassword(c.UserContext(), req.Token, req.NewPassword); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.MessageResponse{Message: "password updated"}})
}

// SendOTP handles POST /auth/send-otp.
func (h *AuthHandler) SendOTP(c *fiber.Ctx) error {
	var req dto.SendOTPRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	ttl, err := h.auth.SendOTP(c.UserContext(), req.Phone)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.SendOTPResponse{
		State:            domain.OTPStateAwaitingVerification,
		Message:          "verification code sent",
		ExpiresInSeconds: int(ttl.Seconds()),
	}})
}

// VerifyOTP handles POST /auth/verify-otp.
func (h *AuthHandler) VerifyOTP(c *fiber.Ctx) error {
	var req dto.VerifyOTPRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	res, err := h.auth.VerifyOTP(c.UserContext(), req.Phone, req.Code, req.FullName)
	if err != nil {
		return err
	}

	out := dto.OTPVerifyResponse{State: res.State}
	if res.Account != nil {
		account := dto.NewAccountResponse(res.Account)
		out.Account = &account
	}
	if res.Tokens != nil {
		tokens := dto.NewTokenResponse(*res.Tokens)
		out.Tokens = &tokens
	}
	return c.JSON(fiber.Map{"data": out})
}

// LinkPhone handles POST /auth/link-phone.
func (h *AuthHandler) LinkPhone(c *fiber.Ctx) error {
	var req dto.LinkPhoneRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	principal, _ := auth.PrincipalFromContext(c)
	account, err := h.auth.LinkPhone(c.UserContext(), principal.AccountID, req.Phone, req.Code)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewAccountResponse(account)})
}

func authResponse(res *service.AuthResult) dto.AuthResponse {
	return dto.AuthResponse{
		Account: dto.NewAccountResponse(res.Account),
		Tokens:  dto.NewTokenResponse(res.Tokens),
	}
}

func parseBody(c *fiber.Ctx, out any) error {
	if err := c.BodyParser(out); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	return nil
}
