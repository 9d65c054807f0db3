package dto

import (
	"time"

	"github.com/fieldops/auth-service/internal/domain"
)

// RegisterRequest payload for email registration.
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
	RoleID   string `json:"role_id,omitempty"`
}

// LoginRequest payload.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RefreshRequest payload.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// PasswordChangeRequest payload for authenticated password changes.
type PasswordChangeRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// PasswordResetRequest payload for initiating reset.
type PasswordResetRequest struct {
	Email string `json:"email"`
}

// PasswordResetConfirmRequest payload for confirming reset.
type PasswordResetConfirmRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

// SendOTPRequest payload.
type SendOTPRequest struct {
	Phone string `json:"phone"`
}

// VerifyOTPRequest payload. FullName is only needed when the phone has no account yet.
type VerifyOTPRequest struct {
	Phone    string `json:"phone"`
	Code     string `json:"code"`
	FullName string `json:"full_name,omitempty"`
}

// LinkPhoneRequest payload.
type LinkPhoneRequest struct {
	Phone string `json:"phone"`
	Code  string `json:"code"`
}

// AccountResponse is the public view of an account.
type AccountResponse struct {
	ID        string      `json:"id"`
	Email     *string     `json:"email,omitempty"`
	Phone     *string     `json:"phone,omitempty"`
	FullName  string      `json:"full_name"`
	Role      domain.Role `json:"role"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// TokenResponse carries an issued token pair.
type TokenResponse struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	TokenType        string    `json:"token_type"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// AuthResponse standard response for auth endpoints.
type AuthResponse struct {
	Account AccountResponse `json:"account"`
	Tokens  TokenResponse   `json:"tokens"`
}

// OTPVerifyResponse reports the verification state; account and tokens are set once authenticated.
type OTPVerifyResponse struct {
	State   domain.OTPFlowState `json:"state"`
	Account *AccountResponse    `json:"account,omitempty"`
	Tokens  *TokenResponse      `json:"tokens,omitempty"`
}

// SendOTPResponse payload.
type SendOTPResponse struct {
	State            domain.OTPFlowState `json:"state"`
	Message          string              `json:"message"`
	ExpiresInSeconds int                 `json:"expires_in_seconds"`
}

// MessageResponse wraps a plain confirmation.
type MessageResponse struct {
	Message string `json:"message"`
}

// NewAccountResponse maps a domain account, dropping the password hash.
func NewAccountResponse(account *domain.Account) AccountResponse {
	return AccountResponse{
		ID:        account.ID,
		Email:     account.Email,
		Phone:     account.Phone,
		FullName:  account.FullName,
		Role:      account.Role,
		CreatedAt: account.CreatedAt,
		UpdatedAt: account.UpdatedAt,
	}
}

// NewAccountResponses maps a listing.
func NewAccountResponses(accounts []domain.Account) []AccountResponse {
	out := make([]AccountResponse, 0, len(accounts))
	for i := range accounts {
		out = append(out, NewAccountResponse(&accounts[i]))
	}
	return out
}

// NewTokenResponse maps a token pair.
func NewTokenResponse(pair domain.TokenPair) TokenResponse {
	return TokenResponse{
		AccessToken:      pair.AccessToken,
		RefreshToken:     pair.RefreshToken,
		TokenType:        "Bearer",
		AccessExpiresAt:  pair.AccessExpiresAt,
		RefreshExpiresAt: pair.RefreshExpiresAt,
	}
}
