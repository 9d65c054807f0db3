package domain

import "time"

// TokenType differentiates the purposes a signed token can serve.
type TokenType string

const (
	TokenTypeAccess        TokenType = "access"
	TokenTypeRefresh       TokenType = "refresh"
	TokenTypePasswordReset TokenType = "password_reset"
)

// TokenPair is the credential set handed to a client after authentication.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// OTPFlowState names the outcome of a phone verification step.
type OTPFlowState string

const (
	OTPStateAwaitingVerification OTPFlowState = "awaiting_verification"
	OTPStateRegistrationRequired OTPFlowState = "registration_required"
	OTPStateAuthenticated        OTPFlowState = "authenticated"
)

// PasswordReset records an issued reset token so that it can be redeemed once.
type PasswordReset struct {
	ID        string
	AccountID string
	TokenID   string
	ExpiresAt time.Time
	UsedAt    *time.Time
	CreatedAt time.Time
}
