package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fieldops/auth-service/internal/auth"
	"github.com/fieldops/auth-service/internal/config"
	"github.com/fieldops/auth-service/internal/domain"
	"github.com/fieldops/auth-service/internal/events"
	"github.com/fieldops/auth-service/internal/notification"
	"github.com/fieldops/auth-service/internal/observability"
	"github.com/fieldops/auth-service/internal/otp"
	"github.com/fieldops/auth-service/internal/repository"
	apperrors "github.com/fieldops/auth-service/pkg/util"
)

// Client-facing messages that must not vary with the cause of failure.
const (
	MsgInvalidCredentials  = "invalid email or password"
	MsgInvalidOTP          = "invalid or expired code"
	MsgInvalidRefreshToken = "invalid or expired refresh token"
	MsgInvalidResetToken   = "invalid or expired reset token"
	MsgForgotPassword      = "if an account exists for that email, a reset link has been sent"
)

// AuthService coordinates registration, sign-in and credential maintenance flows.
type AuthService struct {
	accounts   repository.AccountRepository
	resets     repository.PasswordResetRepository
	ledger     otp.Ledger
	sms        notification.SMSSender
	dispatcher events.Dispatcher
	tokenMgr   *auth.TokenManager
	hasher     *auth.Hasher
	otpTTL     time.Duration
	logger     *zap.Logger
	now        func() time.Time
}

// AuthDependencies encapsulates collaborators for the auth service.
type AuthDependencies struct {
	AccountRepo       repository.AccountRepository
	PasswordResetRepo repository.PasswordResetRepository
	Ledger            otp.Ledger
	SMS               notification.SMSSender
	Dispatcher        events.Dispatcher
	Logger            *zap.Logger
}

// NewAuthService builds the service.
func NewAuthService(cfg config.Config, deps AuthDependencies) *AuthService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	dispatcher := deps.Dispatcher
	if dispatcher == nil {
		dispatcher = events.NewInMemoryDispatcher()
	}
	return &AuthService{
		accounts:   deps.AccountRepo,
		resets:     deps.PasswordResetRepo,
		ledger:     deps.Ledger,
		sms:        deps.SMS,
		dispatcher: dispatcher,
		tokenMgr: auth.NewTokenManager(auth.TokenConfig{
			AccessSecret:  cfg.Auth.JWTSecret,
			RefreshSecret: cfg.Auth.RefreshSecret,
			ResetSecret:   cfg.Auth.ResetSecret,
			Issuer:        cfg.Auth.Issuer,
			AccessTTL:     cfg.Auth.AccessTTL(),
			RefreshTTL:    cfg.Auth.RefreshTTL(),
			ResetTTL:      cfg.Auth.ResetTTL(),
		}),
		hasher: auth.NewHasher(cfg.Auth.BcryptCost),
		otpTTL: cfg.OTP.TTL(),
		logger: logger,
		now:    time.Now,
	}
}

// AuthResult is returned by every flow that ends authenticated.
type AuthResult struct {
	Account *domain.Account
	Tokens  domain.TokenPair
}

// OTPResult is the outcome of a successful phone verification.
// Tokens is nil when State is OTPStateRegistrationRequired.
type OTPResult struct {
	State   domain.OTPFlowState
	Account *domain.Account
	Tokens  *domain.TokenPair
}

// RegisterInput carries the email registration form.
type RegisterInput struct {
	Email    string
	Password string
	FullName string
	RoleID   string
}

// Register creates an email account and signs it in.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	fields := map[string]string{}
	email, ok := normalizeEmail(in.Email)
	if !ok {
		fields["email"] = "must be a valid email address"
	}
	if err := auth.ValidatePassword(in.Password); err != nil {
		fields["password"] = err.Error()
	}
	fullName := strings.TrimSpace(in.FullName)
	if fullName == "" {
		fields["full_name"] = "is required"
	}
	if len(fields) > 0 {
		return nil, apperrors.NewValidationError("invalid registration", fields)
	}

	if _, err := s.accounts.FindByEmail(ctx, email); err == nil {
		return nil, apperrors.NewConflict("email already registered", nil)
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NewInternalError(fmt.Errorf("register: lookup email: %w", err))
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, apperrors.NewInternalError(fmt.Errorf("register: hash password: %w", err))
	}

	account := &domain.Account{
		Email:        &email,
		FullName:     fullName,
		PasswordHash: hash,
		Role:         s.resolveRole(in.RoleID),
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, apperrors.NewConflict("email already registered", nil)
		}
		return nil, apperrors.NewInternalError(fmt.Errorf("register: create account: %w", err))
	}

	s.publish(ctx, events.EventAccountRegistered, account.ID, events.AccountRegisteredPayload{Role: account.Role, Channel: "email"})
	s.logger.Info("account registered",
		zap.String("account_id", account.ID),
		zap.String("email", observability.RedactEmail(email)),
		zap.String("role", string(account.Role)))

	return s.authenticated(account)
}

// Login authenticates with email and password. Unknown emails and wrong passwords are indistinguishable.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	normalized, ok := normalizeEmail(email)
	if !ok || password == "" {
		s.hasher.CompareDummy(password)
		return nil, apperrors.NewUnauthorized(MsgInvalidCredentials)
	}

	account, err := s.accounts.FindByEmail(ctx, normalized)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.hasher.CompareDummy(password)
			return nil, apperrors.NewUnauthorized(MsgInvalidCredentials)
		}
		return nil, apperrors.NewInternalError(fmt.Errorf("login: lookup email: %w", err))
	}

	if err := s.hasher.Compare(account.PasswordHash, password); err != nil {
		if !errors.Is(err, auth.ErrPasswordMismatch) {
			s.logger.Warn("password comparison failed", zap.String("account_id", account.ID), zap.Error(err))
		}
		return nil, apperrors.NewUnauthorized(MsgInvalidCredentials)
	}

	return s.authenticated(account)
}

// SendOTP issues a code for phone and dispatches it by SMS.
func (s *AuthService) SendOTP(ctx context.Context, phone string) (time.Duration, error) {
	normalized, ok := normalizePhone(phone)
	if !ok {
		return 0, apperrors.NewValidationError("invalid phone", map[string]string{"phone": "must be a valid phone number"})
	}

	code, err := s.ledger.Issue(ctx, normalized)
	if err != nil {
		return 0, apperrors.NewServiceUnavailable("verification service unavailable", err)
	}

	message := fmt.Sprintf("Your verification code is %s. It expires in %d minutes.", code, int(s.otpTTL.Minutes()))
	if err := s.sms.Send(ctx, normalized, message); err != nil {
		s.logger.Error("sms dispatch failed", zap.String("phone", observability.RedactPhone(normalized)), zap.Error(err))
		return 0, apperrors.NewServiceUnavailable("unable to send verification code", err)
	}

	s.logger.Info("otp sent", zap.String("phone", observability.RedactPhone(normalized)))
	return s.otpTTL, nil
}

// VerifyOTP redeems a code and either signs the phone's account in, creates it, or asks for a name.
// The code is consumed on any successful verification, including when registration is still required.
func (s *AuthService) VerifyOTP(ctx context.Context, phone, code, fullName string) (*OTPResult, error) {
	normalized, ok := normalizePhone(phone)
	fields := map[string]string{}
	if !ok {
		fields["phone"] = "must be a valid phone number"
	}
	code = strings.TrimSpace(code)
	if code == "" {
		fields["code"] = "is required"
	}
	if len(fields) > 0 {
		return nil, apperrors.NewValidationError("invalid verification request", fields)
	}

	if err := s.redeemOTP(ctx, normalized, code); err != nil {
		return nil, err
	}

	account, err := s.accounts.FindByPhone(ctx, normalized)
	switch {
	case err == nil:
		return s.otpAuthenticated(account)
	case !errors.Is(err, repository.ErrNotFound):
		return nil, apperrors.NewInternalError(fmt.Errorf("verify otp: lookup phone: %w", err))
	}

	fullName = strings.TrimSpace(fullName)
	if fullName == "" {
		return &OTPResult{State: domain.OTPStateRegistrationRequired}, nil
	}

	placeholder, err := s.hasher.UnusableHash()
	if err != nil {
		return nil, apperrors.NewInternalError(fmt.Errorf("verify otp: placeholder password: %w", err))
	}
	account = &domain.Account{
		Phone:        &normalized,
		FullName:     fullName,
		PasswordHash: placeholder,
		Role:         domain.DefaultRole,
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		if !errors.Is(err, repository.ErrConflict) {
			return nil, apperrors.NewInternalError(fmt.Errorf("verify otp: create account: %w", err))
		}
		// Another request created the account for this phone in the meantime.
		existing, findErr := s.accounts.FindByPhone(ctx, normalized)
		if findErr != nil {
			return nil, apperrors.NewConflict("phone already registered", nil)
		}
		return s.otpAuthenticated(existing)
	}

	s.publish(ctx, events.EventAccountRegistered, account.ID, events.AccountRegisteredPayload{Role: account.Role, Channel: "phone"})
	s.logger.Info("account registered",
		zap.String("account_id", account.ID),
		zap.String("phone", observability.RedactPhone(normalized)))

	return s.otpAuthenticated(account)
}

// Refresh exchanges a refresh token for a new pair carrying the account's current role.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*AuthResult, error) {
	claims, err := s.tokenMgr.VerifyRefresh(strings.TrimSpace(refreshToken))
	if err != nil {
		return nil, apperrors.NewUnauthorized(MsgInvalidRefreshToken)
	}

	account, err := s.accounts.FindByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewUnauthorized(MsgInvalidRefreshToken)
		}
		return nil, apperrors.NewInternalError(fmt.Errorf("refresh: lookup account: %w", err))
	}

	return s.authenticated(account)
}

// Me loads the account behind an access token.
func (s *AuthService) Me(ctx context.Context, accountID string) (*domain.Account, error) {
	account, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewUnauthorized("account no longer exists")
		}
		return nil, apperrors.NewInternalError(fmt.Errorf("me: lookup account: %w", err))
	}
	return account, nil
}

// ChangePassword verifies the current password before storing the new hash.
func (s *AuthService) ChangePassword(ctx context.Context, accountID, currentPassword, newPassword string) error {
	account, err := s.Me(ctx, accountID)
	if err != nil {
		return err
	}

	if err := s.hasher.Compare(account.PasswordHash, currentPassword); err != nil {
		return apperrors.NewUnauthorized("current password is incorrect")
	}
	if newPassword == currentPassword {
		return apperrors.NewValidationError("invalid new password", map[string]string{"new_password": "must differ from the current password"})
	}
	if err := auth.ValidatePassword(newPassword); err != nil {
		return apperrors.NewValidationError("invalid new password", map[string]string{"new_password": err.Error()})
	}

	if err := s.setPassword(ctx, account, newPassword); err != nil {
		return err
	}
	s.publish(ctx, events.EventPasswordChanged, account.ID, events.PasswordChangedPayload{Email: account.EmailValue()})
	return nil
}

// ForgotPassword answers identically whether or not the email is registered.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) (string, error) {
	normalized, ok := normalizeEmail(email)
	if !ok {
		return "", apperrors.NewValidationError("invalid email", map[string]string{"email": "must be a valid email address"})
	}

	account, err := s.accounts.FindByEmail(ctx, normalized)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			s.logger.Error("forgot password lookup failed", zap.Error(err))
		}
		return MsgForgotPassword, nil
	}

	if err := s.issueReset(ctx, account, normalized); err != nil {
		s.logger.Error("password reset issue failed", zap.String("account_id", account.ID), zap.Error(err))
	}
	return MsgForgotPassword, nil
}

// ResetPassword redeems a reset token once and stores the new password.
func (s *AuthService) ResetPassword(ctx context.Context, token, newPassword string) error {
	if err := auth.ValidatePassword(newPassword); err != nil {
		return apperrors.NewValidationError("invalid new password", map[string]string{"new_password": err.Error()})
	}

	claims, err := s.tokenMgr.VerifyReset(strings.TrimSpace(token))
	if err != nil {
		return apperrors.NewUnauthorized(MsgInvalidResetToken)
	}

	reset, err := s.resets.MarkUsed(ctx, claims.ID, s.now())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.NewUnauthorized(MsgInvalidResetToken)
		}
		return apperrors.NewInternalError(fmt.Errorf("reset password: redeem token: %w", err))
	}
	if reset.AccountID != claims.Subject {
		return apperrors.NewUnauthorized(MsgInvalidResetToken)
	}

	account, err := s.accounts.FindByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.NewUnauthorized(MsgInvalidResetToken)
		}
		return apperrors.NewInternalError(fmt.Errorf("reset password: lookup account: %w", err))
	}

	if err := s.setPassword(ctx, account, newPassword); err != nil {
		return err
	}
	s.publish(ctx, events.EventPasswordChanged, account.ID, events.PasswordChangedPayload{Email: account.EmailValue(), Reset: true})
	return nil
}

// LinkPhone attaches a verified phone to an existing account.
func (s *AuthService) LinkPhone(ctx context.Context, accountID, phone, code string) (*domain.Account, error) {
	normalized, ok := normalizePhone(phone)
	fields := map[string]string{}
	if !ok {
		fields["phone"] = "must be a valid phone number"
	}
	code = strings.TrimSpace(code)
	if code == "" {
		fields["code"] = "is required"
	}
	if len(fields) > 0 {
		return nil, apperrors.NewValidationError("invalid link request", fields)
	}

	account, err := s.Me(ctx, accountID)
	if err != nil {
		return nil, err
	}

	if err := s.redeemOTP(ctx, normalized, code); err != nil {
		return nil, err
	}

	owner, err := s.accounts.FindByPhone(ctx, normalized)
	switch {
	case err == nil && owner.ID != account.ID:
		return nil, apperrors.NewConflict("phone already linked to another account", nil)
	case err == nil:
		return account, nil
	case !errors.Is(err, repository.ErrNotFound):
		return nil, apperrors.NewInternalError(fmt.Errorf("link phone: lookup phone: %w", err))
	}

	account.Phone = &normalized
	if err := s.accounts.Save(ctx, account); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, apperrors.NewConflict("phone already linked to another account", nil)
		}
		return nil, apperrors.NewInternalError(fmt.Errorf("link phone: save account: %w", err))
	}

	s.publish(ctx, events.EventPhoneLinked, account.ID, events.PhoneLinkedPayload{Phone: observability.RedactPhone(normalized)})
	return account, nil
}

// GetAccount loads any account by id.
func (s *AuthService) GetAccount(ctx context.Context, id string) (*domain.Account, error) {
	account, err := s.accounts.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("account", map[string]any{"id": id})
		}
		return nil, apperrors.NewInternalError(fmt.Errorf("get account: %w", err))
	}
	return account, nil
}

// ListAccounts pages through accounts, optionally by role.
func (s *AuthService) ListAccounts(ctx context.Context, filter repository.AccountFilter) ([]domain.Account, error) {
	if filter.Role != nil && !filter.Role.Valid() {
		return nil, apperrors.NewValidationError("invalid filter", map[string]string{"role": "must be admin or psr"})
	}
	accounts, err := s.accounts.List(ctx, filter)
	if err != nil {
		return nil, apperrors.NewInternalError(fmt.Errorf("list accounts: %w", err))
	}
	return accounts, nil
}

// TokenManager exposes the underlying token manager for middleware usage.
func (s *AuthService) TokenManager() *auth.TokenManager {
	return s.tokenMgr
}

func (s *AuthService) resolveRole(roleID string) domain.Role {
	if strings.TrimSpace(roleID) == "" {
		return domain.DefaultRole
	}
	role, err := domain.ParseRole(roleID)
	if err != nil {
		s.logger.Warn("unknown role requested at registration; using default", zap.String("role_id", roleID))
		return domain.DefaultRole
	}
	return role
}

func (s *AuthService) redeemOTP(ctx context.Context, phone, code string) error {
	ok, err := s.ledger.Verify(ctx, phone, code)
	if err != nil {
		return apperrors.NewServiceUnavailable("verification service unavailable", err)
	}
	if !ok {
		return apperrors.NewUnauthorized(MsgInvalidOTP)
	}
	return nil
}

func (s *AuthService) authenticated(account *domain.Account) (*AuthResult, error) {
	tokens, err := s.tokenMgr.IssuePair(account)
	if err != nil {
		return nil, apperrors.NewInternalError(fmt.Errorf("issue tokens: %w", err))
	}
	return &AuthResult{Account: account, Tokens: tokens}, nil
}

func (s *AuthService) otpAuthenticated(account *domain.Account) (*OTPResult, error) {
	result, err := s.authenticated(account)
	if err != nil {
		return nil, err
	}
	return &OTPResult{State: domain.OTPStateAuthenticated, Account: result.Account, Tokens: &result.Tokens}, nil
}

func (s *AuthService) setPassword(ctx context.Context, account *domain.Account, password string) error {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return apperrors.NewInternalError(fmt.Errorf("hash password: %w", err))
	}
	account.PasswordHash = hash
	if err := s.accounts.Save(ctx, account); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.NewUnauthorized("account no longer exists")
		}
		return apperrors.NewInternalError(fmt.Errorf("save password: %w", err))
	}
	return nil
}

func (s *AuthService) issueReset(ctx context.Context, account *domain.Account, email string) error {
	token, jti, expiresAt, err := s.tokenMgr.IssueReset(account.ID)
	if err != nil {
		return fmt.Errorf("sign reset token: %w", err)
	}
	if err := s.resets.Create(ctx, &domain.PasswordReset{AccountID: account.ID, TokenID: jti, ExpiresAt: expiresAt}); err != nil {
		return fmt.Errorf("record reset token: %w", err)
	}
	return s.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      events.EventPasswordResetRequested,
		AccountID: account.ID,
		Timestamp: s.now().UTC(),
		Payload:   events.PasswordResetRequestedPayload{Email: email, Token: token, ExpiresAt: expiresAt},
	})
}

func (s *AuthService) publish(ctx context.Context, eventType events.EventType, accountID string, payload any) {
	err := s.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		AccountID: accountID,
		Timestamp: s.now().UTC(),
		Payload:   payload,
	})
	if err != nil {
		s.logger.Warn("event handler failed", zap.String("event", string(eventType)), zap.Error(err))
	}
}
