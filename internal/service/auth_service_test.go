package service

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/fieldops/auth-service/internal/config"
	"github.com/fieldops/auth-service/internal/domain"
	"github.com/fieldops/auth-service/internal/events"
	"github.com/fieldops/auth-service/internal/otp"
	"github.com/fieldops/auth-service/internal/repository"
	apperrors "github.com/fieldops/auth-service/pkg/util"
)

var codePattern = regexp.MustCompile(`\b\d{6}\b`)

type recordingSMS struct {
	mu   sync.Mutex
	last map[string]string
	err  error
}

func (r *recordingSMS) Send(_ context.Context, phone, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	if r.last == nil {
		r.last = make(map[string]string)
	}
	r.last[phone] = message
	return nil
}

func (r *recordingSMS) code(t *testing.T, phone string) string {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	code := codePattern.FindString(r.last[phone])
	require.NotEmpty(t, code, "no code sent to %s", phone)
	return code
}

type testEnv struct {
	svc        *AuthService
	accounts   repository.AccountRepository
	sms        *recordingSMS
	dispatcher events.Dispatcher
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cfg := config.Config{
		Auth: config.AuthConfig{
			JWTSecret:               "test-access-secret",
			RefreshSecret:           "test-refresh-secret",
			Issuer:                  "fieldops-test",
			AccessTokenTTLMinutes:   60,
			RefreshTokenTTLHours:    168,
			PasswordResetTTLMinutes: 60,
			BcryptCost:              bcrypt.MinCost,
		},
		OTP: config.OTPConfig{TTLSeconds: 300},
	}
	env := &testEnv{
		accounts:   repository.NewMemoryAccountRepository(),
		sms:        &recordingSMS{},
		dispatcher: events.NewInMemoryDispatcher(),
	}
	env.svc = NewAuthService(cfg, AuthDependencies{
		AccountRepo:       env.accounts,
		PasswordResetRepo: repository.NewMemoryPasswordResetRepository(),
		Ledger:            otp.NewMemoryLedger(cfg.OTP.TTL()),
		SMS:               env.sms,
		Dispatcher:        env.dispatcher,
	})
	return env
}

func (e *testEnv) register(t *testing.T, email, password string) *AuthResult {
	t.Helper()
	res, err := e.svc.Register(context.Background(), RegisterInput{Email: email, Password: password, FullName: "Alice Field"})
	require.NoError(t, err)
	return res
}

func requireCode(t *testing.T, err error, code string) *apperrors.DomainError {
	t.Helper()
	require.Error(t, err)
	var de *apperrors.DomainError
	require.True(t, errors.As(err, &de), "expected DomainError, got %T: %v", err, err)
	require.Equal(t, code, de.Code, de.Message)
	return de
}

func TestRegisterThenLogin(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	res := env.register(t, "  Alice@Example.com ", "password123")
	require.Equal(t, "alice@example.com", res.Account.EmailValue())
	require.Equal(t, domain.RolePSR, res.Account.Role)
	require.NotEqual(t, "password123", res.Account.PasswordHash)

	claims, err := env.svc.TokenManager().VerifyAccess(res.Tokens.AccessToken)
	require.NoError(t, err)
	require.Equal(t, res.Account.ID, claims.Subject)
	require.Equal(t, domain.RolePSR, claims.Role)

	login, err := env.svc.Login(ctx, "alice@example.com", "password123")
	require.NoError(t, err)
	require.Equal(t, res.Account.ID, login.Account.ID)

	_, err = env.svc.Login(ctx, "alice@example.com", "password124")
	wrong := requireCode(t, err, apperrors.CodeUnauthorized)

	_, err = env.svc.Login(ctx, "nobody@example.com", "password123")
	unknown := requireCode(t, err, apperrors.CodeUnauthorized)
	require.Equal(t, wrong.Message, unknown.Message)
	require.Equal(t, MsgInvalidCredentials, unknown.Message)
}

func TestRegister_Validation(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	_, err := env.svc.Register(context.Background(), RegisterInput{Email: "not-an-email", Password: "short"})
	de := requireCode(t, err, apperrors.CodeValidationFailed)
	require.Contains(t, de.Details, "email")
	require.Contains(t, de.Details, "password")
	require.Contains(t, de.Details, "full_name")
}

func TestPasswordOverBcryptLimit_IsValidationError(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()
	long := "Passw0rd" + strings.Repeat("x", 80)

	_, err := env.svc.Register(ctx, RegisterInput{Email: "long@x.com", Password: long, FullName: "Long"})
	de := requireCode(t, err, apperrors.CodeValidationFailed)
	require.Contains(t, de.Details, "password")

	res := env.register(t, "alice@example.com", "password123")
	err = env.svc.ChangePassword(ctx, res.Account.ID, "password123", long)
	de = requireCode(t, err, apperrors.CodeValidationFailed)
	require.Contains(t, de.Details, "new_password")

	tokens := captureResetTokens(env)
	_, err = env.svc.ForgotPassword(ctx, "alice@example.com")
	require.NoError(t, err)
	err = env.svc.ResetPassword(ctx, tokens()[0], long)
	requireCode(t, err, apperrors.CodeValidationFailed)

	// The token survives the rejected attempt.
	require.NoError(t, env.svc.ResetPassword(ctx, tokens()[0], "brandnew42"))
}

func TestRegister_DuplicateEmailIgnoresCase(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.register(t, "alice@example.com", "password123")

	_, err := env.svc.Register(context.Background(), RegisterInput{Email: "ALICE@example.com", Password: "password456", FullName: "Other"})
	requireCode(t, err, apperrors.CodeConflict)
}

func TestRegister_RoleSelection(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	admin, err := env.svc.Register(ctx, RegisterInput{Email: "boss@example.com", Password: "password123", FullName: "Boss", RoleID: "admin"})
	require.NoError(t, err)
	require.Equal(t, domain.RoleAdmin, admin.Account.Role)

	fallback, err := env.svc.Register(ctx, RegisterInput{Email: "x@example.com", Password: "password123", FullName: "X", RoleID: "superuser"})
	require.NoError(t, err)
	require.Equal(t, domain.DefaultRole, fallback.Account.Role)
}

func TestOTPFlow_RegistrationRequiredThenAuthenticated(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()
	const phone = "9841234567"

	ttl, err := env.svc.SendOTP(ctx, "984-123-4567")
	require.NoError(t, err)
	require.Equal(t, 5*time.Minute, ttl)
	code := env.sms.code(t, phone)

	_, err = env.svc.VerifyOTP(ctx, phone, wrongCode(code), "")
	de := requireCode(t, err, apperrors.CodeUnauthorized)
	require.Equal(t, MsgInvalidOTP, de.Message)

	res, err := env.svc.VerifyOTP(ctx, phone, code, "")
	require.NoError(t, err)
	require.Equal(t, domain.OTPStateRegistrationRequired, res.State)
	require.Nil(t, res.Tokens)
	require.Nil(t, res.Account)

	// The code was consumed even though no account exists yet.
	_, err = env.svc.VerifyOTP(ctx, phone, code, "Ram Field")
	requireCode(t, err, apperrors.CodeUnauthorized)

	_, err = env.svc.SendOTP(ctx, phone)
	require.NoError(t, err)
	res, err = env.svc.VerifyOTP(ctx, phone, env.sms.code(t, phone), "Ram Field")
	require.NoError(t, err)
	require.Equal(t, domain.OTPStateAuthenticated, res.State)
	require.NotNil(t, res.Tokens)
	require.Equal(t, phone, res.Account.PhoneValue())
	require.Equal(t, domain.DefaultRole, res.Account.Role)
	created := res.Account.ID

	_, err = env.svc.SendOTP(ctx, phone)
	require.NoError(t, err)
	res, err = env.svc.VerifyOTP(ctx, phone, env.sms.code(t, phone), "")
	require.NoError(t, err)
	require.Equal(t, domain.OTPStateAuthenticated, res.State)
	require.Equal(t, created, res.Account.ID)
}

func TestOTPAccount_CannotPasswordLogin(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.SendOTP(ctx, "9841234567")
	require.NoError(t, err)
	res, err := env.svc.VerifyOTP(ctx, "9841234567", env.sms.code(t, "9841234567"), "Ram")
	require.NoError(t, err)
	require.NotEmpty(t, res.Account.PasswordHash)
	require.Nil(t, res.Account.Email)
}

func TestSendOTP_Errors(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.SendOTP(ctx, "12")
	requireCode(t, err, apperrors.CodeValidationFailed)

	env.sms.err = errors.New("gateway down")
	_, err = env.svc.SendOTP(ctx, "9841234567")
	requireCode(t, err, apperrors.CodeServiceUnavailable)
}

func TestVerifyOTP_MissingFields(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	_, err := env.svc.VerifyOTP(context.Background(), "abc", " ", "")
	de := requireCode(t, err, apperrors.CodeValidationFailed)
	require.Contains(t, de.Details, "phone")
	require.Contains(t, de.Details, "code")
}

func TestRefresh_ReloadsCurrentRole(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	res := env.register(t, "alice@example.com", "password123")

	promoted := *res.Account
	promoted.Role = domain.RoleAdmin
	require.NoError(t, env.accounts.Save(ctx, &promoted))

	refreshed, err := env.svc.Refresh(ctx, res.Tokens.RefreshToken)
	require.NoError(t, err)
	claims, err := env.svc.TokenManager().VerifyAccess(refreshed.Tokens.AccessToken)
	require.NoError(t, err)
	require.Equal(t, domain.RoleAdmin, claims.Role)
	require.Equal(t, res.Account.ID, claims.Subject)
}

func TestRefresh_RejectsOtherTokens(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()
	res := env.register(t, "alice@example.com", "password123")

	_, err := env.svc.Refresh(ctx, res.Tokens.AccessToken)
	requireCode(t, err, apperrors.CodeUnauthorized)

	_, err = env.svc.Refresh(ctx, "garbage")
	requireCode(t, err, apperrors.CodeUnauthorized)
}

func TestMe(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	res := env.register(t, "alice@example.com", "password123")

	account, err := env.svc.Me(context.Background(), res.Account.ID)
	require.NoError(t, err)
	require.Equal(t, "Alice Field", account.FullName)

	_, err = env.svc.Me(context.Background(), "missing")
	requireCode(t, err, apperrors.CodeUnauthorized)
}

func TestChangePassword(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()
	res := env.register(t, "alice@example.com", "password123")

	var changed []events.Event
	env.dispatcher.Subscribe(events.EventPasswordChanged, func(_ context.Context, e events.Event) error {
		changed = append(changed, e)
		return nil
	})

	err := env.svc.ChangePassword(ctx, res.Account.ID, "wrong-pass1", "newpassword9")
	requireCode(t, err, apperrors.CodeUnauthorized)

	err = env.svc.ChangePassword(ctx, res.Account.ID, "password123", "weak")
	de := requireCode(t, err, apperrors.CodeValidationFailed)
	require.Contains(t, de.Details, "new_password")

	err = env.svc.ChangePassword(ctx, res.Account.ID, "password123", "password123")
	requireCode(t, err, apperrors.CodeValidationFailed)

	require.NoError(t, env.svc.ChangePassword(ctx, res.Account.ID, "password123", "newpassword9"))
	require.Len(t, changed, 1)
	require.Equal(t, res.Account.ID, changed[0].AccountID)

	_, err = env.svc.Login(ctx, "alice@example.com", "password123")
	requireCode(t, err, apperrors.CodeUnauthorized)
	_, err = env.svc.Login(ctx, "alice@example.com", "newpassword9")
	require.NoError(t, err)
}

func captureResetTokens(env *testEnv) func() []string {
	var mu sync.Mutex
	var tokens []string
	env.dispatcher.Subscribe(events.EventPasswordResetRequested, func(_ context.Context, e events.Event) error {
		mu.Lock()
		defer mu.Unlock()
		tokens = append(tokens, e.Payload.(events.PasswordResetRequestedPayload).Token)
		return nil
	})
	return func() []string {
		mu.Lock()
		defer mu.Unlock()
		return append([]string(nil), tokens...)
	}
}

func TestForgotPassword_SameAnswerForUnknownEmail(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()
	env.register(t, "alice@example.com", "password123")
	tokens := captureResetTokens(env)

	known, err := env.svc.ForgotPassword(ctx, "alice@example.com")
	require.NoError(t, err)
	unknown, err := env.svc.ForgotPassword(ctx, "nobody@example.com")
	require.NoError(t, err)
	require.Equal(t, known, unknown)
	require.Len(t, tokens(), 1)

	_, err = env.svc.ForgotPassword(ctx, "nope")
	requireCode(t, err, apperrors.CodeValidationFailed)
}

func TestForgotPassword_DeliveryFailureStaysGeneric(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.register(t, "alice@example.com", "password123")
	env.dispatcher.Subscribe(events.EventPasswordResetRequested, func(context.Context, events.Event) error {
		return errors.New("smtp down")
	})

	msg, err := env.svc.ForgotPassword(context.Background(), "alice@example.com")
	require.NoError(t, err)
	require.Equal(t, MsgForgotPassword, msg)
}

func TestResetPassword_SingleUse(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()
	res := env.register(t, "alice@example.com", "password123")
	tokens := captureResetTokens(env)

	_, err := env.svc.ForgotPassword(ctx, "alice@example.com")
	require.NoError(t, err)
	token := tokens()[0]

	// A weak password is rejected without consuming the token.
	err = env.svc.ResetPassword(ctx, token, "weak")
	requireCode(t, err, apperrors.CodeValidationFailed)

	require.NoError(t, env.svc.ResetPassword(ctx, token, "brandnew42"))
	err = env.svc.ResetPassword(ctx, token, "another42x")
	de := requireCode(t, err, apperrors.CodeUnauthorized)
	require.Equal(t, MsgInvalidResetToken, de.Message)

	login, err := env.svc.Login(ctx, "alice@example.com", "brandnew42")
	require.NoError(t, err)
	require.Equal(t, res.Account.ID, login.Account.ID)

	// Access and refresh tokens are not reset tokens.
	err = env.svc.ResetPassword(ctx, res.Tokens.AccessToken, "brandnew43")
	requireCode(t, err, apperrors.CodeUnauthorized)
}

func TestLinkPhone(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.register(t, "alice@example.com", "password123")
	bob, err := env.svc.Register(ctx, RegisterInput{Email: "bob@example.com", Password: "password123", FullName: "Bob"})
	require.NoError(t, err)

	_, err = env.svc.SendOTP(ctx, "9841234567")
	require.NoError(t, err)
	_, err = env.svc.LinkPhone(ctx, alice.Account.ID, "9841234567", wrongCode(env.sms.code(t, "9841234567")))
	requireCode(t, err, apperrors.CodeUnauthorized)

	linked, err := env.svc.LinkPhone(ctx, alice.Account.ID, "9841234567", env.sms.code(t, "9841234567"))
	require.NoError(t, err)
	require.Equal(t, "9841234567", linked.PhoneValue())

	// Phone sign-in now reaches the email account.
	_, err = env.svc.SendOTP(ctx, "9841234567")
	require.NoError(t, err)
	res, err := env.svc.VerifyOTP(ctx, "9841234567", env.sms.code(t, "9841234567"), "")
	require.NoError(t, err)
	require.Equal(t, alice.Account.ID, res.Account.ID)

	_, err = env.svc.SendOTP(ctx, "9841234567")
	require.NoError(t, err)
	_, err = env.svc.LinkPhone(ctx, bob.Account.ID, "9841234567", env.sms.code(t, "9841234567"))
	requireCode(t, err, apperrors.CodeConflict)
}

func TestGetAndListAccounts(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.register(t, "alice@example.com", "password123")
	_, err := env.svc.Register(ctx, RegisterInput{Email: "boss@example.com", Password: "password123", FullName: "Boss", RoleID: "admin"})
	require.NoError(t, err)

	got, err := env.svc.GetAccount(ctx, alice.Account.ID)
	require.NoError(t, err)
	require.Equal(t, alice.Account.ID, got.ID)

	_, err = env.svc.GetAccount(ctx, "missing")
	requireCode(t, err, apperrors.CodeNotFound)

	all, err := env.svc.ListAccounts(ctx, repository.AccountFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)

	admin := domain.RoleAdmin
	admins, err := env.svc.ListAccounts(ctx, repository.AccountFilter{Role: &admin})
	require.NoError(t, err)
	require.Len(t, admins, 1)
	require.Equal(t, "boss@example.com", admins[0].EmailValue())

	bogus := domain.Role("root")
	_, err = env.svc.ListAccounts(ctx, repository.AccountFilter{Role: &bogus})
	requireCode(t, err, apperrors.CodeValidationFailed)
}

func wrongCode(code string) string {
	if code == "000000" {
		return "000001"
	}
	return "000000"
}
