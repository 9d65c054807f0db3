package auth

import (
	"errors"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/fieldops/auth-service/internal/domain"
)

var (
	// ErrTokenInvalid covers malformed tokens, bad signatures and wrong token types.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrTokenExpired is returned for well-formed tokens past their expiry.
	ErrTokenExpired = errors.New("token expired")
)

const leeway = 5 * time.Second

// TokenConfig configures a TokenManager. Empty RefreshSecret and ResetSecret fall back to AccessSecret.
type TokenConfig struct {
	AccessSecret  string
	RefreshSecret string
	ResetSecret   string
	Issuer        string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	ResetTTL      time.Duration
}

// TokenManager handles issuing and validating JWT tokens.
type TokenManager struct {
	accessSecret  []byte
	refreshSecret []byte
	resetSecret   []byte
	issuer        string
	accessTTL     time.Duration
	refreshTTL    time.Duration
	resetTTL      time.Duration
	now           func() time.Time
}

// NewTokenManager builds a new manager.
func NewTokenManager(cfg TokenConfig) *TokenManager {
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = time.Hour
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 7 * 24 * time.Hour
	}
	if cfg.ResetTTL <= 0 {
		cfg.ResetTTL = time.Hour
	}
	refresh := cfg.RefreshSecret
	if refresh == "" {
		refresh = cfg.AccessSecret
	}
	reset := cfg.ResetSecret
	if reset == "" {
		reset = cfg.AccessSecret
	}
	return &TokenManager{
		accessSecret:  []byte(cfg.AccessSecret),
		refreshSecret: []byte(refresh),
		resetSecret:   []byte(reset),
		issuer:        cfg.Issuer,
		accessTTL:     cfg.AccessTTL,
		refreshTTL:    cfg.RefreshTTL,
		resetTTL:      cfg.ResetTTL,
		now:           time.Now,
	}
}

// SharesRefreshSecret reports whether refresh tokens are signed with the access secret.
func (tm *TokenManager) SharesRefreshSecret() bool {
	return string(tm.refreshSecret) == string(tm.accessSecret)
}

// AccessClaims describes the access token payload.
type AccessClaims struct {
	Role domain.Role      `json:"role"`
	Type domain.TokenType `json:"typ"`
	jwt.RegisteredClaims
}

// RefreshClaims describes the refresh token payload. It never carries a role.
type RefreshClaims struct {
	Type domain.TokenType `json:"typ"`
	jwt.RegisteredClaims
}

// ResetClaims describes the password reset token payload.
type ResetClaims struct {
	Type domain.TokenType `json:"typ"`
	jwt.RegisteredClaims
}

// IssuePair signs a fresh access and refresh token for the account.
func (tm *TokenManager) IssuePair(account *domain.Account) (domain.TokenPair, error) {
	if account == nil || account.ID == "" || !account.Role.Valid() {
		return domain.TokenPair{}, errors.New("account id and valid role required")
	}
	now := tm.now()

	accessExp := now.Add(tm.accessTTL)
	access, err := tm.sign(&AccessClaims{
		Role:             account.Role,
		Type:             domain.TokenTypeAccess,
		RegisteredClaims: tm.registered(account.ID, now, accessExp),
	}, tm.accessSecret)
	if err != nil {
		return domain.TokenPair{}, err
	}

	refreshExp := now.Add(tm.refreshTTL)
	refresh, err := tm.sign(&RefreshClaims{
		Type:             domain.TokenTypeRefresh,
		RegisteredClaims: tm.registered(account.ID, now, refreshExp),
	}, tm.refreshSecret)
	if err != nil {
		return domain.TokenPair{}, err
	}

	return domain.TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// IssueReset signs a password reset token bound to accountID and returns its jti.
func (tm *TokenManager) IssueReset(accountID string) (string, string, time.Time, error) {
	now := tm.now()
	exp := now.Add(tm.resetTTL)
	registered := tm.registered(accountID, now, exp)
	token, err := tm.sign(&ResetClaims{
		Type:             domain.TokenTypePasswordReset,
		RegisteredClaims: registered,
	}, tm.resetSecret)
	if err != nil {
		return "", "", time.Time{}, err
	}
	return token, registered.ID, exp, nil
}

// VerifyAccess validates an access token and returns its claims.
func (tm *TokenManager) VerifyAccess(tokenStr string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := tm.parse(tokenStr, claims, tm.accessSecret); err != nil {
		return nil, err
	}
	if claims.Type != domain.TokenTypeAccess || claims.Subject == "" || !claims.Role.Valid() {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// VerifyRefresh validates a refresh token and returns its claims.
func (tm *TokenManager) VerifyRefresh(tokenStr string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := tm.parse(tokenStr, claims, tm.refreshSecret); err != nil {
		return nil, err
	}
	if claims.Type != domain.TokenTypeRefresh || claims.Subject == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// VerifyReset validates a password reset token and returns its claims.
func (tm *TokenManager) VerifyReset(tokenStr string) (*ResetClaims, error) {
	claims := &ResetClaims{}
	if err := tm.parse(tokenStr, claims, tm.resetSecret); err != nil {
		return nil, err
	}
	if claims.Type != domain.TokenTypePasswordReset || claims.Subject == "" || claims.ID == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

func (tm *TokenManager) registered(subject string, now, exp time.Time) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   subject,
		Issuer:    tm.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
}

func (tm *TokenManager) sign(claims jwt.Claims, secret []byte) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

func (tm *TokenManager) parse(tokenStr string, claims jwt.Claims, secret []byte) error {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(leeway),
		jwt.WithTimeFunc(tm.now),
		jwt.WithExpirationRequired(),
	}
	if tm.issuer != "" {
		opts = append(opts, jwt.WithIssuer(tm.issuer))
	}
	parsed, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrTokenExpired
		}
		return ErrTokenInvalid
	}
	if !parsed.Valid {
		return ErrTokenInvalid
	}
	return nil
}
