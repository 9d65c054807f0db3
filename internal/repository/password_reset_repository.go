package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fieldops/auth-service/internal/domain"
)

// PasswordResetRepository records issued reset tokens so each can be redeemed once.
type PasswordResetRepository interface {
	Create(ctx context.Context, reset *domain.PasswordReset) error
	// MarkUsed redeems the token id. It returns ErrNotFound when the id is unknown,
	// already used or expired.
	MarkUsed(ctx context.Context, tokenID string, now time.Time) (*domain.PasswordReset, error)
}

type passwordResetRepository struct {
	pool *pgxpool.Pool
}

// NewPasswordResetRepository constructs repository.
func NewPasswordResetRepository(pool *pgxpool.Pool) PasswordResetRepository {
	return &passwordResetRepository{pool: pool}
}

func (r *passwordResetRepository) Create(ctx context.Context, reset *domain.PasswordReset) error {
	const query = `
        INSERT INTO password_reset_tokens (account_id, token_id, expires_at)
        VALUES ($1,$2,$3)
        RETURNING id, created_at`
	err := r.pool.QueryRow(ctx, query,
		reset.AccountID,
		reset.TokenID,
		reset.ExpiresAt,
	).Scan(&reset.ID, &reset.CreatedAt)
	if err != nil {
		return fmt.Errorf("create password reset: %w", translate(err))
	}
	return nil
}

func (r *passwordResetRepository) MarkUsed(ctx context.Context, tokenID string, now time.Time) (*domain.PasswordReset, error) {
	const query = `
        UPDATE password_reset_tokens SET used_at=$2
        WHERE token_id=$1 AND used_at IS NULL AND expires_at > $2
        RETURNING id, account_id, token_id, expires_at, used_at, created_at`
	var reset domain.PasswordReset
	if err := r.pool.QueryRow(ctx, query, tokenID, now).Scan(
		&reset.ID,
		&reset.AccountID,
		&reset.TokenID,
		&reset.ExpiresAt,
		&reset.UsedAt,
		&reset.CreatedAt,
	); err != nil {
		return nil, translate(err)
	}
	return &reset, nil
}

type memoryPasswordResetRepository struct {
	mu     sync.Mutex
	resets map[string]*domain.PasswordReset
}

// NewMemoryPasswordResetRepository builds an in-memory reset ledger.
func NewMemoryPasswordResetRepository() PasswordResetRepository {
	return &memoryPasswordResetRepository{resets: make(map[string]*domain.PasswordReset)}
}

func (r *memoryPasswordResetRepository) Create(_ context.Context, reset *domain.PasswordReset) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.resets[reset.TokenID]; exists {
		return ErrConflict
	}
	reset.ID = uuid.NewString()
	reset.CreatedAt = time.Now().UTC()
	stored := *reset
	r.resets[reset.TokenID] = &stored
	return nil
}

func (r *memoryPasswordResetRepository) MarkUsed(_ context.Context, tokenID string, now time.Time) (*domain.PasswordReset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	reset, ok := r.resets[tokenID]
	if !ok || reset.UsedAt != nil || !now.Before(reset.ExpiresAt) {
		return nil, ErrNotFound
	}
	usedAt := now
	reset.UsedAt = &usedAt
	out := *reset
	return &out, nil
}
