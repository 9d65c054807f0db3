package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fieldops/auth-service/internal/domain"
)

type memoryAccountRepository struct {
	mu       sync.RWMutex
	accounts map[string]domain.Account
	now      func() time.Time
}

// NewMemoryAccountRepository builds an in-memory account store for tests and database-less runs.
// It enforces the same email and phone uniqueness as the accounts table.
func NewMemoryAccountRepository() AccountRepository {
	return &memoryAccountRepository{accounts: make(map[string]domain.Account), now: time.Now}
}

func (r *memoryAccountRepository) Create(_ context.Context, account *domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !account.HasIdentifier() {
		return ErrMissingIdentifier
	}

	if r.conflicts(account, "") {
		return ErrConflict
	}
	now := r.now().UTC()
	account.ID = uuid.NewString()
	account.CreatedAt = now
	account.UpdatedAt = now
	r.accounts[account.ID] = clone(account)
	return nil
}

func (r *memoryAccountRepository) Save(_ context.Context, account *domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.accounts[account.ID]; !ok {
		return ErrNotFound
	}
	if r.conflicts(account, account.ID) {
		return ErrConflict
	}
	account.UpdatedAt = r.now().UTC()
	r.accounts[account.ID] = clone(account)
	return nil
}

func (r *memoryAccountRepository) FindByID(_ context.Context, id string) (*domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	account, ok := r.accounts[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := clone(&account)
	return &out, nil
}

func (r *memoryAccountRepository) FindByEmail(_ context.Context, email string) (*domain.Account, error) {
	return r.findBy(func(a *domain.Account) bool { return a.Email != nil && *a.Email == email })
}

func (r *memoryAccountRepository) FindByPhone(_ context.Context, phone string) (*domain.Account, error) {
	return r.findBy(func(a *domain.Account) bool { return a.Phone != nil && *a.Phone == phone })
}

func (r *memoryAccountRepository) List(_ context.Context, filter AccountFilter) ([]domain.Account, error) {
	r.mu.RLock()
	all := make([]domain.Account, 0, len(r.accounts))
	for _, account := range r.accounts {
		if filter.Role != nil && account.Role != *filter.Role {
			continue
		}
		all = append(all, clone(&account))
	}
	r.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID < all[j].ID
		}
		return all[i].CreatedAt.Before(all[j].CreatedAt)
	})

	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if filter.Offset >= len(all) {
		return nil, nil
	}
	end := filter.Offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[filter.Offset:end], nil
}

func (r *memoryAccountRepository) findBy(match func(*domain.Account) bool) (*domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, account := range r.accounts {
		if match(&account) {
			out := clone(&account)
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

// conflicts must be called with mu held.
func (r *memoryAccountRepository) conflicts(candidate *domain.Account, selfID string) bool {
	for id, existing := range r.accounts {
		if id == selfID {
			continue
		}
		if sameValue(existing.Email, candidate.Email) || sameValue(existing.Phone, candidate.Phone) {
			return true
		}
	}
	return false
}

func sameValue(a, b *string) bool {
	return a != nil && b != nil && *a != "" && *a == *b
}

func clone(account *domain.Account) domain.Account {
	out := *account
	if account.Email != nil {
		email := *account.Email
		out.Email = &email
	}
	if account.Phone != nil {
		phone := *account.Phone
		out.Phone = &phone
	}
	return out
}
