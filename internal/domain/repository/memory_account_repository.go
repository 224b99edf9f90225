package repository

import (
	"context"
	"sync"
	"time"

	"authgate/internal/common"
	"authgate/internal/domain/model"
)

// MemoryAccountRepository is an in-memory AccountRepository used by tests. It
// enforces the same username/email uniqueness and compare-and-swap semantics
// as the Mongo implementation.
type MemoryAccountRepository struct {
	mu       sync.RWMutex
	accounts map[string]*model.Account
}

func NewMemoryAccountRepository() *MemoryAccountRepository {
	return &MemoryAccountRepository{accounts: make(map[string]*model.Account)}
}

func clone(a *model.Account) *model.Account {
	c := *a
	return &c
}

func (r *MemoryAccountRepository) Create(ctx context.Context, account *model.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.accounts {
		if existing.Username == account.Username || existing.Email == account.Email {
			return common.ErrConflict
		}
	}
	now := time.Now().UTC()
	account.CreatedAt = now
	account.UpdatedAt = now
	r.accounts[account.ID] = clone(account)
	return nil
}

func (r *MemoryAccountRepository) find(match func(*model.Account) bool) (*model.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.accounts {
		if match(a) {
			return clone(a), nil
		}
	}
	return nil, common.ErrNotFound
}

func (r *MemoryAccountRepository) FindByID(ctx context.Context, id string) (*model.Account, error) {
	return r.find(func(a *model.Account) bool { return a.ID == id })
}

func (r *MemoryAccountRepository) FindByEmail(ctx context.Context, email string) (*model.Account, error) {
	return r.find(func(a *model.Account) bool { return a.Email == email })
}

func (r *MemoryAccountRepository) FindByUsername(ctx context.Context, username string) (*model.Account, error) {
	return r.find(func(a *model.Account) bool { return a.Username == username })
}

func (r *MemoryAccountRepository) FindByVerificationToken(ctx context.Context, digest string, now time.Time) (*model.Account, error) {
	return r.find(func(a *model.Account) bool {
		return a.EmailVerificationToken == digest && a.EmailVerificationExpiry.After(now)
	})
}

func (r *MemoryAccountRepository) FindByResetToken(ctx context.Context, digest string, now time.Time) (*model.Account, error) {
	return r.find(func(a *model.Account) bool {
		return a.ForgotPasswordToken == digest && a.ForgotPasswordExpiry.After(now)
	})
}

func (r *MemoryAccountRepository) update(id string, apply func(*model.Account)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return common.ErrNotFound
	}
	apply(a)
	a.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *MemoryAccountRepository) SetRefreshToken(ctx context.Context, id, token string) error {
	return r.update(id, func(a *model.Account) { a.RefreshToken = token })
}

func (r *MemoryAccountRepository) ClearRefreshToken(ctx context.Context, id string) error {
	// Idempotent like the Mongo implementation.
	_ = r.update(id, func(a *model.Account) { a.RefreshToken = "" })
	return nil
}

func (r *MemoryAccountRepository) RotateRefreshToken(ctx context.Context, id, old, next string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok || a.RefreshToken != old {
		return common.ErrNotFound
	}
	a.RefreshToken = next
	a.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *MemoryAccountRepository) SetVerificationToken(ctx context.Context, id, digest string, expiry time.Time) error {
	return r.update(id, func(a *model.Account) {
		a.EmailVerificationToken = digest
		a.EmailVerificationExpiry = expiry
	})
}

func (r *MemoryAccountRepository) MarkEmailVerified(ctx context.Context, id string) error {
	return r.update(id, func(a *model.Account) {
		a.IsEmailVerified = true
		a.EmailVerificationToken = ""
		a.EmailVerificationExpiry = time.Time{}
	})
}

func (r *MemoryAccountRepository) SetResetToken(ctx context.Context, id, digest string, expiry time.Time) error {
	return r.update(id, func(a *model.Account) {
		a.ForgotPasswordToken = digest
		a.ForgotPasswordExpiry = expiry
	})
}

func (r *MemoryAccountRepository) UpdatePassword(ctx context.Context, id, hashedPassword string) error {
	return r.update(id, func(a *model.Account) { a.HashedPassword = hashedPassword })
}

func (r *MemoryAccountRepository) ResetPassword(ctx context.Context, id, hashedPassword string) error {
	return r.update(id, func(a *model.Account) {
		a.HashedPassword = hashedPassword
		a.ForgotPasswordToken = ""
		a.ForgotPasswordExpiry = time.Time{}
		a.RefreshToken = ""
	})
}
