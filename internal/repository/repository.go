// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"
	"time"

	"github.com/and161185/keygate/internal/model"
)

// AccountRepository provides access to website accounts keyed by email.
type AccountRepository interface {
	// Create inserts a new account. Returns errs.ErrEmailExists or errs.ErrKeyInUse
	// when the store rejects a duplicate.
	Create(ctx context.Context, a *model.Account) error
	// GetByEmail loads an account by email.
	GetByEmail(ctx context.Context, email string) (*model.Account, error)
	// GetByAPIKey loads the account bound to an api key.
	GetByAPIKey(ctx context.Context, apiKey string) (*model.Account, error)
	// SetVerified marks the email verified and clears all code fields.
	SetVerified(ctx context.Context, email string) error
	// SetVerificationCode replaces the pending code and its timestamps.
	SetVerificationCode(ctx context.Context, email, code string, expiry, created time.Time) error
	// SetAPIKey rebinds the account to another api key.
	SetAPIKey(ctx context.Context, email, apiKey string) error
	// SetPasswordHash replaces the stored password hash.
	SetPasswordHash(ctx context.Context, email string, hash []byte) error
}

// TokenRepository reads activation tokens. Tokens are written by an external process.
type TokenRepository interface {
	// GetActive returns the token only if it exists and is active.
	GetActive(ctx context.Context, apiKey string) (*model.ActivationToken, error)
}

// Store groups repositories that share one connection or transaction.
type Store interface {
	Accounts() AccountRepository
	Tokens() TokenRepository
	// WithTx runs fn inside a single transaction. The Store passed to fn is bound
	// to that transaction. Commit happens once when fn returns nil; any error or
	// panic rolls back.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error
}
