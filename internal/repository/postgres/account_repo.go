package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/and161185/keygate/internal/errs"
	"github.com/and161185/keygate/internal/model"
)

// AccountRepo implements AccountRepository using PostgreSQL.
type AccountRepo struct{ q querier }

const accountColumns = `email, password_hash, api_key, email_verified, ip_address, session_token, verification_code, code_expiry, code_created`

// Create inserts a new account row.
func (r *AccountRepo) Create(ctx context.Context, a *model.Account) error {
	const q = `
INSERT INTO accounts (email, password_hash, api_key, email_verified, verification_code, code_expiry, code_created)
VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.q.Exec(ctx, q, a.Email, a.PasswordHash, a.APIKey, a.EmailVerified, a.VerificationCode, a.CodeExpiry, a.CodeCreated)
	if err != nil {
		return mapWriteErr("create account", err)
	}
	return nil
}

// GetByEmail selects an account by email.
func (r *AccountRepo) GetByEmail(ctx context.Context, email string) (*model.Account, error) {
	const q = `SELECT ` + accountColumns + ` FROM accounts WHERE email=$1`
	return r.scanOne(ctx, q, email)
}

// GetByAPIKey selects the account bound to apiKey.
func (r *AccountRepo) GetByAPIKey(ctx context.Context, apiKey string) (*model.Account, error) {
	const q = `SELECT ` + accountColumns + ` FROM accounts WHERE api_key=$1`
	return r.scanOne(ctx, q, apiKey)
}

func (r *AccountRepo) scanOne(ctx context.Context, q string, arg any) (*model.Account, error) {
	var a model.Account
	err := r.q.QueryRow(ctx, q, arg).Scan(
		&a.Email, &a.PasswordHash, &a.APIKey, &a.EmailVerified,
		&a.IPAddress, &a.SessionToken,
		&a.VerificationCode, &a.CodeExpiry, &a.CodeCreated,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, fmt.Errorf("select account: %w", err)
	}
	return &a, nil
}

// SetVerified flips email_verified and clears the code columns together.
func (r *AccountRepo) SetVerified(ctx context.Context, email string) error {
	const q = `
UPDATE accounts
SET email_verified = true, verification_code = NULL, code_expiry = NULL, code_created = NULL
WHERE email = $1`
	return r.execOne(ctx, "set verified", q, email)
}

// SetVerificationCode stores a new pending code.
func (r *AccountRepo) SetVerificationCode(ctx context.Context, email, code string, expiry, created time.Time) error {
	const q = `
UPDATE accounts
SET verification_code = $2, code_expiry = $3, code_created = $4
WHERE email = $1`
	return r.execOne(ctx, "set verification code", q, email, code, expiry, created)
}

// SetAPIKey rebinds the account. The unique constraint on api_key reports concurrent takers.
func (r *AccountRepo) SetAPIKey(ctx context.Context, email, apiKey string) error {
	const q = `UPDATE accounts SET api_key = $2 WHERE email = $1`
	return r.execOne(ctx, "set api key", q, email, apiKey)
}

// SetPasswordHash replaces the password hash.
func (r *AccountRepo) SetPasswordHash(ctx context.Context, email string, hash []byte) error {
	const q = `UPDATE accounts SET password_hash = $2 WHERE email = $1`
	return r.execOne(ctx, "set password", q, email, hash)
}

func (r *AccountRepo) execOne(ctx context.Context, op, q string, args ...any) error {
	tag, err := r.q.Exec(ctx, q, args...)
	if err != nil {
		return mapWriteErr(op, err)
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func mapWriteErr(op string, err error) error {
	if name, ok := uniqueViolation(err); ok {
		switch name {
		case constraintAccountsAPIKey:
			return errs.ErrKeyInUse
		case constraintAccountsPK:
			return errs.ErrEmailExists
		default:
			return fmt.Errorf("%s: %w", op, errs.ErrConflict)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
