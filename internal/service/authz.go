package service

import (
	"context"
	"errors"

	"github.com/and161185/keygate/internal/errs"
	"github.com/and161185/keygate/internal/repository"
)

// Authorizer guards protected endpoints.
type Authorizer interface {
	// Authorize returns apiKey when it is an active token bound to a verified account.
	Authorize(ctx context.Context, apiKey string) (string, error)
}

type AuthorizerImpl struct {
	store repository.Store
}

// NewAuthorizer constructs the per-request api key check.
func NewAuthorizer(store repository.Store) *AuthorizerImpl {
	return &AuthorizerImpl{store: store}
}

// Authorize checks token activity first, then the bound account's verification.
func (a *AuthorizerImpl) Authorize(ctx context.Context, apiKey string) (string, error) {
	if apiKey == "" {
		return "", errs.ErrInvalidOrInactiveToken
	}
	err := a.store.WithTx(ctx, func(ctx context.Context, tx repository.Store) error {
		if _, err := tx.Tokens().GetActive(ctx, apiKey); err != nil {
			if errors.Is(err, errs.ErrNotFound) {
				return errs.ErrInvalidOrInactiveToken
			}
			return err
		}
		acc, err := tx.Accounts().GetByAPIKey(ctx, apiKey)
		if err != nil {
			if errors.Is(err, errs.ErrNotFound) {
				return errs.ErrEmailNotVerified
			}
			return err
		}
		if !acc.EmailVerified {
			return errs.ErrEmailNotVerified
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return apiKey, nil
}
