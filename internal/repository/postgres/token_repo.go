package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/and161185/keygate/internal/errs"
	"github.com/and161185/keygate/internal/model"
)

// TokenRepo implements TokenRepository using PostgreSQL.
type TokenRepo struct{ q querier }

// GetActive selects an active token by api key.
func (r *TokenRepo) GetActive(ctx context.Context, apiKey string) (*model.ActivationToken, error) {
	const q = `
SELECT api_key, owner_id, issued_at, active
FROM activation_tokens WHERE api_key=$1 AND active`
	var t model.ActivationToken
	if err := r.q.QueryRow(ctx, q, apiKey).Scan(&t.APIKey, &t.OwnerID, &t.IssuedAt, &t.Active); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, fmt.Errorf("select token: %w", err)
	}
	return &t, nil
}
