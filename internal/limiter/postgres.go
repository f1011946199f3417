package limiter

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PG is a PostgreSQL-backed fixed window limiter.
type PG struct {
	pool  pgxQuerier
	rules Rules
	now   func() time.Time
}

type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewPG constructs a PostgreSQL-backed limiter. *pgxpool.Pool satisfies the querier.
func NewPG(q pgxQuerier, rules Rules) *PG {
	return &PG{pool: q, rules: rules, now: time.Now}
}

// Allow increments the counter for (bucket, key), starting a new window when the old one elapsed.
func (l *PG) Allow(ctx context.Context, bucket, key string) (bool, time.Duration, error) {
	rule, ok := l.rules[bucket]
	if !ok || rule.Limit <= 0 {
		return true, 0, nil
	}
	now := l.now()

	const q = `
INSERT INTO request_limits (bucket, key_hash, window_start, hits)
VALUES ($1, $2, $3, 1)
ON CONFLICT (bucket, key_hash) DO UPDATE
SET
  hits = CASE WHEN request_limits.window_start <= $3::timestamptz - $4::interval THEN 1 ELSE request_limits.hits + 1 END,
  window_start = CASE WHEN request_limits.window_start <= $3::timestamptz - $4::interval THEN $3 ELSE request_limits.window_start END
RETURNING hits, window_start`

	var (
		hits        int
		windowStart time.Time
	)
	if err := l.pool.QueryRow(ctx, q, bucket, HashKey(key), now, rule.Window).Scan(&hits, &windowStart); err != nil {
		return false, 0, err
	}
	if hits > rule.Limit {
		return false, windowStart.Add(rule.Window).Sub(now), nil
	}
	return true, 0, nil
}

// Purge removes windows that ended before cutoff.
func (l *PG) Purge(ctx context.Context, cutoff time.Time) (int64, error) {
	const q = `DELETE FROM request_limits WHERE window_start < $1`
	tag, err := l.pool.Exec(ctx, q, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
