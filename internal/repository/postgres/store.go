package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/and161185/keygate/internal/repository"
)

// Store implements repository.Store on top of a pool or a single transaction.
type Store struct {
	db *DB
	q  querier
	tx bool
}

var _ repository.Store = (*Store)(nil)

// NewStore constructs a pool-backed store.
func NewStore(db *DB) *Store { return &Store{db: db, q: db.Pool} }

// Accounts returns the account repository bound to this store's connection.
func (s *Store) Accounts() repository.AccountRepository { return &AccountRepo{q: s.q} }

// Tokens returns the activation token repository bound to this store's connection.
func (s *Store) Tokens() repository.TokenRepository { return &TokenRepo{q: s.q} }

// WithTx runs fn in a read-committed transaction. Nested calls reuse the outer transaction.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx repository.Store) error) (err error) {
	if s.tx {
		return fn(ctx, s)
	}

	tx, err := s.db.Pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			err = fmt.Errorf("commit: %w", e)
		}
	}()

	return fn(ctx, &Store{db: s.db, q: tx, tx: true})
}
