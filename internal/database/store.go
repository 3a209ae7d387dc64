package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"trovr-backend/internal/apperr"
)

const maxTxAttempts = 5

// Store is the durable side of the bin registry, session table, ledger and
// user directory. Query text uses ? placeholders and is rebound per driver.
type Store struct {
	db *sqlx.DB
}

func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// DB returns the underlying handle.
func (s *Store) DB() *sqlx.DB {
	return s.db
}

func (s *Store) get(ctx context.Context, dest any, query string, args ...any) error {
	return s.db.GetContext(ctx, dest, s.db.Rebind(query), args...)
}

func (s *Store) sel(ctx context.Context, dest any, query string, args ...any) error {
	return s.db.SelectContext(ctx, dest, s.db.Rebind(query), args...)
}

func (s *Store) exec(ctx context.Context, op, query string, args ...any) (int64, error) {
	var affected int64
	err := s.retry(ctx, op, func() error {
		res, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	return affected, err
}

// inTx runs fn in a transaction, retrying the whole transaction on
// serialization failures, deadlocks and SQLITE_BUSY. Domain errors returned by
// fn roll back and pass through unchanged.
func (s *Store) inTx(ctx context.Context, op string, fn func(tx *sqlx.Tx) error) error {
	return s.retry(ctx, op, func() error {
		tx, err := s.db.BeginTxx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		if err := fn(tx); err != nil {
			return err
		}
		return tx.Commit()
	})
}

func (s *Store) retry(ctx context.Context, op string, fn func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 10 * time.Millisecond
	b.MaxInterval = 100 * time.Millisecond
	policy := backoff.WithContext(backoff.WithMaxRetries(b, maxTxAttempts-1), ctx)

	attempt := 0
	err := backoff.RetryNotify(func() error {
		attempt++
		err := fn()
		if err != nil && !isConflict(err) {
			return backoff.Permanent(err)
		}
		return err
	}, policy, func(err error, wait time.Duration) {
		slog.Debug("retrying after write conflict", "op", op, "attempt", attempt, "wait", wait, "err", err)
	})
	if isConflict(err) {
		err = errors.Join(apperr.ErrConflict, err)
	}
	return apperr.Persistence(op, err)
}

func isConflict(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, apperr.ErrConflict) {
		return true
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001", "40P01": // serialization_failure, deadlock_detected
			return true
		}
	}

	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return true
		}
	}
	return false
}

func notFound(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, apperr.ErrNotFound)
	}
	return err
}
