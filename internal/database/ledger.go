package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"trovr-backend/internal/apperr"
	"trovr-backend/internal/models"
)

const ledgerColumns = `id, user_id, session_id, bin_id, container_id, barcode, accepted,
	credited_cents, reason, recorded_at`

// AppendLedger records a scan outcome that does not touch any balance.
func (s *Store) AppendLedger(ctx context.Context, entry *models.LedgerEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	return s.inTx(ctx, "append ledger", func(tx *sqlx.Tx) error {
		return insertLedger(ctx, tx, entry)
	})
}

// CreditScan credits entry.CreditedCents to the entry's user, bumps the
// recycled count and appends the ledger row in one transaction.
func (s *Store) CreditScan(ctx context.Context, entry *models.LedgerEntry) error {
	if entry.UserID == nil {
		return fmt.Errorf("credit scan: ledger entry has no user")
	}
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}

	return s.inTx(ctx, "credit scan", func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, tx.Rebind(`
			UPDATE users
			SET balance_cents = balance_cents + ?,
			    recycled_count = recycled_count + 1,
			    updated_at = ?
			WHERE id = ?`),
			entry.CreditedCents, entry.RecordedAt, *entry.UserID)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return fmt.Errorf("user %s: %w", *entry.UserID, apperr.ErrNotFound)
		}

		return insertLedger(ctx, tx, entry)
	})
}

func insertLedger(ctx context.Context, tx *sqlx.Tx, entry *models.LedgerEntry) error {
	query := `INSERT INTO recycled_containers (` + ledgerColumns + `)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := tx.ExecContext(ctx, tx.Rebind(query),
		entry.ID, entry.UserID, entry.SessionID, entry.BinID, entry.ContainerID,
		entry.Barcode, entry.Accepted, entry.CreditedCents, entry.Reason, entry.RecordedAt)
	if err != nil {
		return fmt.Errorf("failed to insert ledger row: %w", err)
	}
	return nil
}

// LedgerForSession returns the ledger rows recorded during a session in
// insertion order.
func (s *Store) LedgerForSession(ctx context.Context, sessionID string) ([]models.LedgerEntry, error) {
	entries := []models.LedgerEntry{}
	err := s.sel(ctx, &entries,
		`SELECT `+ledgerColumns+` FROM recycled_containers WHERE session_id = ? ORDER BY recorded_at, id`, sessionID)
	if err != nil {
		return nil, apperr.Persistence("list session ledger", err)
	}
	return entries, nil
}

// LedgerForUser returns the user's most recent ledger rows.
func (s *Store) LedgerForUser(ctx context.Context, userID string, limit int) ([]models.LedgerEntry, error) {
	entries := []models.LedgerEntry{}
	err := s.sel(ctx, &entries,
		`SELECT `+ledgerColumns+` FROM recycled_containers WHERE user_id = ? ORDER BY recorded_at DESC, id LIMIT ?`,
		userID, limit)
	if err != nil {
		return nil, apperr.Persistence("list user ledger", err)
	}
	return entries, nil
}
