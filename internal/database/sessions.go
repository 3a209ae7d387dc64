package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"trovr-backend/internal/apperr"
	"trovr-backend/internal/models"
)

// SessionClose ends one open session.
type SessionClose struct {
	SessionID string
	UserID    string
	BinID     string
	Reason    string // models.SessionReleased, SessionEvicted or SessionReplaced

	// FreeBin makes the bin available again if it is still online. It is
	// false when the bin is handed straight to a new session.
	FreeBin bool
}

// ClaimTransition is one claim as applied to storage: prior sessions are
// closed, then the new one is opened and the bin reserved.
type ClaimTransition struct {
	Close []SessionClose
	Open  models.Session

	// Held is true when Open.BinID already belongs to a session being closed,
	// so the bin is expected to be unavailable.
	Held bool
}

// ApplyClaim persists a claim atomically. The bin must still be online (and
// available unless held) when the transaction runs, otherwise
// apperr.ErrBinUnavailable is returned and nothing changes.
func (s *Store) ApplyClaim(ctx context.Context, t ClaimTransition) error {
	now := t.Open.StartedAt

	return s.inTx(ctx, "apply claim", func(tx *sqlx.Tx) error {
		for _, c := range t.Close {
			if err := closeSession(ctx, tx, c, now); err != nil {
				return err
			}
		}

		reserve := `UPDATE bins SET available = FALSE, updated_at = ? WHERE id = ? AND online = TRUE AND available = TRUE`
		if t.Held {
			reserve = `UPDATE bins SET available = FALSE, updated_at = ? WHERE id = ? AND online = TRUE`
		}
		res, err := tx.ExecContext(ctx, tx.Rebind(reserve), now, t.Open.BinID)
		if err != nil {
			return fmt.Errorf("failed to reserve bin: %w", err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return fmt.Errorf("bin %s: %w", t.Open.BinID, apperr.ErrBinUnavailable)
		}

		res, err = tx.ExecContext(ctx, tx.Rebind(
			`UPDATE users SET last_session_start = ?, updated_at = ? WHERE id = ?`),
			now, now, t.Open.UserID)
		if err != nil {
			return fmt.Errorf("failed to stamp session start: %w", err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return fmt.Errorf("user %s: %w", t.Open.UserID, apperr.ErrNotFound)
		}

		_, err = tx.ExecContext(ctx, tx.Rebind(
			`INSERT INTO bin_sessions (id, user_id, bin_id, started_at) VALUES (?, ?, ?, ?)`),
			t.Open.ID, t.Open.UserID, t.Open.BinID, t.Open.StartedAt)
		if err != nil {
			return fmt.Errorf("failed to insert session: %w", err)
		}
		return nil
	})
}

// CloseSession persists a release.
func (s *Store) CloseSession(ctx context.Context, c SessionClose, now int64) error {
	return s.inTx(ctx, "close session", func(tx *sqlx.Tx) error {
		return closeSession(ctx, tx, c, now)
	})
}

func closeSession(ctx context.Context, tx *sqlx.Tx, c SessionClose, now int64) error {
	_, err := tx.ExecContext(ctx, tx.Rebind(
		`UPDATE bin_sessions SET ended_at = ?, end_reason = ? WHERE id = ? AND ended_at IS NULL`),
		now, c.Reason, c.SessionID)
	if err != nil {
		return fmt.Errorf("failed to close session: %w", err)
	}

	_, err = tx.ExecContext(ctx, tx.Rebind(
		`UPDATE users SET last_session_end = ?, updated_at = ? WHERE id = ?`),
		now, now, c.UserID)
	if err != nil {
		return fmt.Errorf("failed to stamp session end: %w", err)
	}

	if c.FreeBin {
		// An offline bin stays unavailable until it heartbeats and reports in.
		_, err = tx.ExecContext(ctx, tx.Rebind(
			`UPDATE bins SET available = TRUE, updated_at = ? WHERE id = ? AND online = TRUE`),
			now, c.BinID)
		if err != nil {
			return fmt.Errorf("failed to free bin: %w", err)
		}
	}
	return nil
}

// OpenSessions returns every session without an end time.
func (s *Store) OpenSessions(ctx context.Context) ([]models.Session, error) {
	sessions := []models.Session{}
	err := s.sel(ctx, &sessions,
		`SELECT id, user_id, bin_id, started_at, ended_at, end_reason
		 FROM bin_sessions WHERE ended_at IS NULL ORDER BY started_at`)
	if err != nil {
		return nil, apperr.Persistence("list open sessions", err)
	}
	return sessions, nil
}

// GetSession returns a session by ID, open or closed.
func (s *Store) GetSession(ctx context.Context, sessionID string) (*models.Session, error) {
	var sess models.Session
	err := s.get(ctx, &sess,
		`SELECT id, user_id, bin_id, started_at, ended_at, end_reason FROM bin_sessions WHERE id = ?`, sessionID)
	if err != nil {
		return nil, apperr.Persistence("get session", notFound(err, "session "+sessionID))
	}
	return &sess, nil
}
