package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"trovr-backend/internal/apperr"
	"trovr-backend/internal/models"
)

const binColumns = `id, COALESCE(qr_code, '') AS qr_code, online, available, last_heartbeat, created_at, updated_at`

// RecordHeartbeat marks the bin online and refreshes last_heartbeat, creating
// it online and available if unknown. available is left untouched otherwise.
// A new bin takes its ID as its code unless another bin already owns that
// code, in which case it is created without one.
func (s *Store) RecordHeartbeat(ctx context.Context, binID string, now int64) error {
	query := `INSERT INTO bins (id, qr_code, online, available, last_heartbeat, created_at, updated_at)
	          VALUES (?, CASE WHEN EXISTS (SELECT 1 FROM bins WHERE qr_code = ?) THEN NULL ELSE CAST(? AS TEXT) END, TRUE, TRUE, ?, ?, ?)
	          ON CONFLICT (id) DO UPDATE SET
	              online = TRUE,
	              last_heartbeat = excluded.last_heartbeat,
	              updated_at = excluded.updated_at`

	_, err := s.exec(ctx, "record heartbeat", query, binID, binID, binID, now, now, now)
	return err
}

// GetBin returns the bin with the given ID or apperr.ErrNotFound.
func (s *Store) GetBin(ctx context.Context, binID string) (*models.Bin, error) {
	var bin models.Bin
	err := s.get(ctx, &bin, `SELECT `+binColumns+` FROM bins WHERE id = ?`, binID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("bin %s: %w", binID, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, apperr.Persistence("get bin", err)
	}
	return &bin, nil
}

// GetBinByCode looks a bin up by its scan code.
func (s *Store) GetBinByCode(ctx context.Context, qrcode string) (*models.Bin, error) {
	var bin models.Bin
	err := s.get(ctx, &bin, `SELECT `+binColumns+` FROM bins WHERE qr_code = ?`, qrcode)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("bin code %s: %w", qrcode, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, apperr.Persistence("get bin by code", err)
	}
	return &bin, nil
}

func (s *Store) ListBins(ctx context.Context) ([]models.Bin, error) {
	bins := []models.Bin{}
	if err := s.sel(ctx, &bins, `SELECT `+binColumns+` FROM bins ORDER BY id`); err != nil {
		return nil, apperr.Persistence("list bins", err)
	}
	return bins, nil
}

func (s *Store) ListOnlineBins(ctx context.Context) ([]models.Bin, error) {
	bins := []models.Bin{}
	if err := s.sel(ctx, &bins, `SELECT `+binColumns+` FROM bins WHERE online = TRUE ORDER BY id`); err != nil {
		return nil, apperr.Persistence("list online bins", err)
	}
	return bins, nil
}

// SetBinOnline sets the online flag. Unknown bins yield apperr.ErrNotFound.
func (s *Store) SetBinOnline(ctx context.Context, binID string, online bool, now int64) error {
	n, err := s.exec(ctx, "set bin online",
		`UPDATE bins SET online = ?, updated_at = ? WHERE id = ?`, online, now, binID)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("bin %s: %w", binID, apperr.ErrNotFound)
	}
	return nil
}

// SetBinAvailable sets the available flag. Unknown bins yield apperr.ErrNotFound.
func (s *Store) SetBinAvailable(ctx context.Context, binID string, available bool, now int64) error {
	n, err := s.exec(ctx, "set bin available",
		`UPDATE bins SET available = ?, updated_at = ? WHERE id = ?`, available, now, binID)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("bin %s: %w", binID, apperr.ErrNotFound)
	}
	return nil
}

// DemoteIfStale takes the bin offline and unavailable in one statement, but
// only while it is still online and its last heartbeat is older than cutoff.
// It reports whether a row changed, so re-running on an offline bin is a no-op.
func (s *Store) DemoteIfStale(ctx context.Context, binID string, cutoff, now int64) (bool, error) {
	query := `UPDATE bins SET online = FALSE, available = FALSE, updated_at = ?
	          WHERE id = ? AND online = TRUE
	            AND (last_heartbeat IS NULL OR last_heartbeat < ?)`

	n, err := s.exec(ctx, "demote bin", query, now, binID, cutoff)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// InsertBin adds a bin if its ID is not present yet. Used by seeding.
func (s *Store) InsertBin(ctx context.Context, binID, qrcode string, now int64) (bool, error) {
	query := `INSERT INTO bins (id, qr_code, online, available, created_at, updated_at)
	          VALUES (?, ?, FALSE, TRUE, ?, ?)
	          ON CONFLICT (id) DO NOTHING`

	n, err := s.exec(ctx, "insert bin", query, binID, qrcode, now, now)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
