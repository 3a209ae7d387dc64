package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"trovr-backend/internal/apperr"
	"trovr-backend/internal/models"
)

// LookupByBarcode returns the catalog entry for barcode or apperr.ErrNotFound.
func (s *Store) LookupByBarcode(ctx context.Context, barcode string) (*models.Container, error) {
	var c models.Container
	err := s.get(ctx, &c,
		`SELECT id, barcode, label, value_cents, weight_grams FROM containers WHERE barcode = ?`, barcode)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("barcode %s: %w", barcode, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, apperr.Persistence("lookup barcode", err)
	}
	return &c, nil
}

// UpsertContainer writes a catalog entry keyed by barcode.
func (s *Store) UpsertContainer(ctx context.Context, c *models.Container) error {
	query := `INSERT INTO containers (id, barcode, label, value_cents, weight_grams)
	          VALUES (?, ?, ?, ?, ?)
	          ON CONFLICT (barcode) DO UPDATE SET
	              label = excluded.label,
	              value_cents = excluded.value_cents,
	              weight_grams = excluded.weight_grams`

	_, err := s.exec(ctx, "upsert container", query, c.ID, c.Barcode, c.Label, c.ValueCents, c.WeightGrams)
	return err
}

func (s *Store) CountContainers(ctx context.Context) (int, error) {
	var count int
	if err := s.get(ctx, &count, `SELECT COUNT(*) FROM containers`); err != nil {
		return 0, apperr.Persistence("count containers", err)
	}
	return count, nil
}
