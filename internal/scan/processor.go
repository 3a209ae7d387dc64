// Package scan turns container scans reported by bins into balance credits.
package scan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"
	"github.com/moby/locker"

	"trovr-backend/internal/apperr"
	"trovr-backend/internal/metrics"
	"trovr-backend/internal/models"
)

// Store is the ledger, catalog and user directory the processor writes to.
type Store interface {
	LookupByBarcode(ctx context.Context, barcode string) (*models.Container, error)
	GetUser(ctx context.Context, userID string) (*models.User, error)
	CreditScan(ctx context.Context, entry *models.LedgerEntry) error
	AppendLedger(ctx context.Context, entry *models.LedgerEntry) error
	LedgerForSession(ctx context.Context, sessionID string) ([]models.LedgerEntry, error)
}

// Sessions resolves the user operating a bin.
type Sessions interface {
	WithSession(binID string, fn func(sess *models.Session) error) error
	SessionForUser(userID string) (models.Session, bool)
}

// Bins reads bin state.
type Bins interface {
	Get(ctx context.Context, binID string) (*models.Bin, error)
}

// Result describes what happened to one scanned container.
type Result struct {
	Accepted      bool    `json:"accepted"`
	Credited      bool    `json:"credited"`
	UserID        *string `json:"user_id,omitempty"`
	SessionID     *string `json:"session_id,omitempty"`
	CreditedCents int64   `json:"credited_cents"`
	LedgerID      string  `json:"ledger_id"`
}

// Processor applies scans. Scans resolving to the same user serialize on a
// per-user lock; scans for different users run in parallel.
type Processor struct {
	store              Store
	sessions           Sessions
	bins               Bins
	clock              clockwork.Clock
	rejectOfflineScans bool

	userLocks *locker.Locker
}

func New(store Store, sessions Sessions, bins Bins, clk clockwork.Clock, rejectOfflineScans bool) *Processor {
	return &Processor{
		store:              store,
		sessions:           sessions,
		bins:               bins,
		clock:              clk,
		rejectOfflineScans: rejectOfflineScans,
		userLocks:          locker.New(),
	}
}

// ProcessScan handles a container scanned at binID. With a user on the bin,
// the user's balance and recycled count and the ledger row are written in one
// transaction. Without one, the container is accepted and logged without
// credit.
func (p *Processor) ProcessScan(ctx context.Context, binID, barcode string) (*Result, error) {
	bin, err := p.bins.Get(ctx, binID)
	if err != nil {
		return nil, err
	}
	if p.rejectOfflineScans && !bin.Online {
		metrics.ScansTotal.WithLabelValues("offline").Inc()
		return nil, fmt.Errorf("bin %s: %w", binID, apperr.ErrBinOffline)
	}

	container, err := p.store.LookupByBarcode(ctx, barcode)
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		metrics.ScansTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	var result *Result
	err = p.sessions.WithSession(binID, func(sess *models.Session) error {
		if sess != nil {
			p.userLocks.Lock(sess.UserID)
			defer p.userLocks.Unlock(sess.UserID)
		}

		entry := &models.LedgerEntry{
			BinID:      &binID,
			Barcode:    barcode,
			RecordedAt: p.clock.Now().Unix(),
		}
		if sess != nil {
			entry.UserID = &sess.UserID
			entry.SessionID = &sess.ID
		}

		switch {
		case container == nil:
			if sess == nil {
				return fmt.Errorf("barcode %s: %w", barcode, apperr.ErrUnknownContainer)
			}
			entry.Reason = models.LedgerUnknownContainer
			if err := p.store.AppendLedger(ctx, entry); err != nil {
				return err
			}
			return fmt.Errorf("barcode %s: %w", barcode, apperr.ErrUnknownContainer)

		case sess == nil:
			entry.ContainerID = &container.ID
			entry.Accepted = true
			entry.Reason = models.LedgerUnassigned
			if err := p.store.AppendLedger(ctx, entry); err != nil {
				return err
			}

		default:
			entry.ContainerID = &container.ID
			entry.Accepted = true
			entry.CreditedCents = container.ValueCents
			entry.Reason = models.LedgerCredited
			if err := p.store.CreditScan(ctx, entry); err != nil {
				return err
			}
		}

		result = &Result{
			Accepted:      true,
			Credited:      sess != nil,
			UserID:        entry.UserID,
			SessionID:     entry.SessionID,
			CreditedCents: entry.CreditedCents,
			LedgerID:      entry.ID,
		}
		return nil
	})

	switch {
	case errors.Is(err, apperr.ErrUnknownContainer):
		metrics.ScansTotal.WithLabelValues("unknown").Inc()
		slog.Info("❓ [SCANS] unknown container", "bin_id", binID, "barcode", barcode)
		return nil, err
	case err != nil:
		metrics.ScansTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	if result.Credited {
		metrics.ScansTotal.WithLabelValues("credited").Inc()
		metrics.CreditedCentsTotal.Add(float64(result.CreditedCents))
		slog.Info("♻️  [SCANS] container credited",
			"bin_id", binID, "user_id", *result.UserID, "barcode", barcode, "cents", result.CreditedCents)
	} else {
		metrics.ScansTotal.WithLabelValues("unassigned").Inc()
		slog.Info("♻️  [SCANS] container accepted without a session", "bin_id", binID, "barcode", barcode)
	}
	return result, nil
}

// RejectScan records that a container was refused after it was accepted,
// for example by the sorting machine. Balances are not touched.
func (p *Processor) RejectScan(ctx context.Context, userID, barcode string) (*models.LedgerEntry, error) {
	if _, err := p.store.GetUser(ctx, userID); err != nil {
		return nil, err
	}

	entry := &models.LedgerEntry{
		UserID:     &userID,
		Barcode:    barcode,
		Reason:     models.LedgerRejected,
		RecordedAt: p.clock.Now().Unix(),
	}
	// Read the session before taking the user lock; ProcessScan takes the
	// table read lock first and the user lock second.
	if sess, ok := p.sessions.SessionForUser(userID); ok {
		entry.SessionID = &sess.ID
		entry.BinID = &sess.BinID
	}

	p.userLocks.Lock(userID)
	defer p.userLocks.Unlock(userID)

	if container, err := p.store.LookupByBarcode(ctx, barcode); err == nil {
		entry.ContainerID = &container.ID
	} else if !errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}

	if err := p.store.AppendLedger(ctx, entry); err != nil {
		return nil, err
	}

	metrics.ScansTotal.WithLabelValues("rejected").Inc()
	slog.Info("🚫 [SCANS] container rejected", "user_id", userID, "barcode", barcode)
	return entry, nil
}

// VerifyBarcode returns the catalog entry for barcode without crediting
// anyone.
func (p *Processor) VerifyBarcode(ctx context.Context, barcode string) (*models.Container, error) {
	container, err := p.store.LookupByBarcode(ctx, barcode)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, fmt.Errorf("barcode %s: %w", barcode, apperr.ErrUnknownContainer)
	}
	return container, err
}

// SessionContainers lists the ledger rows recorded during the user's current
// session.
func (p *Processor) SessionContainers(ctx context.Context, userID string) ([]models.LedgerEntry, error) {
	sess, ok := p.sessions.SessionForUser(userID)
	if !ok {
		return nil, apperr.ErrNoActiveSession
	}
	return p.store.LedgerForSession(ctx, sess.ID)
}
