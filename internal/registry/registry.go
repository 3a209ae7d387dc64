// Package registry is the durable record of every bin's identity, scan code,
// online/available flags and last heartbeat.
package registry

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/moby/locker"

	"trovr-backend/internal/metrics"
	"trovr-backend/internal/models"
)

// Store is the persistence the registry needs.
type Store interface {
	RecordHeartbeat(ctx context.Context, binID string, now int64) error
	GetBin(ctx context.Context, binID string) (*models.Bin, error)
	GetBinByCode(ctx context.Context, qrcode string) (*models.Bin, error)
	ListBins(ctx context.Context) ([]models.Bin, error)
	ListOnlineBins(ctx context.Context) ([]models.Bin, error)
	SetBinOnline(ctx context.Context, binID string, online bool, now int64) error
	SetBinAvailable(ctx context.Context, binID string, available bool, now int64) error
	DemoteIfStale(ctx context.Context, binID string, cutoff, now int64) (bool, error)
}

// Registry serializes heartbeats and demotions per bin. Every mutation is
// committed to the store before it returns.
type Registry struct {
	store Store
	clock clockwork.Clock
	locks *locker.Locker
}

func New(store Store, clk clockwork.Clock) *Registry {
	return &Registry{store: store, clock: clk, locks: locker.New()}
}

// Heartbeat marks the bin online and refreshes its last heartbeat. Unknown
// bins are created online and available.
func (r *Registry) Heartbeat(ctx context.Context, binID string) error {
	r.locks.Lock(binID)
	defer r.locks.Unlock(binID)

	if err := r.store.RecordHeartbeat(ctx, binID, r.clock.Now().Unix()); err != nil {
		return err
	}
	metrics.HeartbeatsTotal.Inc()
	slog.Debug("💓 heartbeat", "bin_id", binID)
	return nil
}

func (r *Registry) Get(ctx context.Context, binID string) (*models.Bin, error) {
	return r.store.GetBin(ctx, binID)
}

// GetByCode resolves a scanned bin code.
func (r *Registry) GetByCode(ctx context.Context, qrcode string) (*models.Bin, error) {
	return r.store.GetBinByCode(ctx, qrcode)
}

func (r *Registry) List(ctx context.Context) ([]models.Bin, error) {
	return r.store.ListBins(ctx)
}

func (r *Registry) ListOnline(ctx context.Context) ([]models.Bin, error) {
	return r.store.ListOnlineBins(ctx)
}

func (r *Registry) SetOnline(ctx context.Context, binID string, online bool) error {
	r.locks.Lock(binID)
	defer r.locks.Unlock(binID)
	return r.store.SetBinOnline(ctx, binID, online, r.clock.Now().Unix())
}

func (r *Registry) SetAvailable(ctx context.Context, binID string, available bool) error {
	r.locks.Lock(binID)
	defer r.locks.Unlock(binID)
	return r.store.SetBinAvailable(ctx, binID, available, r.clock.Now().Unix())
}

// DemoteIfStale takes the bin offline and unavailable if it is online and
// now - last heartbeat > threshold. The check and the write are a single
// conditional update under the bin's lock, so a heartbeat that lands first
// always wins. Reports whether the bin was demoted.
func (r *Registry) DemoteIfStale(ctx context.Context, binID string, now time.Time, threshold time.Duration) (bool, error) {
	r.locks.Lock(binID)
	defer r.locks.Unlock(binID)

	cutoff := now.Add(-threshold).Unix()
	return r.store.DemoteIfStale(ctx, binID, cutoff, now.Unix())
}
