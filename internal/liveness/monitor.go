// Package liveness demotes bins whose heartbeat has expired.
package liveness

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"trovr-backend/internal/metrics"
	"trovr-backend/internal/models"
)

// ErrSweepInProgress is returned when a sweep is triggered while another one
// is still running. The trigger is skipped, not queued.
var ErrSweepInProgress = errors.New("liveness sweep already in progress")

// Registry is the part of the bin registry the monitor uses.
type Registry interface {
	ListOnline(ctx context.Context) ([]models.Bin, error)
	DemoteIfStale(ctx context.Context, binID string, now time.Time, threshold time.Duration) (bool, error)
}

// Notifier is told about bins taken offline by a sweep.
type Notifier interface {
	BinsDemoted(ctx context.Context, binIDs []string)
}

// SweepResult summarizes one pass over the online bins.
type SweepResult struct {
	Checked     int      `json:"checked"`
	Demoted     int      `json:"demoted"`
	Failed      int      `json:"failed"`
	DemotedBins []string `json:"demoted_bins"`
}

type Monitor struct {
	registry  Registry
	clock     clockwork.Clock
	threshold time.Duration
	interval  time.Duration
	notifier  Notifier

	running atomic.Bool
}

// New creates a monitor that demotes bins silent for longer than threshold,
// checking every interval. notifier may be nil.
func New(registry Registry, clk clockwork.Clock, threshold, interval time.Duration, notifier Notifier) *Monitor {
	return &Monitor{
		registry:  registry,
		clock:     clk,
		threshold: threshold,
		interval:  interval,
		notifier:  notifier,
	}
}

// Run sweeps every interval until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := m.clock.NewTicker(m.interval)
	defer ticker.Stop()

	slog.Info("🩺 [LIVENESS] monitor started", "interval", m.interval, "threshold", m.threshold)

	for {
		select {
		case <-ctx.Done():
			slog.Info("🛑 [LIVENESS] monitor stopped")
			return
		case <-ticker.Chan():
			result, err := m.Sweep(ctx)
			if err != nil {
				if errors.Is(err, ErrSweepInProgress) || errors.Is(err, context.Canceled) {
					continue
				}
				slog.Error("❌ [LIVENESS] sweep failed", "err", err)
				continue
			}
			if result.Demoted > 0 || result.Failed > 0 {
				slog.Info("[LIVENESS] sweep finished",
					"checked", result.Checked, "demoted", result.Demoted, "failed", result.Failed)
			}
		}
	}
}

// Sweep checks every online bin once. A failure on one bin is logged and
// counted; the remaining bins are still checked. Running it again on bins that
// are already offline changes nothing.
func (m *Monitor) Sweep(ctx context.Context) (SweepResult, error) {
	if !m.running.CompareAndSwap(false, true) {
		metrics.SweepsSkippedTotal.Inc()
		return SweepResult{}, ErrSweepInProgress
	}
	defer m.running.Store(false)

	start := time.Now()
	defer func() { metrics.SweepDuration.Observe(time.Since(start).Seconds()) }()

	result := SweepResult{DemotedBins: []string{}}

	bins, err := m.registry.ListOnline(ctx)
	if err != nil {
		return result, err
	}

	now := m.clock.Now()
	for _, bin := range bins {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.Checked++

		// The registry re-checks under the bin lock; this only skips fresh bins.
		if !bin.HeartbeatExpired(now, m.threshold) {
			continue
		}

		demoted, err := m.registry.DemoteIfStale(ctx, bin.ID, now, m.threshold)
		if err != nil {
			result.Failed++
			metrics.SweepFailuresTotal.Inc()
			slog.Warn("⚠️  [LIVENESS] failed to demote bin, skipping", "bin_id", bin.ID, "err", err)
			continue
		}
		if demoted {
			result.Demoted++
			result.DemotedBins = append(result.DemotedBins, bin.ID)
			metrics.BinsDemotedTotal.Inc()
			slog.Info("📴 [LIVENESS] bin went offline", "bin_id", bin.ID, "last_heartbeat", bin.LastHeartbeat)
		}
	}

	if len(result.DemotedBins) > 0 && m.notifier != nil {
		m.notifier.BinsDemoted(ctx, result.DemotedBins)
	}
	return result, nil
}
