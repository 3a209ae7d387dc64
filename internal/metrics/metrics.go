// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HeartbeatsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trovr_bin_heartbeats_total",
		Help: "The total number of bin heartbeats recorded",
	})

	// BinsDemotedTotal counts bins taken offline by the liveness sweep
	BinsDemotedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trovr_bins_demoted_total",
		Help: "The total number of bins demoted for a missed heartbeat",
	})

	SweepFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trovr_liveness_sweep_bin_failures_total",
		Help: "The total number of per-bin failures during liveness sweeps",
	})

	SweepsSkippedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trovr_liveness_sweeps_skipped_total",
		Help: "The total number of sweeps skipped because one was still running",
	})

	SweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "trovr_liveness_sweep_duration_seconds",
		Help:    "The liveness sweep duration in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// ClaimsTotal counts session claims by result: ok, idempotent, unavailable, has_session, error
	ClaimsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trovr_session_claims_total",
		Help: "The total number of session claims by result",
	}, []string{"result"})

	EvictionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trovr_session_evictions_total",
		Help: "The total number of sessions evicted by another claimant",
	})

	ReleasesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trovr_session_releases_total",
		Help: "The total number of sessions released",
	})

	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "trovr_active_sessions",
		Help: "The number of open bin sessions",
	})

	// ScansTotal counts container scans by outcome: credited, unassigned, unknown, rejected, offline, error
	ScansTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trovr_container_scans_total",
		Help: "The total number of container scans by outcome",
	}, []string{"outcome"})

	CreditedCentsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trovr_credited_cents_total",
		Help: "The total amount credited to users in cents",
	})
)
