// Package session arbitrates the one-to-one mapping between users and the
// bins they are operating.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/google/uuid"

	"trovr-backend/internal/apperr"
	"trovr-backend/internal/config"
	"trovr-backend/internal/database"
	"trovr-backend/internal/metrics"
	"trovr-backend/internal/models"
)

// Store persists session transitions.
type Store interface {
	ApplyClaim(ctx context.Context, t database.ClaimTransition) error
	CloseSession(ctx context.Context, c database.SessionClose, now int64) error
	OpenSessions(ctx context.Context) ([]models.Session, error)
}

// Registry is the part of the bin registry the table reads and writes.
type Registry interface {
	GetByCode(ctx context.Context, qrcode string) (*models.Bin, error)
	SetAvailable(ctx context.Context, binID string, available bool) error
}

// Eviction describes a session taken over by another user.
type Eviction struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"` // the user who lost the bin
	BinID     string `json:"bin_id"`
	ByUserID  string `json:"by_user_id"`
}

// Notifier is told about evictions after the table lock is released.
type Notifier interface {
	SessionEvicted(ctx context.Context, ev Eviction)
}

// ClaimResult is returned by a successful claim.
type ClaimResult struct {
	Session      models.Session
	BinOnline    bool
	BinAvailable bool
	Idempotent   bool      // the user already held this bin
	Evicted      *Eviction // the session that was taken over, if any
	Replaced     *models.Session
}

// Table is the in-memory user<->bin mapping. All claims and releases take the
// write lock; lookups take the read lock. The durable store is updated before
// the maps change, so a failed write leaves the table untouched.
type Table struct {
	mu     sync.RWMutex
	byUser map[string]*models.Session
	byBin  map[string]*models.Session

	store    Store
	registry Registry
	clock    clockwork.Clock
	policy   string
	notifier Notifier
}

// New creates an empty table. policy is config.ClaimPolicyReject or
// config.ClaimPolicyRelease. notifier may be nil.
func New(store Store, registry Registry, clk clockwork.Clock, policy string, notifier Notifier) *Table {
	return &Table{
		byUser:   make(map[string]*models.Session),
		byBin:    make(map[string]*models.Session),
		store:    store,
		registry: registry,
		clock:    clk,
		policy:   policy,
		notifier: notifier,
	}
}

// Restore loads open sessions from the store. Call it once before serving.
func (t *Table) Restore(ctx context.Context) (int, error) {
	sessions, err := t.store.OpenSessions(ctx)
	if err != nil {
		return 0, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.byUser = make(map[string]*models.Session, len(sessions))
	t.byBin = make(map[string]*models.Session, len(sessions))
	for i := range sessions {
		s := &sessions[i]
		t.byUser[s.UserID] = s
		t.byBin[s.BinID] = s
	}
	metrics.ActiveSessions.Set(float64(len(t.byUser)))

	slog.Info("♻️  [SESSIONS] restored open sessions", "count", len(sessions))
	return len(sessions), nil
}

// Claim binds userID to the bin with the given scan code.
//
// The bin must be online, and available unless it is held by a session. A
// session held by another user is evicted. A session the same user holds on
// another bin is rejected with apperr.ErrUserHasSession or released first,
// depending on the claim policy. Claiming the bin the user already holds is a
// no-op success.
func (t *Table) Claim(ctx context.Context, userID, qrcode string) (*ClaimResult, error) {
	result, err := t.claim(ctx, userID, qrcode)
	if err != nil {
		metrics.ClaimsTotal.WithLabelValues(claimOutcome(err)).Inc()
		return nil, err
	}

	if result.Idempotent {
		metrics.ClaimsTotal.WithLabelValues("idempotent").Inc()
		return result, nil
	}
	metrics.ClaimsTotal.WithLabelValues("ok").Inc()

	if result.Evicted != nil {
		metrics.EvictionsTotal.Inc()
		slog.Info("⚠️  [SESSIONS] session evicted",
			"bin_id", result.Evicted.BinID, "evicted_user", result.Evicted.UserID, "by_user", userID)
		if t.notifier != nil {
			t.notifier.SessionEvicted(ctx, *result.Evicted)
		}
	}
	slog.Info("🔗 [SESSIONS] session started", "user_id", userID, "bin_id", result.Session.BinID)
	return result, nil
}

func (t *Table) claim(ctx context.Context, userID, qrcode string) (*ClaimResult, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	bin, err := t.registry.GetByCode(ctx, qrcode)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, fmt.Errorf("bin code %s: %w", qrcode, apperr.ErrBinUnavailable)
	}
	if err != nil {
		return nil, err
	}
	if !bin.Online {
		return nil, fmt.Errorf("bin %s is offline: %w", bin.ID, apperr.ErrBinUnavailable)
	}

	holder := t.byBin[bin.ID]
	if holder != nil && holder.UserID == userID {
		return &ClaimResult{Session: *holder, BinOnline: bin.Online, BinAvailable: bin.Available, Idempotent: true}, nil
	}
	if holder == nil && !bin.Available {
		return nil, fmt.Errorf("bin %s is not available: %w", bin.ID, apperr.ErrBinUnavailable)
	}

	transition := database.ClaimTransition{Held: holder != nil}
	result := &ClaimResult{}

	prior := t.byUser[userID]
	if prior != nil {
		if t.policy != config.ClaimPolicyRelease {
			return nil, fmt.Errorf("user holds bin %s: %w", prior.BinID, apperr.ErrUserHasSession)
		}
		transition.Close = append(transition.Close, database.SessionClose{
			SessionID: prior.ID,
			UserID:    prior.UserID,
			BinID:     prior.BinID,
			Reason:    models.SessionReplaced,
			FreeBin:   true,
		})
		replaced := *prior
		result.Replaced = &replaced
	}
	if holder != nil {
		transition.Close = append(transition.Close, database.SessionClose{
			SessionID: holder.ID,
			UserID:    holder.UserID,
			BinID:     holder.BinID,
			Reason:    models.SessionEvicted,
		})
		result.Evicted = &Eviction{
			SessionID: holder.ID,
			UserID:    holder.UserID,
			BinID:     holder.BinID,
			ByUserID:  userID,
		}
	}

	sess := &models.Session{
		ID:        uuid.New().String(),
		UserID:    userID,
		BinID:     bin.ID,
		StartedAt: t.clock.Now().Unix(),
	}
	transition.Open = *sess

	if err := t.store.ApplyClaim(ctx, transition); err != nil {
		return nil, err
	}

	if prior != nil {
		delete(t.byBin, prior.BinID)
	}
	if holder != nil {
		delete(t.byUser, holder.UserID)
	}
	t.byUser[userID] = sess
	t.byBin[bin.ID] = sess
	metrics.ActiveSessions.Set(float64(len(t.byUser)))

	result.Session = *sess
	result.BinOnline = true
	result.BinAvailable = false
	return result, nil
}

func claimOutcome(err error) string {
	switch {
	case errors.Is(err, apperr.ErrBinUnavailable):
		return "unavailable"
	case errors.Is(err, apperr.ErrUserHasSession):
		return "has_session"
	default:
		return "error"
	}
}

// Release ends the user's session, if any, and frees the bin when it is still
// online. It returns the closed session, or nil when the user held none.
func (t *Table) Release(ctx context.Context, userID string) (*models.Session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	sess := t.byUser[userID]
	if sess == nil {
		return nil, nil
	}

	err := t.store.CloseSession(ctx, database.SessionClose{
		SessionID: sess.ID,
		UserID:    sess.UserID,
		BinID:     sess.BinID,
		Reason:    models.SessionReleased,
		FreeBin:   true,
	}, t.clock.Now().Unix())
	if err != nil {
		return nil, err
	}

	delete(t.byUser, userID)
	delete(t.byBin, sess.BinID)
	metrics.ActiveSessions.Set(float64(len(t.byUser)))
	metrics.ReleasesTotal.Inc()

	slog.Info("🔓 [SESSIONS] session released", "user_id", userID, "bin_id", sess.BinID)
	closed := *sess
	return &closed, nil
}

// Resolve returns the user operating binID.
func (t *Table) Resolve(binID string) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if s := t.byBin[binID]; s != nil {
		return s.UserID, true
	}
	return "", false
}

// SessionForUser returns a copy of the user's open session.
func (t *Table) SessionForUser(userID string) (models.Session, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if s := t.byUser[userID]; s != nil {
		return *s, true
	}
	return models.Session{}, false
}

// SessionForBin returns a copy of the open session on binID.
func (t *Table) SessionForBin(binID string) (models.Session, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if s := t.byBin[binID]; s != nil {
		return *s, true
	}
	return models.Session{}, false
}

// WithSession calls fn with the session on binID (nil if none) while holding
// the read lock, so the mapping cannot change until fn returns. fn must not
// call back into the table's write paths.
func (t *Table) WithSession(binID string, fn func(sess *models.Session) error) error {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var sess *models.Session
	if s := t.byBin[binID]; s != nil {
		cp := *s
		sess = &cp
	}
	return fn(sess)
}

// SetBinAvailable applies an availability report from the bin. A held bin
// cannot be marked available.
func (t *Table) SetBinAvailable(ctx context.Context, binID string, available bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if available && t.byBin[binID] != nil {
		return fmt.Errorf("bin %s: %w", binID, apperr.ErrBinReserved)
	}
	return t.registry.SetAvailable(ctx, binID, available)
}

// Snapshot returns the open sessions ordered by start time.
func (t *Table) Snapshot() []models.Session {
	t.mu.RLock()
	sessions := make([]models.Session, 0, len(t.byUser))
	for _, s := range t.byUser {
		sessions = append(sessions, *s)
	}
	t.mu.RUnlock()

	sort.Slice(sessions, func(i, j int) bool {
		if sessions[i].StartedAt != sessions[j].StartedAt {
			return sessions[i].StartedAt < sessions[j].StartedAt
		}
		return sessions[i].ID < sessions[j].ID
	})
	return sessions
}

// Len returns the number of open sessions.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.byUser)
}
