// Package notify fans session and liveness events out to connected websocket
// clients and to FCM push tokens.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"trovr-backend/internal/models"
	"trovr-backend/internal/session"
	"trovr-backend/internal/websocket"
)

const pushTimeout = 5 * time.Second

// Event types sent over the websocket.
const (
	EventSessionEvicted = "session_evicted"
	EventBinsOffline    = "bins_offline"
)

// Broadcaster delivers realtime messages.
type Broadcaster interface {
	BroadcastToUser(userID string, data interface{})
	BroadcastToRole(role string, data interface{})
}

// Pusher sends mobile push notifications.
type Pusher interface {
	SendMulticast(ctx context.Context, tokens []string, title, body string, data map[string]string) error
}

// TokenStore looks up a user's push tokens.
type TokenStore interface {
	FCMTokensForUser(ctx context.Context, userID string) ([]string, error)
}

type Notifier struct {
	hub    Broadcaster
	pusher Pusher
	tokens TokenStore

	pushes sync.WaitGroup
}

// New creates a Notifier. pusher may be nil when FCM is not configured.
func New(hub Broadcaster, pusher Pusher, tokens TokenStore) *Notifier {
	return &Notifier{hub: hub, pusher: pusher, tokens: tokens}
}

// SessionEvicted tells the user who lost the bin over the websocket, then
// pushes to their devices in the background.
func (n *Notifier) SessionEvicted(ctx context.Context, ev session.Eviction) {
	n.hub.BroadcastToUser(ev.UserID, websocket.Event{Type: EventSessionEvicted, Data: ev})

	if n.pusher == nil {
		return
	}

	// The claim request may finish before the push does.
	ctx = context.WithoutCancel(ctx)
	n.pushes.Add(1)
	go func() {
		defer n.pushes.Done()
		n.pushEviction(ctx, ev)
	}()
}

// Wait blocks until background pushes have finished.
func (n *Notifier) Wait() {
	n.pushes.Wait()
}

func (n *Notifier) pushEviction(ctx context.Context, ev session.Eviction) {
	ctx, cancel := context.WithTimeout(ctx, pushTimeout)
	defer cancel()

	tokens, err := n.tokens.FCMTokensForUser(ctx, ev.UserID)
	if err != nil {
		slog.Warn("⚠️  failed to load push tokens", "user_id", ev.UserID, "err", err)
		return
	}
	if len(tokens) == 0 {
		return
	}

	err = n.pusher.SendMulticast(ctx, tokens,
		"Session ended",
		fmt.Sprintf("Someone else started using bin %s.", ev.BinID),
		map[string]string{
			"type":       EventSessionEvicted,
			"session_id": ev.SessionID,
			"bin_id":     ev.BinID,
		})
	if err != nil {
		slog.Warn("⚠️  failed to push eviction", "user_id", ev.UserID, "err", err)
	}
}

// BinsDemoted tells connected admins which bins went offline.
func (n *Notifier) BinsDemoted(_ context.Context, binIDs []string) {
	n.hub.BroadcastToRole(models.RoleAdmin, websocket.Event{
		Type: EventBinsOffline,
		Data: map[string]interface{}{"bin_ids": binIDs},
	})
}
