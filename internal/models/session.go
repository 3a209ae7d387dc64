package models

import "time"

// Session end reasons
const (
	SessionReleased = "released" // user ended the session
	SessionEvicted  = "evicted"  // another user claimed the same bin
	SessionReplaced = "replaced" // the same user claimed a different bin
)

// Session binds one user to one bin. Open sessions have EndedAt == nil.
type Session struct {
	ID        string  `json:"id" db:"id"`
	UserID    string  `json:"user_id" db:"user_id"`
	BinID     string  `json:"bin_id" db:"bin_id"`
	StartedAt int64   `json:"started_at" db:"started_at"` // Unix timestamp
	EndedAt   *int64  `json:"ended_at,omitempty" db:"ended_at"`
	EndReason *string `json:"end_reason,omitempty" db:"end_reason"`
}

type SessionResponse struct {
	ID           string `json:"id"`
	UserID       string `json:"user_id"`
	BinID        string `json:"bin_id"`
	StartedAtIso string `json:"startedAtIso"`
}

func (s *Session) ToSessionResponse() SessionResponse {
	return SessionResponse{
		ID:           s.ID,
		UserID:       s.UserID,
		BinID:        s.BinID,
		StartedAtIso: time.Unix(s.StartedAt, 0).UTC().Format(time.RFC3339),
	}
}

// ClaimSessionRequest is the body for POST /api/sessions
type ClaimSessionRequest struct {
	QRCode string `json:"qrcode"`
}

// ClaimSessionResponse mirrors what the scanning page needs to render.
type ClaimSessionResponse struct {
	Success      bool             `json:"success"`
	BinOnline    bool             `json:"bin_online"`
	BinAvailable bool             `json:"bin_available"`
	Session      *SessionResponse `json:"session,omitempty"`
	Error        string           `json:"error,omitempty"`
}
