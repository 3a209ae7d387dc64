package models

import "time"

type Bin struct {
	ID            string `json:"id" db:"id"`
	QRCode        string `json:"qr_code" db:"qr_code"`
	Online        bool   `json:"online" db:"online"`
	Available     bool   `json:"available" db:"available"`
	LastHeartbeat *int64 `json:"last_heartbeat,omitempty" db:"last_heartbeat"` // Unix timestamp, nil until the first heartbeat
	CreatedAt     int64  `json:"created_at" db:"created_at"`                   // Unix timestamp
	UpdatedAt     int64  `json:"updated_at" db:"updated_at"`                   // Unix timestamp
}

// Claimable reports whether a new session may start on the bin.
func (b *Bin) Claimable() bool {
	return b.Online && b.Available
}

// HeartbeatExpired reports whether now - last heartbeat exceeds threshold.
// A bin that never sent a heartbeat is considered expired.
func (b *Bin) HeartbeatExpired(now time.Time, threshold time.Duration) bool {
	if b.LastHeartbeat == nil {
		return true
	}
	return now.Unix()-*b.LastHeartbeat > int64(threshold/time.Second)
}

// BinResponse is what we send to clients, with ISO timestamps
type BinResponse struct {
	ID               string  `json:"id"`
	QRCode           string  `json:"qr_code"`
	Online           bool    `json:"online"`
	Available        bool    `json:"available"`
	InSession        bool    `json:"in_session"`
	LastHeartbeatIso *string `json:"lastHeartbeatIso,omitempty"`
}

// ToBinResponse converts a Bin to BinResponse
func (b *Bin) ToBinResponse(inSession bool) BinResponse {
	resp := BinResponse{
		ID:        b.ID,
		QRCode:    b.QRCode,
		Online:    b.Online,
		Available: b.Available,
		InSession: inSession,
	}

	if b.LastHeartbeat != nil {
		iso := time.Unix(*b.LastHeartbeat, 0).UTC().Format(time.RFC3339)
		resp.LastHeartbeatIso = &iso
	}

	return resp
}

// SetFlagRequest is the body for the availability and online toggles.
type SetFlagRequest struct {
	Value *bool `json:"value"`
}
