package models

import "time"

// Ledger reasons
const (
	LedgerCredited         = "credited"
	LedgerUnassigned       = "unassigned"
	LedgerUnknownContainer = "unknown_container"
	LedgerRejected         = "rejected"
)

// LedgerEntry is one append-only recycled_containers row.
type LedgerEntry struct {
	ID            string  `json:"id" db:"id"`
	UserID        *string `json:"user_id,omitempty" db:"user_id"` // nil when no session was active
	SessionID     *string `json:"session_id,omitempty" db:"session_id"`
	BinID         *string `json:"bin_id,omitempty" db:"bin_id"`
	ContainerID   *string `json:"container_id,omitempty" db:"container_id"`
	Barcode       string  `json:"barcode" db:"barcode"`
	Accepted      bool    `json:"accepted" db:"accepted"`
	CreditedCents int64   `json:"credited_cents" db:"credited_cents"`
	Reason        string  `json:"reason" db:"reason"`
	RecordedAt    int64   `json:"recorded_at" db:"recorded_at"` // Unix timestamp
}

type LedgerEntryResponse struct {
	ID            string  `json:"id"`
	Barcode       string  `json:"barcode"`
	Accepted      bool    `json:"accepted"`
	Credited      float64 `json:"credited"`
	Reason        string  `json:"reason"`
	RecordedAtIso string  `json:"recordedAtIso"`
}

func (e *LedgerEntry) ToLedgerEntryResponse() LedgerEntryResponse {
	return LedgerEntryResponse{
		ID:            e.ID,
		Barcode:       e.Barcode,
		Accepted:      e.Accepted,
		Credited:      CentsToAmount(e.CreditedCents),
		Reason:        e.Reason,
		RecordedAtIso: time.Unix(e.RecordedAt, 0).UTC().Format(time.RFC3339),
	}
}

type ScanRequest struct {
	Barcode string `json:"barcode"`
}

type RejectScanRequest struct {
	Barcode string `json:"barcode"`
}
