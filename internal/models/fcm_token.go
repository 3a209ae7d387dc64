package models

// FCMToken represents a Firebase Cloud Messaging token for a user
type FCMToken struct {
	Token      string `json:"token" db:"token"`
	UserID     string `json:"user_id" db:"user_id"`
	DeviceType string `json:"device_type" db:"device_type"` // "ios", "android" or "web"
	CreatedAt  int64  `json:"created_at" db:"created_at"`
	UpdatedAt  int64  `json:"updated_at" db:"updated_at"`
}

type RegisterFCMTokenRequest struct {
	Token      string `json:"token"`
	DeviceType string `json:"device_type"`
}
