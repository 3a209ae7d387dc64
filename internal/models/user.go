package models

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

type User struct {
	ID               string `json:"id" db:"id"`
	Email            string `json:"email" db:"email"`
	Password         string `json:"-" db:"password"` // Never return password in JSON
	Name             string `json:"name" db:"name"`
	Role             string `json:"role" db:"role"` // "user" or "admin"
	BalanceCents     int64  `json:"balance_cents" db:"balance_cents"`
	RecycledCount    int    `json:"recycled_count" db:"recycled_count"`
	LastSessionStart *int64 `json:"last_session_start,omitempty" db:"last_session_start"`
	LastSessionEnd   *int64 `json:"last_session_end,omitempty" db:"last_session_end"`
	CreatedAt        int64  `json:"created_at" db:"created_at"`
	UpdatedAt        int64  `json:"updated_at" db:"updated_at"`
}

type UserResponse struct {
	ID               string  `json:"id"`
	Email            string  `json:"email"`
	Name             string  `json:"name"`
	Role             string  `json:"role"`
	Balance          float64 `json:"balance"`
	RecycledCount    int     `json:"recycled_count"`
	LastSessionStart *int64  `json:"last_session_start,omitempty"`
	LastSessionEnd   *int64  `json:"last_session_end,omitempty"`
	CreatedAt        int64   `json:"created_at"`
}

func (u *User) ToUserResponse() UserResponse {
	return UserResponse{
		ID:               u.ID,
		Email:            u.Email,
		Name:             u.Name,
		Role:             u.Role,
		Balance:          CentsToAmount(u.BalanceCents),
		RecycledCount:    u.RecycledCount,
		LastSessionStart: u.LastSessionStart,
		LastSessionEnd:   u.LastSessionEnd,
		CreatedAt:        u.CreatedAt,
	}
}

// CentsToAmount converts integer cents to a decimal amount for display.
func CentsToAmount(cents int64) float64 {
	return float64(cents) / 100
}
