package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"trovr-backend/internal/apperr"
	"trovr-backend/internal/models"
)

const userColumns = `id, email, password, name, role, balance_cents, recycled_count,
	last_session_start, last_session_end, created_at, updated_at`

// CreateUser inserts a new user. Balance and counters start at zero.
func (s *Store) CreateUser(ctx context.Context, user *models.User) error {
	query := `INSERT INTO users (id, email, password, name, role, balance_cents, recycled_count, created_at, updated_at)
	          VALUES (?, ?, ?, ?, ?, 0, 0, ?, ?)`

	_, err := s.exec(ctx, "create user", query,
		user.ID, user.Email, user.Password, user.Name, user.Role, user.CreatedAt, user.UpdatedAt)
	return err
}

func (s *Store) GetUser(ctx context.Context, userID string) (*models.User, error) {
	var user models.User
	err := s.get(ctx, &user, `SELECT `+userColumns+` FROM users WHERE id = ?`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", userID, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, apperr.Persistence("get user", err)
	}
	return &user, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := s.get(ctx, &user, `SELECT `+userColumns+` FROM users WHERE email = ?`, email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", email, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, apperr.Persistence("get user by email", err)
	}
	return &user, nil
}

// SaveFCMToken registers or re-assigns a push token.
func (s *Store) SaveFCMToken(ctx context.Context, token models.FCMToken) error {
	query := `INSERT INTO fcm_tokens (token, user_id, device_type, created_at, updated_at)
	          VALUES (?, ?, ?, ?, ?)
	          ON CONFLICT (token) DO UPDATE SET
	              user_id = excluded.user_id,
	              device_type = excluded.device_type,
	              updated_at = excluded.updated_at`

	_, err := s.exec(ctx, "save fcm token", query,
		token.Token, token.UserID, token.DeviceType, token.CreatedAt, token.UpdatedAt)
	return err
}

// FCMTokensForUser returns the user's push tokens, newest first.
func (s *Store) FCMTokensForUser(ctx context.Context, userID string) ([]string, error) {
	tokens := []string{}
	err := s.sel(ctx, &tokens, `SELECT token FROM fcm_tokens WHERE user_id = ? ORDER BY updated_at DESC`, userID)
	if err != nil {
		return nil, apperr.Persistence("list fcm tokens", err)
	}
	return tokens, nil
}
