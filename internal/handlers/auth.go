package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"trovr-backend/internal/apperr"
	"trovr-backend/internal/database"
	"trovr-backend/internal/middleware"
	"trovr-backend/internal/models"
	"trovr-backend/pkg/utils"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

type SignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	OK    bool                 `json:"ok"`
	Token string               `json:"token,omitempty"`
	User  *models.UserResponse `json:"user,omitempty"`
}

const minPasswordLength = 8

// Signup creates a user account and logs it in.
func Signup(store *database.Store, jwtSecret string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SignupRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			utils.RespondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		req.Email = strings.ToLower(strings.TrimSpace(req.Email))
		req.Name = strings.TrimSpace(req.Name)
		if req.Email == "" || req.Name == "" || req.Password == "" {
			utils.RespondError(w, http.StatusBadRequest, "Email, password and name are required")
			return
		}
		if len(req.Password) < minPasswordLength {
			utils.RespondError(w, http.StatusBadRequest, "Password must be at least 8 characters")
			return
		}

		slog.Info("📝 signup attempt", "email", req.Email)

		_, err := store.GetUserByEmail(r.Context(), req.Email)
		if err == nil {
			utils.RespondError(w, http.StatusConflict, "User with this email already exists")
			return
		}
		if !errors.Is(err, apperr.ErrNotFound) {
			utils.RespondDomainError(w, r, err)
			return
		}

		hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			slog.Error("❌ failed to hash password", "err", err)
			utils.RespondError(w, http.StatusInternalServerError, "Failed to hash password")
			return
		}

		now := time.Now().Unix()
		user := &models.User{
			ID:        uuid.New().String(),
			Email:     req.Email,
			Password:  string(hashedPassword),
			Name:      req.Name,
			Role:      models.RoleUser,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := store.CreateUser(r.Context(), user); err != nil {
			utils.RespondDomainError(w, r, err)
			return
		}

		respondWithToken(w, http.StatusCreated, jwtSecret, user)
		slog.Info("✅ user created", "email", user.Email, "user_id", user.ID)
	}
}

// Login checks email and password and returns a signed token.
func Login(store *database.Store, jwtSecret string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req LoginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			utils.RespondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		email := strings.ToLower(strings.TrimSpace(req.Email))
		slog.Info("🔐 login attempt", "email", email)

		user, err := store.GetUserByEmail(r.Context(), email)
		if errors.Is(err, apperr.ErrNotFound) {
			slog.Info("❌ user not found", "email", email)
			utils.RespondJSON(w, http.StatusUnauthorized, LoginResponse{OK: false})
			return
		}
		if err != nil {
			utils.RespondDomainError(w, r, err)
			return
		}

		if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
			slog.Info("❌ invalid password", "email", email)
			utils.RespondJSON(w, http.StatusUnauthorized, LoginResponse{OK: false})
			return
		}

		respondWithToken(w, http.StatusOK, jwtSecret, user)
		slog.Info("✅ login successful", "email", user.Email, "role", user.Role)
	}
}

func respondWithToken(w http.ResponseWriter, status int, jwtSecret string, user *models.User) {
	token, err := middleware.IssueToken(jwtSecret, middleware.UserClaims{
		UserID: user.ID,
		Email:  user.Email,
		Role:   user.Role,
	}, time.Now())
	if err != nil {
		slog.Error("❌ failed to create token", "err", err)
		utils.RespondError(w, http.StatusInternalServerError, "Failed to create token")
		return
	}

	userResponse := user.ToUserResponse()
	utils.RespondJSON(w, status, LoginResponse{
		OK:    true,
		Token: token,
		User:  &userResponse,
	})
}
