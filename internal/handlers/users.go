package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"trovr-backend/internal/database"
	"trovr-backend/internal/middleware"
	"trovr-backend/internal/models"
	"trovr-backend/internal/session"
	"trovr-backend/pkg/utils"
)

type MeResponse struct {
	Success bool                    `json:"success"`
	User    models.UserResponse     `json:"user"`
	Session *models.SessionResponse `json:"session,omitempty"`
}

// GetMe returns the caller's profile, balance and open session.
func GetMe(store *database.Store, sessions *session.Table) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userClaims, ok := middleware.GetUserFromContext(r)
		if !ok {
			utils.RespondError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		user, err := store.GetUser(r.Context(), userClaims.UserID)
		if err != nil {
			utils.RespondDomainError(w, r, err)
			return
		}

		resp := MeResponse{Success: true, User: user.ToUserResponse()}
		if sess, ok := sessions.SessionForUser(user.ID); ok {
			sessionResponse := sess.ToSessionResponse()
			resp.Session = &sessionResponse
		}
		utils.RespondJSON(w, http.StatusOK, resp)
	}
}

// GetMyContainers returns the caller's most recent ledger rows across all
// sessions, newest first.
func GetMyContainers(store *database.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userClaims, ok := middleware.GetUserFromContext(r)
		if !ok {
			utils.RespondError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		limit := 50
		if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
			if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 && parsed <= 500 {
				limit = parsed
			}
		}

		entries, err := store.LedgerForUser(r.Context(), userClaims.UserID, limit)
		if err != nil {
			utils.RespondDomainError(w, r, err)
			return
		}

		containers := make([]models.LedgerEntryResponse, len(entries))
		for i := range entries {
			containers[i] = entries[i].ToLedgerEntryResponse()
		}
		utils.RespondJSON(w, http.StatusOK, map[string]interface{}{
			"success":    true,
			"containers": containers,
		})
	}
}

var validDeviceTypes = map[string]bool{"ios": true, "android": true, "web": true}

// RegisterFCMToken stores a push token for the caller. A token seen before is
// moved to the caller.
func RegisterFCMToken(store *database.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userClaims, ok := middleware.GetUserFromContext(r)
		if !ok {
			utils.RespondError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		var req models.RegisterFCMTokenRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			utils.RespondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		req.Token = strings.TrimSpace(req.Token)
		if req.Token == "" {
			utils.RespondError(w, http.StatusBadRequest, "Token is required")
			return
		}
		if req.DeviceType == "" {
			req.DeviceType = "android"
		}
		if !validDeviceTypes[req.DeviceType] {
			utils.RespondError(w, http.StatusBadRequest, "device_type must be 'ios', 'android' or 'web'")
			return
		}

		now := time.Now().Unix()
		err := store.SaveFCMToken(r.Context(), models.FCMToken{
			Token:      req.Token,
			UserID:     userClaims.UserID,
			DeviceType: req.DeviceType,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
		if err != nil {
			utils.RespondDomainError(w, r, err)
			return
		}

		slog.Info("📱 FCM token registered", "user_id", userClaims.UserID, "device_type", req.DeviceType)
		utils.RespondJSON(w, http.StatusOK, map[string]interface{}{"success": true})
	}
}
