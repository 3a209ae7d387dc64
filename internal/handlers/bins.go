package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"trovr-backend/internal/apperr"
	"trovr-backend/internal/database"
	"trovr-backend/internal/models"
	"trovr-backend/internal/registry"
	"trovr-backend/internal/session"
	"trovr-backend/pkg/utils"

	"github.com/go-chi/chi/v5"
)

// BinHeartbeat is called by a bin every few seconds to stay online.
func BinHeartbeat(reg *registry.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		binID := chi.URLParam(r, "id")
		if binID == "" {
			utils.RespondError(w, http.StatusBadRequest, "Bin ID is required")
			return
		}

		if err := reg.Heartbeat(r.Context(), binID); err != nil {
			utils.RespondDomainError(w, r, err)
			return
		}

		utils.RespondJSON(w, http.StatusOK, map[string]interface{}{"success": true})
	}
}

// GetBinStatus returns the bin's flags and whether someone is using it.
func GetBinStatus(reg *registry.Registry, sessions *session.Table) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		binID := chi.URLParam(r, "id")

		bin, err := reg.Get(r.Context(), binID)
		if err != nil {
			utils.RespondDomainError(w, r, err)
			return
		}

		_, inSession := sessions.Resolve(binID)
		utils.RespondJSON(w, http.StatusOK, bin.ToBinResponse(inSession))
	}
}

// SetBinAvailability applies the bin's own report that it can or cannot take
// a new user, e.g. when its hopper is full.
func SetBinAvailability(sessions *session.Table) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		binID := chi.URLParam(r, "id")

		var req models.SetFlagRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Value == nil {
			utils.RespondError(w, http.StatusBadRequest, "Body must be {\"value\": true|false}")
			return
		}

		if err := sessions.SetBinAvailable(r.Context(), binID, *req.Value); err != nil {
			utils.RespondDomainError(w, r, err)
			return
		}

		slog.Info("🗑️  bin availability reported", "bin_id", binID, "available", *req.Value)
		utils.RespondJSON(w, http.StatusOK, map[string]interface{}{
			"success":   true,
			"available": *req.Value,
		})
	}
}

type BinUserResponse struct {
	Success bool                   `json:"success"`
	User    BinUser                `json:"user"`
	Session models.SessionResponse `json:"session"`
}

type BinUser struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ConfirmBinUser lets a bin show who it is currently serving.
func ConfirmBinUser(reg *registry.Registry, sessions *session.Table, store *database.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		binID := chi.URLParam(r, "id")

		if _, err := reg.Get(r.Context(), binID); err != nil {
			utils.RespondDomainError(w, r, err)
			return
		}

		sess, ok := sessions.SessionForBin(binID)
		if !ok {
			utils.RespondDomainError(w, r, apperr.ErrNoActiveSession)
			return
		}

		user, err := store.GetUser(r.Context(), sess.UserID)
		if err != nil {
			utils.RespondDomainError(w, r, err)
			return
		}

		utils.RespondJSON(w, http.StatusOK, BinUserResponse{
			Success: true,
			User:    BinUser{ID: user.ID, Name: user.Name},
			Session: sess.ToSessionResponse(),
		})
	}
}
