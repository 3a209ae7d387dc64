package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"trovr-backend/internal/apperr"
	"trovr-backend/internal/middleware"
	"trovr-backend/internal/models"
	"trovr-backend/internal/registry"
	"trovr-backend/internal/scan"
	"trovr-backend/internal/session"
	"trovr-backend/pkg/utils"
)

// ClaimSession binds the caller to the bin whose code they scanned.
func ClaimSession(sessions *session.Table, reg *registry.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userClaims, ok := middleware.GetUserFromContext(r)
		if !ok {
			utils.RespondError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		var req models.ClaimSessionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			utils.RespondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		req.QRCode = strings.TrimSpace(req.QRCode)
		if req.QRCode == "" {
			utils.RespondError(w, http.StatusBadRequest, "qrcode is required")
			return
		}

		result, err := sessions.Claim(r.Context(), userClaims.UserID, req.QRCode)
		if err != nil {
			status := utils.StatusFor(err)
			if status == http.StatusInternalServerError {
				utils.RespondDomainError(w, r, err)
				return
			}

			// Report the flags the client needs to explain the refusal.
			resp := models.ClaimSessionResponse{Success: false, Error: err.Error()}
			if bin, lookupErr := reg.GetByCode(r.Context(), req.QRCode); lookupErr == nil {
				resp.BinOnline = bin.Online
				resp.BinAvailable = bin.Available
			}
			utils.RespondJSON(w, status, resp)
			return
		}

		sessionResponse := result.Session.ToSessionResponse()
		utils.RespondJSON(w, http.StatusOK, models.ClaimSessionResponse{
			Success:      true,
			BinOnline:    result.BinOnline,
			BinAvailable: result.BinAvailable,
			Session:      &sessionResponse,
		})
	}
}

// ReleaseSession ends the caller's session. Releasing with no session is not
// an error.
func ReleaseSession(sessions *session.Table) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userClaims, ok := middleware.GetUserFromContext(r)
		if !ok {
			utils.RespondError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		closed, err := sessions.Release(r.Context(), userClaims.UserID)
		if err != nil {
			utils.RespondDomainError(w, r, err)
			return
		}

		resp := map[string]interface{}{
			"success":  true,
			"released": closed != nil,
		}
		if closed != nil {
			resp["session"] = closed.ToSessionResponse()
		}
		utils.RespondJSON(w, http.StatusOK, resp)
	}
}

// GetCurrentSession returns the caller's open session.
func GetCurrentSession(sessions *session.Table) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userClaims, ok := middleware.GetUserFromContext(r)
		if !ok {
			utils.RespondError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		sess, ok := sessions.SessionForUser(userClaims.UserID)
		if !ok {
			utils.RespondDomainError(w, r, apperr.ErrNoActiveSession)
			return
		}

		utils.RespondJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"session": sess.ToSessionResponse(),
		})
	}
}

// GetSessionContainers lists what the caller recycled in the current session.
func GetSessionContainers(proc *scan.Processor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userClaims, ok := middleware.GetUserFromContext(r)
		if !ok {
			utils.RespondError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		entries, err := proc.SessionContainers(r.Context(), userClaims.UserID)
		if err != nil {
			utils.RespondDomainError(w, r, err)
			return
		}

		var total int64
		containers := make([]models.LedgerEntryResponse, len(entries))
		for i := range entries {
			containers[i] = entries[i].ToLedgerEntryResponse()
			total += entries[i].CreditedCents
		}

		utils.RespondJSON(w, http.StatusOK, map[string]interface{}{
			"success":    true,
			"containers": containers,
			"total":      models.CentsToAmount(total),
		})
	}
}
