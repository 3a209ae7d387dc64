package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"trovr-backend/internal/database"
	"trovr-backend/internal/liveness"
	"trovr-backend/internal/models"
	"trovr-backend/internal/registry"
	"trovr-backend/internal/session"
	"trovr-backend/internal/websocket"
	"trovr-backend/pkg/utils"

	"github.com/go-chi/chi/v5"
)

// ListBins returns every bin with its session state.
func ListBins(reg *registry.Registry, sessions *session.Table) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		bins, err := reg.List(r.Context())
		if err != nil {
			utils.RespondDomainError(w, r, err)
			return
		}

		responses := make([]models.BinResponse, len(bins))
		for i := range bins {
			_, inSession := sessions.Resolve(bins[i].ID)
			responses[i] = bins[i].ToBinResponse(inSession)
		}
		utils.RespondJSON(w, http.StatusOK, responses)
	}
}

// ListSessions returns the open sessions, oldest first.
func ListSessions(sessions *session.Table) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		open := sessions.Snapshot()

		responses := make([]models.SessionResponse, len(open))
		for i := range open {
			responses[i] = open[i].ToSessionResponse()
		}
		utils.RespondJSON(w, http.StatusOK, responses)
	}
}

// GetSession returns a session by ID, open or closed.
func GetSession(store *database.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := store.GetSession(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			utils.RespondDomainError(w, r, err)
			return
		}
		utils.RespondJSON(w, http.StatusOK, sess.ToSessionResponse())
	}
}

// GetStats reports open sessions and connected websocket clients.
func GetStats(sessions *session.Table, hub *websocket.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]interface{}{
			"open_sessions":     sessions.Len(),
			"websocket_clients": hub.GetClientCount(),
		})
	}
}

// SetBinOnline forces a bin's online flag, e.g. to take it out of service.
func SetBinOnline(reg *registry.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		binID := chi.URLParam(r, "id")

		var req models.SetFlagRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Value == nil {
			utils.RespondError(w, http.StatusBadRequest, "Body must be {\"value\": true|false}")
			return
		}

		if err := reg.SetOnline(r.Context(), binID, *req.Value); err != nil {
			utils.RespondDomainError(w, r, err)
			return
		}

		slog.Info("🛠️  bin online flag set", "bin_id", binID, "online", *req.Value)
		utils.RespondJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"online":  *req.Value,
		})
	}
}

// TriggerSweep runs a liveness sweep now instead of waiting for the ticker.
func TriggerSweep(monitor *liveness.Monitor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, err := monitor.Sweep(r.Context())
		if errors.Is(err, liveness.ErrSweepInProgress) {
			utils.RespondError(w, http.StatusConflict, err.Error())
			return
		}
		if err != nil {
			utils.RespondDomainError(w, r, err)
			return
		}

		utils.RespondJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"result":  result,
		})
	}
}
