package utils

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"trovr-backend/internal/apperr"
)

// RespondJSON sends a JSON response
func RespondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// RespondError sends an error response
func RespondError(w http.ResponseWriter, status int, message string) {
	RespondJSON(w, status, map[string]interface{}{
		"success": false,
		"error":   message,
	})
}

// StatusFor maps a domain error to an HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, apperr.ErrNotFound), errors.Is(err, apperr.ErrNoActiveSession):
		return http.StatusNotFound
	case errors.Is(err, apperr.ErrUserHasSession), errors.Is(err, apperr.ErrBinReserved),
		errors.Is(err, apperr.ErrBinUnavailable):
		return http.StatusConflict
	case errors.Is(err, apperr.ErrUnknownContainer):
		return http.StatusUnprocessableEntity
	case errors.Is(err, apperr.ErrBinOffline):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// RespondDomainError writes err with the status StatusFor picks. Internal
// errors are logged and hidden from the client.
func RespondDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		slog.Error("❌ request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		RespondError(w, status, "Internal server error")
		return
	}
	RespondError(w, status, err.Error())
}
