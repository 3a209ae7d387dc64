package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"trovr-backend/internal/middleware"
	"trovr-backend/internal/models"
	"trovr-backend/internal/scan"
	"trovr-backend/pkg/utils"

	"github.com/go-chi/chi/v5"
)

type ScanResponse struct {
	Success  bool    `json:"success"`
	Accepted bool    `json:"accepted"`
	Credited bool    `json:"credited"`
	Amount   float64 `json:"amount"`
	LedgerID string  `json:"ledger_id"`
}

// ScanContainer is called by a bin for every container it takes in.
func ScanContainer(proc *scan.Processor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		binID := chi.URLParam(r, "id")

		var req models.ScanRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			utils.RespondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		req.Barcode = strings.TrimSpace(req.Barcode)
		if req.Barcode == "" {
			utils.RespondError(w, http.StatusBadRequest, "Barcode is required")
			return
		}

		result, err := proc.ProcessScan(r.Context(), binID, req.Barcode)
		if err != nil {
			utils.RespondDomainError(w, r, err)
			return
		}

		utils.RespondJSON(w, http.StatusOK, ScanResponse{
			Success:  true,
			Accepted: result.Accepted,
			Credited: result.Credited,
			Amount:   models.CentsToAmount(result.CreditedCents),
			LedgerID: result.LedgerID,
		})
	}
}

// RejectScan records that one of the user's containers was refused.
func RejectScan(proc *scan.Processor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userClaims, ok := middleware.GetUserFromContext(r)
		if !ok {
			utils.RespondError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		var req models.RejectScanRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			utils.RespondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		req.Barcode = strings.TrimSpace(req.Barcode)
		if req.Barcode == "" {
			utils.RespondError(w, http.StatusBadRequest, "Barcode is required")
			return
		}

		entry, err := proc.RejectScan(r.Context(), userClaims.UserID, req.Barcode)
		if err != nil {
			utils.RespondDomainError(w, r, err)
			return
		}

		utils.RespondJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"entry":   entry.ToLedgerEntryResponse(),
		})
	}
}

// VerifyContainer looks a barcode up in the catalog without crediting anyone.
func VerifyContainer(proc *scan.Processor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		barcode := chi.URLParam(r, "barcode")

		container, err := proc.VerifyBarcode(r.Context(), barcode)
		if err != nil {
			utils.RespondDomainError(w, r, err)
			return
		}

		utils.RespondJSON(w, http.StatusOK, map[string]interface{}{
			"success":   true,
			"container": container.ToContainerResponse(),
		})
	}
}
