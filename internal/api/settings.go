package api

import (
	"database/sql"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/lmercier/libris/internal/model"
	"github.com/lmercier/libris/internal/store"
)

// SettingsHandler handles fee-policy configuration and the audit trail
// (admin only).
type SettingsHandler struct {
	DB *sql.DB
}

// GetFeePolicy handles GET /api/settings/fees.
func (h *SettingsHandler) GetFeePolicy(w http.ResponseWriter, r *http.Request) {
	policy, err := store.LoadFeePolicy(r.Context(), h.DB)
	if err != nil {
		writeError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, policy)
}

// UpdateFeePolicy handles PUT /api/settings/fees. Changing rates only
// affects fees computed after the change; due dates on existing loans are
// never recomputed.
func (h *SettingsHandler) UpdateFeePolicy(w http.ResponseWriter, r *http.Request) {
	var policy model.FeePolicy
	if err := decodeJSON(r, &policy); err != nil {
		writeError(w, err)
		return
	}

	if err := store.SaveFeePolicy(r.Context(), h.DB, policy); err != nil {
		writeError(w, err)
		return
	}

	claims := GetClaims(r.Context())
	store.RecordAction(r.Context(), h.DB, "settings.fees", claims.UserID, "")
	slog.Info("fee policy updated", "admin", claims.Username)
	jsonResponse(w, http.StatusOK, policy)
}

// ListAudit handles GET /api/audit.
func (h *SettingsHandler) ListAudit(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := store.ListAuditLog(r.Context(), h.DB, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if entries == nil {
		entries = []store.AuditEntry{}
	}
	jsonResponse(w, http.StatusOK, entries)
}
