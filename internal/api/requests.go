package api

import (
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/lmercier/libris/internal/model"
	"github.com/lmercier/libris/internal/store"
)

// RequestsHandler handles borrow-request endpoints.
type RequestsHandler struct {
	DB *sql.DB
}

type createRequestRequest struct {
	DocumentID int64 `json:"document_id" validate:"required,min=1"`
}

type decisionRequest struct {
	Decision string `json:"decision" validate:"required,oneof=approved rejected"`
	Comment  string `json:"comment"`
}

// Create handles POST /api/requests.
func (h *RequestsHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())

	var req createRequestRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	created, err := store.CreateRequest(r.Context(), h.DB, claims.UserID, req.DocumentID, time.Now())
	if err != nil {
		writeError(w, err)
		return
	}

	store.RecordAction(r.Context(), h.DB, "request.create", claims.UserID,
		fmt.Sprintf("document=%d request=%d", req.DocumentID, created.ID))
	jsonResponse(w, http.StatusCreated, created)
}

// List handles GET /api/requests. The optional status query parameter
// filters the decision queue.
func (h *RequestsHandler) List(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	requests, err := store.ListRequests(r.Context(), h.DB, status)
	if err != nil {
		writeError(w, err)
		return
	}
	if requests == nil {
		requests = []model.BorrowRequest{}
	}
	jsonResponse(w, http.StatusOK, requests)
}

// ListMine handles GET /api/requests/mine.
func (h *RequestsHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())
	requests, err := store.ListUserRequests(r.Context(), h.DB, claims.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	if requests == nil {
		requests = []model.BorrowRequest{}
	}
	jsonResponse(w, http.StatusOK, requests)
}

// Decide handles POST /api/requests/{id}/decision.
func (h *RequestsHandler) Decide(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request id")
		return
	}

	var req decisionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	policy, err := store.LoadFeePolicy(r.Context(), h.DB)
	if err != nil {
		writeError(w, err)
		return
	}

	decided, err := store.DecideRequest(r.Context(), h.DB, id, req.Decision, req.Comment, policy.LoanPeriodDays, time.Now())
	if err != nil {
		writeError(w, err)
		return
	}

	claims := GetClaims(r.Context())
	store.RecordAction(r.Context(), h.DB, "request."+req.Decision, claims.UserID,
		fmt.Sprintf("request=%d user=%d document=%d", decided.ID, decided.UserID, decided.DocumentID))
	slog.Info("request decided", "admin", claims.Username, "request", id, "decision", req.Decision)
	jsonResponse(w, http.StatusOK, decided)
}

// Cancel handles POST /api/requests/{id}/cancel.
func (h *RequestsHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request id")
		return
	}

	claims := GetClaims(r.Context())
	cancelled, err := store.CancelRequest(r.Context(), h.DB, id, claims.UserID)
	if err != nil {
		writeError(w, err)
		return
	}

	store.RecordAction(r.Context(), h.DB, "request.cancel", claims.UserID,
		fmt.Sprintf("request=%d", id))
	jsonResponse(w, http.StatusOK, cancelled)
}

// Relaunch handles POST /api/requests/{id}/relaunch. Only the owner of the
// original request may relaunch it.
func (h *RequestsHandler) Relaunch(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request id")
		return
	}

	claims := GetClaims(r.Context())
	orig, err := store.GetRequest(r.Context(), h.DB, id)
	if err != nil {
		writeError(w, err)
		return
	}
	if orig.UserID != claims.UserID {
		jsonError(w, http.StatusForbidden, "request belongs to another user")
		return
	}

	relaunched, err := store.RelaunchRequest(r.Context(), h.DB, id, time.Now())
	if err != nil {
		writeError(w, err)
		return
	}

	store.RecordAction(r.Context(), h.DB, "request.relaunch", claims.UserID,
		fmt.Sprintf("original=%d new=%d", id, relaunched.ID))
	jsonResponse(w, http.StatusCreated, relaunched)
}
