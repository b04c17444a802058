package api

import (
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lmercier/libris/internal/model"
	"github.com/lmercier/libris/internal/store"
)

// LoansHandler handles loan ledger endpoints.
type LoansHandler struct {
	DB *sql.DB
}

type createLoanRequest struct {
	UserID     int64 `json:"user_id" validate:"required,min=1"`
	DocumentID int64 `json:"document_id" validate:"required,min=1"`
}

type returnRequest struct {
	DocumentID int64 `json:"document_id" validate:"required,min=1"`
}

// loanResult is a loan annotated with its lateness and, on return, the fee.
type loanResult struct {
	model.Loan
	LoanStatus string           `json:"loan_status"`
	DaysLate   int              `json:"days_late"`
	Fee        *decimal.Decimal `json:"fee,omitempty"`
}

func annotate(loan model.Loan, now time.Time) loanResult {
	return loanResult{
		Loan:       loan,
		LoanStatus: loan.Status(now),
		DaysLate:   loan.DaysLate(now),
	}
}

// Create handles POST /api/loans, lending a copy directly without a request.
func (h *LoansHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createLoanRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	policy, err := store.LoadFeePolicy(r.Context(), h.DB)
	if err != nil {
		writeError(w, err)
		return
	}

	loan, err := store.CreateLoan(r.Context(), h.DB, req.UserID, req.DocumentID, policy.LoanPeriodDays, time.Now())
	if err != nil {
		writeError(w, err)
		return
	}

	claims := GetClaims(r.Context())
	store.RecordAction(r.Context(), h.DB, "loan.create", claims.UserID,
		fmt.Sprintf("loan=%d user=%d document=%d", loan.ID, loan.UserID, loan.DocumentID))
	slog.Info("loan created", "admin", claims.Username, "user", loan.UserID, "document", loan.DocumentID)
	jsonResponse(w, http.StatusCreated, annotate(*loan, time.Now()))
}

// Return handles POST /api/loans/return. The oldest open loan for the
// document is closed and the late fee is computed against the current
// fee policy.
func (h *LoansHandler) Return(w http.ResponseWriter, r *http.Request) {
	var req returnRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	now := time.Now()
	loan, err := store.ReturnLoan(r.Context(), h.DB, req.DocumentID, now)
	if err != nil {
		writeError(w, err)
		return
	}

	result := annotate(*loan, now)

	doc, err := store.GetDocument(r.Context(), h.DB, loan.DocumentID)
	if err != nil {
		writeError(w, err)
		return
	}
	policy, err := store.LoadFeePolicy(r.Context(), h.DB)
	if err != nil {
		writeError(w, err)
		return
	}
	fee := policy.LateFee(doc, result.DaysLate)
	result.Fee = &fee

	claims := GetClaims(r.Context())
	store.RecordAction(r.Context(), h.DB, "loan.return", claims.UserID,
		fmt.Sprintf("loan=%d document=%d days_late=%d fee=%s", loan.ID, loan.DocumentID, result.DaysLate, fee))
	slog.Info("loan returned", "admin", claims.Username, "loan", loan.ID, "days_late", result.DaysLate, "fee", fee)
	jsonResponse(w, http.StatusOK, result)
}

// List handles GET /api/loans, the administrator's view of all open loans.
func (h *LoansHandler) List(w http.ResponseWriter, r *http.Request) {
	loans, err := store.ListOpenLoans(r.Context(), h.DB)
	if err != nil {
		writeError(w, err)
		return
	}

	now := time.Now()
	results := make([]loanResult, 0, len(loans))
	for _, loan := range loans {
		results = append(results, annotate(loan, now))
	}
	jsonResponse(w, http.StatusOK, results)
}

// ListMine handles GET /api/loans/mine.
func (h *LoansHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())
	loans, err := store.ListUserLoans(r.Context(), h.DB, claims.UserID)
	if err != nil {
		writeError(w, err)
		return
	}

	now := time.Now()
	results := make([]loanResult, 0, len(loans))
	for _, loan := range loans {
		results = append(results, annotate(loan, now))
	}
	jsonResponse(w, http.StatusOK, results)
}

// Penalty handles GET /api/loans/{id}/penalty, previewing the fee an open
// loan would incur if returned now.
func (h *LoansHandler) Penalty(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid loan id")
		return
	}

	loan, err := store.GetLoan(r.Context(), h.DB, id)
	if err != nil {
		writeError(w, err)
		return
	}

	claims := GetClaims(r.Context())
	if loan.UserID != claims.UserID && claims.Role != model.RoleAdmin {
		jsonError(w, http.StatusForbidden, "loan belongs to another user")
		return
	}

	doc, err := store.GetDocument(r.Context(), h.DB, loan.DocumentID)
	if err != nil {
		writeError(w, err)
		return
	}
	policy, err := store.LoadFeePolicy(r.Context(), h.DB)
	if err != nil {
		writeError(w, err)
		return
	}

	result := annotate(*loan, time.Now())
	fee := policy.LateFee(doc, result.DaysLate)
	result.Fee = &fee
	jsonResponse(w, http.StatusOK, result)
}
