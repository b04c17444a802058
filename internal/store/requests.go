package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lmercier/libris/internal/liberr"
	"github.com/lmercier/libris/internal/model"
)

// CreateRequest files a pending borrow request. It fails with Unavailable
// when the document has no availability, DuplicatePending when the user
// already has a pending request for it, and AlreadyBorrowed when the user
// already holds an open loan for it.
func CreateRequest(ctx context.Context, db *sql.DB, userID, docID int64, now time.Time) (*model.BorrowRequest, error) {
	doc, err := GetDocument(ctx, db, docID)
	if err != nil {
		return nil, err
	}
	if doc.Available <= 0 {
		return nil, liberr.New(liberr.CodeUnavailable, "document %q is not available", doc.Title).WithID(docID)
	}

	var pending int
	err = db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM borrow_requests
		 WHERE user_id = ? AND document_id = ? AND status = 'pending'`,
		userID, docID,
	).Scan(&pending)
	if err != nil {
		return nil, liberr.Storage("checking pending requests", err)
	}
	if pending > 0 {
		return nil, liberr.New(liberr.CodeDuplicatePending,
			"a request for this document is already pending").WithID(docID)
	}

	borrowed, err := HasOpenLoan(ctx, db, userID, docID)
	if err != nil {
		return nil, err
	}
	if borrowed {
		return nil, liberr.New(liberr.CodeAlreadyBorrowed,
			"you already borrowed this document").WithID(docID)
	}

	return insertRequest(ctx, db, userID, docID, now)
}

// insertRequest writes a fresh pending request. The partial unique index on
// (user_id, document_id) WHERE status = 'pending' backs up the pre-checks
// against concurrent creations.
func insertRequest(ctx context.Context, db *sql.DB, userID, docID int64, now time.Time) (*model.BorrowRequest, error) {
	result, err := db.ExecContext(ctx,
		`INSERT INTO borrow_requests (user_id, document_id, created_at, status)
		 VALUES (?, ?, ?, 'pending')`,
		userID, docID, model.Day(now),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, liberr.New(liberr.CodeDuplicatePending,
				"a request for this document is already pending").WithID(docID)
		}
		return nil, liberr.Storage("creating request", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting request id: %w", err)
	}
	return GetRequest(ctx, db, id)
}

// GetRequest returns a request by ID with username and document title
// joined in.
func GetRequest(ctx context.Context, db *sql.DB, id int64) (*model.BorrowRequest, error) {
	req := &model.BorrowRequest{}
	var comment, username, title sql.NullString
	err := db.QueryRowContext(ctx,
		`SELECT r.id, r.user_id, r.document_id, r.created_at, r.status, r.comment,
		        u.username, d.title
		 FROM borrow_requests r
		 LEFT JOIN users u ON u.id = r.user_id
		 LEFT JOIN documents d ON d.id = r.document_id
		 WHERE r.id = ?`, id,
	).Scan(&req.ID, &req.UserID, &req.DocumentID, &req.CreatedAt, &req.Status,
		&comment, &username, &title)
	if err == sql.ErrNoRows {
		return nil, liberr.NotFound("request", id)
	}
	if err != nil {
		return nil, liberr.Storage("getting request", err)
	}
	req.Comment = comment.String
	req.Username = username.String
	req.DocumentTitle = title.String
	return req, nil
}

// DecideRequest approves or rejects a pending request. Approval re-checks
// availability at decision time and commits the status change, the loan and
// the availability decrement atomically; if any step fails nothing is
// recorded. Rejection records the status and comment only.
func DecideRequest(ctx context.Context, db *sql.DB, id int64, decision, comment string, period int, now time.Time) (*model.BorrowRequest, error) {
	if decision != model.RequestApproved && decision != model.RequestRejected {
		return nil, liberr.Validation("decision must be %q or %q", model.RequestApproved, model.RequestRejected)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, liberr.Storage("beginning transaction", err)
	}
	defer tx.Rollback()

	var userID, docID int64
	var status string
	err = tx.QueryRowContext(ctx,
		`SELECT user_id, document_id, status FROM borrow_requests WHERE id = ?`, id,
	).Scan(&userID, &docID, &status)
	if err == sql.ErrNoRows {
		return nil, liberr.NotFound("request", id)
	}
	if err != nil {
		return nil, liberr.Storage("getting request", err)
	}
	if status != model.RequestPending {
		return nil, liberr.NotFound("pending request", id)
	}

	if decision == model.RequestApproved {
		// Other approvals or direct loans may have drained availability
		// since the request was filed; the guarded decrement is the
		// authoritative check.
		if _, err := createLoanTx(ctx, tx, userID, docID, period, now); err != nil {
			return nil, err
		}
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE borrow_requests SET status = ?, comment = ? WHERE id = ?`,
		decision, comment, id,
	)
	if err != nil {
		return nil, liberr.Storage("updating request", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, liberr.Storage("committing decision", err)
	}

	return GetRequest(ctx, db, id)
}

// CancelRequest cancels a pending request. Only the owning user may cancel,
// and only while the request is still pending.
func CancelRequest(ctx context.Context, db *sql.DB, id, userID int64) (*model.BorrowRequest, error) {
	req, err := GetRequest(ctx, db, id)
	if err != nil {
		return nil, err
	}
	if req.UserID != userID {
		return nil, liberr.New(liberr.CodeUnauthorized, "request belongs to another user").WithID(id)
	}
	if req.Status != model.RequestPending {
		return nil, liberr.Validation("only pending requests can be cancelled").WithID(id)
	}

	result, err := db.ExecContext(ctx,
		`UPDATE borrow_requests SET status = 'cancelled' WHERE id = ? AND status = 'pending'`,
		id,
	)
	if err != nil {
		return nil, liberr.Storage("cancelling request", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return nil, liberr.Validation("only pending requests can be cancelled").WithID(id)
	}

	return GetRequest(ctx, db, id)
}

// RelaunchRequest creates a brand-new pending request copying the user and
// document of an earlier request, whatever its status. Availability is not
// re-validated here; the decision step validates it again. The
// one-pending-per-pair invariant still holds: relaunching while a pending
// request exists fails with DuplicatePending.
func RelaunchRequest(ctx context.Context, db *sql.DB, id int64, now time.Time) (*model.BorrowRequest, error) {
	orig, err := GetRequest(ctx, db, id)
	if err != nil {
		return nil, err
	}

	return insertRequest(ctx, db, orig.UserID, orig.DocumentID, now)
}

// ListRequests returns requests filtered by status ("" for all), newest
// first. Used by the administrator's decision queue.
func ListRequests(ctx context.Context, db *sql.DB, status string) ([]model.BorrowRequest, error) {
	query := `SELECT r.id, r.user_id, r.document_id, r.created_at, r.status, r.comment,
	                 u.username, d.title
	          FROM borrow_requests r
	          LEFT JOIN users u ON u.id = r.user_id
	          LEFT JOIN documents d ON d.id = r.document_id`
	var args []any

	if status != "" {
		query += ` WHERE r.status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY r.created_at DESC, r.id DESC`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, liberr.Storage("listing requests", err)
	}
	defer rows.Close()

	return scanRequests(rows)
}

// ListUserRequests returns all of a user's requests, newest first.
func ListUserRequests(ctx context.Context, db *sql.DB, userID int64) ([]model.BorrowRequest, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT r.id, r.user_id, r.document_id, r.created_at, r.status, r.comment,
		        u.username, d.title
		 FROM borrow_requests r
		 LEFT JOIN users u ON u.id = r.user_id
		 LEFT JOIN documents d ON d.id = r.document_id
		 WHERE r.user_id = ?
		 ORDER BY r.created_at DESC, r.id DESC`, userID,
	)
	if err != nil {
		return nil, liberr.Storage("listing user requests", err)
	}
	defer rows.Close()

	return scanRequests(rows)
}

func scanRequests(rows *sql.Rows) ([]model.BorrowRequest, error) {
	var requests []model.BorrowRequest
	for rows.Next() {
		var req model.BorrowRequest
		var comment, username, title sql.NullString
		if err := rows.Scan(&req.ID, &req.UserID, &req.DocumentID, &req.CreatedAt,
			&req.Status, &comment, &username, &title); err != nil {
			return nil, fmt.Errorf("scanning request: %w", err)
		}
		req.Comment = comment.String
		req.Username = username.String
		req.DocumentTitle = title.String
		requests = append(requests, req)
	}
	return requests, rows.Err()
}
