package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lmercier/libris/internal/liberr"
	"github.com/lmercier/libris/internal/model"
)

// CreateLoan creates a direct loan: an availability unit is consumed and a
// loan inserted in one transaction. The due date is fixed here and never
// recomputed, even if the loan period changes later. Dates are normalized
// to UTC midnight.
func CreateLoan(ctx context.Context, db *sql.DB, userID, docID int64, period int, now time.Time) (*model.Loan, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, liberr.Storage("beginning transaction", err)
	}
	defer tx.Rollback()

	loanID, err := createLoanTx(ctx, tx, userID, docID, period, now)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, liberr.Storage("committing loan", err)
	}

	return GetLoan(ctx, db, loanID)
}

// createLoanTx consumes one unit of availability and inserts the loan row.
// Shared by direct loans and request approval so both commit under the same
// transaction boundary.
func createLoanTx(ctx context.Context, tx *sql.Tx, userID, docID int64, period int, now time.Time) (int64, error) {
	if err := adjustAvailability(ctx, tx, docID, -1); err != nil {
		return 0, err
	}

	loanDate := model.Day(now)
	dueDate := loanDate.AddDate(0, 0, period)

	result, err := tx.ExecContext(ctx,
		`INSERT INTO loans (user_id, document_id, loan_date, due_date) VALUES (?, ?, ?, ?)`,
		userID, docID, loanDate, dueDate,
	)
	if err != nil {
		return 0, liberr.Storage("creating loan", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("getting loan id: %w", err)
	}
	return id, nil
}

// ReturnLoan closes the oldest open loan for a document and restores one
// unit of availability. Inventory is tracked in aggregate, not per physical
// copy, so a return targets the document rather than a specific loan.
func ReturnLoan(ctx context.Context, db *sql.DB, docID int64, now time.Time) (*model.Loan, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, liberr.Storage("beginning transaction", err)
	}
	defer tx.Rollback()

	var loanID int64
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM loans
		 WHERE document_id = ? AND return_date IS NULL
		 ORDER BY loan_date, id
		 LIMIT 1`, docID,
	).Scan(&loanID)
	if err == sql.ErrNoRows {
		return nil, liberr.New(liberr.CodeNoOpenLoan, "no open loan for this document").WithID(docID)
	}
	if err != nil {
		return nil, liberr.Storage("finding open loan", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE loans SET return_date = ? WHERE id = ?`,
		model.Day(now), loanID,
	)
	if err != nil {
		return nil, liberr.Storage("closing loan", err)
	}

	if err := adjustAvailability(ctx, tx, docID, +1); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, liberr.Storage("committing return", err)
	}

	return GetLoan(ctx, db, loanID)
}

// GetLoan returns a loan by ID, with document title and kind joined in.
func GetLoan(ctx context.Context, db *sql.DB, id int64) (*model.Loan, error) {
	l := &model.Loan{}
	var returnDate sql.NullTime
	var title, kind sql.NullString
	err := db.QueryRowContext(ctx,
		`SELECT l.id, l.user_id, l.document_id, l.loan_date, l.due_date, l.return_date,
		        d.title, d.kind
		 FROM loans l
		 LEFT JOIN documents d ON d.id = l.document_id
		 WHERE l.id = ?`, id,
	).Scan(&l.ID, &l.UserID, &l.DocumentID, &l.LoanDate, &l.DueDate, &returnDate, &title, &kind)
	if err == sql.ErrNoRows {
		return nil, liberr.NotFound("loan", id)
	}
	if err != nil {
		return nil, liberr.Storage("getting loan", err)
	}
	if returnDate.Valid {
		l.ReturnDate = &returnDate.Time
	}
	l.DocumentTitle = title.String
	l.DocumentKind = kind.String
	return l, nil
}

// ListUserLoans returns all loans for a user, open and closed, most recent
// first.
func ListUserLoans(ctx context.Context, db *sql.DB, userID int64) ([]model.Loan, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT l.id, l.user_id, l.document_id, l.loan_date, l.due_date, l.return_date,
		        d.title, d.kind
		 FROM loans l
		 LEFT JOIN documents d ON d.id = l.document_id
		 WHERE l.user_id = ?
		 ORDER BY l.loan_date DESC, l.id DESC`, userID,
	)
	if err != nil {
		return nil, liberr.Storage("listing loans", err)
	}
	defer rows.Close()

	return scanLoans(rows)
}

// ListOpenLoans returns every open loan, oldest first. Used by the admin
// overview to spot overdue documents.
func ListOpenLoans(ctx context.Context, db *sql.DB) ([]model.Loan, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT l.id, l.user_id, l.document_id, l.loan_date, l.due_date, l.return_date,
		        d.title, d.kind
		 FROM loans l
		 LEFT JOIN documents d ON d.id = l.document_id
		 WHERE l.return_date IS NULL
		 ORDER BY l.loan_date, l.id`,
	)
	if err != nil {
		return nil, liberr.Storage("listing open loans", err)
	}
	defer rows.Close()

	return scanLoans(rows)
}

// HasOpenLoan reports whether the user currently holds an open loan for the
// document.
func HasOpenLoan(ctx context.Context, db *sql.DB, userID, docID int64) (bool, error) {
	var count int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM loans
		 WHERE user_id = ? AND document_id = ? AND return_date IS NULL`,
		userID, docID,
	).Scan(&count)
	if err != nil {
		return false, liberr.Storage("checking open loan", err)
	}
	return count > 0, nil
}

func scanLoans(rows *sql.Rows) ([]model.Loan, error) {
	var loans []model.Loan
	for rows.Next() {
		var l model.Loan
		var returnDate sql.NullTime
		var title, kind sql.NullString
		if err := rows.Scan(&l.ID, &l.UserID, &l.DocumentID, &l.LoanDate, &l.DueDate,
			&returnDate, &title, &kind); err != nil {
			return nil, fmt.Errorf("scanning loan: %w", err)
		}
		if returnDate.Valid {
			l.ReturnDate = &returnDate.Time
		}
		l.DocumentTitle = title.String
		l.DocumentKind = kind.String
		loans = append(loans, l)
	}
	return loans, rows.Err()
}
