package model

import "time"

// Loan statuses, derived from the stored dates rather than persisted.
const (
	LoanReturned   = "returned"
	LoanOverdue    = "overdue"
	LoanInProgress = "in_progress"
)

// Loan is a borrowing record consuming one unit of a document's
// availability. DueDate is fixed at creation and never recomputed.
type Loan struct {
	ID         int64      `json:"id"`
	UserID     int64      `json:"user_id"`
	DocumentID int64      `json:"document_id"`
	LoanDate   time.Time  `json:"loan_date"`
	DueDate    time.Time  `json:"due_date"`
	ReturnDate *time.Time `json:"return_date,omitempty"`

	// Joined fields (not always populated).
	DocumentTitle string `json:"document_title,omitempty"`
	DocumentKind  string `json:"document_kind,omitempty"`
}

// Open reports whether the loan has not been returned.
func (l *Loan) Open() bool { return l.ReturnDate == nil }

// DaysLate returns the whole days past the due date at the return date, or
// at now for open loans. Never negative. All loan dates are calendar-day
// granular, so the division is exact.
func (l *Loan) DaysLate(now time.Time) int {
	end := now
	if l.ReturnDate != nil {
		end = *l.ReturnDate
	}
	if !end.After(l.DueDate) {
		return 0
	}
	return int(end.Sub(l.DueDate).Hours() / 24)
}

// Status returns returned, overdue or in_progress as of now.
func (l *Loan) Status(now time.Time) string {
	if l.ReturnDate != nil {
		return LoanReturned
	}
	if now.After(l.DueDate) {
		return LoanOverdue
	}
	return LoanInProgress
}

// Day truncates t to UTC midnight. Loan, due and return dates are stored at
// day granularity so that days-late arithmetic stays whole.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
