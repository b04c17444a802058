package model

import "time"

// Borrow request statuses. A request only ever moves out of pending, and
// never back in: relaunching creates a fresh pending request instead.
const (
	RequestPending   = "pending"
	RequestApproved  = "approved"
	RequestRejected  = "rejected"
	RequestCancelled = "cancelled"
)

// BorrowRequest is a user's intent to borrow a document, awaiting an
// administrator's decision. Requests are never physically deleted.
type BorrowRequest struct {
	ID         int64     `json:"id"`
	UserID     int64     `json:"user_id"`
	DocumentID int64     `json:"document_id"`
	CreatedAt  time.Time `json:"created_at"`
	Status     string    `json:"status"`
	Comment    string    `json:"comment,omitempty"`

	// Joined fields (not always populated).
	Username      string `json:"username,omitempty"`
	DocumentTitle string `json:"document_title,omitempty"`
}
