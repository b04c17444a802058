package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/lmercier/libris/internal/liberr"
)

// AuditEntry is one recorded action.
type AuditEntry struct {
	ID        int64     `json:"id"`
	Action    string    `json:"action"`
	UserID    *int64    `json:"user_id,omitempty"`
	Details   string    `json:"details,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// RecordAction writes an audit entry. The audit trail is best effort: a
// failure here is logged and must never fail the operation that triggered
// it, so this function returns nothing.
func RecordAction(ctx context.Context, db *sql.DB, action string, userID int64, details string) {
	var uid any
	if userID > 0 {
		uid = userID
	}
	_, err := db.ExecContext(ctx,
		`INSERT INTO audit_log (action, user_id, details) VALUES (?, ?, ?)`,
		action, uid, details,
	)
	if err != nil {
		slog.Warn("audit record failed", "action", action, "error", err)
	}
}

// ListAuditLog returns the most recent audit entries, newest first, capped
// at limit (default 100).
func ListAuditLog(ctx context.Context, db *sql.DB, limit int) ([]AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.QueryContext(ctx,
		`SELECT id, action, user_id, details, created_at
		 FROM audit_log ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, liberr.Storage("listing audit log", err)
	}
	defer rows.Close()

	var entries []AuditEntry
	for rows.Next() {
		var e AuditEntry
		var uid sql.NullInt64
		var details sql.NullString
		if err := rows.Scan(&e.ID, &e.Action, &uid, &details, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning audit entry: %w", err)
		}
		if uid.Valid {
			e.UserID = &uid.Int64
		}
		e.Details = details.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
