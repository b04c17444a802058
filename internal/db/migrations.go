package db

import (
	"database/sql"
	"fmt"
)

// migrations is a list of SQL statements applied in order after schema
// creation. Each migration must be idempotent. Append new migrations at the
// end.
var migrations = []string{
	// Migration 1: Backfill the partial pending-request index for databases
	// created before it was part of the base schema. At most one pending
	// request may exist per (user, document) pair.
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_requests_one_pending
	     ON borrow_requests(user_id, document_id) WHERE status = 'pending'`,
}

// Migrate runs the database schema migrations.
func Migrate(db *sql.DB) error {
	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	for i, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return fmt.Errorf("running migration %d: %w", i+1, err)
		}
	}

	return nil
}
