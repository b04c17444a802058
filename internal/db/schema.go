package db

import (
	"database/sql"
	"fmt"
)

// schema is the full database schema.
const schema = `
CREATE TABLE IF NOT EXISTS users (
    id            INTEGER PRIMARY KEY,
    username      TEXT NOT NULL,
    password_hash TEXT NOT NULL,
    role          TEXT NOT NULL DEFAULT 'member' CHECK (role IN ('administrator', 'member')),
    created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    deleted_at    DATETIME
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_users_username_active
    ON users(username) WHERE deleted_at IS NULL;

CREATE TABLE IF NOT EXISTS documents (
    id                 INTEGER PRIMARY KEY,
    kind               TEXT NOT NULL CHECK (kind IN ('book', 'magazine', 'newspaper', 'media')),
    title              TEXT NOT NULL,
    attributes         TEXT NOT NULL DEFAULT '{}',
    total_quantity     INTEGER NOT NULL DEFAULT 1 CHECK (total_quantity >= 1),
    available_quantity INTEGER NOT NULL DEFAULT 1 CHECK (available_quantity >= 0 AND available_quantity <= total_quantity),
    cover              BLOB,
    cover_mime         TEXT,
    created_at         DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at         DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_documents_kind_title
    ON documents(kind, LOWER(title));

CREATE TABLE IF NOT EXISTS borrow_requests (
    id          INTEGER PRIMARY KEY,
    user_id     INTEGER NOT NULL REFERENCES users(id),
    document_id INTEGER NOT NULL,
    created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    status      TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'approved', 'rejected', 'cancelled')),
    comment     TEXT
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_requests_one_pending
    ON borrow_requests(user_id, document_id) WHERE status = 'pending';

CREATE TABLE IF NOT EXISTS loans (
    id          INTEGER PRIMARY KEY,
    user_id     INTEGER NOT NULL REFERENCES users(id),
    document_id INTEGER NOT NULL,
    loan_date   DATETIME NOT NULL,
    due_date    DATETIME NOT NULL,
    return_date DATETIME
);

CREATE INDEX IF NOT EXISTS idx_loans_open
    ON loans(document_id) WHERE return_date IS NULL;

CREATE TABLE IF NOT EXISTS settings (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS revoked_tokens (
    jti        TEXT PRIMARY KEY,
    expires_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS audit_log (
    id         INTEGER PRIMARY KEY,
    action     TEXT NOT NULL,
    user_id    INTEGER,
    details    TEXT,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// EnsureSchema creates all tables and indexes if they don't already exist.
func EnsureSchema(db *sql.DB) error {
	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}
