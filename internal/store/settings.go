package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"

	"github.com/lmercier/libris/internal/liberr"
	"github.com/lmercier/libris/internal/model"
)

// GetJWTSecret retrieves the JWT secret from the settings table, generating
// and storing one on first use. INSERT OR IGNORE + re-SELECT avoids a
// TOCTOU race on concurrent startup.
func GetJWTSecret(ctx context.Context, db *sql.DB) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", liberr.Storage("generating jwt secret", err)
	}
	candidate := hex.EncodeToString(buf)

	_, err := db.ExecContext(ctx,
		`INSERT OR IGNORE INTO settings (key, value) VALUES ('jwt_secret', ?)`,
		candidate,
	)
	if err != nil {
		return "", liberr.Storage("storing jwt secret", err)
	}

	var secret string
	err = db.QueryRowContext(ctx,
		`SELECT value FROM settings WHERE key = 'jwt_secret'`,
	).Scan(&secret)
	if err != nil {
		return "", liberr.Storage("querying jwt secret", err)
	}

	return secret, nil
}

// LoadFeePolicy returns the persisted fee policy, or the default when no
// override has been saved. Overrides never touch due dates already fixed on
// existing loans.
func LoadFeePolicy(ctx context.Context, db *sql.DB) (model.FeePolicy, error) {
	policy := model.DefaultFeePolicy()

	var value string
	err := db.QueryRowContext(ctx,
		`SELECT value FROM settings WHERE key = 'fee_policy'`,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return policy, nil
	}
	if err != nil {
		return policy, liberr.Storage("loading fee policy", err)
	}

	if err := json.Unmarshal([]byte(value), &policy); err != nil {
		return model.DefaultFeePolicy(), liberr.Validation("stored fee policy is malformed: %v", err)
	}
	return policy, nil
}

// SaveFeePolicy persists a fee policy override.
func SaveFeePolicy(ctx context.Context, db *sql.DB, policy model.FeePolicy) error {
	if policy.LoanPeriodDays < 1 {
		return liberr.Validation("loan period must be at least one day")
	}

	value, err := json.Marshal(policy)
	if err != nil {
		return liberr.Validation("encoding fee policy: %v", err)
	}

	_, err = db.ExecContext(ctx,
		`INSERT INTO settings (key, value) VALUES ('fee_policy', ?)
		 ON CONFLICT (key) DO UPDATE SET value = excluded.value`,
		string(value),
	)
	if err != nil {
		return liberr.Storage("saving fee policy", err)
	}
	return nil
}
