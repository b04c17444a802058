package store

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/lmercier/libris/internal/db"
	"github.com/lmercier/libris/internal/liberr"
	"github.com/lmercier/libris/internal/model"
)

func TestGetJWTSecretStable(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	first, err := GetJWTSecret(ctx, database)
	if err != nil {
		t.Fatalf("GetJWTSecret: %v", err)
	}
	if len(first) != 64 {
		t.Errorf("expected 32-byte hex secret, got %d chars", len(first))
	}

	second, _ := GetJWTSecret(ctx, database)
	if first != second {
		t.Error("secret must be stable across calls")
	}
}

func TestFeePolicyDefaultAndOverride(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	policy, err := LoadFeePolicy(ctx, database)
	if err != nil {
		t.Fatalf("LoadFeePolicy: %v", err)
	}
	if policy.LoanPeriodDays != 14 {
		t.Errorf("expected default 14-day loan period, got %d", policy.LoanPeriodDays)
	}
	if !policy.BookDailyRate.Equal(decimal.RequireFromString("0.50")) {
		t.Errorf("unexpected default book rate: %s", policy.BookDailyRate)
	}

	policy.BookDailyRate = decimal.RequireFromString("0.75")
	policy.LoanPeriodDays = 21
	if err := SaveFeePolicy(ctx, database, policy); err != nil {
		t.Fatalf("SaveFeePolicy: %v", err)
	}

	loaded, err := LoadFeePolicy(ctx, database)
	if err != nil {
		t.Fatalf("LoadFeePolicy after save: %v", err)
	}
	if !loaded.BookDailyRate.Equal(decimal.RequireFromString("0.75")) || loaded.LoanPeriodDays != 21 {
		t.Errorf("override did not round-trip: %+v", loaded)
	}
}

func TestSaveFeePolicyRejectsBadPeriod(t *testing.T) {
	database := db.NewTestDB(t)

	policy := model.DefaultFeePolicy()
	policy.LoanPeriodDays = 0
	err := SaveFeePolicy(context.Background(), database, policy)
	if liberr.CodeOf(err) != liberr.CodeValidation {
		t.Errorf("expected VALIDATION, got %v", err)
	}
}
