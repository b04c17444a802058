package store

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/lmercier/libris/internal/db"
	"github.com/lmercier/libris/internal/liberr"
	"github.com/lmercier/libris/internal/model"
)

func mustCreateUser(t *testing.T, database *sql.DB, username, role string) *model.User {
	t.Helper()
	user, err := CreateUser(context.Background(), database, username, "x", role)
	if err != nil {
		t.Fatalf("CreateUser(%s): %v", username, err)
	}
	return user
}

func TestCreateLoanConsumesAvailability(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 15, 30, 0, 0, time.UTC)

	user := mustCreateUser(t, database, "alice", model.RoleMember)
	doc := mustCreateDocument(t, database, newBook("1984", "George Orwell"))

	loan, err := CreateLoan(ctx, database, user.ID, doc.ID, 14, now)
	if err != nil {
		t.Fatalf("CreateLoan: %v", err)
	}

	if !loan.LoanDate.Equal(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("loan date not normalized to midnight: %v", loan.LoanDate)
	}
	if !loan.DueDate.Equal(time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("due date should be loan date + 14 days: %v", loan.DueDate)
	}

	got, _ := GetDocument(ctx, database, doc.ID)
	if got.Available != 0 {
		t.Errorf("availability should be 0, got %d", got.Available)
	}
}

func TestCreateLoanUnavailable(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	now := time.Now()

	alice := mustCreateUser(t, database, "alice", model.RoleMember)
	bob := mustCreateUser(t, database, "bob", model.RoleMember)
	doc := mustCreateDocument(t, database, newBook("1984", "George Orwell"))

	if _, err := CreateLoan(ctx, database, alice.ID, doc.ID, 14, now); err != nil {
		t.Fatalf("first loan: %v", err)
	}

	// Single copy already out: a second direct loan must fail and leave
	// no partial state.
	_, err := CreateLoan(ctx, database, bob.ID, doc.ID, 14, now)
	if liberr.CodeOf(err) != liberr.CodeUnavailable {
		t.Errorf("expected UNAVAILABLE, got %v", err)
	}

	got, _ := GetDocument(ctx, database, doc.ID)
	if got.Available != 0 {
		t.Errorf("availability must stay 0, got %d", got.Available)
	}
	var count int
	database.QueryRow(`SELECT COUNT(*) FROM loans WHERE document_id = ?`, doc.ID).Scan(&count)
	if count != 1 {
		t.Errorf("expected exactly 1 loan row, got %d", count)
	}
}

func TestCreateLoanMissingDocument(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	alice := mustCreateUser(t, database, "alice", model.RoleMember)

	_, err := CreateLoan(ctx, database, alice.ID, 9999, 14, time.Now())
	if liberr.CodeOf(err) != liberr.CodeNotFound {
		t.Errorf("expected NOT_FOUND for unknown document, got %v", err)
	}

	var count int
	database.QueryRow(`SELECT COUNT(*) FROM loans`).Scan(&count)
	if count != 0 {
		t.Errorf("no loan row should exist, got %d", count)
	}
}

func TestReturnLoanFIFO(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	alice := mustCreateUser(t, database, "alice", model.RoleMember)
	bob := mustCreateUser(t, database, "bob", model.RoleMember)
	doc := mustCreateDocument(t, database, newBook("1984", "George Orwell"))
	SetTotalQuantity(ctx, database, doc.ID, 2)

	day1 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)

	first, _ := CreateLoan(ctx, database, alice.ID, doc.ID, 14, day1)
	CreateLoan(ctx, database, bob.ID, doc.ID, 14, day2)

	returned, err := ReturnLoan(ctx, database, doc.ID, day2)
	if err != nil {
		t.Fatalf("ReturnLoan: %v", err)
	}
	if returned.ID != first.ID {
		t.Errorf("return should close the oldest open loan %d, closed %d", first.ID, returned.ID)
	}
	if returned.ReturnDate == nil {
		t.Error("return date not set")
	}

	got, _ := GetDocument(ctx, database, doc.ID)
	if got.Available != 1 {
		t.Errorf("availability should be 1 after one return, got %d", got.Available)
	}
}

func TestReturnLoanNoOpenLoan(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	doc := mustCreateDocument(t, database, newBook("1984", "George Orwell"))

	_, err := ReturnLoan(ctx, database, doc.ID, time.Now())
	if liberr.CodeOf(err) != liberr.CodeNoOpenLoan {
		t.Errorf("expected NO_OPEN_LOAN, got %v", err)
	}

	got, _ := GetDocument(ctx, database, doc.ID)
	if got.Available != 1 {
		t.Errorf("failed return must not change availability, got %d", got.Available)
	}
}

func TestListUserLoansOrder(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	alice := mustCreateUser(t, database, "alice", model.RoleMember)
	oldDoc := mustCreateDocument(t, database, newBook("Old", "A"))
	newDoc := mustCreateDocument(t, database, newBook("New", "B"))

	CreateLoan(ctx, database, alice.ID, oldDoc.ID, 14, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	ReturnLoan(ctx, database, oldDoc.ID, time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC))
	CreateLoan(ctx, database, alice.ID, newDoc.ID, 14, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC))

	loans, err := ListUserLoans(ctx, database, alice.ID)
	if err != nil {
		t.Fatalf("ListUserLoans: %v", err)
	}
	if len(loans) != 2 {
		t.Fatalf("expected 2 loans (open and closed), got %d", len(loans))
	}
	if loans[0].DocumentTitle != "New" || loans[1].DocumentTitle != "Old" {
		t.Errorf("loans not in descending date order: %s, %s", loans[0].DocumentTitle, loans[1].DocumentTitle)
	}
}

func TestConcurrentLoansSingleCopy(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	now := time.Now()

	doc := mustCreateDocument(t, database, newBook("1984", "George Orwell"))

	const attempts = 8
	users := make([]*model.User, attempts)
	for i := range users {
		users[i] = mustCreateUser(t, database, "user"+string(rune('a'+i)), model.RoleMember)
	}

	var wg sync.WaitGroup
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(uid int64) {
			defer wg.Done()
			_, err := CreateLoan(ctx, database, uid, doc.ID, 14, now)
			results <- err
		}(users[i].ID)
	}
	wg.Wait()
	close(results)

	var successes, unavailable int
	for err := range results {
		switch {
		case err == nil:
			successes++
		case liberr.CodeOf(err) == liberr.CodeUnavailable:
			unavailable++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}

	if successes != 1 {
		t.Errorf("exactly one concurrent loan must win, got %d", successes)
	}
	if unavailable != attempts-1 {
		t.Errorf("expected %d UNAVAILABLE failures, got %d", attempts-1, unavailable)
	}

	got, _ := GetDocument(ctx, database, doc.ID)
	if got.Available != 0 {
		t.Errorf("availability must end at 0, got %d", got.Available)
	}
}

func TestAvailabilityStaysInBounds(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	now := time.Now()

	alice := mustCreateUser(t, database, "alice", model.RoleMember)
	doc := mustCreateDocument(t, database, newBook("1984", "George Orwell"))
	SetTotalQuantity(ctx, database, doc.ID, 2)

	// Random-ish interleaving of loans and returns; bounds must hold
	// throughout.
	ops := []struct {
		loan bool
		ok   bool
	}{
		{true, true}, {true, true}, {true, false},
		{false, true}, {true, true},
		{false, true}, {false, true}, {false, false},
	}
	for i, op := range ops {
		var err error
		if op.loan {
			_, err = CreateLoan(ctx, database, alice.ID, doc.ID, 14, now)
		} else {
			_, err = ReturnLoan(ctx, database, doc.ID, now)
		}
		if op.ok && err != nil {
			t.Fatalf("op %d failed unexpectedly: %v", i, err)
		}
		if !op.ok && err == nil {
			t.Fatalf("op %d should have failed", i)
		}

		got, _ := GetDocument(ctx, database, doc.ID)
		if got.Available < 0 || got.Available > got.Total {
			t.Fatalf("availability %d out of bounds [0, %d] after op %d", got.Available, got.Total, i)
		}
	}
}
