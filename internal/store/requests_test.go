package store

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/lmercier/libris/internal/db"
	"github.com/lmercier/libris/internal/liberr"
	"github.com/lmercier/libris/internal/model"
)

func TestCreateRequest(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	now := time.Now()

	alice := mustCreateUser(t, database, "alice", model.RoleMember)
	doc := mustCreateDocument(t, database, newBook("1984", "George Orwell"))

	req, err := CreateRequest(ctx, database, alice.ID, doc.ID, now)
	if err != nil {
		t.Fatalf("CreateRequest: %v", err)
	}
	if req.Status != model.RequestPending {
		t.Errorf("expected pending, got %s", req.Status)
	}

	// Requesting does not consume availability.
	got, _ := GetDocument(ctx, database, doc.ID)
	if got.Available != 1 {
		t.Errorf("availability must be untouched by a request, got %d", got.Available)
	}
}

func TestCreateRequestDuplicatePending(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	now := time.Now()

	alice := mustCreateUser(t, database, "alice", model.RoleMember)
	doc := mustCreateDocument(t, database, newBook("1984", "George Orwell"))

	if _, err := CreateRequest(ctx, database, alice.ID, doc.ID, now); err != nil {
		t.Fatalf("first request: %v", err)
	}

	_, err := CreateRequest(ctx, database, alice.ID, doc.ID, now)
	if liberr.CodeOf(err) != liberr.CodeDuplicatePending {
		t.Errorf("expected DUPLICATE_PENDING, got %v", err)
	}

	// A different user may still request.
	bob := mustCreateUser(t, database, "bob", model.RoleMember)
	if _, err := CreateRequest(ctx, database, bob.ID, doc.ID, now); err != nil {
		t.Errorf("other user's request should succeed: %v", err)
	}
}

func TestCreateRequestAlreadyBorrowed(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	now := time.Now()

	alice := mustCreateUser(t, database, "alice", model.RoleMember)
	doc := mustCreateDocument(t, database, newBook("1984", "George Orwell"))
	SetTotalQuantity(ctx, database, doc.ID, 2)

	if _, err := CreateLoan(ctx, database, alice.ID, doc.ID, 14, now); err != nil {
		t.Fatalf("CreateLoan: %v", err)
	}

	_, err := CreateRequest(ctx, database, alice.ID, doc.ID, now)
	if liberr.CodeOf(err) != liberr.CodeAlreadyBorrowed {
		t.Errorf("expected ALREADY_BORROWED, got %v", err)
	}
}

func TestCreateRequestUnavailable(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	now := time.Now()

	alice := mustCreateUser(t, database, "alice", model.RoleMember)
	bob := mustCreateUser(t, database, "bob", model.RoleMember)
	doc := mustCreateDocument(t, database, newBook("1984", "George Orwell"))

	CreateLoan(ctx, database, alice.ID, doc.ID, 14, now)

	_, err := CreateRequest(ctx, database, bob.ID, doc.ID, now)
	if liberr.CodeOf(err) != liberr.CodeUnavailable {
		t.Errorf("expected UNAVAILABLE, got %v", err)
	}
}

func TestDecideRequestApproved(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	alice := mustCreateUser(t, database, "alice", model.RoleMember)
	doc := mustCreateDocument(t, database, newBook("1984", "George Orwell"))
	req, _ := CreateRequest(ctx, database, alice.ID, doc.ID, now)

	decided, err := DecideRequest(ctx, database, req.ID, model.RequestApproved, "enjoy", 14, now)
	if err != nil {
		t.Fatalf("DecideRequest: %v", err)
	}
	if decided.Status != model.RequestApproved || decided.Comment != "enjoy" {
		t.Errorf("unexpected decision record: %+v", decided)
	}

	// Approval creates the loan and consumes availability.
	got, _ := GetDocument(ctx, database, doc.ID)
	if got.Available != 0 {
		t.Errorf("availability should be 0 after approval, got %d", got.Available)
	}
	loans, _ := ListUserLoans(ctx, database, alice.ID)
	if len(loans) != 1 {
		t.Fatalf("expected 1 loan after approval, got %d", len(loans))
	}
	if !loans[0].DueDate.Equal(time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("due date fixed at decision time + period: %v", loans[0].DueDate)
	}
}

func TestDecideRequestRejectedLeavesStateUnchanged(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	now := time.Now()

	alice := mustCreateUser(t, database, "alice", model.RoleMember)
	doc := mustCreateDocument(t, database, newBook("1984", "George Orwell"))
	req, _ := CreateRequest(ctx, database, alice.ID, doc.ID, now)

	decided, err := DecideRequest(ctx, database, req.ID, model.RequestRejected, "out of stock", 14, now)
	if err != nil {
		t.Fatalf("DecideRequest: %v", err)
	}
	if decided.Status != model.RequestRejected || decided.Comment != "out of stock" {
		t.Errorf("unexpected decision record: %+v", decided)
	}

	got, _ := GetDocument(ctx, database, doc.ID)
	if got.Available != 1 {
		t.Errorf("rejection must not change availability, got %d", got.Available)
	}
	loans, _ := ListUserLoans(ctx, database, alice.ID)
	if len(loans) != 0 {
		t.Errorf("rejection must not create a loan, got %d", len(loans))
	}
}

func TestDecideRequestRevalidatesAvailability(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	now := time.Now()

	alice := mustCreateUser(t, database, "alice", model.RoleMember)
	bob := mustCreateUser(t, database, "bob", model.RoleMember)
	doc := mustCreateDocument(t, database, newBook("1984", "George Orwell"))

	req, _ := CreateRequest(ctx, database, alice.ID, doc.ID, now)

	// A direct loan races the approval and drains the last copy.
	if _, err := CreateLoan(ctx, database, bob.ID, doc.ID, 14, now); err != nil {
		t.Fatalf("CreateLoan: %v", err)
	}

	_, err := DecideRequest(ctx, database, req.ID, model.RequestApproved, "", 14, now)
	if liberr.CodeOf(err) != liberr.CodeUnavailable {
		t.Errorf("expected UNAVAILABLE at decision time, got %v", err)
	}

	// The failed approval must not have flipped the request or touched
	// anything else.
	got, _ := GetRequest(ctx, database, req.ID)
	if got.Status != model.RequestPending {
		t.Errorf("request must stay pending after failed approval, got %s", got.Status)
	}
	loans, _ := ListUserLoans(ctx, database, alice.ID)
	if len(loans) != 0 {
		t.Errorf("failed approval must not create a loan, got %d", len(loans))
	}
}

func TestDecideRequestNotPending(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	now := time.Now()

	alice := mustCreateUser(t, database, "alice", model.RoleMember)
	doc := mustCreateDocument(t, database, newBook("1984", "George Orwell"))
	req, _ := CreateRequest(ctx, database, alice.ID, doc.ID, now)
	DecideRequest(ctx, database, req.ID, model.RequestRejected, "", 14, now)

	_, err := DecideRequest(ctx, database, req.ID, model.RequestApproved, "", 14, now)
	if liberr.CodeOf(err) != liberr.CodeNotFound {
		t.Errorf("deciding a settled request: expected NOT_FOUND, got %v", err)
	}

	_, err = DecideRequest(ctx, database, 999, model.RequestApproved, "", 14, now)
	if liberr.CodeOf(err) != liberr.CodeNotFound {
		t.Errorf("deciding a missing request: expected NOT_FOUND, got %v", err)
	}
}

func TestCancelRequest(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	now := time.Now()

	alice := mustCreateUser(t, database, "alice", model.RoleMember)
	bob := mustCreateUser(t, database, "bob", model.RoleMember)
	doc := mustCreateDocument(t, database, newBook("1984", "George Orwell"))
	req, _ := CreateRequest(ctx, database, alice.ID, doc.ID, now)

	// Only the owner may cancel.
	_, err := CancelRequest(ctx, database, req.ID, bob.ID)
	if liberr.CodeOf(err) != liberr.CodeUnauthorized {
		t.Errorf("expected UNAUTHORIZED, got %v", err)
	}

	cancelled, err := CancelRequest(ctx, database, req.ID, alice.ID)
	if err != nil {
		t.Fatalf("CancelRequest: %v", err)
	}
	if cancelled.Status != model.RequestCancelled {
		t.Errorf("expected cancelled, got %s", cancelled.Status)
	}

	// Terminal: cancelling again fails.
	_, err = CancelRequest(ctx, database, req.ID, alice.ID)
	if liberr.CodeOf(err) != liberr.CodeValidation {
		t.Errorf("expected VALIDATION for double cancel, got %v", err)
	}
}

func TestRelaunchRequest(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	now := time.Now()

	alice := mustCreateUser(t, database, "alice", model.RoleMember)
	doc := mustCreateDocument(t, database, newBook("1984", "George Orwell"))
	req, _ := CreateRequest(ctx, database, alice.ID, doc.ID, now)
	DecideRequest(ctx, database, req.ID, model.RequestRejected, "not now", 14, now)

	fresh, err := RelaunchRequest(ctx, database, req.ID, now)
	if err != nil {
		t.Fatalf("RelaunchRequest: %v", err)
	}
	if fresh.ID == req.ID {
		t.Error("relaunch must create a fresh request, not reopen the old one")
	}
	if fresh.Status != model.RequestPending {
		t.Errorf("relaunched request should be pending, got %s", fresh.Status)
	}
	if fresh.UserID != alice.ID || fresh.DocumentID != doc.ID {
		t.Errorf("relaunch must copy the (user, document) pair: %+v", fresh)
	}

	// The original is untouched.
	orig, _ := GetRequest(ctx, database, req.ID)
	if orig.Status != model.RequestRejected {
		t.Errorf("original request mutated by relaunch: %s", orig.Status)
	}

	// One pending per pair still holds across relaunches.
	_, err = RelaunchRequest(ctx, database, req.ID, now)
	if liberr.CodeOf(err) != liberr.CodeDuplicatePending {
		t.Errorf("expected DUPLICATE_PENDING, got %v", err)
	}
}

func TestRelaunchSkipsAvailabilityCheck(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	now := time.Now()

	alice := mustCreateUser(t, database, "alice", model.RoleMember)
	bob := mustCreateUser(t, database, "bob", model.RoleMember)
	doc := mustCreateDocument(t, database, newBook("1984", "George Orwell"))

	req, _ := CreateRequest(ctx, database, alice.ID, doc.ID, now)
	DecideRequest(ctx, database, req.ID, model.RequestRejected, "", 14, now)

	// Drain availability; relaunch must still succeed (validation happens
	// again at decide).
	CreateLoan(ctx, database, bob.ID, doc.ID, 14, now)

	fresh, err := RelaunchRequest(ctx, database, req.ID, now)
	if err != nil {
		t.Fatalf("RelaunchRequest with zero availability: %v", err)
	}

	_, err = DecideRequest(ctx, database, fresh.ID, model.RequestApproved, "", 14, now)
	if liberr.CodeOf(err) != liberr.CodeUnavailable {
		t.Errorf("approving the relaunched request should fail UNAVAILABLE, got %v", err)
	}
}

func TestListRequests(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	now := time.Now()

	alice := mustCreateUser(t, database, "alice", model.RoleMember)
	doc1 := mustCreateDocument(t, database, newBook("1984", "George Orwell"))
	doc2 := mustCreateDocument(t, database, newBook("Dune", "Frank Herbert"))

	r1, _ := CreateRequest(ctx, database, alice.ID, doc1.ID, now)
	CreateRequest(ctx, database, alice.ID, doc2.ID, now)
	DecideRequest(ctx, database, r1.ID, model.RequestRejected, "", 14, now)

	pending, err := ListRequests(ctx, database, model.RequestPending)
	if err != nil {
		t.Fatalf("ListRequests: %v", err)
	}
	if len(pending) != 1 {
		t.Errorf("expected 1 pending request, got %d", len(pending))
	}

	all, _ := ListRequests(ctx, database, "")
	if len(all) != 2 {
		t.Errorf("expected 2 requests total, got %d", len(all))
	}

	mine, _ := ListUserRequests(ctx, database, alice.ID)
	if len(mine) != 2 {
		t.Errorf("expected 2 requests for alice, got %d", len(mine))
	}
	if mine[0].DocumentTitle == "" {
		t.Error("expected document title joined in")
	}
}

// Two administrators approving competing requests for the last copy must
// serialize on the availability counter: exactly one approval wins, the
// other fails UNAVAILABLE with its request left pending. Runs over a
// file-backed database so the deciders really race on separate connections.
func TestConcurrentApprovalsSingleCopy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "libris.sqlite3")
	database, err := db.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	if err := db.Migrate(database); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	ctx := context.Background()
	now := time.Now()
	alice := mustCreateUser(t, database, "alice", model.RoleMember)
	bob := mustCreateUser(t, database, "bob", model.RoleMember)

	for round := 0; round < 20; round++ {
		doc := mustCreateDocument(t, database,
			newBook(fmt.Sprintf("Single Copy %d", round), "George Orwell"))

		reqA, err := CreateRequest(ctx, database, alice.ID, doc.ID, now)
		if err != nil {
			t.Fatalf("round %d: alice's request: %v", round, err)
		}
		reqB, err := CreateRequest(ctx, database, bob.ID, doc.ID, now)
		if err != nil {
			t.Fatalf("round %d: bob's request: %v", round, err)
		}

		results := make(chan error, 2)
		var wg sync.WaitGroup
		for _, id := range []int64{reqA.ID, reqB.ID} {
			wg.Add(1)
			go func(id int64) {
				defer wg.Done()
				_, err := DecideRequest(ctx, database, id, model.RequestApproved, "", 14, now)
				results <- err
			}(id)
		}
		wg.Wait()
		close(results)

		var approved, unavailable int
		for err := range results {
			switch {
			case err == nil:
				approved++
			case liberr.CodeOf(err) == liberr.CodeUnavailable:
				unavailable++
			default:
				t.Fatalf("round %d: unexpected decision error: %v", round, err)
			}
		}
		if approved != 1 || unavailable != 1 {
			t.Fatalf("round %d: expected 1 approval and 1 UNAVAILABLE, got %d/%d",
				round, approved, unavailable)
		}

		got, err := GetDocument(ctx, database, doc.ID)
		if err != nil {
			t.Fatalf("round %d: GetDocument: %v", round, err)
		}
		if got.Available != 0 {
			t.Fatalf("round %d: availability must be exactly 0, got %d", round, got.Available)
		}

		// The losing request rolls back to pending, ready for a new decision.
		var pending, won int
		for _, id := range []int64{reqA.ID, reqB.ID} {
			req, err := GetRequest(ctx, database, id)
			if err != nil {
				t.Fatalf("round %d: GetRequest(%d): %v", round, id, err)
			}
			switch req.Status {
			case model.RequestPending:
				pending++
			case model.RequestApproved:
				won++
			default:
				t.Fatalf("round %d: unexpected status %s", round, req.Status)
			}
		}
		if pending != 1 || won != 1 {
			t.Fatalf("round %d: expected one pending and one approved request, got %d/%d",
				round, pending, won)
		}
	}
}
