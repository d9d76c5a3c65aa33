package identity

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

// Resilience tests verify that the identity subsystem holds its
// invariants under concurrent access. These tests use the
// TestResilience_ prefix for easy filtering:
//
//	go test -run TestResilience -race ./internal/identity/...

// TestResilience_Ledger_ConcurrentIssue verifies that when many
// goroutines issue refresh tokens for the same account at once, exactly
// one row survives. The delete-then-insert transaction plus the primary
// key on account_id make two live tokens impossible.
func TestResilience_Ledger_ConcurrentIssue(t *testing.T) {
	db := testDB(t)
	accounts := NewAccountRepository(db)
	ledger := NewTokenLedger(db)
	ctx := context.Background()

	account := seedTestAccount(t, accounts, "concurrent@example.com", "test-password")

	const issuers = 10
	var wg sync.WaitGroup
	errs := make(chan error, issuers)

	for i := range issuers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- ledger.IssueFor(ctx, &RefreshToken{
				AccountID: account.ID,
				TokenID:   fmt.Sprintf("tok-%d", i),
				TokenHash: "h",
				ExpiresAt: time.Now().Add(time.Hour),
			})
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("IssueFor() error = %v", err)
		}
	}

	var live int
	if err := db.QueryRow(
		"SELECT COUNT(*) FROM refresh_tokens WHERE account_id = ?", account.ID,
	).Scan(&live); err != nil {
		t.Fatalf("counting tokens: %v", err)
	}
	if live != 1 {
		t.Errorf("live tokens = %d, want exactly 1", live)
	}
}

// TestResilience_Refresh_ConcurrentRotation verifies that when two
// goroutines present the same refresh token simultaneously, at most one
// live token exists afterwards and the consumed token never works twice
// in sequence.
func TestResilience_Refresh_ConcurrentRotation(t *testing.T) {
	db := testDB(t)
	accounts := NewAccountRepository(db)
	svc := NewService(Deps{
		Accounts: accounts,
		Roles:    NewRoleRepository(db),
		Ledger:   NewTokenLedger(db),
		Logger:   testLogger(),
	}, testServiceConfig())
	account := seedTestAccount(t, accounts, "race@example.com", "test-password")
	ctx := context.Background()

	pair, err := svc.Login(ctx, account.Email, "test-password")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	var wg sync.WaitGroup
	results := make(chan error, 2) //nolint:mnd // two concurrent attempts

	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Refresh(ctx, pair.RefreshToken)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var succeeded int
	for err := range results {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, ErrInvalidRefreshToken):
			// the loser saw the rotated-away token
		default:
			t.Errorf("unexpected Refresh() error = %v", err)
		}
	}
	if succeeded == 0 {
		t.Error("at least one rotation should succeed")
	}

	// Whatever interleaving happened, the account holds at most one
	// live token.
	var live int
	if err := db.QueryRow(
		"SELECT COUNT(*) FROM refresh_tokens WHERE account_id = ?", account.ID,
	).Scan(&live); err != nil {
		t.Fatalf("counting tokens: %v", err)
	}
	if live > 1 {
		t.Errorf("live tokens = %d, want at most 1", live)
	}
}

// TestResilience_Login_ConcurrentFailures verifies that simultaneous
// wrong-password attempts never lose an increment: the counter update and
// read-back happen in a single statement.
func TestResilience_Login_ConcurrentFailures(t *testing.T) {
	db := testDB(t)
	accounts := NewAccountRepository(db)
	ctx := context.Background()

	account := seedTestAccount(t, accounts, "increments@example.com", "test-password")

	const attempts = 8
	var wg sync.WaitGroup
	errs := make(chan error, attempts)

	for range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := accounts.RecordFailedAttempt(ctx, account.ID)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("RecordFailedAttempt() error = %v", err)
		}
	}

	after, err := accounts.GetByID(ctx, account.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if after.FailedAttempts != attempts {
		t.Errorf("FailedAttempts = %d, want %d", after.FailedAttempts, attempts)
	}
}
