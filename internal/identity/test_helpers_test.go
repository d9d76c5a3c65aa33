package identity

import (
	"database/sql"
	"os"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/icsolutions/identity-core/internal/infrastructure/config"
	"github.com/icsolutions/identity-core/internal/infrastructure/logging"
)

// testDB creates a temporary SQLite database with the identity schema
// applied. The database file is cleaned up when the test completes.
func testDB(t *testing.T) *sql.DB {
	t.Helper()

	// Use a temp file so WAL mode works (in-memory doesn't support it)
	f, err := os.CreateTemp("", "identity-test-*.db")
	if err != nil {
		t.Fatalf("creating temp db: %v", err)
	}
	dbPath := f.Name()
	f.Close()
	t.Cleanup(func() { os.Remove(dbPath) })

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=ON")
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	schemaSQL := `
		CREATE TABLE accounts (
			id TEXT PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			email_confirmed INTEGER NOT NULL DEFAULT 0,
			confirmation_token TEXT,
			failed_attempts INTEGER NOT NULL DEFAULT 0,
			locked_until TEXT,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
			updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		) STRICT;

		CREATE UNIQUE INDEX idx_accounts_email ON accounts(email);

		CREATE TABLE roles (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		) STRICT;

		CREATE TABLE account_roles (
			account_id TEXT NOT NULL,
			role_id TEXT NOT NULL,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
			PRIMARY KEY (account_id, role_id),
			FOREIGN KEY (account_id) REFERENCES accounts(id) ON DELETE CASCADE,
			FOREIGN KEY (role_id) REFERENCES roles(id) ON DELETE CASCADE
		) STRICT;

		CREATE TABLE account_claims (
			account_id TEXT NOT NULL,
			claim_type TEXT NOT NULL,
			claim_value TEXT NOT NULL,
			updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
			PRIMARY KEY (account_id, claim_type),
			FOREIGN KEY (account_id) REFERENCES accounts(id) ON DELETE CASCADE
		) STRICT;

		CREATE TABLE refresh_tokens (
			account_id TEXT PRIMARY KEY,
			token_id TEXT NOT NULL UNIQUE,
			token_hash TEXT NOT NULL,
			expires_at TEXT NOT NULL,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
			FOREIGN KEY (account_id) REFERENCES accounts(id) ON DELETE CASCADE
		) STRICT;

		CREATE UNIQUE INDEX idx_refresh_tokens_token_id ON refresh_tokens(token_id);
		CREATE INDEX idx_refresh_tokens_expires ON refresh_tokens(expires_at);
	`
	if _, err := db.Exec(schemaSQL); err != nil {
		t.Fatalf("applying identity schema: %v", err)
	}

	return db
}

// testLogger returns a quiet logger for service tests.
func testLogger() *logging.Logger {
	return logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stderr"}, "test")
}

// testServiceConfig returns a service config with short deterministic TTLs.
func testServiceConfig() Config {
	return Config{
		JWTSecret:         "test-secret-at-least-32-characters-long",
		JWTIssuer:         "identity-core-test",
		AccessTokenTTL:    15 * time.Minute,
		RefreshTokenTTL:   24 * time.Hour,
		MaxFailedAttempts: 3,
		LockoutDuration:   5 * time.Minute,
	}
}

// testService wires a full service onto a temp database.
func testService(t *testing.T) (*Service, *SQLiteAccountRepository, *SQLiteRoleRepository, *SQLiteTokenLedger) {
	t.Helper()

	db := testDB(t)
	accounts := NewAccountRepository(db)
	roles := NewRoleRepository(db)
	ledger := NewTokenLedger(db)

	svc := NewService(Deps{
		Accounts: accounts,
		Roles:    roles,
		Ledger:   ledger,
		Logger:   testLogger(),
	}, testServiceConfig())

	return svc, accounts, roles, ledger
}

// seedTestAccount inserts a confirmed account with the given password.
func seedTestAccount(t *testing.T, accounts AccountRepository, email, password string) *Account {
	t.Helper()

	hash, err := HashPassword(password)
	if err != nil {
		t.Fatalf("hashing password: %v", err)
	}

	account := &Account{
		Email:          email,
		PasswordHash:   hash,
		EmailConfirmed: true,
	}
	if err := accounts.Create(t.Context(), account); err != nil {
		t.Fatalf("creating test account %s: %v", email, err)
	}
	return account
}
