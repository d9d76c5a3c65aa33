package identity

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

// TokenLedger defines the interface for refresh token persistence. The
// ledger holds at most one live token per account: issuing a new token
// always displaces the previous one.
type TokenLedger interface {
	// IssueFor atomically replaces any existing token for the account
	// with the given one. Delete and insert happen in one transaction,
	// so no interleaving can leave two live tokens for the same owner.
	IssueFor(ctx context.Context, token *RefreshToken) error
	Lookup(ctx context.Context, tokenID string) (*RefreshToken, error)
	Revoke(ctx context.Context, accountID string) error
	DeleteExpired(ctx context.Context) (int64, error)
}

// SQLiteTokenLedger implements TokenLedger using SQLite. The schema backs
// up the single-live-token invariant with a primary key on account_id.
type SQLiteTokenLedger struct {
	db *sql.DB
}

// NewTokenLedger creates a new SQLite-backed token ledger.
func NewTokenLedger(db *sql.DB) *SQLiteTokenLedger {
	return &SQLiteTokenLedger{db: db}
}

// HashTokenSecret computes the SHA-256 hash of a refresh token secret for
// storage. Raw secrets are never stored, only their hashes.
func HashTokenSecret(secret string) string {
	h := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(h[:])
}

// IssueFor replaces the account's live refresh token with the given one.
func (l *SQLiteTokenLedger) IssueFor(ctx context.Context, token *RefreshToken) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning issue transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback is no-op after commit

	// Displace whatever token the account currently holds.
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM refresh_tokens WHERE account_id = ?", token.AccountID); err != nil {
		return fmt.Errorf("displacing old token: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	token.CreatedAt, _ = time.Parse(time.RFC3339, now) //nolint:errcheck // format is controlled

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO refresh_tokens (account_id, token_id, token_hash, expires_at, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		token.AccountID, token.TokenID, token.TokenHash,
		token.ExpiresAt.UTC().Format(time.RFC3339), now,
	); err != nil {
		return fmt.Errorf("inserting new token: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing issue: %w", err)
	}
	return nil
}

// Lookup retrieves a refresh token by its public id.
func (l *SQLiteTokenLedger) Lookup(ctx context.Context, tokenID string) (*RefreshToken, error) {
	var t RefreshToken
	var expiresAt, createdAt string

	err := l.db.QueryRowContext(ctx,
		`SELECT account_id, token_id, token_hash, expires_at, created_at
		 FROM refresh_tokens WHERE token_id = ?`, tokenID,
	).Scan(&t.AccountID, &t.TokenID, &t.TokenHash, &expiresAt, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInvalidRefreshToken
		}
		return nil, fmt.Errorf("looking up refresh token: %w", err)
	}

	t.ExpiresAt, _ = time.Parse(time.RFC3339, expiresAt) //nolint:errcheck // format is controlled
	t.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled

	return &t, nil
}

// Revoke removes the account's live refresh token, if any. Revoking an
// account with no token is a no-op.
func (l *SQLiteTokenLedger) Revoke(ctx context.Context, accountID string) error {
	if _, err := l.db.ExecContext(ctx,
		"DELETE FROM refresh_tokens WHERE account_id = ?", accountID); err != nil {
		return fmt.Errorf("revoking refresh token: %w", err)
	}
	return nil
}

// DeleteExpired removes tokens past their expiry, freeing storage.
// Returns the number of deleted rows.
func (l *SQLiteTokenLedger) DeleteExpired(ctx context.Context) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339)

	result, err := l.db.ExecContext(ctx,
		"DELETE FROM refresh_tokens WHERE expires_at <= ?", now)
	if err != nil {
		return 0, fmt.Errorf("deleting expired tokens: %w", err)
	}

	count, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	return count, nil
}
