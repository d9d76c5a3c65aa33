package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AccountRepository defines the interface for account persistence.
type AccountRepository interface {
	Create(ctx context.Context, account *Account) error
	GetByID(ctx context.Context, id string) (*Account, error)
	GetByEmail(ctx context.Context, email string) (*Account, error)
	List(ctx context.Context) ([]Account, error)
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)

	UpdatePassword(ctx context.Context, id, passwordHash string) error
	ConfirmEmail(ctx context.Context, id string) error

	// RecordFailedAttempt increments the consecutive-failure counter and
	// returns the new count.
	RecordFailedAttempt(ctx context.Context, id string) (int, error)
	ResetFailedAttempts(ctx context.Context, id string) error
	SetLockout(ctx context.Context, id string, until time.Time) error

	SetClaim(ctx context.Context, accountID, claimType, claimValue string) error
	RemoveClaim(ctx context.Context, accountID, claimType string) error
	ListClaims(ctx context.Context, accountID string) ([]Claim, error)

	AttachRole(ctx context.Context, accountID, roleID string) error
	DetachRole(ctx context.Context, accountID, roleID string) error
	ListRoles(ctx context.Context, accountID string) ([]Role, error)
}

// SQLiteAccountRepository implements AccountRepository using SQLite.
type SQLiteAccountRepository struct {
	db *sql.DB
}

// NewAccountRepository creates a new SQLite-backed account repository.
func NewAccountRepository(db *sql.DB) *SQLiteAccountRepository {
	return &SQLiteAccountRepository{db: db}
}

const accountColumns = "id, email, password_hash, email_confirmed, confirmation_token, failed_attempts, locked_until, created_at, updated_at"

// Create inserts a new account. The ID is generated if empty.
func (r *SQLiteAccountRepository) Create(ctx context.Context, account *Account) error {
	if account.ID == "" {
		account.ID = "acc-" + uuid.NewString()[:8]
	}

	now := time.Now().UTC().Format(time.RFC3339)
	account.CreatedAt, _ = time.Parse(time.RFC3339, now) //nolint:errcheck // format is controlled
	account.UpdatedAt = account.CreatedAt

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO accounts (id, email, password_hash, email_confirmed, confirmation_token, failed_attempts, locked_until, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		account.ID, account.Email, account.PasswordHash,
		boolToInt(account.EmailConfirmed), nullString(account.ConfirmationToken),
		account.FailedAttempts, nullTime(account.LockedUntil), now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrEmailExists
		}
		return fmt.Errorf("creating account: %w", err)
	}

	return nil
}

// GetByID retrieves an account by its unique ID.
func (r *SQLiteAccountRepository) GetByID(ctx context.Context, id string) (*Account, error) {
	return r.getAccount(ctx, "SELECT "+accountColumns+" FROM accounts WHERE id = ?", id)
}

// GetByEmail retrieves an account by its email address.
func (r *SQLiteAccountRepository) GetByEmail(ctx context.Context, email string) (*Account, error) {
	return r.getAccount(ctx, "SELECT "+accountColumns+" FROM accounts WHERE email = ?", email)
}

// List returns all accounts ordered by creation date.
func (r *SQLiteAccountRepository) List(ctx context.Context) ([]Account, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+accountColumns+" FROM accounts ORDER BY created_at ASC")
	if err != nil {
		return nil, fmt.Errorf("listing accounts: %w", err)
	}
	defer rows.Close()

	var accounts []Account
	for rows.Next() {
		a, err := scanAccountFrom(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating accounts: %w", err)
	}

	if accounts == nil {
		accounts = []Account{}
	}
	return accounts, nil
}

// Delete removes an account by ID. Roles, claims, and any live refresh
// token cascade away with it.
func (r *SQLiteAccountRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM accounts WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting account: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// Count returns the total number of accounts.
func (r *SQLiteAccountRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM accounts").Scan(&count); err != nil {
		return 0, fmt.Errorf("counting accounts: %w", err)
	}
	return count, nil
}

// UpdatePassword changes an account's password hash.
func (r *SQLiteAccountRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	now := time.Now().UTC().Format(time.RFC3339)

	result, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET password_hash = ?, updated_at = ? WHERE id = ?`,
		passwordHash, now, id,
	)
	if err != nil {
		return fmt.Errorf("updating password: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// ConfirmEmail marks the account's email as confirmed and clears the
// pending confirmation token.
func (r *SQLiteAccountRepository) ConfirmEmail(ctx context.Context, id string) error {
	now := time.Now().UTC().Format(time.RFC3339)

	result, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET email_confirmed = 1, confirmation_token = NULL, updated_at = ? WHERE id = ?`,
		now, id,
	)
	if err != nil {
		return fmt.Errorf("confirming email: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// RecordFailedAttempt increments the consecutive-failure counter in a
// single statement and reads back the new value, so concurrent wrong
// passwords never lose an increment.
func (r *SQLiteAccountRepository) RecordFailedAttempt(ctx context.Context, id string) (int, error) {
	now := time.Now().UTC().Format(time.RFC3339)

	var count int
	err := r.db.QueryRowContext(ctx,
		`UPDATE accounts SET failed_attempts = failed_attempts + 1, updated_at = ?
		 WHERE id = ? RETURNING failed_attempts`,
		now, id,
	).Scan(&count)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrAccountNotFound
		}
		return 0, fmt.Errorf("recording failed attempt: %w", err)
	}
	return count, nil
}

// ResetFailedAttempts zeroes the failure counter and clears any lockout.
func (r *SQLiteAccountRepository) ResetFailedAttempts(ctx context.Context, id string) error {
	now := time.Now().UTC().Format(time.RFC3339)

	result, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET failed_attempts = 0, locked_until = NULL, updated_at = ? WHERE id = ?`,
		now, id,
	)
	if err != nil {
		return fmt.Errorf("resetting failed attempts: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// SetLockout locks the account until the given instant.
func (r *SQLiteAccountRepository) SetLockout(ctx context.Context, id string, until time.Time) error {
	now := time.Now().UTC().Format(time.RFC3339)

	result, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET locked_until = ?, updated_at = ? WHERE id = ?`,
		until.UTC().Format(time.RFC3339), now, id,
	)
	if err != nil {
		return fmt.Errorf("setting lockout: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// SetClaim assigns a claim value to the account, replacing any existing
// value of the same type.
func (r *SQLiteAccountRepository) SetClaim(ctx context.Context, accountID, claimType, claimValue string) error {
	now := time.Now().UTC().Format(time.RFC3339)

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO account_claims (account_id, claim_type, claim_value, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(account_id, claim_type) DO UPDATE SET claim_value = excluded.claim_value, updated_at = excluded.updated_at`,
		accountID, claimType, claimValue, now,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrAccountNotFound
		}
		return fmt.Errorf("setting claim: %w", err)
	}
	return nil
}

// RemoveClaim deletes a claim of the given type from the account.
func (r *SQLiteAccountRepository) RemoveClaim(ctx context.Context, accountID, claimType string) error {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM account_claims WHERE account_id = ? AND claim_type = ?",
		accountID, claimType,
	)
	if err != nil {
		return fmt.Errorf("removing claim: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrClaimNotFound
	}
	return nil
}

// ListClaims returns all claims attached to the account, ordered by type.
func (r *SQLiteAccountRepository) ListClaims(ctx context.Context, accountID string) ([]Claim, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT claim_type, claim_value FROM account_claims WHERE account_id = ? ORDER BY claim_type ASC",
		accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing claims: %w", err)
	}
	defer rows.Close()

	var claims []Claim
	for rows.Next() {
		var c Claim
		if err := rows.Scan(&c.Type, &c.Value); err != nil {
			return nil, fmt.Errorf("scanning claim: %w", err)
		}
		claims = append(claims, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating claims: %w", err)
	}

	if claims == nil {
		claims = []Claim{}
	}
	return claims, nil
}

// AttachRole adds the account to a role. Attaching an already-held role
// is a no-op.
func (r *SQLiteAccountRepository) AttachRole(ctx context.Context, accountID, roleID string) error {
	now := time.Now().UTC().Format(time.RFC3339)

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO account_roles (account_id, role_id, created_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT(account_id, role_id) DO NOTHING`,
		accountID, roleID, now,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrRoleNotFound
		}
		return fmt.Errorf("attaching role: %w", err)
	}
	return nil
}

// DetachRole removes the account from a role.
func (r *SQLiteAccountRepository) DetachRole(ctx context.Context, accountID, roleID string) error {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM account_roles WHERE account_id = ? AND role_id = ?",
		accountID, roleID,
	)
	if err != nil {
		return fmt.Errorf("detaching role: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrRoleNotFound
	}
	return nil
}

// ListRoles returns all roles held by the account, ordered by name.
func (r *SQLiteAccountRepository) ListRoles(ctx context.Context, accountID string) ([]Role, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT r.id, r.name, r.created_at FROM roles r
		 JOIN account_roles ar ON ar.role_id = r.id
		 WHERE ar.account_id = ? ORDER BY r.name ASC`,
		accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing account roles: %w", err)
	}
	defer rows.Close()

	var roles []Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, *role)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating account roles: %w", err)
	}

	if roles == nil {
		roles = []Role{}
	}
	return roles, nil
}

// getAccount executes a query and scans a single account result.
func (r *SQLiteAccountRepository) getAccount(ctx context.Context, query string, args ...any) (*Account, error) {
	return scanAccountFrom(r.db.QueryRowContext(ctx, query, args...))
}

// scanner is an interface covering sql.Row and sql.Rows Scan methods.
type scanner interface {
	Scan(dest ...any) error
}

// scanAccountFrom scans an account from any scanner (Row or Rows).
func scanAccountFrom(s scanner) (*Account, error) {
	var a Account
	var confirmationToken, lockedUntil sql.NullString
	var emailConfirmed int
	var createdAt, updatedAt string

	err := s.Scan(&a.ID, &a.Email, &a.PasswordHash, &emailConfirmed,
		&confirmationToken, &a.FailedAttempts, &lockedUntil,
		&createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("scanning account: %w", err)
	}

	a.EmailConfirmed = emailConfirmed != 0
	if confirmationToken.Valid {
		a.ConfirmationToken = confirmationToken.String
	}
	if lockedUntil.Valid {
		t, err := time.Parse(time.RFC3339, lockedUntil.String)
		if err != nil {
			return nil, fmt.Errorf("parsing locked_until: %w", err)
		}
		a.LockedUntil = &t
	}

	a.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled
	a.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // format is controlled

	return &a, nil
}

// Helper functions.

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// isUniqueViolation checks if a SQLite error is a UNIQUE constraint violation.
func isUniqueViolation(err error) bool {
	return err != nil && (containsSubstring(err.Error(), "UNIQUE constraint failed") ||
		containsSubstring(err.Error(), "unique constraint"))
}

// isForeignKeyViolation checks if a SQLite error is a FOREIGN KEY failure.
func isForeignKeyViolation(err error) bool {
	return err != nil && containsSubstring(err.Error(), "FOREIGN KEY constraint failed")
}

func containsSubstring(s, substr string) bool {
	for i := 0; i <= len(s)-len(substr); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
