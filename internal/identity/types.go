package identity

import (
	"errors"
	"net/mail"
	"time"
)

// Well-known names used by the policy-style authorization check.
const (
	// AdminRoleName is the role required by the delete-customer policy.
	AdminRoleName = "Admin"

	// CustomerClaimType is the claim type carrying customer permissions.
	CustomerClaimType = "Customer"
)

// IsValidEmail checks that an address parses as a single RFC 5322 address.
func IsValidEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}

// Account represents a registered principal.
type Account struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	PasswordHash string `json:"-"` // never serialised
	// EmailConfirmed gates login: unconfirmed accounts cannot sign in.
	EmailConfirmed bool `json:"email_confirmed"`
	// ConfirmationToken is the pending email-confirmation token, empty
	// once the address is confirmed.
	ConfirmationToken string `json:"-"` // never serialised
	// FailedAttempts counts consecutive wrong-password logins.
	FailedAttempts int `json:"-"`
	// LockedUntil is set when FailedAttempts crosses the configured
	// threshold; nil means not locked.
	LockedUntil *time.Time `json:"-"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// IsLockedOut reports whether the account is locked at the given instant.
func (a *Account) IsLockedOut(now time.Time) bool {
	return a.LockedUntil != nil && a.LockedUntil.After(now)
}

// Claim is a typed attribute attached to an account. At most one claim
// exists per (account, type); assigning a new value replaces the old one.
// The value may encode multiple grants as a comma-separated list.
type Claim struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Role is a named group used for coarse policy gating.
type Role struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// RefreshToken is the persisted half of a refresh credential. The raw
// secret is only ever held by the client; the ledger stores its hash.
type RefreshToken struct {
	AccountID string    `json:"account_id"`
	TokenID   string    `json:"token_id"`
	TokenHash string    `json:"-"` // never serialised
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// TokenPair is the result of a successful login or refresh.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// Sentinel errors for authentication and account operations.
var (
	// ErrInvalidCredentials deliberately covers both "unknown email" and
	// "wrong password" so responses don't enable account enumeration.
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountLockedOut   = errors.New("account temporarily locked out")
	ErrEmailNotConfirmed  = errors.New("email address not confirmed")

	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	ErrExpiredRefreshToken = errors.New("refresh token has expired")
	ErrInvalidAccessToken  = errors.New("invalid access token")

	ErrAccountNotFound     = errors.New("account not found")
	ErrEmailExists         = errors.New("email already registered")
	ErrRoleNotFound        = errors.New("role not found")
	ErrRoleExists          = errors.New("role already exists")
	ErrClaimNotFound       = errors.New("claim not found")
	ErrInvalidConfirmation = errors.New("invalid confirmation token")
	ErrWeakPassword        = errors.New("password does not meet minimum requirements")
	ErrInvalidEmail        = errors.New("invalid email address")
)
