package identity

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/icsolutions/identity-core/internal/infrastructure/logging"
)

// ConfirmationMailer delivers email-confirmation messages. Delivery
// failures do not fail registration; the token stays in the database and
// confirmation can be retried.
type ConfirmationMailer interface {
	SendConfirmation(ctx context.Context, email, token string) error
}

// Config carries the tunable parameters of the identity service.
type Config struct {
	JWTSecret       string
	JWTIssuer       string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	// MaxFailedAttempts is the consecutive-failure count that triggers a
	// lockout. Zero disables lockout entirely.
	MaxFailedAttempts int
	LockoutDuration   time.Duration
}

// Deps are the collaborators the service operates on.
type Deps struct {
	Accounts AccountRepository
	Roles    RoleRepository
	Ledger   TokenLedger
	Mailer   ConfirmationMailer
	Logger   *logging.Logger
}

// Service implements authentication and account lifecycle on top of the
// repositories. All checks fail closed: any ambiguity resolves to a
// rejected login or a denied decision.
type Service struct {
	accounts AccountRepository
	roles    RoleRepository
	ledger   TokenLedger
	mailer   ConfirmationMailer
	logger   *logging.Logger
	cfg      Config
}

// NewService creates an identity service.
func NewService(deps Deps, cfg Config) *Service {
	return &Service{
		accounts: deps.Accounts,
		roles:    deps.Roles,
		ledger:   deps.Ledger,
		mailer:   deps.Mailer,
		logger:   deps.Logger,
		cfg:      cfg,
	}
}

// Login authenticates an email/password pair and mints a token pair.
//
// The checks run in a fixed order: resolve the account, short-circuit on
// an active lockout, verify the password (counting failures and locking
// on the configured threshold), require a confirmed email, then reset
// the failure counter and issue tokens. An unknown email and a wrong
// password are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, email, password string) (*TokenPair, error) {
	account, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("resolving account: %w", err)
	}

	now := time.Now()
	if account.IsLockedOut(now) {
		s.logger.Warn("login rejected: account locked", "account_id", account.ID)
		return nil, ErrAccountLockedOut
	}

	ok, err := VerifyPassword(password, account.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("verifying password: %w", err)
	}
	if !ok {
		return nil, s.handleFailedPassword(ctx, account)
	}

	if !account.EmailConfirmed {
		return nil, ErrEmailNotConfirmed
	}

	if err := s.accounts.ResetFailedAttempts(ctx, account.ID); err != nil {
		return nil, fmt.Errorf("resetting failed attempts: %w", err)
	}

	pair, err := s.mintPair(ctx, account)
	if err != nil {
		return nil, err
	}

	s.logger.Info("login succeeded", "account_id", account.ID)
	return pair, nil
}

// handleFailedPassword records a wrong-password attempt and applies the
// lockout if the threshold is crossed. The attempt that crosses the
// threshold is itself reported as a lockout.
func (s *Service) handleFailedPassword(ctx context.Context, account *Account) error {
	count, err := s.accounts.RecordFailedAttempt(ctx, account.ID)
	if err != nil {
		return fmt.Errorf("recording failed attempt: %w", err)
	}

	if s.cfg.MaxFailedAttempts > 0 && count >= s.cfg.MaxFailedAttempts {
		until := time.Now().Add(s.cfg.LockoutDuration)
		if err := s.accounts.SetLockout(ctx, account.ID, until); err != nil {
			return fmt.Errorf("setting lockout: %w", err)
		}
		s.logger.Warn("account locked out",
			"account_id", account.ID, "failed_attempts", count, "until", until)
		return ErrAccountLockedOut
	}

	return ErrInvalidCredentials
}

// Refresh rotates a refresh token. The presented token is invalidated and
// a new pair is minted; presenting the same token again fails.
func (s *Service) Refresh(ctx context.Context, rawToken string) (*TokenPair, error) {
	tokenID, secret, err := SplitRefreshToken(rawToken)
	if err != nil {
		return nil, err
	}

	stored, err := s.ledger.Lookup(ctx, tokenID)
	if err != nil {
		return nil, err
	}

	if time.Now().After(stored.ExpiresAt) {
		return nil, ErrExpiredRefreshToken
	}

	if subtle.ConstantTimeCompare([]byte(HashTokenSecret(secret)), []byte(stored.TokenHash)) != 1 {
		return nil, ErrInvalidRefreshToken
	}

	account, err := s.accounts.GetByID(ctx, stored.AccountID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, ErrInvalidRefreshToken
		}
		return nil, fmt.Errorf("resolving token owner: %w", err)
	}

	pair, err := s.mintPair(ctx, account)
	if err != nil {
		return nil, err
	}

	s.logger.Info("refresh token rotated", "account_id", account.ID)
	return pair, nil
}

// Register creates a new unconfirmed account and sends the confirmation
// email. The returned account carries the confirmation token so callers
// in tests or bootstrap flows can complete confirmation directly.
func (s *Service) Register(ctx context.Context, email, password string) (*Account, error) {
	if !IsValidEmail(email) {
		return nil, ErrInvalidEmail
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	account := &Account{
		Email:             email,
		PasswordHash:      hash,
		EmailConfirmed:    false,
		ConfirmationToken: uuid.NewString(),
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		return nil, err
	}

	if s.mailer != nil {
		if err := s.mailer.SendConfirmation(ctx, account.Email, account.ConfirmationToken); err != nil {
			// The account exists and the token is stored; delivery can
			// be retried out of band.
			s.logger.Error("sending confirmation email", "account_id", account.ID, "error", err)
		}
	}

	s.logger.Info("account registered", "account_id", account.ID)
	return account, nil
}

// ConfirmEmail completes registration by matching the confirmation token.
func (s *Service) ConfirmEmail(ctx context.Context, email, token string) error {
	account, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return ErrInvalidConfirmation
		}
		return fmt.Errorf("resolving account: %w", err)
	}

	if account.EmailConfirmed {
		return nil // idempotent
	}

	if token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(account.ConfirmationToken)) != 1 {
		return ErrInvalidConfirmation
	}

	if err := s.accounts.ConfirmEmail(ctx, account.ID); err != nil {
		return fmt.Errorf("confirming email: %w", err)
	}

	s.logger.Info("email confirmed", "account_id", account.ID)
	return nil
}

// ChangePassword verifies the current password, stores the new hash, and
// revokes the account's live refresh token so stolen refresh credentials
// die with the old password.
func (s *Service) ChangePassword(ctx context.Context, accountID, current, next string) error {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return err
	}

	ok, err := VerifyPassword(current, account.PasswordHash)
	if err != nil {
		return fmt.Errorf("verifying current password: %w", err)
	}
	if !ok {
		return ErrInvalidCredentials
	}

	hash, err := HashPassword(next)
	if err != nil {
		return err
	}

	if err := s.accounts.UpdatePassword(ctx, account.ID, hash); err != nil {
		return err
	}

	if err := s.ledger.Revoke(ctx, account.ID); err != nil {
		return fmt.Errorf("revoking refresh token: %w", err)
	}

	s.logger.Info("password changed", "account_id", account.ID)
	return nil
}

// Logout revokes the account's live refresh token. Outstanding access
// tokens remain valid until expiry; they are validated by signature only.
func (s *Service) Logout(ctx context.Context, accountID string) error {
	if err := s.ledger.Revoke(ctx, accountID); err != nil {
		return err
	}
	s.logger.Info("logout", "account_id", accountID)
	return nil
}

// PrincipalFor parses and validates an access token and builds the
// caller's principal from its claims.
func (s *Service) PrincipalFor(tokenString string) (*Principal, error) {
	claims, err := ParseAccessToken(tokenString, s.cfg.JWTSecret, s.cfg.JWTIssuer)
	if err != nil {
		return nil, err
	}

	grants := make(map[string]Grants, len(claims.Claims))
	for claimType, encoded := range claims.Claims {
		grants[claimType] = ParseGrants(encoded)
	}

	return &Principal{
		AccountID:     claims.Subject,
		Authenticated: true,
		Roles:         claims.Roles,
		Grants:        grants,
	}, nil
}

// SweepExpiredTokens removes expired refresh tokens. Intended to run
// periodically from the daemon.
func (s *Service) SweepExpiredTokens(ctx context.Context) (int64, error) {
	n, err := s.ledger.DeleteExpired(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Debug("swept expired refresh tokens", "count", n)
	}
	return n, nil
}

// mintPair builds an access/refresh token pair for the account and
// installs the refresh token in the ledger, displacing any previous one.
func (s *Service) mintPair(ctx context.Context, account *Account) (*TokenPair, error) {
	roles, err := s.accounts.ListRoles(ctx, account.ID)
	if err != nil {
		return nil, fmt.Errorf("loading roles: %w", err)
	}
	roleNames := make([]string, 0, len(roles))
	for _, r := range roles {
		roleNames = append(roleNames, r.Name)
	}

	claims, err := s.accounts.ListClaims(ctx, account.ID)
	if err != nil {
		return nil, fmt.Errorf("loading claims: %w", err)
	}
	grants := GrantsByType(claims)

	access, accessExpiry, err := SignAccessToken(account, roleNames, grants,
		s.cfg.JWTSecret, s.cfg.JWTIssuer, s.cfg.AccessTokenTTL)
	if err != nil {
		return nil, err
	}

	raw, tokenID, err := NewRefreshToken()
	if err != nil {
		return nil, err
	}

	_, secret, err := SplitRefreshToken(raw)
	if err != nil {
		return nil, err
	}

	refreshExpiry := time.Now().Add(s.cfg.RefreshTokenTTL)
	if err := s.ledger.IssueFor(ctx, &RefreshToken{
		AccountID: account.ID,
		TokenID:   tokenID,
		TokenHash: HashTokenSecret(secret),
		ExpiresAt: refreshExpiry,
	}); err != nil {
		return nil, fmt.Errorf("issuing refresh token: %w", err)
	}

	return &TokenPair{
		AccessToken:      access,
		RefreshToken:     raw,
		AccessExpiresAt:  accessExpiry,
		RefreshExpiresAt: refreshExpiry,
	}, nil
}
