package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/icsolutions/identity-core/internal/infrastructure/logging"
)

// seedPasswordBytes is the number of random bytes for the seed admin password.
const seedPasswordBytes = 16

// SeedAdminEmail is the address of the bootstrap administrator account.
const SeedAdminEmail = "admin@localhost"

// SeedAdmin creates the initial administrator account on first boot if no
// accounts exist. The account is created pre-confirmed with the Admin role
// attached. The generated password is logged and must be changed
// immediately. Returns the generated password (empty if seeding skipped).
func SeedAdmin(ctx context.Context, accounts AccountRepository, roles RoleRepository, logger *logging.Logger) (string, error) {
	count, err := accounts.Count(ctx)
	if err != nil {
		return "", fmt.Errorf("checking account count: %w", err)
	}

	if count > 0 {
		logger.Info("accounts exist, skipping admin seed")
		return "", nil
	}

	passwordBytes := make([]byte, seedPasswordBytes)
	if _, err := rand.Read(passwordBytes); err != nil { //nolint:govet // shadow: err re-declared in nested scope
		return "", fmt.Errorf("generating seed password: %w", err)
	}
	password := hex.EncodeToString(passwordBytes)

	hash, err := HashPassword(password)
	if err != nil {
		return "", fmt.Errorf("hashing seed password: %w", err)
	}

	admin := &Account{
		Email:          SeedAdminEmail,
		PasswordHash:   hash,
		EmailConfirmed: true,
	}
	if err := accounts.Create(ctx, admin); err != nil {
		return "", fmt.Errorf("creating seed admin: %w", err)
	}

	role, err := ensureRole(ctx, roles, AdminRoleName)
	if err != nil {
		return "", err
	}
	if err := accounts.AttachRole(ctx, admin.ID, role.ID); err != nil {
		return "", fmt.Errorf("attaching admin role: %w", err)
	}

	logger.Warn("seed admin account created",
		"email", SeedAdminEmail,
		"password", password,
		"action_required", "change this password immediately",
	)

	return password, nil
}

// ensureRole returns the named role, creating it if missing.
func ensureRole(ctx context.Context, roles RoleRepository, name string) (*Role, error) {
	role, err := roles.GetByName(ctx, name)
	if err == nil {
		return role, nil
	}
	if !errors.Is(err, ErrRoleNotFound) {
		return nil, fmt.Errorf("looking up role %q: %w", name, err)
	}

	role = &Role{Name: name}
	if err := roles.Create(ctx, role); err != nil {
		return nil, fmt.Errorf("creating role %q: %w", name, err)
	}
	return role, nil
}
