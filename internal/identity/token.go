package identity

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AccessClaims extends the JWT registered claims with the account's roles
// and claim grants. Grants are carried in encoded form (comma-joined values
// per claim type) so the token round-trips the exact stored representation.
type AccessClaims struct {
	jwt.RegisteredClaims
	Roles  []string          `json:"roles,omitempty"`
	Claims map[string]string `json:"claims,omitempty"`
}

// SignAccessToken creates a signed JWT access token for an account.
// Access tokens are short-lived and validated by signature only (no DB hit).
func SignAccessToken(account *Account, roles []string, grants map[string]Grants, secret, issuer string, ttl time.Duration) (token string, expiresAt time.Time, err error) {
	if ttl <= 0 {
		ttl = 15 * time.Minute //nolint:mnd // default access token TTL
	}

	now := time.Now()
	expiresAt = now.Add(ttl)

	encoded := make(map[string]string, len(grants))
	for claimType, g := range grants {
		encoded[claimType] = g.Encode()
	}

	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   account.ID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
		Roles:  roles,
		Claims: encoded,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing access token: %w", err)
	}
	return signed, expiresAt, nil
}

// ParseAccessToken validates and parses a JWT access token, returning the
// claims. It checks the signature, expiry, issuer, and required fields.
func ParseAccessToken(tokenString, secret, issuer string) (*AccessClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &AccessClaims{}, func(_ *jwt.Token) (any, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidAccessToken, err)
	}

	claims, ok := token.Claims.(*AccessClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidAccessToken
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidAccessToken)
	}

	return claims, nil
}

// NewRefreshToken mints an opaque refresh token of the form "<id>.<secret>"
// where the secret is 256 bits of randomness. The raw token goes to the
// client; only the id and a hash of the secret are persisted.
func NewRefreshToken() (raw, tokenID string, err error) {
	b := make([]byte, 32) //nolint:mnd // 256-bit secret
	if _, err := rand.Read(b); err != nil {
		return "", "", fmt.Errorf("generating refresh token: %w", err)
	}
	tokenID = uuid.NewString()
	return tokenID + "." + hex.EncodeToString(b), tokenID, nil
}

// SplitRefreshToken separates a raw refresh token into its id and secret
// parts. Malformed input yields ErrInvalidRefreshToken.
func SplitRefreshToken(raw string) (tokenID, secret string, err error) {
	id, sec, ok := strings.Cut(raw, ".")
	if !ok || id == "" || sec == "" {
		return "", "", ErrInvalidRefreshToken
	}
	return id, sec, nil
}
