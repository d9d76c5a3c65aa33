// Package identity implements the authentication and authorization core.
//
// It covers:
//   - Credential login with failed-attempt lockout and email-confirmation
//     gating, issuing a signed JWT access token plus an opaque refresh token
//   - Refresh token rotation with an at-most-one-live-token-per-account
//     guarantee, enforced atomically in the SQLite ledger
//   - Claim-based authorization decisions: a filter-style single-claim
//     check and a policy-style role+claim check, both fail-closed
//   - Account, role, and claim persistence (the credential store)
//
// Claim values may encode several permission grants as a comma-separated
// list (e.g. "R,W"). Grants are parsed once into an explicit set; a check
// for "W" matches the element "W", never the substring of "RW".
package identity
