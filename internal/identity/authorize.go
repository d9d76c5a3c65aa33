package identity

// Decision is the outcome of an authorization check. The zero value is
// Denied so an uninitialised decision never grants access.
type Decision int

// Authorization outcomes.
const (
	Denied Decision = iota
	Allowed
	Unauthenticated
	Forbidden
)

// String returns a human-readable name for the decision.
func (d Decision) String() string {
	switch d {
	case Allowed:
		return "allowed"
	case Unauthenticated:
		return "unauthenticated"
	case Forbidden:
		return "forbidden"
	default:
		return "denied"
	}
}

// Principal is the caller identity extracted from a verified access
// token. An unauthenticated request is represented by a Principal with
// Authenticated false (or a nil pointer).
type Principal struct {
	AccountID     string
	Authenticated bool
	Roles         []string
	// Grants holds the decoded claim values, keyed by claim type.
	Grants map[string]Grants
}

// HasRole reports whether the principal holds the named role.
func (p *Principal) HasRole(name string) bool {
	for _, r := range p.Roles {
		if r == name {
			return true
		}
	}
	return false
}

// HasGrant reports whether the principal's claim of the given type
// contains the exact grant value. "RW" does not satisfy a check for "W";
// only a matching element does.
func (p *Principal) HasGrant(claimType, value string) bool {
	g, ok := p.Grants[claimType]
	if !ok {
		return false
	}
	return g.Has(value)
}

// CheckClaim evaluates whether the principal may perform an operation
// guarded by the given claim requirement. Anonymous callers get
// Unauthenticated; authenticated callers missing the grant get Forbidden.
func CheckClaim(p *Principal, claimType, value string) Decision {
	if p == nil || !p.Authenticated {
		return Unauthenticated
	}
	if p.HasGrant(claimType, value) {
		return Allowed
	}
	return Forbidden
}

// CheckDeletePolicy evaluates the customer-deletion policy: the caller
// must hold the Admin role and a Customer claim grant for the named
// permission. Both requirements collapse to a plain Denied on failure;
// the policy does not distinguish which leg failed.
func CheckDeletePolicy(p *Principal, value string) Decision {
	if p == nil || !p.Authenticated {
		return Denied
	}
	if !p.HasRole(AdminRoleName) {
		return Denied
	}
	if !p.HasGrant(CustomerClaimType, value) {
		return Denied
	}
	return Allowed
}
