package identity

import (
	"sort"
	"strings"
)

// Grants is an explicit set of permission tokens decoded from a claim
// value. The storage and wire form is a comma-separated list ("R,W");
// membership is exact-element, so "RW" never grants "W".
type Grants map[string]struct{}

// ParseGrants decodes a comma-separated claim value into a grant set.
// Surrounding whitespace on elements is ignored; empty elements are dropped.
func ParseGrants(encoded string) Grants {
	g := make(Grants)
	for _, part := range strings.Split(encoded, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		g[part] = struct{}{}
	}
	return g
}

// Has reports whether the exact permission token is granted.
func (g Grants) Has(perm string) bool {
	_, ok := g[perm]
	return ok
}

// List returns the grants in sorted order.
func (g Grants) List() []string {
	out := make([]string, 0, len(g))
	for perm := range g {
		out = append(out, perm)
	}
	sort.Strings(out)
	return out
}

// Encode renders the set back to its comma-separated storage form,
// sorted for stable output.
func (g Grants) Encode() string {
	return strings.Join(g.List(), ",")
}

// GrantsByType decodes a claim list into grant sets keyed by claim type.
func GrantsByType(claims []Claim) map[string]Grants {
	out := make(map[string]Grants, len(claims))
	for _, c := range claims {
		out[c.Type] = ParseGrants(c.Value)
	}
	return out
}
