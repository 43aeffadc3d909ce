package validation

import (
	"regexp"
	"strings"
)

// Scope name rules:
// - Lowercase only.
// - Start and end with [a-z0-9].
// - Middle chars may include [a-z0-9:_.-].
// - Length 1..64.
// - Excludes semicolon and whitespace explicitly.
var scopeNameRe = regexp.MustCompile(`^[a-z0-9](?:[a-z0-9:_\.-]{0,62}[a-z0-9])?$`)

// ValidScopeName returns true if the provided scope name matches the allowed pattern.
func ValidScopeName(name string) bool {
	return scopeNameRe.MatchString(name)
}

// ParseScopes splits a space-delimited scope string into a deduplicated,
// order-preserving slice.
func ParseScopes(s string) []string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(fields))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}

// JoinScopes serializes a scope slice back to the wire format.
func JoinScopes(scopes []string) string {
	return strings.Join(scopes, " ")
}

// ScopesSubset reports whether every scope in sub is present in super.
func ScopesSubset(sub, super []string) bool {
	set := make(map[string]struct{}, len(super))
	for _, s := range super {
		set[s] = struct{}{}
	}
	for _, s := range sub {
		if _, ok := set[s]; !ok {
			return false
		}
	}
	return true
}

// UnionScopes merges two scope sets preserving the order of a, then the
// new elements of b.
func UnionScopes(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, s := range a {
		if _, ok := seen[s]; !ok {
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	for _, s := range b {
		if _, ok := seen[s]; !ok {
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}
