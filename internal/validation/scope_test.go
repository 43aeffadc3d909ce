package validation_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dropDatabas3/janus/internal/validation"
)

func TestValidScopeName(t *testing.T) {
	valid := []string{
		"openid", "email", "profile", "offline_access",
		"a", "a1", "read:users", "urn.service.read", "a-b_c:d.e",
	}
	for _, s := range valid {
		assert.True(t, validation.ValidScopeName(s), "expected %q to be valid", s)
	}

	invalid := []string{
		"", "OpenID", "con espacio", "trailing-", "-leading",
		":colon-start", "colon-end:", "semi;colon", "tab\tscope",
		"x123456789012345678901234567890123456789012345678901234567890123456789",
	}
	for _, s := range invalid {
		assert.False(t, validation.ValidScopeName(s), "expected %q to be invalid", s)
	}
}

func TestParseScopes(t *testing.T) {
	assert.Nil(t, validation.ParseScopes(""))
	assert.Nil(t, validation.ParseScopes("   "))

	got := validation.ParseScopes("openid email openid profile email")
	assert.Equal(t, []string{"openid", "email", "profile"}, got)
}

func TestScopesSubset(t *testing.T) {
	super := []string{"openid", "email", "profile"}

	assert.True(t, validation.ScopesSubset(nil, super))
	assert.True(t, validation.ScopesSubset([]string{"email"}, super))
	assert.True(t, validation.ScopesSubset(super, super))
	assert.False(t, validation.ScopesSubset([]string{"offline_access"}, super))
	assert.False(t, validation.ScopesSubset([]string{"openid"}, nil))
}

func TestUnionScopes(t *testing.T) {
	got := validation.UnionScopes([]string{"openid", "email"}, []string{"email", "profile"})
	assert.Equal(t, []string{"openid", "email", "profile"}, got)

	assert.Equal(t, []string{"a"}, validation.UnionScopes(nil, []string{"a"}))
	assert.Equal(t, []string{"a"}, validation.UnionScopes([]string{"a"}, nil))
}

func TestJoinScopes_RoundTrip(t *testing.T) {
	in := []string{"openid", "read:users", "email"}
	assert.Equal(t, in, validation.ParseScopes(validation.JoinScopes(in)))
}
