package token_test

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/janus/internal/security/token"
)

func TestGenerateOpaqueToken(t *testing.T) {
	a, err := token.GenerateOpaqueToken(32)
	require.NoError(t, err)
	b, err := token.GenerateOpaqueToken(32)
	require.NoError(t, err)

	assert.NotEqual(t, a, b)

	raw, err := base64.RawURLEncoding.DecodeString(a)
	require.NoError(t, err, "base64url sin padding")
	assert.Len(t, raw, 32)
}

func TestSHA256Base64URL(t *testing.T) {
	h := token.SHA256Base64URL("hola")
	assert.Equal(t, h, token.SHA256Base64URL("hola"), "determinístico")
	assert.NotEqual(t, h, token.SHA256Base64URL("holb"))

	raw, err := base64.RawURLEncoding.DecodeString(h)
	require.NoError(t, err)
	assert.Len(t, raw, 32, "sha256 completo")
}

func TestConstantTimeEquals(t *testing.T) {
	assert.True(t, token.ConstantTimeEquals("secreto", "secreto"))
	assert.False(t, token.ConstantTimeEquals("secreto", "secret0"))
	assert.False(t, token.ConstantTimeEquals("secreto", "secreto "))
}
