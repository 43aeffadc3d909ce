package jwt_test

import (
	"crypto/sha256"
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jwtx "github.com/dropDatabas3/janus/internal/jwt"
)

func newIssuer(t *testing.T) *jwtx.Issuer {
	t.Helper()
	ks, err := jwtx.OpenKeystore(t.TempDir())
	require.NoError(t, err)
	return jwtx.NewIssuer("http://broker.test", ks)
}

func TestIssuer_AccessRoundTrip(t *testing.T) {
	iss := newIssuer(t)

	signed, exp, err := iss.IssueAccess("user-1", "client-1", map[string]any{
		"scope": "openid email",
		"sid":   "sess-1",
	}, 0)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), exp, 5*time.Second)

	claims, err := iss.Parse(signed)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims["sub"])
	assert.Equal(t, "client-1", claims["aud"])
	assert.Equal(t, "http://broker.test", claims["iss"])
	assert.Equal(t, "openid email", claims["scope"])
	assert.Equal(t, "sess-1", claims["sid"])
}

func TestIssuer_TTLOverride(t *testing.T) {
	iss := newIssuer(t)

	_, exp, err := iss.IssueAccess("u", "c", nil, 60)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Minute), exp, 5*time.Second)
}

func TestIssuer_RejectsForeignIssuer(t *testing.T) {
	a := newIssuer(t)

	ksB, err := jwtx.OpenKeystore(t.TempDir())
	require.NoError(t, err)
	b := jwtx.NewIssuer("http://other.test", ksB)

	signed, _, err := b.IssueAccess("u", "c", nil, 0)
	require.NoError(t, err)

	// Firmado por otra clave y con otro iss.
	_, err = a.Parse(signed)
	assert.Error(t, err)
}

func TestIssuer_RejectsExpired(t *testing.T) {
	ks, err := jwtx.OpenKeystore(t.TempDir())
	require.NoError(t, err)
	iss := jwtx.NewIssuer("http://broker.test", ks)
	iss.AccessTTL = -time.Minute

	signed, _, err := iss.IssueAccess("u", "c", nil, 0)
	require.NoError(t, err)

	_, err = iss.Parse(signed)
	assert.Error(t, err)
}

// Tras rotar, los tokens firmados con la clave anterior siguen siendo
// verificables: la clave retirada queda publicada con su kid.
func TestIssuer_RotationKeepsOldTokensValid(t *testing.T) {
	dir := t.TempDir()
	ks, err := jwtx.OpenKeystore(dir)
	require.NoError(t, err)
	iss := jwtx.NewIssuer("http://broker.test", ks)

	oldKID, _, _, err := ks.Active()
	require.NoError(t, err)

	before, _, err := iss.IssueAccess("u", "c", nil, 0)
	require.NoError(t, err)

	newKID, err := ks.Rotate()
	require.NoError(t, err)
	assert.NotEqual(t, oldKID, newKID)

	_, err = iss.Parse(before)
	assert.NoError(t, err, "pre-rotation token must still verify")

	after, _, err := iss.IssueAccess("u", "c", nil, 0)
	require.NoError(t, err)
	_, err = iss.Parse(after)
	assert.NoError(t, err)
}

func TestIssuer_LogoutTokenShape(t *testing.T) {
	iss := newIssuer(t)

	signed, err := iss.IssueLogoutToken("user-1", "client-1", "sess-1")
	require.NoError(t, err)

	claims, err := iss.Parse(signed)
	require.NoError(t, err)
	assert.Equal(t, "sess-1", claims["sid"])
	assert.NotContains(t, claims, "nonce")

	events, ok := claims["events"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, events, "http://schemas.openid.net/event/backchannel-logout")
}

func TestAtHash(t *testing.T) {
	token := "abc.def.ghi"
	sum := sha256.Sum256([]byte(token))
	want := base64.RawURLEncoding.EncodeToString(sum[:16])

	assert.Equal(t, want, jwtx.AtHash(token))
}
