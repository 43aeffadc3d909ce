package jwt

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
)

// Issuer firma tokens usando la clave activa del keystore.
type Issuer struct {
	Iss       string        // "iss"
	Keys      *Keystore     // keystore persistente
	AccessTTL time.Duration // TTL por defecto de access tokens
	IDTTL     time.Duration // TTL por defecto de ID tokens
}

func NewIssuer(iss string, ks *Keystore) *Issuer {
	return &Issuer{
		Iss:       iss,
		Keys:      ks,
		AccessTTL: 15 * time.Minute,
		IDTTL:     15 * time.Minute,
	}
}

// Keyfunc devuelve un jwt.Keyfunc que elige la pubkey por 'kid' del token.
func (i *Issuer) Keyfunc() jwtv5.Keyfunc {
	return func(t *jwtv5.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid != "" {
			return i.Keys.PublicKeyByKID(kid)
		}
		// Fallback: usar la activa
		_, _, pub, err := i.Keys.Active()
		if err != nil {
			return nil, err
		}
		return ed25519.PublicKey(pub), nil
	}
}

// SignRaw firma un MapClaims arbitrario, setea header kid/typ y devuelve el JWT firmado.
func (i *Issuer) SignRaw(claims jwtv5.MapClaims) (string, string, error) {
	kid, priv, _, err := i.Keys.Active()
	if err != nil {
		return "", "", err
	}
	tk := jwtv5.NewWithClaims(jwtv5.SigningMethodEdDSA, claims)
	tk.Header["kid"] = kid
	tk.Header["typ"] = "JWT"
	signed, err := tk.SignedString(priv)
	if err != nil {
		return "", "", err
	}
	return signed, kid, nil
}

// IssueAccess emite un access token con claims estándar + extra.
// ttlSeconds <= 0 usa AccessTTL.
func (i *Issuer) IssueAccess(sub, aud string, extra map[string]any, ttlSeconds int) (string, time.Time, error) {
	ttl := i.AccessTTL
	if ttlSeconds > 0 {
		ttl = time.Duration(ttlSeconds) * time.Second
	}
	return i.issue(sub, aud, extra, ttl)
}

// IssueIDToken emite un ID token OIDC con claims estándar y extras.
// ttlSeconds <= 0 usa IDTTL.
func (i *Issuer) IssueIDToken(sub, aud string, extra map[string]any, ttlSeconds int) (string, time.Time, error) {
	ttl := i.IDTTL
	if ttlSeconds > 0 {
		ttl = time.Duration(ttlSeconds) * time.Second
	}
	return i.issue(sub, aud, extra, ttl)
}

// IssueLogoutToken emite un logout token para back-channel logout
// (OIDC Back-Channel Logout 1.0). Sin claim nonce, con events + sid.
func (i *Issuer) IssueLogoutToken(sub, aud, sid string) (string, error) {
	now := time.Now().UTC()
	claims := jwtv5.MapClaims{
		"iss": i.Iss,
		"sub": sub,
		"aud": aud,
		"iat": now.Unix(),
		"exp": now.Add(2 * time.Minute).Unix(),
		"jti": base64.RawURLEncoding.EncodeToString([]byte(sid + now.Format(time.RFC3339Nano)))[:22],
		"sid": sid,
		"events": map[string]any{
			"http://schemas.openid.net/event/backchannel-logout": map[string]any{},
		},
	}
	signed, _, err := i.SignRaw(claims)
	return signed, err
}

func (i *Issuer) issue(sub, aud string, extra map[string]any, ttl time.Duration) (string, time.Time, error) {
	now := time.Now().UTC()
	exp := now.Add(ttl)

	kid, priv, _, err := i.Keys.Active()
	if err != nil {
		return "", time.Time{}, err
	}

	claims := jwtv5.MapClaims{
		"iss": i.Iss,
		"sub": sub,
		"aud": aud,
		"iat": now.Unix(),
		"nbf": now.Unix(),
		"exp": exp.Unix(),
	}
	for k, v := range extra {
		claims[k] = v
	}

	tk := jwtv5.NewWithClaims(jwtv5.SigningMethodEdDSA, claims)
	tk.Header["kid"] = kid
	tk.Header["typ"] = "JWT"

	signed, err := tk.SignedString(priv)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// Parse valida un token emitido por este issuer y devuelve sus claims.
func (i *Issuer) Parse(raw string) (jwtv5.MapClaims, error) {
	tk, err := jwtv5.Parse(raw, i.Keyfunc(),
		jwtv5.WithValidMethods([]string{"EdDSA"}),
		jwtv5.WithIssuer(i.Iss))
	if err != nil {
		return nil, err
	}
	claims, ok := tk.Claims.(jwtv5.MapClaims)
	if !ok || !tk.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// AtHash computa at_hash = base64url(128 bits altos de SHA-256(access_token)).
func AtHash(accessToken string) string {
	sum := sha256.Sum256([]byte(accessToken))
	return base64.RawURLEncoding.EncodeToString(sum[:len(sum)/2])
}
