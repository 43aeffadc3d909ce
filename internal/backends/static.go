package backends

import (
	"context"
	"errors"
	"net/url"
)

// staticBackend autentica siempre al mismo sujeto configurado. Pensado para
// desarrollo local y tests de integración; nunca debe habilitarse en
// producción.
type staticBackend struct {
	name        string
	redirectURL string
	subject     string
	email       string
	claims      map[string]any
}

func newStaticBackend(cfg Config, redirectURL string) (Backend, error) {
	if cfg.Subject == "" {
		return nil, errors.New("subject requerido para backend static")
	}
	return &staticBackend{
		name:        cfg.Name,
		redirectURL: redirectURL,
		subject:     cfg.Subject,
		email:       cfg.Email,
		claims:      cfg.Claims,
	}, nil
}

func (b *staticBackend) Name() string { return b.name }
func (b *staticBackend) Kind() string { return KindStatic }

// Start redirige directo al callback propio con un code sintético; no hay
// proveedor externo que visitar.
func (b *staticBackend) Start(_ context.Context, state string) (string, error) {
	u, err := url.Parse(b.redirectURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("code", "static")
	q.Set("state", state)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (b *staticBackend) Complete(_ context.Context, code, _ string) (*Assertion, error) {
	if code != "static" {
		return nil, errors.New("backends: code inválido para backend static")
	}
	name, _ := b.claims["name"].(string)
	return &Assertion{
		Backend:       b.name,
		Subject:       b.subject,
		Email:         b.email,
		EmailVerified: b.email != "",
		Name:          name,
		AMR:           []string{"static"},
		RawClaims:     b.claims,
	}, nil
}
