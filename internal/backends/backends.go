// Package backends abstrae los métodos de autenticación externos.
//
// Cada backend (OIDC social login, IdP corporativo, backend estático de
// desarrollo) expone el mismo flujo: Start redirige al proveedor externo y
// Complete valida la respuesta y produce una Assertion normalizada. El
// engine de autorización trabaja solo con Assertion; nunca ve tokens del
// proveedor.
package backends

import (
	"context"
	"fmt"
	"sort"
)

// Kinds de backend soportados.
const (
	KindOIDC   = "oidc"
	KindStatic = "static"
)

// Assertion es el resultado normalizado de una autenticación externa.
type Assertion struct {
	Backend       string
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
	GivenName     string
	FamilyName    string
	Locale        string
	AMR           []string
	RawClaims     map[string]any
}

// Backend es un método de autenticación externo.
//
// state es un token opaco impredecible que el caller persiste junto al
// request pendiente; viaja hasta el proveedor y vuelve en el callback,
// atando la respuesta al request que la originó.
type Backend interface {
	Name() string
	Kind() string

	// Start retorna la URL del proveedor a la que redirigir al usuario.
	Start(ctx context.Context, state string) (string, error)

	// Complete valida la respuesta del callback (code + state) y retorna
	// la aserción verificada.
	Complete(ctx context.Context, code, state string) (*Assertion, error)
}

// Config describe un backend declarado en la configuración.
type Config struct {
	Name         string
	Kind         string
	IssuerURL    string
	ClientID     string
	ClientSecret string
	Scopes       []string

	// Solo para kind=static.
	Subject string
	Email   string
	Claims  map[string]any
}

// Registry mantiene los backends configurados, indexados por nombre.
type Registry struct {
	backends map[string]Backend
}

// NewRegistry construye los backends declarados. callbackURL es la URL
// pública del endpoint de callback del broker; el nombre del backend se
// agrega como último segmento del path.
func NewRegistry(ctx context.Context, cfgs []Config, callbackURL string) (*Registry, error) {
	reg := &Registry{backends: make(map[string]Backend, len(cfgs))}
	for _, cfg := range cfgs {
		if cfg.Name == "" {
			return nil, fmt.Errorf("backends: backend sin nombre")
		}
		if _, dup := reg.backends[cfg.Name]; dup {
			return nil, fmt.Errorf("backends: nombre duplicado %q", cfg.Name)
		}

		var (
			b   Backend
			err error
		)
		switch cfg.Kind {
		case KindOIDC:
			b, err = newOIDCBackend(ctx, cfg, callbackURL+"/"+cfg.Name)
		case KindStatic:
			b, err = newStaticBackend(cfg, callbackURL+"/"+cfg.Name)
		default:
			err = fmt.Errorf("kind desconocido %q", cfg.Kind)
		}
		if err != nil {
			return nil, fmt.Errorf("backends: %s: %w", cfg.Name, err)
		}
		reg.backends[cfg.Name] = b
	}
	return reg, nil
}

// Get busca un backend por nombre.
func (r *Registry) Get(name string) (Backend, bool) {
	b, ok := r.backends[name]
	return b, ok
}

// Default retorna el backend a usar cuando el request no pide uno
// específico: el único configurado, o el primero en orden alfabético.
func (r *Registry) Default() (Backend, bool) {
	names := r.Names()
	if len(names) == 0 {
		return nil, false
	}
	return r.Get(names[0])
}

// Names lista los nombres configurados, ordenados.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.backends))
	for name := range r.backends {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
