package repository

import (
	"context"
	"time"
)

// Tipos de cliente OAuth2.
const (
	ServiceTypeConfidential = "confidential"
	ServiceTypePublic       = "public"
)

// Canales de logout soportados por un service.
const (
	LogoutChannelNone  = ""
	LogoutChannelFront = "frontchannel"
	LogoutChannelBack  = "backchannel"
)

// Service representa un relying party registrado en el broker.
//
// Inmutable durante una autorización en vuelo: los cambios aplican en el
// siguiente request (las engines trabajan sobre la copia resuelta al inicio).
type Service struct {
	ID               string
	Name             string
	ClientID         string
	ClientSecretHash string // bcrypt; vacío para clients públicos
	Type             string // confidential | public
	RedirectURIs     []string
	AllowedScopes    []string
	GrantTypes       []string // vacío = authorization_code + refresh_token

	// Token lifetimes en segundos; 0 = default del issuer.
	AccessTokenTTL  int
	IDTokenTTL      int
	RefreshTokenTTL int
	RefreshEligible bool

	// Logout
	LogoutURI     string
	LogoutChannel string // frontchannel | backchannel | ""

	CreatedAt time.Time
	UpdatedAt time.Time
}

// AllowsRedirectURI valida redirect_uri contra el set registrado.
// Match exacto byte a byte: sin prefijos, sin normalización de casing
// ni de trailing slash.
func (s *Service) AllowsRedirectURI(uri string) bool {
	for _, allowed := range s.RedirectURIs {
		if allowed == uri {
			return true
		}
	}
	return false
}

// AllowsScope verifica que un scope esté permitido para el service.
func (s *Service) AllowsScope(scope string) bool {
	for _, a := range s.AllowedScopes {
		if a == scope {
			return true
		}
	}
	return false
}

// AllowsGrantType verifica que el grant_type esté habilitado.
// Sin grant types configurados, se permiten authorization_code y refresh_token.
func (s *Service) AllowsGrantType(grantType string) bool {
	if len(s.GrantTypes) == 0 {
		return grantType == "authorization_code" || grantType == "refresh_token"
	}
	for _, g := range s.GrantTypes {
		if g == grantType {
			return true
		}
	}
	return false
}

// ServiceRepository define operaciones sobre services (relying parties).
type ServiceRepository interface {
	// GetByClientID busca un service por client_id.
	// Retorna ErrNotFound si no existe.
	GetByClientID(ctx context.Context, clientID string) (*Service, error)

	// List lista todos los services registrados.
	List(ctx context.Context) ([]Service, error)

	// Create registra un nuevo service.
	// Retorna ErrConflict si el client_id ya existe.
	Create(ctx context.Context, s *Service) error

	// Update reemplaza la configuración de un service.
	Update(ctx context.Context, s *Service) error

	// Delete elimina un service.
	Delete(ctx context.Context, clientID string) error
}
