package repository

import (
	"context"
	"time"
)

// ExternalIdentity representa una identidad verificada por un backend externo
// (social login, SAML IdP, directorio corporativo).
//
// Invariante: un par (backend, subject) pertenece como máximo a un usuario.
// Un usuario puede tener varias identidades (account linking).
type ExternalIdentity struct {
	ID            string
	UserID        string
	Backend       string // nombre del backend configurado ("google", "adfs", ...)
	Subject       string // subject ID en el backend
	Email         string
	EmailVerified bool
	RawClaims     map[string]any
	CreatedAt     time.Time
	LastLoginAt   time.Time
}

// ResolveIdentityInput contiene los datos de una aserción externa exitosa.
type ResolveIdentityInput struct {
	Backend       string
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
	GivenName     string
	FamilyName    string
	Locale        string
	RawClaims     map[string]any
}

// IdentityRepository define operaciones sobre identidades externas.
type IdentityRepository interface {
	// GetByBackend busca una identidad por (backend, subject).
	// Retorna ErrNotFound si no existe.
	GetByBackend(ctx context.Context, backend, subject string) (*ExternalIdentity, error)

	// ListByUser lista todas las identidades de un usuario.
	ListByUser(ctx context.Context, userID string) ([]ExternalIdentity, error)

	// ResolveOrCreate es el entry point tras una aserción externa exitosa.
	// Si el par (backend, subject) ya existe, retorna el usuario dueño.
	// Si no, crea usuario + identidad atómicamente. Bajo first-logins
	// concurrentes del mismo subject debe ganar exactamente uno; el resto
	// resuelve al usuario creado.
	ResolveOrCreate(ctx context.Context, input ResolveIdentityInput) (userID string, isNew bool, err error)

	// Link vincula una identidad a un usuario ya autenticado.
	// Retorna ErrIdentityLinked si el par pertenece a otro usuario.
	Link(ctx context.Context, userID string, input ResolveIdentityInput) (*ExternalIdentity, error)

	// Unlink elimina una identidad de un usuario.
	// Retorna ErrLastIdentity si es la única identidad del usuario.
	Unlink(ctx context.Context, userID, identityID string) error

	// TouchLogin actualiza last_login_at y los claims raw tras un login.
	TouchLogin(ctx context.Context, identityID string, at time.Time, claims map[string]any) error
}
