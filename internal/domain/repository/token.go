package repository

import (
	"context"
	"time"
)

// RefreshToken representa un refresh token opaco almacenado por hash.
//
// Los tokens de una misma cadena de rotación comparten FamilyID; Generation
// crece en cada rotación. Presentar un token con RevokedAt != nil es un
// evento de seguridad: el caller debe revocar la familia completa.
type RefreshToken struct {
	ID             string
	UserID         string
	ServiceID      string
	FamilyID       string
	Generation     int
	Scopes         []string
	TokenHash      string
	IssuedAt       time.Time
	ExpiresAt      time.Time
	FamilyIssuedAt time.Time
	RotatedFrom    *string
	RevokedAt      *time.Time
}

// CreateRefreshTokenInput contiene los datos para crear un refresh token.
type CreateRefreshTokenInput struct {
	UserID         string
	ServiceID      string
	FamilyID       string
	Generation     int
	Scopes         []string
	TokenHash      string
	ExpiresAt      time.Time
	FamilyIssuedAt time.Time
	RotatedFrom    *string
}

// TokenRepository define operaciones sobre refresh tokens.
type TokenRepository interface {
	// Create almacena un refresh token (hash, nunca el valor crudo).
	Create(ctx context.Context, input CreateRefreshTokenInput) (*RefreshToken, error)

	// GetByHash busca por hash. Retorna el token aunque esté revocado,
	// para que el caller detecte replays.
	GetByHash(ctx context.Context, tokenHash string) (*RefreshToken, error)

	// Revoke revoca un token individual.
	Revoke(ctx context.Context, id string) error

	// RevokeFamily revoca todos los tokens de una familia de rotación.
	// Retorna el número de tokens revocados.
	RevokeFamily(ctx context.Context, familyID string) (int, error)

	// RevokeByUserService revoca todos los tokens de un par (user, service).
	// Cascada de Consent.Revoke.
	RevokeByUserService(ctx context.Context, userID, serviceID string) (int, error)
}
