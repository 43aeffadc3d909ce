package repository

import (
	"context"
	"time"
)

// Consent representa el consentimiento de un usuario hacia un service.
// Como máximo un registro activo por par (user, service).
type Consent struct {
	ID        string
	UserID    string
	ServiceID string // ID interno del service, no client_id
	Scopes    []string
	GrantedAt time.Time
	UpdatedAt time.Time
}

// Covers indica si el consent cubre todos los scopes solicitados.
func (c *Consent) Covers(requested []string) bool {
	granted := make(map[string]struct{}, len(c.Scopes))
	for _, s := range c.Scopes {
		granted[s] = struct{}{}
	}
	for _, r := range requested {
		if _, ok := granted[r]; !ok {
			return false
		}
	}
	return true
}

// ConsentRepository define operaciones sobre consents.
//
// Las escrituras para un mismo par (user, service) deben ser serializadas
// por la implementación: dos Upsert concurrentes con el mismo scope set
// son idempotentes, nunca corrompen el registro.
type ConsentRepository interface {
	// Get obtiene el consent activo de un usuario para un service.
	// Retorna ErrNotFound si no existe.
	Get(ctx context.Context, userID, serviceID string) (*Consent, error)

	// Upsert crea o actualiza el consent del par, reemplazando los scopes.
	// La política union/replace la decide el caller; el repositorio siempre
	// escribe el set que recibe.
	Upsert(ctx context.Context, userID, serviceID string, scopes []string) (*Consent, error)

	// ListByUser lista los consents activos de un usuario
	// (vista "connected services" del self-service).
	ListByUser(ctx context.Context, userID string) ([]Consent, error)

	// Revoke elimina el consent del par. El caller debe cascadear la
	// invalidación de refresh tokens derivados.
	// Retorna ErrNotFound si no existe.
	Revoke(ctx context.Context, userID, serviceID string) error
}
