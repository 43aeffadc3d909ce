package repository

import (
	"context"
	"time"
)

// Estados calculados de una sesión.
const (
	SessionActive    = "active"
	SessionExpired   = "expired"
	SessionLoggedOut = "logged_out"
)

// Session representa una sesión SSO a nivel broker.
//
// Máquina de estados: Unauthenticated → Active(expiry) → Expired | LoggedOut.
// Una sesión registra los services que autorizó durante su vida, necesarios
// para el fan-out de end-session.
type Session struct {
	ID           string
	UserID       string
	TokenHash    string // sha256 del token de sesión opaco
	Backend      string // backend externo con el que se autenticó
	AMR          []string
	VisitedIDs   []string // service IDs autorizados en esta sesión
	CreatedAt    time.Time
	LastActivity time.Time
	ExpiresAt    time.Time
	LoggedOutAt  *time.Time
}

// Status calcula el estado de la sesión con un idle timeout opcional.
// idleTimeout <= 0 desactiva el chequeo de inactividad.
func (s *Session) Status(now time.Time, idleTimeout time.Duration) string {
	if s.LoggedOutAt != nil {
		return SessionLoggedOut
	}
	if now.After(s.ExpiresAt) {
		return SessionExpired
	}
	if idleTimeout > 0 && now.Sub(s.LastActivity) > idleTimeout {
		return SessionExpired
	}
	return SessionActive
}

// CreateSessionInput contiene los datos para crear una sesión.
type CreateSessionInput struct {
	UserID    string
	TokenHash string
	Backend   string
	AMR       []string
	ExpiresAt time.Time
}

// SessionRepository define operaciones sobre sesiones broker.
type SessionRepository interface {
	// Create crea una nueva sesión Active.
	Create(ctx context.Context, input CreateSessionInput) (*Session, error)

	// GetByTokenHash busca una sesión por hash del token.
	// Retorna ErrNotFound si no existe.
	GetByTokenHash(ctx context.Context, tokenHash string) (*Session, error)

	// GetByID busca una sesión por ID.
	GetByID(ctx context.Context, sessionID string) (*Session, error)

	// TouchActivity actualiza last_activity.
	TouchActivity(ctx context.Context, sessionID string, at time.Time) error

	// AddVisitedService registra que la sesión autorizó un service.
	// Idempotente: agregar un service ya presente no duplica.
	AddVisitedService(ctx context.Context, sessionID, serviceID string) error

	// ListByUser lista las sesiones de un usuario.
	ListByUser(ctx context.Context, userID string) ([]Session, error)

	// End marca la sesión como LoggedOut.
	// Retorna ErrSessionEnded si ya estaba cerrada.
	End(ctx context.Context, sessionID string, at time.Time) error

	// EndAllByUser cierra todas las sesiones activas de un usuario.
	// Retorna el número de sesiones cerradas.
	EndAllByUser(ctx context.Context, userID string, at time.Time) (int, error)

	// DeleteExpired elimina sesiones expiradas o cerradas.
	DeleteExpired(ctx context.Context, before time.Time) (int, error)
}
