package repository

import (
	"context"
	"time"
)

// LoginEntry registra un par (device, service) desde el que un usuario se
// autenticó. Las filas se agregan, nunca se mutan (salvo last_used y
// revocación), y soportan el "sign out of this device" selectivo sin
// afectar la sesión broker.
type LoginEntry struct {
	ID                string
	UserID            string
	ServiceID         string
	DeviceFingerprint string
	DeviceName        string // descripción legible ("Firefox on Linux")
	IPAddress         string
	CreatedAt         time.Time
	LastUsedAt        time.Time
	RevokedAt         *time.Time
}

// AppendLoginEntryInput contiene los datos para registrar un login.
type AppendLoginEntryInput struct {
	UserID            string
	ServiceID         string
	DeviceFingerprint string
	DeviceName        string
	IPAddress         string
	At                time.Time
}

// LoginEntryRepository define operaciones sobre login entries.
type LoginEntryRepository interface {
	// Append registra un login. Si ya existe una entry activa para el
	// triple (user, service, fingerprint) solo actualiza last_used_at.
	Append(ctx context.Context, input AppendLoginEntryInput) (*LoginEntry, error)

	// ListByUser lista las entries de un usuario, más recientes primero.
	ListByUser(ctx context.Context, userID string) ([]LoginEntry, error)

	// Revoke revoca una entry específica.
	// Retorna ErrNotFound si no existe o no pertenece al usuario.
	Revoke(ctx context.Context, userID, entryID string) error

	// IsRevoked indica si la entry del triple está revocada.
	IsRevoked(ctx context.Context, userID, serviceID, fingerprint string) (bool, error)
}
