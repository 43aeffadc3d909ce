package repository

import (
	"context"
	"time"
)

// User representa un usuario del broker.
// Se crea en el primer login exitoso contra un backend externo y nunca se
// elimina automáticamente (soft-disable).
type User struct {
	ID             string
	Email          string
	EmailVerified  bool
	Name           string
	GivenName      string
	FamilyName     string
	Locale         string
	Claims         map[string]any
	CreatedAt      time.Time
	DisabledAt     *time.Time
	DisabledReason *string
}

// Disabled indica si el usuario está deshabilitado.
func (u *User) Disabled() bool { return u.DisabledAt != nil }

// ListUsersFilter opciones para listar usuarios.
type ListUsersFilter struct {
	Limit  int    // Default 50, max 200
	Offset int    // Default 0
	Search string // Opcional: búsqueda por email o nombre
}

// UserRepository define operaciones sobre usuarios.
type UserRepository interface {
	// GetByID busca un usuario por ID.
	// Retorna ErrNotFound si no existe.
	GetByID(ctx context.Context, userID string) (*User, error)

	// List lista usuarios con paginación.
	List(ctx context.Context, filter ListUsersFilter) ([]User, error)

	// Create crea un nuevo usuario.
	Create(ctx context.Context, u *User) error

	// Update actualiza los campos de perfil de un usuario.
	Update(ctx context.Context, u *User) error

	// Disable deshabilita un usuario (soft delete).
	Disable(ctx context.Context, userID, by, reason string) error

	// Enable rehabilita un usuario deshabilitado.
	Enable(ctx context.Context, userID, by string) error
}
