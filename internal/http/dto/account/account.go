// Package account contiene DTOs del self-service de usuario (/v1/me).
package account

import "time"

// Identity es una identidad externa vinculada, vista por su dueño.
type Identity struct {
	ID          string    `json:"id"`
	Backend     string    `json:"backend"`
	Email       string    `json:"email,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	LastLoginAt time.Time `json:"last_login_at"`
}

// LoginEntry es un login desde un dispositivo, vista self-service.
type LoginEntry struct {
	ID          string     `json:"id"`
	ServiceName string     `json:"service_name"`
	DeviceName  string     `json:"device_name,omitempty"`
	IPAddress   string     `json:"ip_address,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	LastUsedAt  time.Time  `json:"last_used_at"`
	RevokedAt   *time.Time `json:"revoked_at,omitempty"`
}

// Consent es un consent activo, vista "connected services".
type Consent struct {
	ServiceID   string    `json:"service_id"`
	ServiceName string    `json:"service_name"`
	ClientID    string    `json:"client_id"`
	Scopes      []string  `json:"scopes"`
	GrantedAt   time.Time `json:"granted_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Session es una sesión broker del usuario.
type Session struct {
	ID           string    `json:"id"`
	Backend      string    `json:"backend"`
	Status       string    `json:"status"`
	Current      bool      `json:"current"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Profile es el perfil del usuario autenticado.
type Profile struct {
	ID            string    `json:"id"`
	Email         string    `json:"email,omitempty"`
	EmailVerified bool      `json:"email_verified"`
	Name          string    `json:"name,omitempty"`
	GivenName     string    `json:"given_name,omitempty"`
	FamilyName    string    `json:"family_name,omitempty"`
	Locale        string    `json:"locale,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}
