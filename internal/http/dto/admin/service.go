// Package admin contiene DTOs de la superficie de administración.
package admin

import "time"

// ServiceRequest es el body de create/update de un service.
type ServiceRequest struct {
	Name            string   `json:"name"`
	ClientID        string   `json:"client_id"`
	Type            string   `json:"type"` // confidential | public
	RedirectURIs    []string `json:"redirect_uris"`
	AllowedScopes   []string `json:"allowed_scopes"`
	GrantTypes      []string `json:"grant_types,omitempty"`
	AccessTokenTTL  int      `json:"access_token_ttl,omitempty"`
	IDTokenTTL      int      `json:"id_token_ttl,omitempty"`
	RefreshTokenTTL int      `json:"refresh_token_ttl,omitempty"`
	RefreshEligible bool     `json:"refresh_eligible"`
	LogoutURI       string   `json:"logout_uri,omitempty"`
	LogoutChannel   string   `json:"logout_channel,omitempty"`
}

// ServiceResponse es la representación de un service registrado. El secret
// viaja en texto plano una única vez, en la respuesta del create.
type ServiceResponse struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	ClientID        string    `json:"client_id"`
	ClientSecret    string    `json:"client_secret,omitempty"`
	Type            string    `json:"type"`
	RedirectURIs    []string  `json:"redirect_uris"`
	AllowedScopes   []string  `json:"allowed_scopes"`
	GrantTypes      []string  `json:"grant_types,omitempty"`
	AccessTokenTTL  int       `json:"access_token_ttl,omitempty"`
	IDTokenTTL      int       `json:"id_token_ttl,omitempty"`
	RefreshTokenTTL int       `json:"refresh_token_ttl,omitempty"`
	RefreshEligible bool      `json:"refresh_eligible"`
	LogoutURI       string    `json:"logout_uri,omitempty"`
	LogoutChannel   string    `json:"logout_channel,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// UserResponse es la vista admin de un usuario.
type UserResponse struct {
	ID             string     `json:"id"`
	Email          string     `json:"email,omitempty"`
	EmailVerified  bool       `json:"email_verified"`
	Name           string     `json:"name,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	DisabledAt     *time.Time `json:"disabled_at,omitempty"`
	DisabledReason *string    `json:"disabled_reason,omitempty"`
}

// DisableUserRequest es el body de POST /users/{id}/disable.
type DisableUserRequest struct {
	Reason string `json:"reason"`
}
