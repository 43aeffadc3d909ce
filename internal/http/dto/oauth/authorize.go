// Package oauth contains DTOs for OAuth2/OIDC endpoints.
package oauth

import "time"

// AuthorizeRequest contains the parsed query params for GET /authorize.
type AuthorizeRequest struct {
	ResponseType        string `json:"response_type"`
	ClientID            string `json:"client_id"`
	RedirectURI         string `json:"redirect_uri"`
	Scope               string `json:"scope"`
	State               string `json:"state"`
	Nonce               string `json:"nonce"`
	CodeChallenge       string `json:"code_challenge"`
	CodeChallengeMethod string `json:"code_challenge_method"`
	Prompt              string `json:"prompt"`  // "login", "consent", "none" o combinación
	Backend             string `json:"backend"` // backend externo preferido (opcional)
}

// AuthCodePayload is stored in cache when an auth code is issued.
// It's consumed by the token endpoint to exchange code for tokens.
type AuthCodePayload struct {
	UserID          string    `json:"user_id"`
	ServiceID       string    `json:"service_id"`
	ClientID        string    `json:"client_id"`
	SessionID       string    `json:"session_id"`
	RedirectURI     string    `json:"redirect_uri"`
	Scope           string    `json:"scope"`
	Nonce           string    `json:"nonce"`
	CodeChallenge   string    `json:"code_challenge"`
	ChallengeMethod string    `json:"code_challenge_method"`
	AMR             []string  `json:"amr"`
	AuthTime        time.Time `json:"auth_time"`
	ExpiresAt       time.Time `json:"expires_at"`
}

// UsedCodeTombstone is written when a code is exchanged. A second exchange
// of the same code finds the tombstone and revokes the token family.
type UsedCodeTombstone struct {
	FamilyID string    `json:"family_id"`
	UsedAt   time.Time `json:"used_at"`
}

// PendingRequest is an authorize request parked while the user completes
// an external login or a consent screen. Stored in cache keyed by an
// opaque resumption token; rehydrated on callback/approval.
type PendingRequest struct {
	Request   AuthorizeRequest `json:"request"`
	Backend   string           `json:"backend"`
	CreatedAt time.Time        `json:"created_at"`
}

// AuthResultType indicates the outcome of the authorization request.
type AuthResultType int

const (
	// AuthResultSuccess - issue auth code and redirect
	AuthResultSuccess AuthResultType = iota
	// AuthResultNeedLogin - redirect to the external backend (or picker UI)
	AuthResultNeedLogin
	// AuthResultConsentRequired - redirect to consent UI
	AuthResultConsentRequired
	// AuthResultError - redirect to the client with error params
	AuthResultError
)

// AuthResult is the outcome from AuthorizeService.Authorize.
type AuthResult struct {
	Type AuthResultType

	// For Success
	Code  string
	State string

	// For NeedLogin / ConsentRequired
	RedirectTo  string
	ResumeToken string

	// For Error
	ErrorCode        string
	ErrorDescription string

	// Common
	RedirectURI string
}

// ConsentPrompt is what the consent UI needs to render an approval screen.
type ConsentPrompt struct {
	ResumeToken string   `json:"resume_token"`
	ServiceName string   `json:"service_name"`
	ClientID    string   `json:"client_id"`
	Scopes      []string `json:"scopes"`
}
