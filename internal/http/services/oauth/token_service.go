package oauth

import (
	"context"
	"errors"

	dto "github.com/dropDatabas3/janus/internal/http/dto/oauth"
)

// TokenService maneja la lógica del token endpoint.
type TokenService interface {
	// ExchangeAuthorizationCode maneja grant_type=authorization_code (PKCE)
	ExchangeAuthorizationCode(ctx context.Context, req dto.TokenRequest) (*dto.TokenResponse, error)

	// ExchangeRefreshToken maneja grant_type=refresh_token (rotación)
	ExchangeRefreshToken(ctx context.Context, req dto.TokenRequest) (*dto.TokenResponse, error)

	// ExchangeClientCredentials maneja grant_type=client_credentials (M2M)
	ExchangeClientCredentials(ctx context.Context, req dto.TokenRequest) (*dto.TokenResponse, error)
}

// Errores del token endpoint (códigos OAuth2 estándar). El controller los
// mapea al formato de RFC 6749; nunca se filtra la causa interna.
var (
	ErrTokenInvalidRequest       = errors.New("invalid_request")
	ErrTokenInvalidClient        = errors.New("invalid_client")
	ErrTokenInvalidGrant         = errors.New("invalid_grant")
	ErrTokenUnauthorizedClient   = errors.New("unauthorized_client")
	ErrTokenUnsupportedGrantType = errors.New("unsupported_grant_type")
	ErrTokenInvalidScope         = errors.New("invalid_scope")
	ErrTokenServerError          = errors.New("server_error")
)
