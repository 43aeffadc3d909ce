// Package oidc implementa los services de superficie OIDC: discovery
// y userinfo.
package oidc

import (
	"context"
	"strings"

	"github.com/dropDatabas3/janus/internal/http/dto/oidc"
)

// DiscoveryService construye el documento de configuración OIDC.
type DiscoveryService interface {
	Metadata(ctx context.Context) oidc.OIDCMetadata
}

type discoveryService struct {
	meta oidc.OIDCMetadata
}

// NewDiscoveryService precalcula el metadata; el documento es estático
// mientras viva el proceso.
func NewDiscoveryService(issuerURL string) DiscoveryService {
	base := strings.TrimRight(issuerURL, "/")
	return &discoveryService{
		meta: oidc.OIDCMetadata{
			Issuer:                base,
			AuthorizationEndpoint: base + "/oauth2/authorize",
			TokenEndpoint:         base + "/oauth2/token",
			UserinfoEndpoint:      base + "/oauth2/userinfo",
			JWKSURI:               base + "/.well-known/jwks.json",
			EndSessionEndpoint:    base + "/oauth2/end-session",

			ResponseTypesSupported: []string{"code"},
			GrantTypesSupported: []string{
				"authorization_code",
				"refresh_token",
				"client_credentials",
			},
			SubjectTypesSupported:            []string{"public"},
			IDTokenSigningAlgValuesSupported: []string{"EdDSA"},
			TokenEndpointAuthMethodsSupported: []string{
				"client_secret_basic",
				"client_secret_post",
				"none",
			},
			CodeChallengeMethodsSupported: []string{"S256"},
			ScopesSupported: []string{
				"openid", "email", "profile", "offline_access",
			},
			ClaimsSupported: []string{
				"sub", "iss", "aud", "exp", "iat", "auth_time",
				"nonce", "amr", "azp", "sid", "at_hash",
				"email", "email_verified", "name", "given_name", "family_name", "locale",
			},

			FrontchannelLogoutSupported: true,
			BackchannelLogoutSupported:  true,
		},
	}
}

func (s *discoveryService) Metadata(context.Context) oidc.OIDCMetadata {
	return s.meta
}
