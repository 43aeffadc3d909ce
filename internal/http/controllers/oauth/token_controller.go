package oauth

import (
	"encoding/json"
	"errors"
	"net/http"

	dto "github.com/dropDatabas3/janus/internal/http/dto/oauth"
	httperrors "github.com/dropDatabas3/janus/internal/http/errors"
	svc "github.com/dropDatabas3/janus/internal/http/services/oauth"
	"github.com/dropDatabas3/janus/internal/observability/logger"
)

// TokenController maneja POST /oauth2/token.
type TokenController struct {
	service svc.TokenService
}

// NewTokenController crea el controller.
func NewTokenController(service svc.TokenService) *TokenController {
	return &TokenController{service: service}
}

// Token parsea el form, resuelve credenciales de client (Basic o body) y
// despacha según grant_type. Los errores salen en formato RFC 6749.
// POST /oauth2/token
func (c *TokenController) Token(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		httperrors.WriteOAuthError(w, http.StatusBadRequest, "invalid_request", "malformed form body")
		return
	}

	req := dto.TokenRequest{
		GrantType:    r.PostFormValue("grant_type"),
		Code:         r.PostFormValue("code"),
		RedirectURI:  r.PostFormValue("redirect_uri"),
		CodeVerifier: r.PostFormValue("code_verifier"),
		RefreshToken: r.PostFormValue("refresh_token"),
		Scope:        r.PostFormValue("scope"),
		ClientID:     r.PostFormValue("client_id"),
		ClientSecret: r.PostFormValue("client_secret"),
	}

	// Basic auth tiene precedencia sobre credenciales en el body.
	if id, secret, ok := r.BasicAuth(); ok {
		if req.ClientID != "" && req.ClientID != id {
			httperrors.WriteOAuthError(w, http.StatusBadRequest, "invalid_request", "client_id mismatch between header and body")
			return
		}
		req.ClientID = id
		req.ClientSecret = secret
	}

	var (
		res *dto.TokenResponse
		err error
	)
	switch req.GrantType {
	case "authorization_code":
		res, err = c.service.ExchangeAuthorizationCode(r.Context(), req)
	case "refresh_token":
		res, err = c.service.ExchangeRefreshToken(r.Context(), req)
	case "client_credentials":
		res, err = c.service.ExchangeClientCredentials(r.Context(), req)
	case "":
		httperrors.WriteOAuthError(w, http.StatusBadRequest, "invalid_request", "grant_type required")
		return
	default:
		httperrors.WriteOAuthError(w, http.StatusBadRequest, "unsupported_grant_type", "")
		return
	}

	if err != nil {
		writeTokenError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	json.NewEncoder(w).Encode(res)
}

// writeTokenError mapea los sentinels del service a códigos RFC 6749.
func writeTokenError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, svc.ErrTokenInvalidRequest):
		httperrors.WriteOAuthError(w, http.StatusBadRequest, "invalid_request", "")
	case errors.Is(err, svc.ErrTokenInvalidClient):
		httperrors.WriteOAuthError(w, http.StatusUnauthorized, "invalid_client", "")
	case errors.Is(err, svc.ErrTokenInvalidGrant):
		httperrors.WriteOAuthError(w, http.StatusBadRequest, "invalid_grant", "")
	case errors.Is(err, svc.ErrTokenUnauthorizedClient):
		httperrors.WriteOAuthError(w, http.StatusBadRequest, "unauthorized_client", "")
	case errors.Is(err, svc.ErrTokenUnsupportedGrantType):
		httperrors.WriteOAuthError(w, http.StatusBadRequest, "unsupported_grant_type", "")
	case errors.Is(err, svc.ErrTokenInvalidScope):
		httperrors.WriteOAuthError(w, http.StatusBadRequest, "invalid_scope", "")
	default:
		logger.From(r.Context()).Error("token exchange failed", logger.Err(err))
		httperrors.WriteOAuthError(w, http.StatusInternalServerError, "server_error", "")
	}
}
