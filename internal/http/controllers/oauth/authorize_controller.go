// Package oauth contiene los controllers del protocolo OAuth2/OIDC.
package oauth

import (
	"errors"
	"net/http"
	"net/url"

	dto "github.com/dropDatabas3/janus/internal/http/dto/oauth"
	httperrors "github.com/dropDatabas3/janus/internal/http/errors"
	svc "github.com/dropDatabas3/janus/internal/http/services/oauth"
)

// AuthorizeController maneja GET /oauth2/authorize.
type AuthorizeController struct {
	service svc.AuthorizeService
}

// NewAuthorizeController crea el controller.
func NewAuthorizeController(service svc.AuthorizeService) *AuthorizeController {
	return &AuthorizeController{service: service}
}

// Authorize parsea los query params y despacha según el resultado:
// code+state al client, o redirect al login/consent UI.
// GET /oauth2/authorize
func (c *AuthorizeController) Authorize(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := dto.AuthorizeRequest{
		ResponseType:        q.Get("response_type"),
		ClientID:            q.Get("client_id"),
		RedirectURI:         q.Get("redirect_uri"),
		Scope:               q.Get("scope"),
		State:               q.Get("state"),
		Nonce:               q.Get("nonce"),
		CodeChallenge:       q.Get("code_challenge"),
		CodeChallengeMethod: q.Get("code_challenge_method"),
		Prompt:              q.Get("prompt"),
		Backend:             q.Get("backend"),
	}

	res, err := c.service.Authorize(r.Context(), r, req)
	if err != nil {
		writeAuthorizeError(w, err)
		return
	}
	writeAuthResult(w, r, res)
}

// writeAuthorizeError responde en JSON los errores que no pueden
// redirigirse al client (client desconocido, redirect_uri no registrada).
func writeAuthorizeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, svc.ErrInvalidClient):
		httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail("unknown client_id"))
	case errors.Is(err, svc.ErrInvalidRedirect):
		httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail("redirect_uri not registered"))
	case errors.Is(err, svc.ErrInvalidResume):
		httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail("resume token invalid or expired"))
	default:
		httperrors.WriteError(w, httperrors.ErrInternalServerError.WithCause(err))
	}
}

// writeAuthResult traduce un AuthResult a la respuesta HTTP.
func writeAuthResult(w http.ResponseWriter, r *http.Request, res dto.AuthResult) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")

	switch res.Type {
	case dto.AuthResultSuccess:
		to := addQueryParams(res.RedirectURI, map[string]string{
			"code":  res.Code,
			"state": res.State,
		})
		http.Redirect(w, r, to, http.StatusFound)

	case dto.AuthResultNeedLogin, dto.AuthResultConsentRequired:
		http.Redirect(w, r, res.RedirectTo, http.StatusFound)

	case dto.AuthResultError:
		to := addQueryParams(res.RedirectURI, map[string]string{
			"error":             res.ErrorCode,
			"error_description": res.ErrorDescription,
			"state":             res.State,
		})
		http.Redirect(w, r, to, http.StatusFound)

	default:
		httperrors.WriteError(w, httperrors.ErrInternalServerError)
	}
}

// addQueryParams agrega params a una URL preservando los existentes.
// Omite valores vacíos.
func addQueryParams(base string, params map[string]string) string {
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	q := u.Query()
	for k, v := range params {
		if v != "" {
			q.Set(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}
