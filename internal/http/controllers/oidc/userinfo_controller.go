package oidc

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	httperrors "github.com/dropDatabas3/janus/internal/http/errors"
	svc "github.com/dropDatabas3/janus/internal/http/services/oidc"
)

// UserInfoController maneja GET|POST /oauth2/userinfo.
type UserInfoController struct {
	service svc.UserInfoService
}

// NewUserInfoController crea el controller.
func NewUserInfoController(service svc.UserInfoService) *UserInfoController {
	return &UserInfoController{service: service}
}

// UserInfo valida el bearer token y responde los claims del usuario.
func (c *UserInfoController) UserInfo(w http.ResponseWriter, r *http.Request) {
	bearer := bearerToken(r)
	res, err := c.service.UserInfo(r.Context(), bearer)
	if err != nil {
		switch {
		case errors.Is(err, svc.ErrInvalidToken):
			w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
			httperrors.WriteError(w, httperrors.ErrUnauthorized)
		case errors.Is(err, svc.ErrInsufficientScope):
			w.Header().Set("WWW-Authenticate", `Bearer error="insufficient_scope"`)
			httperrors.WriteError(w, httperrors.ErrForbidden)
		default:
			httperrors.WriteError(w, httperrors.ErrInternalServerError.WithCause(err))
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	json.NewEncoder(w).Encode(res)
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}
