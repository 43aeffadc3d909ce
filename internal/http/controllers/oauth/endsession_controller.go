package oauth

import (
	"encoding/json"
	"net/http"
	"strconv"

	dto "github.com/dropDatabas3/janus/internal/http/dto/oauth"
	httperrors "github.com/dropDatabas3/janus/internal/http/errors"
	svc "github.com/dropDatabas3/janus/internal/http/services/oauth"
	sessionsvc "github.com/dropDatabas3/janus/internal/http/services/session"
)

// EndSessionController maneja el logout SSO (OIDC RP-Initiated Logout).
type EndSessionController struct {
	service  svc.EndSessionService
	sessions sessionsvc.Service
}

// NewEndSessionController crea el controller.
func NewEndSessionController(service svc.EndSessionService, sessions sessionsvc.Service) *EndSessionController {
	return &EndSessionController{service: service, sessions: sessions}
}

// EndSession cierra la sesión broker, dispara el fan-out a los services
// y redirige. Con ?json=1 responde las notificaciones en JSON, para que
// el UI pueda renderizar los iframes de frontchannel logout.
// GET|POST /oauth2/end-session
func (c *EndSessionController) EndSession(w http.ResponseWriter, r *http.Request) {
	var req dto.EndSessionRequest
	switch r.Method {
	case http.MethodPost:
		if err := r.ParseForm(); err != nil {
			httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail("malformed form body"))
			return
		}
		req = dto.EndSessionRequest{
			IDTokenHint:           r.PostFormValue("id_token_hint"),
			ClientID:              r.PostFormValue("client_id"),
			PostLogoutRedirectURI: r.PostFormValue("post_logout_redirect_uri"),
			State:                 r.PostFormValue("state"),
		}
		req.AllServices, _ = strconv.ParseBool(r.PostFormValue("all_services"))
	default:
		q := r.URL.Query()
		req = dto.EndSessionRequest{
			IDTokenHint:           q.Get("id_token_hint"),
			ClientID:              q.Get("client_id"),
			PostLogoutRedirectURI: q.Get("post_logout_redirect_uri"),
			State:                 q.Get("state"),
		}
		req.AllServices, _ = strconv.ParseBool(q.Get("all_services"))
	}

	res, err := c.service.EndSession(r.Context(), r, req)
	if err != nil {
		httperrors.WriteError(w, httperrors.ErrInternalServerError.WithCause(err))
		return
	}

	http.SetCookie(w, c.sessions.ClearCookie())
	w.Header().Set("Cache-Control", "no-store")

	if r.URL.Query().Get("json") == "1" {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(res)
		return
	}

	to := res.RedirectTo
	if res.State != "" {
		to = addQueryParams(to, map[string]string{"state": res.State})
	}
	http.Redirect(w, r, to, http.StatusFound)
}
