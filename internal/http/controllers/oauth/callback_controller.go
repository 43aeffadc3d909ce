package oauth

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	httperrors "github.com/dropDatabas3/janus/internal/http/errors"
	svc "github.com/dropDatabas3/janus/internal/http/services/oauth"
	sessionsvc "github.com/dropDatabas3/janus/internal/http/services/session"
	"github.com/dropDatabas3/janus/internal/observability/logger"
)

// CallbackController maneja el retorno de los backends externos.
type CallbackController struct {
	login     svc.LoginService
	authorize svc.AuthorizeService
	sessions  sessionsvc.Service
	uiBaseURL string
}

// NewCallbackController crea el controller.
func NewCallbackController(login svc.LoginService, authorize svc.AuthorizeService, sessions sessionsvc.Service, uiBaseURL string) *CallbackController {
	return &CallbackController{
		login:     login,
		authorize: authorize,
		sessions:  sessions,
		uiBaseURL: strings.TrimRight(uiBaseURL, "/"),
	}
}

// Callback completa el login externo y reanuda el authorize parkeado.
// El state es el resume token del request pendiente.
// GET /oauth2/callback/{backend}
func (c *CallbackController) Callback(w http.ResponseWriter, r *http.Request) {
	log := logger.From(r.Context()).With(logger.Layer("controller"), logger.Op("oauth.callback"))

	backend := chi.URLParam(r, "backend")
	q := r.URL.Query()

	// El backend puede rechazar el login (user canceló, cuenta bloqueada).
	if upstreamErr := q.Get("error"); upstreamErr != "" {
		log.Warn("upstream login error",
			logger.Backend(backend),
			logger.String("error", upstreamErr),
		)
		c.redirectUIError(w, r, upstreamErr, q.Get("error_description"))
		return
	}

	code, state := q.Get("code"), q.Get("state")
	if code == "" || state == "" {
		httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail("code and state required"))
		return
	}

	sess, raw, _, err := c.login.Complete(r.Context(), backend, code, state)
	if err != nil {
		switch {
		case errors.Is(err, svc.ErrUnknownBackend):
			httperrors.WriteError(w, httperrors.ErrNotFound.WithDetail("unknown backend"))
		case errors.Is(err, svc.ErrUserDisabled):
			c.redirectUIError(w, r, "access_denied", "account disabled")
		case errors.Is(err, svc.ErrLoginFailed):
			c.redirectUIError(w, r, "access_denied", "external login failed")
		default:
			httperrors.WriteError(w, httperrors.ErrInternalServerError.WithCause(err))
		}
		return
	}

	http.SetCookie(w, c.sessions.Cookie(raw))

	res, err := c.authorize.Resume(r.Context(), r, state, sess)
	if err != nil {
		if errors.Is(err, svc.ErrInvalidResume) {
			// La sesión quedó establecida aunque el request original expiró.
			http.Redirect(w, r, c.uiBaseURL+"/", http.StatusFound)
			return
		}
		httperrors.WriteError(w, httperrors.ErrInternalServerError.WithCause(err))
		return
	}
	writeAuthResult(w, r, res)
}

func (c *CallbackController) redirectUIError(w http.ResponseWriter, r *http.Request, code, description string) {
	to := c.uiBaseURL + "/error?error=" + url.QueryEscape(code)
	if description != "" {
		to += "&error_description=" + url.QueryEscape(description)
	}
	http.Redirect(w, r, to, http.StatusFound)
}
