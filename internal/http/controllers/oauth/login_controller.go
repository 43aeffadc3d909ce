package oauth

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	httperrors "github.com/dropDatabas3/janus/internal/http/errors"
	svc "github.com/dropDatabas3/janus/internal/http/services/oauth"
)

// LoginController sirve al login UI: listado de backends y arranque del
// login contra el backend elegido.
type LoginController struct {
	starter svc.BackendStarter
}

// NewLoginController crea el controller.
func NewLoginController(starter svc.BackendStarter) *LoginController {
	return &LoginController{starter: starter}
}

// Backends lista los backends disponibles para el picker.
// GET /oauth2/backends
func (c *LoginController) Backends(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string][]string{"backends": c.starter.BackendNames()})
}

// Start redirige al backend elegido. El resume token del authorize
// pendiente viaja como state.
// GET /oauth2/login/{backend}?resume=xxx
func (c *LoginController) Start(w http.ResponseWriter, r *http.Request) {
	backend := chi.URLParam(r, "backend")
	resume := r.URL.Query().Get("resume")
	if resume == "" {
		httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail("resume required"))
		return
	}
	if !c.starter.HasBackend(backend) {
		httperrors.WriteError(w, httperrors.ErrNotFound.WithDetail("unknown backend"))
		return
	}

	to, err := c.starter.StartLogin(r.Context(), backend, resume)
	if err != nil {
		httperrors.WriteError(w, httperrors.ErrInternalServerError.WithCause(err))
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	http.Redirect(w, r, to, http.StatusFound)
}
