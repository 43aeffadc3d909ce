// Package account contiene los controllers del self-service /v1/me.
// Todos asumen WithSession en la chain: la sesión y el userID ya están
// en el context.
package account

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/janus/internal/domain/repository"
	httperrors "github.com/dropDatabas3/janus/internal/http/errors"
	"github.com/dropDatabas3/janus/internal/http/middlewares"
	svc "github.com/dropDatabas3/janus/internal/http/services/account"
	sessionsvc "github.com/dropDatabas3/janus/internal/http/services/session"
)

// Controller maneja los endpoints de la cuenta del usuario autenticado.
type Controller struct {
	service  svc.Service
	sessions sessionsvc.Service
}

// NewController crea el controller.
func NewController(service svc.Service, sessions sessionsvc.Service) *Controller {
	return &Controller{service: service, sessions: sessions}
}

// Profile retorna el perfil del usuario.
// GET /v1/me
func (c *Controller) Profile(w http.ResponseWriter, r *http.Request) {
	userID := middlewares.GetUserID(r.Context())
	res, err := c.service.Profile(r.Context(), userID)
	if err != nil {
		writeRepoError(w, err)
		return
	}
	writeJSON(w, res)
}

// ListIdentities retorna las identidades externas vinculadas.
// GET /v1/me/identities
func (c *Controller) ListIdentities(w http.ResponseWriter, r *http.Request) {
	userID := middlewares.GetUserID(r.Context())
	res, err := c.service.ListIdentities(r.Context(), userID)
	if err != nil {
		writeRepoError(w, err)
		return
	}
	writeJSON(w, res)
}

// UnlinkIdentity desvincula una identidad externa.
// DELETE /v1/me/identities/{id}
func (c *Controller) UnlinkIdentity(w http.ResponseWriter, r *http.Request) {
	userID := middlewares.GetUserID(r.Context())
	identityID := chi.URLParam(r, "id")

	err := c.service.UnlinkIdentity(r.Context(), userID, identityID)
	if err != nil {
		if errors.Is(err, repository.ErrLastIdentity) {
			httperrors.WriteError(w, httperrors.ErrConflict.WithDetail("cannot unlink the last identity"))
			return
		}
		writeRepoError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListLoginEntries retorna el historial de logins por device.
// GET /v1/me/logins
func (c *Controller) ListLoginEntries(w http.ResponseWriter, r *http.Request) {
	userID := middlewares.GetUserID(r.Context())
	res, err := c.service.ListLoginEntries(r.Context(), userID)
	if err != nil {
		writeRepoError(w, err)
		return
	}
	writeJSON(w, res)
}

// RevokeLoginEntry revoca el login de un device puntual.
// POST /v1/me/logins/{id}/revoke
func (c *Controller) RevokeLoginEntry(w http.ResponseWriter, r *http.Request) {
	userID := middlewares.GetUserID(r.Context())
	entryID := chi.URLParam(r, "id")

	if err := c.service.RevokeLoginEntry(r.Context(), userID, entryID); err != nil {
		writeRepoError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListConsents retorna los services conectados y sus scopes.
// GET /v1/me/consents
func (c *Controller) ListConsents(w http.ResponseWriter, r *http.Request) {
	userID := middlewares.GetUserID(r.Context())
	res, err := c.service.ListConsents(r.Context(), userID)
	if err != nil {
		writeRepoError(w, err)
		return
	}
	writeJSON(w, res)
}

// RevokeConsent desconecta un service: borra el consent y revoca sus
// refresh tokens.
// DELETE /v1/me/consents/{serviceID}
func (c *Controller) RevokeConsent(w http.ResponseWriter, r *http.Request) {
	userID := middlewares.GetUserID(r.Context())
	serviceID := chi.URLParam(r, "serviceID")

	if err := c.service.RevokeConsent(r.Context(), userID, serviceID); err != nil {
		writeRepoError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListSessions retorna las sesiones broker del usuario.
// GET /v1/me/sessions
func (c *Controller) ListSessions(w http.ResponseWriter, r *http.Request) {
	userID := middlewares.GetUserID(r.Context())

	var currentID string
	if sess := middlewares.GetSession(r.Context()); sess != nil {
		currentID = sess.ID
	}

	res, err := c.service.ListSessions(r.Context(), userID, currentID)
	if err != nil {
		writeRepoError(w, err)
		return
	}
	writeJSON(w, res)
}

// EndAllSessions cierra todas las sesiones del usuario, incluida la
// actual; borra la cookie.
// POST /v1/me/sessions/end-all
func (c *Controller) EndAllSessions(w http.ResponseWriter, r *http.Request) {
	userID := middlewares.GetUserID(r.Context())

	n, err := c.service.EndAllSessions(r.Context(), userID)
	if err != nil {
		writeRepoError(w, err)
		return
	}
	http.SetCookie(w, c.sessions.ClearCookie())
	writeJSON(w, map[string]int{"ended": n})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeRepoError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		httperrors.WriteError(w, httperrors.ErrNotFound)
	case errors.Is(err, repository.ErrConflict):
		httperrors.WriteError(w, httperrors.ErrConflict)
	default:
		httperrors.WriteError(w, httperrors.ErrInternalServerError.WithCause(err))
	}
}
