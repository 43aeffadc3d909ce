// Package admin contiene los controllers de administración. La chain
// les antepone WithAPIKey.
package admin

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/janus/internal/domain/repository"
	dto "github.com/dropDatabas3/janus/internal/http/dto/admin"
	httperrors "github.com/dropDatabas3/janus/internal/http/errors"
	svc "github.com/dropDatabas3/janus/internal/http/services/admin"
)

// Controller maneja los endpoints /v1/admin.
type Controller struct {
	service svc.Service
}

// NewController crea el controller.
func NewController(service svc.Service) *Controller {
	return &Controller{service: service}
}

// CreateService registra un relying party nuevo.
// POST /v1/admin/services
func (c *Controller) CreateService(w http.ResponseWriter, r *http.Request) {
	var req dto.ServiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httperrors.WriteError(w, httperrors.ErrInvalidJSON.WithCause(err))
		return
	}

	res, err := c.service.CreateService(r.Context(), req)
	if err != nil {
		writeAdminError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(res)
}

// UpdateService reemplaza la configuración de un service.
// PUT /v1/admin/services/{clientID}
func (c *Controller) UpdateService(w http.ResponseWriter, r *http.Request) {
	var req dto.ServiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httperrors.WriteError(w, httperrors.ErrInvalidJSON.WithCause(err))
		return
	}

	res, err := c.service.UpdateService(r.Context(), chi.URLParam(r, "clientID"), req)
	if err != nil {
		writeAdminError(w, err)
		return
	}
	writeJSON(w, res)
}

// DeleteService elimina un service.
// DELETE /v1/admin/services/{clientID}
func (c *Controller) DeleteService(w http.ResponseWriter, r *http.Request) {
	if err := c.service.DeleteService(r.Context(), chi.URLParam(r, "clientID")); err != nil {
		writeAdminError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetService retorna un service por client_id.
// GET /v1/admin/services/{clientID}
func (c *Controller) GetService(w http.ResponseWriter, r *http.Request) {
	res, err := c.service.GetService(r.Context(), chi.URLParam(r, "clientID"))
	if err != nil {
		writeAdminError(w, err)
		return
	}
	writeJSON(w, res)
}

// ListServices retorna todos los services registrados.
// GET /v1/admin/services
func (c *Controller) ListServices(w http.ResponseWriter, r *http.Request) {
	res, err := c.service.ListServices(r.Context())
	if err != nil {
		writeAdminError(w, err)
		return
	}
	writeJSON(w, res)
}

// RotateSecret regenera el client_secret de un confidential.
// POST /v1/admin/services/{clientID}/rotate-secret
func (c *Controller) RotateSecret(w http.ResponseWriter, r *http.Request) {
	res, err := c.service.RotateSecret(r.Context(), chi.URLParam(r, "clientID"))
	if err != nil {
		writeAdminError(w, err)
		return
	}
	writeJSON(w, res)
}

// ListUsers lista usuarios con paginación y búsqueda.
// GET /v1/admin/users?limit=&offset=&q=
func (c *Controller) ListUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	res, err := c.service.ListUsers(r.Context(), repository.ListUsersFilter{
		Limit:  limit,
		Offset: offset,
		Search: q.Get("q"),
	})
	if err != nil {
		writeAdminError(w, err)
		return
	}
	writeJSON(w, res)
}

// GetUser retorna un usuario por ID.
// GET /v1/admin/users/{id}
func (c *Controller) GetUser(w http.ResponseWriter, r *http.Request) {
	res, err := c.service.GetUser(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeAdminError(w, err)
		return
	}
	writeJSON(w, res)
}

// DisableUser deshabilita un usuario y cierra sus sesiones.
// POST /v1/admin/users/{id}/disable
func (c *Controller) DisableUser(w http.ResponseWriter, r *http.Request) {
	var req dto.DisableUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httperrors.WriteError(w, httperrors.ErrInvalidJSON.WithCause(err))
		return
	}

	if err := c.service.DisableUser(r.Context(), chi.URLParam(r, "id"), "admin-api", req.Reason); err != nil {
		writeAdminError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// EnableUser rehabilita un usuario.
// POST /v1/admin/users/{id}/enable
func (c *Controller) EnableUser(w http.ResponseWriter, r *http.Request) {
	if err := c.service.EnableUser(r.Context(), chi.URLParam(r, "id"), "admin-api"); err != nil {
		writeAdminError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeAdminError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, svc.ErrValidation):
		httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail(err.Error()))
	case errors.Is(err, repository.ErrNotFound):
		httperrors.WriteError(w, httperrors.ErrNotFound)
	case errors.Is(err, repository.ErrConflict):
		httperrors.WriteError(w, httperrors.ErrConflict.WithDetail("client_id already exists"))
	default:
		httperrors.WriteError(w, httperrors.ErrInternalServerError.WithCause(err))
	}
}
