// Package health contiene el controller de health checks.
package health

import (
	"encoding/json"
	"net/http"

	svc "github.com/dropDatabas3/janus/internal/http/services/health"
)

// Controller maneja /healthz y /readyz.
type Controller struct {
	service svc.Service
}

// NewController crea el controller.
func NewController(service svc.Service) *Controller {
	return &Controller{service: service}
}

// Healthz es el liveness probe: el proceso responde.
// GET /healthz
func (c *Controller) Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// Readyz es el readiness probe: chequea store y cache.
// GET /readyz
func (c *Controller) Readyz(w http.ResponseWriter, r *http.Request) {
	res := c.service.Check(r.Context())

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if res.ActiveKeyID != "" {
		w.Header().Set("X-JWKS-KID", res.ActiveKeyID)
	}

	status := http.StatusOK
	if res.Status == "unavailable" {
		status = http.StatusServiceUnavailable
	}
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(res)
}
