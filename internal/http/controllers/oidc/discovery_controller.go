// Package oidc contiene los controllers de la superficie OIDC.
package oidc

import (
	"encoding/json"
	"net/http"

	httperrors "github.com/dropDatabas3/janus/internal/http/errors"
	svc "github.com/dropDatabas3/janus/internal/http/services/oidc"
	jwtx "github.com/dropDatabas3/janus/internal/jwt"
)

// DiscoveryController sirve los documentos well-known.
type DiscoveryController struct {
	discovery svc.DiscoveryService
	keystore  *jwtx.Keystore
}

// NewDiscoveryController crea el controller.
func NewDiscoveryController(discovery svc.DiscoveryService, keystore *jwtx.Keystore) *DiscoveryController {
	return &DiscoveryController{discovery: discovery, keystore: keystore}
}

// Configuration sirve el metadata OIDC.
// GET /.well-known/openid-configuration
func (c *DiscoveryController) Configuration(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(c.discovery.Metadata(r.Context()))
}

// JWKS sirve las claves públicas de verificación.
// GET /.well-known/jwks.json
func (c *DiscoveryController) JWKS(w http.ResponseWriter, r *http.Request) {
	data, err := c.keystore.JWKSJSON()
	if err != nil {
		httperrors.WriteError(w, httperrors.ErrInternalServerError.WithCause(err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}
