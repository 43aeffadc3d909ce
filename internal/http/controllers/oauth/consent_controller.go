package oauth

import (
	"encoding/json"
	"errors"
	"net/http"

	dto "github.com/dropDatabas3/janus/internal/http/dto/oauth"
	httperrors "github.com/dropDatabas3/janus/internal/http/errors"
	svc "github.com/dropDatabas3/janus/internal/http/services/oauth"
	sessionsvc "github.com/dropDatabas3/janus/internal/http/services/session"
)

// ConsentController sirve al consent UI: info del prompt y la decisión.
type ConsentController struct {
	authorize svc.AuthorizeService
	sessions  sessionsvc.Service
}

// NewConsentController crea el controller.
func NewConsentController(authorize svc.AuthorizeService, sessions sessionsvc.Service) *ConsentController {
	return &ConsentController{authorize: authorize, sessions: sessions}
}

// consentDecision es el body de approve/deny.
type consentDecision struct {
	ResumeToken string   `json:"resume_token"`
	Scopes      []string `json:"scopes,omitempty"`
}

// GetPrompt retorna qué service pide qué scopes, para renderizar la
// pantalla de aprobación.
// GET /oauth2/consent?resume=xxx
func (c *ConsentController) GetPrompt(w http.ResponseWriter, r *http.Request) {
	resume := r.URL.Query().Get("resume")
	if resume == "" {
		httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail("resume required"))
		return
	}

	prompt, err := c.authorize.ConsentPrompt(r.Context(), resume)
	if err != nil {
		writeAuthorizeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	json.NewEncoder(w).Encode(prompt)
}

// Approve registra el consent y completa el authorize pendiente.
// POST /oauth2/consent/approve
func (c *ConsentController) Approve(w http.ResponseWriter, r *http.Request) {
	var req consentDecision
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httperrors.WriteError(w, httperrors.ErrInvalidJSON.WithCause(err))
		return
	}
	if req.ResumeToken == "" {
		httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail("resume_token required"))
		return
	}

	sess, err := c.sessions.Resolve(r.Context(), r)
	if err != nil {
		httperrors.WriteError(w, httperrors.ErrUnauthorized)
		return
	}

	res, err := c.authorize.ApproveConsent(r.Context(), r, req.ResumeToken, sess, req.Scopes)
	if err != nil {
		writeAuthorizeError(w, err)
		return
	}
	writeAuthResultJSON(w, res)
}

// Deny rechaza el consent; el client recibe access_denied.
// POST /oauth2/consent/deny
func (c *ConsentController) Deny(w http.ResponseWriter, r *http.Request) {
	var req consentDecision
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httperrors.WriteError(w, httperrors.ErrInvalidJSON.WithCause(err))
		return
	}
	if req.ResumeToken == "" {
		httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail("resume_token required"))
		return
	}

	res, err := c.authorize.DenyConsent(r.Context(), req.ResumeToken)
	if err != nil {
		if errors.Is(err, svc.ErrInvalidResume) {
			httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail("resume token invalid or expired"))
			return
		}
		httperrors.WriteError(w, httperrors.ErrInternalServerError.WithCause(err))
		return
	}
	writeAuthResultJSON(w, res)
}

// writeAuthResultJSON responde la URL final al consent UI (SPA); el
// browser navega por fetch, no sigue 302 cross-origin.
func writeAuthResultJSON(w http.ResponseWriter, res dto.AuthResult) {
	var to string
	switch res.Type {
	case dto.AuthResultSuccess:
		to = addQueryParams(res.RedirectURI, map[string]string{
			"code":  res.Code,
			"state": res.State,
		})
	case dto.AuthResultError:
		to = addQueryParams(res.RedirectURI, map[string]string{
			"error":             res.ErrorCode,
			"error_description": res.ErrorDescription,
			"state":             res.State,
		})
	default:
		to = res.RedirectTo
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	json.NewEncoder(w).Encode(map[string]string{"redirect_to": to})
}
