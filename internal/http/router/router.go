// Package router arma el árbol de rutas del broker.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	accountctrl "github.com/dropDatabas3/janus/internal/http/controllers/account"
	adminctrl "github.com/dropDatabas3/janus/internal/http/controllers/admin"
	healthctrl "github.com/dropDatabas3/janus/internal/http/controllers/health"
	oauthctrl "github.com/dropDatabas3/janus/internal/http/controllers/oauth"
	oidcctrl "github.com/dropDatabas3/janus/internal/http/controllers/oidc"
	mw "github.com/dropDatabas3/janus/internal/http/middlewares"
	"github.com/dropDatabas3/janus/internal/rate"
)

// Deps contiene los controllers y cross-cutting concerns del router.
type Deps struct {
	Authorize  *oauthctrl.AuthorizeController
	Callback   *oauthctrl.CallbackController
	Consent    *oauthctrl.ConsentController
	Login      *oauthctrl.LoginController
	Token      *oauthctrl.TokenController
	EndSession *oauthctrl.EndSessionController

	Discovery *oidcctrl.DiscoveryController
	UserInfo  *oidcctrl.UserInfoController

	Account *accountctrl.Controller
	Admin   *adminctrl.Controller
	Health  *healthctrl.Controller

	// SessionResolver alimenta WithSession en /v1/me.
	SessionResolver mw.SessionResolver
	AdminAPIKey     string

	// nil = sin rate limiting en ese endpoint.
	AuthorizeLimiter rate.Limiter
	TokenLimiter     rate.Limiter
}

// New construye el router con las chains de middlewares por superficie.
func New(d Deps) http.Handler {
	r := chi.NewRouter()

	// with antepone la chain base; cada llamada copia para no compartir
	// backing arrays entre rutas.
	with := func(extra ...mw.Middleware) []mw.Middleware {
		ms := []mw.Middleware{
			mw.WithRequestID(),
			mw.WithLogging(),
			mw.WithRecover(),
			mw.WithSecurityHeaders(),
		}
		return append(ms, extra...)
	}

	// Well-known: cacheable, sin estado.
	r.Method(http.MethodGet, "/.well-known/openid-configuration",
		mw.ChainFunc(d.Discovery.Configuration, with(mw.WithCacheControl("public, max-age=300"))...))
	r.Method(http.MethodGet, "/.well-known/jwks.json",
		mw.ChainFunc(d.Discovery.JWKS, with(mw.WithCacheControl("public, max-age=300"))...))

	// Protocolo OAuth2/OIDC: siempre no-store.
	proto := with(mw.WithNoStore())

	r.Method(http.MethodGet, "/oauth2/authorize",
		mw.ChainFunc(d.Authorize.Authorize,
			with(mw.WithNoStore(), mw.WithRateLimit(d.AuthorizeLimiter, mw.KeyByIPAndClient))...))
	r.Method(http.MethodPost, "/oauth2/token",
		mw.ChainFunc(d.Token.Token,
			with(mw.WithNoStore(), mw.WithRateLimit(d.TokenLimiter, mw.KeyByIPAndClient))...))

	r.Method(http.MethodGet, "/oauth2/callback/{backend}", mw.ChainFunc(d.Callback.Callback, proto...))
	r.Method(http.MethodGet, "/oauth2/backends", mw.ChainFunc(d.Login.Backends, proto...))
	r.Method(http.MethodGet, "/oauth2/login/{backend}", mw.ChainFunc(d.Login.Start, proto...))

	r.Method(http.MethodGet, "/oauth2/consent", mw.ChainFunc(d.Consent.GetPrompt, proto...))
	r.Method(http.MethodPost, "/oauth2/consent/approve", mw.ChainFunc(d.Consent.Approve, proto...))
	r.Method(http.MethodPost, "/oauth2/consent/deny", mw.ChainFunc(d.Consent.Deny, proto...))

	r.Method(http.MethodGet, "/oauth2/userinfo", mw.ChainFunc(d.UserInfo.UserInfo, proto...))
	r.Method(http.MethodPost, "/oauth2/userinfo", mw.ChainFunc(d.UserInfo.UserInfo, proto...))

	r.Method(http.MethodGet, "/oauth2/end-session", mw.ChainFunc(d.EndSession.EndSession, proto...))
	r.Method(http.MethodPost, "/oauth2/end-session", mw.ChainFunc(d.EndSession.EndSession, proto...))

	// Self-service: requiere sesión broker.
	me := with(mw.WithNoStore(), mw.WithSession(d.SessionResolver))
	r.Route("/v1/me", func(r chi.Router) {
		r.Method(http.MethodGet, "/", mw.ChainFunc(d.Account.Profile, me...))
		r.Method(http.MethodGet, "/identities", mw.ChainFunc(d.Account.ListIdentities, me...))
		r.Method(http.MethodDelete, "/identities/{id}", mw.ChainFunc(d.Account.UnlinkIdentity, me...))
		r.Method(http.MethodGet, "/logins", mw.ChainFunc(d.Account.ListLoginEntries, me...))
		r.Method(http.MethodPost, "/logins/{id}/revoke", mw.ChainFunc(d.Account.RevokeLoginEntry, me...))
		r.Method(http.MethodGet, "/consents", mw.ChainFunc(d.Account.ListConsents, me...))
		r.Method(http.MethodDelete, "/consents/{serviceID}", mw.ChainFunc(d.Account.RevokeConsent, me...))
		r.Method(http.MethodGet, "/sessions", mw.ChainFunc(d.Account.ListSessions, me...))
		r.Method(http.MethodPost, "/sessions/end-all", mw.ChainFunc(d.Account.EndAllSessions, me...))
	})

	// Admin: API key.
	adm := with(mw.WithNoStore(), mw.WithAPIKey(d.AdminAPIKey))
	r.Route("/v1/admin", func(r chi.Router) {
		r.Method(http.MethodGet, "/services", mw.ChainFunc(d.Admin.ListServices, adm...))
		r.Method(http.MethodPost, "/services", mw.ChainFunc(d.Admin.CreateService, adm...))
		r.Method(http.MethodGet, "/services/{clientID}", mw.ChainFunc(d.Admin.GetService, adm...))
		r.Method(http.MethodPut, "/services/{clientID}", mw.ChainFunc(d.Admin.UpdateService, adm...))
		r.Method(http.MethodDelete, "/services/{clientID}", mw.ChainFunc(d.Admin.DeleteService, adm...))
		r.Method(http.MethodPost, "/services/{clientID}/rotate-secret", mw.ChainFunc(d.Admin.RotateSecret, adm...))

		r.Method(http.MethodGet, "/users", mw.ChainFunc(d.Admin.ListUsers, adm...))
		r.Method(http.MethodGet, "/users/{id}", mw.ChainFunc(d.Admin.GetUser, adm...))
		r.Method(http.MethodPost, "/users/{id}/disable", mw.ChainFunc(d.Admin.DisableUser, adm...))
		r.Method(http.MethodPost, "/users/{id}/enable", mw.ChainFunc(d.Admin.EnableUser, adm...))
	})

	// Operacional.
	r.Method(http.MethodGet, "/healthz", mw.ChainFunc(d.Health.Healthz, mw.WithRecover()))
	r.Method(http.MethodGet, "/readyz", mw.ChainFunc(d.Health.Readyz, mw.WithRecover()))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	return r
}
