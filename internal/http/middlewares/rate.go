package middlewares

import (
	"net/http"
	"strconv"

	"github.com/dropDatabas3/janus/internal/http/errors"
	"github.com/dropDatabas3/janus/internal/observability/logger"
	"github.com/dropDatabas3/janus/internal/rate"
)

// RateKeyFunc define cómo generar la clave de rate limiting.
type RateKeyFunc func(r *http.Request) string

// KeyByIP agrupa por IP del cliente y path.
func KeyByIP(r *http.Request) string {
	return clientIP(r) + "|" + r.URL.Path
}

// KeyByIPAndClient agrupa por IP y client_id del form/query. Usado en
// /token para que un client ruidoso no agote la cuota de la IP entera.
func KeyByIPAndClient(r *http.Request) string {
	clientID := r.URL.Query().Get("client_id")
	if clientID == "" {
		// ParseForm es idempotente; el handler lo volverá a llamar sin costo.
		_ = r.ParseForm()
		clientID = r.PostFormValue("client_id")
	}
	if clientID == "" {
		clientID = "-"
	}
	return clientIP(r) + "|" + r.URL.Path + "|" + clientID
}

// WithRateLimit aplica un rate limiter con la key function dada.
// Si el limiter falla (p.ej. Redis caído), deja pasar el request.
func WithRateLimit(limiter rate.Limiter, keyFn RateKeyFunc) Middleware {
	if keyFn == nil {
		keyFn = KeyByIP
	}
	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res, err := limiter.Allow(r.Context(), keyFn(r))
			if err != nil {
				logger.From(r.Context()).Warn("rate limiter unavailable", logger.Err(err))
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(res.Remaining, 10))
			if !res.Allowed {
				if res.RetryAfter > 0 {
					w.Header().Set("Retry-After", strconv.Itoa(int(res.RetryAfter.Seconds())+1))
				}
				errors.WriteError(w, errors.ErrRateLimitExceeded)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
