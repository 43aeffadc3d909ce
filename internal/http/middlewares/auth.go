package middlewares

import (
	"context"
	"crypto/subtle"
	"net/http"

	"github.com/dropDatabas3/janus/internal/domain/repository"
	"github.com/dropDatabas3/janus/internal/http/errors"
)

// SessionResolver resuelve la sesión broker de un request (cookie).
// Retorna error si no hay sesión activa.
type SessionResolver func(ctx context.Context, r *http.Request) (*repository.Session, error)

// WithSession exige una sesión broker activa. Inyecta sesión y user ID
// en el contexto; responde 401 si no hay.
func WithSession(resolve SessionResolver) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, err := resolve(r.Context(), r)
			if err != nil {
				errors.WriteError(w, errors.ErrUnauthorized.WithCause(err))
				return
			}
			ctx := SetSession(r.Context(), sess)
			ctx = SetUserID(ctx, sess.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WithAPIKey exige la API key de administración en X-API-Key.
// Comparación en tiempo constante. Sin key configurada, la superficie
// admin queda deshabilitada.
func WithAPIKey(apiKey string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if apiKey == "" {
				errors.WriteError(w, errors.ErrForbidden.WithDetail("admin API disabled"))
				return
			}
			got := r.Header.Get("X-API-Key")
			if subtle.ConstantTimeCompare([]byte(got), []byte(apiKey)) != 1 {
				errors.WriteError(w, errors.ErrUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
