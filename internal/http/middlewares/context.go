package middlewares

import (
	"context"

	"github.com/dropDatabas3/janus/internal/domain/repository"
)

type ctxKey int

const (
	ctxKeyRequestID ctxKey = iota
	ctxKeySession
	ctxKeyUser
)

func setRequestID(ctx context.Context, rid string) context.Context {
	return context.WithValue(ctx, ctxKeyRequestID, rid)
}

// GetRequestID obtiene el request ID del contexto, "" si no hay.
func GetRequestID(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyRequestID).(string); ok {
		return v
	}
	return ""
}

// SetSession inyecta la sesión resuelta en el contexto.
func SetSession(ctx context.Context, s *repository.Session) context.Context {
	return context.WithValue(ctx, ctxKeySession, s)
}

// GetSession obtiene la sesión del contexto, nil si no hay.
func GetSession(ctx context.Context) *repository.Session {
	if v, ok := ctx.Value(ctxKeySession).(*repository.Session); ok {
		return v
	}
	return nil
}

// SetUserID inyecta el user ID autenticado en el contexto.
func SetUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ctxKeyUser, userID)
}

// GetUserID obtiene el user ID del contexto, "" si no hay.
func GetUserID(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyUser).(string); ok {
		return v
	}
	return ""
}
