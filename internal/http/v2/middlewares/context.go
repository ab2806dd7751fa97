package middlewares

import (
	"context"

	jwtx "github.com/dropDatabas3/keyrelay/internal/jwt"
)

// =================================================================================
// CONTEXT KEYS
// =================================================================================

type ctxKey string

const (
	ctxAuthKey      ctxKey = "authz"
	ctxRequestIDKey ctxKey = "request_id"
)

// WithAuthorization inyecta el resultado de la verificación del bearer.
func WithAuthorization(ctx context.Context, ac *jwtx.AuthorizationContext) context.Context {
	return context.WithValue(ctx, ctxAuthKey, ac)
}

func setRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ctxRequestIDKey, requestID)
}

// GetAuthorization devuelve el contexto de autorización o nil si la ruta no
// pasó por RequireBearer.
func GetAuthorization(ctx context.Context) *jwtx.AuthorizationContext {
	if v, ok := ctx.Value(ctxAuthKey).(*jwtx.AuthorizationContext); ok {
		return v
	}
	return nil
}

// GetRequestID obtiene el request ID del contexto ("" si no hay).
func GetRequestID(ctx context.Context) string {
	if v, ok := ctx.Value(ctxRequestIDKey).(string); ok {
		return v
	}
	return ""
}
