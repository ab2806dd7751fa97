package middlewares

import (
	"context"
	"net/http"

	"github.com/dropDatabas3/keyrelay/internal/http/v2/errors"
	jwtx "github.com/dropDatabas3/keyrelay/internal/jwt"
)

// TokenVerifier es lo mínimo que RequireBearer necesita del verificador.
type TokenVerifier interface {
	Verify(ctx context.Context, raw string) (*jwtx.AuthorizationContext, error)
}

// RequireBearer exige un "Authorization: Bearer <jwt>" válido. Cualquier fallo
// de verificación responde 401 sin detalle; el AuthorizationContext queda en el
// contexto para los handlers.
func RequireBearer(v TokenVerifier) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := jwtx.ExtractBearer(r.Header.Get("Authorization"))
			ac, err := v.Verify(r.Context(), raw)
			if err != nil {
				w.Header().Set("WWW-Authenticate", `Bearer realm="keyrelay"`)
				errors.WriteError(w, errors.FromVerifyError(err))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithAuthorization(r.Context(), ac)))
		})
	}
}
