package errors

import (
	jwtx "github.com/dropDatabas3/keyrelay/internal/jwt"
)

// FromVerifyError mapea cada kind de verificación a su AppError. Hoy todos
// colapsan a 401 UNAUTHORIZED sin detalle; el kind queda en la causa para logs.
// El switch es exhaustivo: un kind nuevo sin caso cae en 500 y lo marca el test.
func FromVerifyError(err error) *AppError {
	kind, ok := jwtx.KindOf(err)
	if !ok {
		return ErrInternalServerError.WithCause(err)
	}
	switch kind {
	case jwtx.KindMissingToken,
		jwtx.KindMalformedToken,
		jwtx.KindUnknownIssuer,
		jwtx.KindUnknownKeyID,
		jwtx.KindSignatureInvalid,
		jwtx.KindExpired:
		return ErrUnauthorized.WithCause(err)
	}
	return ErrInternalServerError.WithCause(err)
}

// FromKeyError mapea errores del lado emisor (store, integridad) a un 500
// genérico; el detalle solo va al log.
func FromKeyError(err error) *AppError {
	if err == nil {
		return nil
	}
	if appErr, ok := err.(*AppError); ok {
		return appErr
	}
	return ErrInternalServerError.WithCause(err)
}
