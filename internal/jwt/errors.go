package jwt

import (
	"errors"
	"fmt"
)

// Errores de integridad de datos. Distintos de los de store/transporte,
// que llegan envueltos con %w y son reintentables.
var (
	ErrNoValidKey         = errors.New("no_valid_key")
	ErrMalformedJWKS      = errors.New("malformed_jwks")
	ErrIncompleteKeyPair  = errors.New("incomplete_key_pair")
	ErrInvalidKeyMaterial = errors.New("invalid_key_material")
)

// ErrorKind es el conjunto cerrado de fallos de verificación.
type ErrorKind int

const (
	KindMissingToken ErrorKind = iota + 1
	KindMalformedToken
	KindUnknownIssuer
	KindUnknownKeyID
	KindSignatureInvalid
	KindExpired
)

func (k ErrorKind) String() string {
	switch k {
	case KindMissingToken:
		return "missing_token"
	case KindMalformedToken:
		return "malformed_token"
	case KindUnknownIssuer:
		return "unknown_issuer"
	case KindUnknownKeyID:
		return "unknown_key_id"
	case KindSignatureInvalid:
		return "signature_invalid"
	case KindExpired:
		return "expired"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Kinds lista todos los kinds (tests de mapeo exhaustivo).
func Kinds() []ErrorKind {
	return []ErrorKind{
		KindMissingToken,
		KindMalformedToken,
		KindUnknownIssuer,
		KindUnknownKeyID,
		KindSignatureInvalid,
		KindExpired,
	}
}

// Error de verificación. Err es la causa interna (solo diagnóstico).
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Is compara por kind: errors.Is(err, ErrExpired).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Sentinels por kind para errors.Is.
var (
	ErrMissingToken     = &Error{Kind: KindMissingToken}
	ErrMalformedToken   = &Error{Kind: KindMalformedToken}
	ErrUnknownIssuer    = &Error{Kind: KindUnknownIssuer}
	ErrUnknownKeyID     = &Error{Kind: KindUnknownKeyID}
	ErrSignatureInvalid = &Error{Kind: KindSignatureInvalid}
	ErrExpired          = &Error{Kind: KindExpired}
)

func newError(kind ErrorKind, cause error) *Error {
	return &Error{Kind: kind, Err: cause}
}

// KindOf extrae el kind si err es (o envuelve) un *Error.
func KindOf(err error) (ErrorKind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}
