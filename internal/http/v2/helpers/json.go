package helpers

import (
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"
	"strings"

	"github.com/dropDatabas3/keyrelay/internal/http/v2/errors"
)

// MaxJSONBody limita el body de los endpoints JSON.
const MaxJSONBody = 64 << 10

// DecodeJSON decodifica el body de forma tolerante (no falla por campos
// desconocidos). Valida Content-Type y tamaño; devuelve un *AppError.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	ct := strings.ToLower(r.Header.Get("Content-Type"))
	if !strings.Contains(ct, "application/json") {
		return errors.ErrBadRequest.WithDetail("Content-Type debe ser application/json")
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxJSONBody)
	defer r.Body.Close()

	if err := json.NewDecoder(r.Body).Decode(v); err != nil && err != io.EOF {
		var maxErr *http.MaxBytesError
		if stderrors.As(err, &maxErr) {
			return errors.ErrBodyTooLarge.WithCause(err)
		}
		return errors.ErrInvalidJSON.WithCause(err)
	}
	return nil
}

// WriteJSON escribe una respuesta JSON estándar.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// RequireMethod devuelve 405 (con Allow) si el método no está permitido.
func RequireMethod(w http.ResponseWriter, r *http.Request, allowed ...string) error {
	for _, m := range allowed {
		if r.Method == m {
			return nil
		}
	}
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	return errors.ErrMethodNotAllowed
}
