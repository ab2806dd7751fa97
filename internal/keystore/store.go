// Package keystore define el contrato del almacén durable de material de claves
// (parameter store / secret store) que consume la rotación y la publicación.
//
// Implementaciones:
//   - Memory (in-process, dev/tests)
//   - redis (go-redis)
//   - pg (pgx, tabla key_material)
//   - ssm (AWS Systems Manager Parameter Store)
//   - vault (HashiCorp Vault KV v2)
//
// El store no ofrece compare-and-swap: SetMany escribe con overwrite incondicional
// (o "solo si no existe" cuando Overwrite=false). El orden de escritura lo decide
// quien llama.
package keystore

import (
	"context"
	"errors"
)

// Entry es un parámetro a escribir.
type Entry struct {
	Name      string
	Value     string
	Overwrite bool
}

// Store es el almacén de parámetros namespaced (ej: /prod/accessToken.primary.publicKey).
type Store interface {
	// GetMany devuelve los valores existentes; los nombres ausentes no aparecen en el map.
	GetMany(ctx context.Context, names []string) (map[string]string, error)

	// SetMany escribe todas las entradas en el orden recibido. Si una falla, las
	// siguientes no se escriben.
	SetMany(ctx context.Context, entries []Entry) error
}

var (
	// ErrInvalidName se devuelve para nombres vacíos.
	ErrInvalidName = errors.New("keystore: invalid parameter name")
)

// ValidateEntries chequea nombres antes de tocar el backend.
func ValidateEntries(entries []Entry) error {
	for _, e := range entries {
		if e.Name == "" {
			return ErrInvalidName
		}
	}
	return nil
}
