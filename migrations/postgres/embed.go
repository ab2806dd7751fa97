// Package migrations embeds SQL migration files.
package migrations

import "embed"

// FS contiene las migraciones del store de material de claves.
//
//go:embed *.sql
var FS embed.FS
