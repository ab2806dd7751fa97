// Package pg implementa keystore.Store sobre PostgreSQL (pgx).
package pg

import (
	"context"
	"fmt"
	"io/fs"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/keyrelay/internal/keystore"
	migrations "github.com/dropDatabas3/keyrelay/migrations/postgres"
)

// Config tuning opcional del pool.
type Config struct {
	DSN             string
	MaxConns        int32
	ConnMaxLifetime time.Duration
}

// Store guarda cada parámetro como una fila de key_material.
type Store struct{ pool *pgxpool.Pool }

// New abre el pool y verifica la conexión.
func New(ctx context.Context, cfg Config) (*Store, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("keystore: parse dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		pcfg.MaxConns = cfg.MaxConns
	}
	if cfg.ConnMaxLifetime > 0 {
		pcfg.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("keystore: open pool: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("keystore: postgres ping failed: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Pool expone el pool interno (métricas).
func (s *Store) Pool() *pgxpool.Pool {
	if s == nil {
		return nil
	}
	return s.pool
}

// Close cierra el pool (idempotente).
func (s *Store) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}

// Migrate aplica las migraciones embebidas en orden lexicográfico.
// Son idempotentes (CREATE ... IF NOT EXISTS).
func (s *Store) Migrate(ctx context.Context) error {
	files, err := fs.Glob(migrations.FS, "*.up.sql")
	if err != nil {
		return err
	}
	sort.Strings(files)
	for _, f := range files {
		b, err := fs.ReadFile(migrations.FS, f)
		if err != nil {
			return err
		}
		if _, err := s.pool.Exec(ctx, string(b)); err != nil {
			return fmt.Errorf("keystore: migration %s: %w", f, err)
		}
	}
	return nil
}

func (s *Store) GetMany(ctx context.Context, names []string) (map[string]string, error) {
	out := make(map[string]string, len(names))
	if len(names) == 0 {
		return out, nil
	}
	const q = `SELECT name, value FROM key_material WHERE name = ANY($1)`
	rows, err := s.pool.Query(ctx, q, names)
	if err != nil {
		return nil, fmt.Errorf("keystore: query key_material: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, err
		}
		out[name] = value
	}
	return out, rows.Err()
}

// SetMany escribe todas las entradas en una sola tx.
func (s *Store) SetMany(ctx context.Context, entries []keystore.Entry) error {
	if err := keystore.ValidateEntries(entries); err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}

	const upsert = `
INSERT INTO key_material (name, value, updated_at) VALUES ($1, $2, now())
ON CONFLICT (name) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`
	const insertOnly = `
INSERT INTO key_material (name, value, updated_at) VALUES ($1, $2, now())
ON CONFLICT (name) DO NOTHING`

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		for _, e := range entries {
			q := insertOnly
			if e.Overwrite {
				q = upsert
			}
			if _, err := tx.Exec(ctx, q, e.Name, e.Value); err != nil {
				return fmt.Errorf("keystore: write %s: %w", e.Name, err)
			}
		}
		return nil
	})
}
