// Package redis implementa keystore.Store sobre Redis.
package redis

import (
	"context"
	"fmt"
	"time"

	rdb "github.com/redis/go-redis/v9"

	"github.com/dropDatabas3/keyrelay/internal/keystore"
)

// Config configuración del cliente.
type Config struct {
	Addr     string
	Password string
	DB       int
	Prefix   string // Prefijo para todas las keys
}

// Store implementa keystore.Store usando Redis.
type Store struct {
	client *rdb.Client
	prefix string
}

// New crea el store y verifica la conexión.
func New(ctx context.Context, cfg Config) (*Store, error) {
	addr := cfg.Addr
	if addr == "" {
		addr = "localhost:6379"
	}
	client := rdb.NewClient(&rdb.Options{
		Addr:     addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("keystore: redis ping failed: %w", err)
	}
	return NewWithClient(client, cfg.Prefix), nil
}

// NewWithClient envuelve un cliente existente (tests con miniredis).
func NewWithClient(client *rdb.Client, prefix string) *Store {
	return &Store{client: client, prefix: prefix}
}

func (s *Store) key(k string) string {
	if s.prefix == "" {
		return k
	}
	return s.prefix + k
}

func (s *Store) GetMany(ctx context.Context, names []string) (map[string]string, error) {
	out := make(map[string]string, len(names))
	if len(names) == 0 {
		return out, nil
	}
	keys := make([]string, len(names))
	for i, n := range names {
		keys[i] = s.key(n)
	}

	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("keystore: redis mget: %w", err)
	}
	for i, v := range vals {
		if v == nil {
			continue
		}
		if str, ok := v.(string); ok {
			out[names[i]] = str
		}
	}
	return out, nil
}

// SetMany escribe todas las entradas en una transacción MULTI/EXEC.
// Overwrite=false se traduce a SETNX.
func (s *Store) SetMany(ctx context.Context, entries []keystore.Entry) error {
	if err := keystore.ValidateEntries(entries); err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}
	_, err := s.client.TxPipelined(ctx, func(p rdb.Pipeliner) error {
		for _, e := range entries {
			if e.Overwrite {
				p.Set(ctx, s.key(e.Name), e.Value, 0)
			} else {
				p.SetNX(ctx, s.key(e.Name), e.Value, 0)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("keystore: redis set: %w", err)
	}
	return nil
}

// Close cierra la conexión.
func (s *Store) Close() error {
	return s.client.Close()
}
