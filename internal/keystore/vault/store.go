// Package vault implementa keystore.Store sobre el KV v2 de HashiCorp Vault.
// Cada parámetro es un secreto propio en {mount}/data/{name} con un único
// campo "value".
package vault

import (
	"context"
	"fmt"
	"strings"

	vault "github.com/hashicorp/vault/api"

	"github.com/dropDatabas3/keyrelay/internal/keystore"
)

const valueField = "value"

// Logical es el subconjunto de *vault.Logical que usamos (fake en tests).
type Logical interface {
	ReadWithContext(ctx context.Context, path string) (*vault.Secret, error)
	WriteWithContext(ctx context.Context, path string, data map[string]interface{}) (*vault.Secret, error)
}

type Config struct {
	Address   string
	Token     string
	Namespace string
	Mount     string // default "secret"
}

type Store struct {
	logical Logical
	mount   string
}

func New(cfg Config) (*Store, error) {
	vcfg := vault.DefaultConfig()
	if cfg.Address != "" {
		vcfg.Address = cfg.Address
	}
	client, err := vault.NewClient(vcfg)
	if err != nil {
		return nil, fmt.Errorf("keystore: vault client: %w", err)
	}
	if cfg.Token != "" {
		client.SetToken(cfg.Token)
	}
	if cfg.Namespace != "" {
		client.SetNamespace(cfg.Namespace)
	}
	return NewWithLogical(client.Logical(), cfg.Mount), nil
}

func NewWithLogical(l Logical, mount string) *Store {
	if mount == "" {
		mount = "secret"
	}
	return &Store{logical: l, mount: strings.Trim(mount, "/")}
}

func (s *Store) dataPath(name string) string {
	return s.mount + "/data/" + strings.TrimPrefix(name, "/")
}

func (s *Store) read(ctx context.Context, name string) (string, bool, error) {
	sec, err := s.logical.ReadWithContext(ctx, s.dataPath(name))
	if err != nil {
		return "", false, fmt.Errorf("keystore: vault read %s: %w", name, err)
	}
	if sec == nil || sec.Data == nil {
		return "", false, nil
	}
	// KV v2 anida los campos en "data"; es nil si la última versión fue borrada.
	inner, ok := sec.Data["data"].(map[string]interface{})
	if !ok {
		return "", false, nil
	}
	v, ok := inner[valueField].(string)
	return v, ok, nil
}

func (s *Store) GetMany(ctx context.Context, names []string) (map[string]string, error) {
	out := make(map[string]string, len(names))
	for _, n := range names {
		v, ok, err := s.read(ctx, n)
		if err != nil {
			return nil, err
		}
		if ok {
			out[n] = v
		}
	}
	return out, nil
}

func (s *Store) SetMany(ctx context.Context, entries []keystore.Entry) error {
	if err := keystore.ValidateEntries(entries); err != nil {
		return err
	}
	for _, e := range entries {
		if !e.Overwrite {
			_, exists, err := s.read(ctx, e.Name)
			if err != nil {
				return err
			}
			if exists {
				continue
			}
		}
		payload := map[string]interface{}{
			"data": map[string]interface{}{valueField: e.Value},
		}
		if _, err := s.logical.WriteWithContext(ctx, s.dataPath(e.Name), payload); err != nil {
			return fmt.Errorf("keystore: vault write %s: %w", e.Name, err)
		}
	}
	return nil
}
