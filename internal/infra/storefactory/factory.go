package storefactory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dropDatabas3/keyrelay/internal/config"
	"github.com/dropDatabas3/keyrelay/internal/keystore"
	kspg "github.com/dropDatabas3/keyrelay/internal/keystore/pg"
	ksredis "github.com/dropDatabas3/keyrelay/internal/keystore/redis"
	ksssm "github.com/dropDatabas3/keyrelay/internal/keystore/ssm"
	ksvault "github.com/dropDatabas3/keyrelay/internal/keystore/vault"
)

// Open construye el KeyMaterialStore según cfg.Store.Driver.
// El closer devuelto nunca es nil.
func Open(ctx context.Context, cfg *config.Config) (keystore.Store, func(), error) {
	noop := func() {}
	switch strings.ToLower(cfg.Store.Driver) {
	case "redis":
		s, err := ksredis.New(ctx, ksredis.Config{
			Addr:     cfg.Store.Redis.Addr,
			Password: cfg.Store.Redis.Password,
			DB:       cfg.Store.Redis.DB,
			Prefix:   cfg.Store.Redis.Prefix,
		})
		if err != nil {
			return nil, noop, err
		}
		return s, func() { _ = s.Close() }, nil

	case "postgres", "pg":
		life, _ := time.ParseDuration(cfg.Store.Postgres.ConnMaxLifetime)
		s, err := kspg.New(ctx, kspg.Config{
			DSN:             cfg.Store.Postgres.DSN,
			MaxConns:        int32(cfg.Store.Postgres.MaxConns),
			ConnMaxLifetime: life,
		})
		if err != nil {
			return nil, noop, err
		}
		if cfg.Store.Postgres.Migrate {
			if err := s.Migrate(ctx); err != nil {
				s.Close()
				return nil, noop, err
			}
		}
		return s, s.Close, nil

	case "ssm":
		s, err := ksssm.New(ctx, ksssm.Config{
			Region:   cfg.Store.SSM.Region,
			KMSKeyID: cfg.Store.SSM.KMSKeyID,
		})
		if err != nil {
			return nil, noop, err
		}
		return s, noop, nil

	case "vault":
		s, err := ksvault.New(ksvault.Config{
			Address:   cfg.Store.Vault.Address,
			Token:     cfg.Store.Vault.Token,
			Namespace: cfg.Store.Vault.Namespace,
			Mount:     cfg.Store.Vault.Mount,
		})
		if err != nil {
			return nil, noop, err
		}
		return s, noop, nil

	case "memory", "":
		return keystore.NewMemory(), noop, nil
	}
	return nil, noop, fmt.Errorf("storefactory: unknown driver %q", cfg.Store.Driver)
}
