// Package oidc contiene el service que publica el JWKS propio.
package oidc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	jwtx "github.com/dropDatabas3/keyrelay/internal/jwt"
	"github.com/dropDatabas3/keyrelay/internal/observability/logger"
)

// KeySource es lo que el service necesita del PublishingCache.
type KeySource interface {
	GetKeys(ctx context.Context) (jwtx.PublishedKeySet, error)
}

// JWKSService define las operaciones para obtener el JWKS publicado.
type JWKSService interface {
	GetJWKS(ctx context.Context) (json.RawMessage, error)
}

// ErrUnpublishableKey: una clave sin kid o sin x5c no se publica.
var ErrUnpublishableKey = errors.New("published key missing kid or x5c")

type jwksService struct {
	keys KeySource
}

// NewJWKSService crea un nuevo servicio JWKS.
func NewJWKSService(keys KeySource) JWKSService {
	return &jwksService{keys: keys}
}

const componentJWKS = "oidc.jwks"

func (s *jwksService) GetJWKS(ctx context.Context) (json.RawMessage, error) {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component(componentJWKS),
		logger.Op("GetJWKS"),
	)

	set, err := s.keys.GetKeys(ctx)
	if err != nil {
		log.Error("failed to get published keys", logger.Err(err))
		return nil, err
	}

	for i, k := range set.Keys {
		if k.Kid == "" || len(k.X5C) == 0 || k.X5C[0] == "" {
			log.Error("unpublishable key in set", logger.Count(i))
			return nil, fmt.Errorf("key %d: %w", i, ErrUnpublishableKey)
		}
	}

	data, err := json.Marshal(set)
	if err != nil {
		return nil, fmt.Errorf("marshal jwks: %w", err)
	}
	return data, nil
}
