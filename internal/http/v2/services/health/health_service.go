// Package health contiene el service para health checks.
package health

import (
	"context"
	"errors"
	"fmt"
	"time"

	dto "github.com/dropDatabas3/keyrelay/internal/http/v2/dto/health"
	jwtx "github.com/dropDatabas3/keyrelay/internal/jwt"
	"github.com/dropDatabas3/keyrelay/internal/keystore"
	"github.com/dropDatabas3/keyrelay/internal/observability/logger"
)

// HealthService define las operaciones de health check.
type HealthService interface {
	Check(ctx context.Context) dto.HealthResponse
}

// KeySource es lo que se necesita del PublishingCache.
type KeySource interface {
	GetKeys(ctx context.Context) (jwtx.PublishedKeySet, error)
}

// Deps contiene las dependencias inyectables para el health service.
type Deps struct {
	Store      keystore.Store
	Namespace  string
	Keys       KeySource
	RedisCheck func(ctx context.Context) error // limiter compartido; nil = memoria
	Version    string
	Now        func() time.Time
}

type healthService struct {
	deps Deps
}

// NewHealthService crea un nuevo service de health check.
func NewHealthService(deps Deps) HealthService {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &healthService{deps: deps}
}

const componentHealth = "health"

func (s *healthService) Check(ctx context.Context) dto.HealthResponse {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component(componentHealth),
		logger.Op("Check"),
	)

	response := dto.HealthResponse{
		Namespace:  s.deps.Namespace,
		Version:    s.deps.Version,
		Components: make(map[string]dto.HealthStatus),
		Timestamp:  s.deps.Now().UTC(),
	}

	hasErrors := false
	hasCriticalErrors := false

	// 1) Keystore (crítico)
	if s.deps.Store != nil {
		pub, _, _ := jwtx.SlotParams(s.deps.Namespace, jwtx.SlotPrimary)
		if _, err := s.deps.Store.GetMany(ctx, []string{pub}); err != nil {
			response.Components["keystore"] = dto.HealthStatus{Status: "error", Message: "unavailable"}
			hasCriticalErrors = true
			log.Error("keystore unavailable", logger.Err(err))
		} else {
			response.Components["keystore"] = dto.HealthStatus{Status: "ok"}
		}
	} else {
		response.Components["keystore"] = dto.HealthStatus{Status: "error", Message: "store not initialized"}
		hasCriticalErrors = true
	}

	// 2) Claves publicadas (crítico: sin claves no hay JWKS)
	if s.deps.Keys != nil {
		set, err := s.deps.Keys.GetKeys(ctx)
		switch {
		case errors.Is(err, jwtx.ErrNoValidKey):
			response.Components["jwks"] = dto.HealthStatus{Status: "error", Message: "no key published"}
			hasCriticalErrors = true
		case err != nil:
			response.Components["jwks"] = dto.HealthStatus{Status: "error", Message: "unavailable"}
			hasCriticalErrors = true
			log.Error("published keys unavailable", logger.Err(err))
		default:
			msg := fmt.Sprintf("%d key(s)", len(set.Keys))
			response.Components["jwks"] = dto.HealthStatus{Status: "ok", Message: msg}
			if len(set.Keys) > 0 {
				response.ActiveKeyID = set.Keys[0].Kid
			}
		}
	} else {
		response.Components["jwks"] = dto.HealthStatus{Status: "disabled"}
	}

	// 3) Redis del rate limiter (no crítico: el limiter es fail-open)
	if s.deps.RedisCheck != nil {
		if err := s.deps.RedisCheck(ctx); err != nil {
			response.Components["redis"] = dto.HealthStatus{Status: "error", Message: "unavailable"}
			hasErrors = true
			log.Warn("redis unavailable", logger.Err(err))
		} else {
			response.Components["redis"] = dto.HealthStatus{Status: "ok"}
		}
	} else {
		response.Components["redis"] = dto.HealthStatus{Status: "disabled", Message: "memory limiter"}
	}

	switch {
	case hasCriticalErrors:
		response.Status = "unavailable"
	case hasErrors:
		response.Status = "degraded"
	default:
		response.Status = "ready"
	}
	return response
}
