// Package rotation corre el Rotator fuera del camino de serving: una vez con
// reintentos (comando rotate) o periódicamente (comando schedule).
//
// Ninguno de los dos serializa entre réplicas: se asume un único scheduler
// activo por namespace.
package rotation

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	jwtx "github.com/dropDatabas3/keyrelay/internal/jwt"
	"github.com/dropDatabas3/keyrelay/internal/observability/logger"
)

// Rotator es lo que se necesita de *jwtx.Rotator.
type Rotator interface {
	Rotate(ctx context.Context, namespace string) (jwtx.RotationResult, error)
}

type RetryConfig struct {
	MaxTries        uint // incluye el primer intento; 0 = 5
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxTries == 0 {
		c.MaxTries = 5
	}
	if c.InitialInterval <= 0 {
		c.InitialInterval = 500 * time.Millisecond
	}
	if c.MaxInterval <= 0 {
		c.MaxInterval = 30 * time.Second
	}
	return c
}

// permanent: errores de integridad que un reintento no arregla.
func permanent(err error) bool {
	return errors.Is(err, jwtx.ErrIncompleteKeyPair) || errors.Is(err, jwtx.ErrInvalidKeyMaterial)
}

// RotateWithRetry corre una rotación con backoff exponencial ante errores
// transitorios del store.
func RotateWithRetry(ctx context.Context, r Rotator, namespace string, rc RetryConfig) (jwtx.RotationResult, error) {
	rc = rc.withDefaults()
	log := logger.From(ctx).With(logger.Component("rotation"), logger.Namespace(namespace))

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = rc.InitialInterval
	exp.MaxInterval = rc.MaxInterval
	exp.Reset()

	attempt := 0
	op := func() (jwtx.RotationResult, error) {
		attempt++
		res, err := r.Rotate(ctx, namespace)
		if err != nil {
			if permanent(err) {
				return res, backoff.Permanent(err)
			}
			return res, err
		}
		return res, nil
	}

	return backoff.Retry(ctx, op,
		backoff.WithBackOff(exp),
		backoff.WithMaxTries(rc.MaxTries),
		backoff.WithNotify(func(err error, d time.Duration) {
			log.Warn("rotation failed, retrying",
				logger.Err(err),
				logger.Any("attempt", attempt),
				logger.Any("retry_in", d),
			)
		}),
	)
}

// Scheduler rota cada Interval. Un fallo se loguea y se reintenta en el
// próximo tick; nunca detiene el loop.
type Scheduler struct {
	Rotator   Rotator
	Namespace string
	Interval  time.Duration
	Retry     RetryConfig
	// RotateOnStart corre una rotación antes del primer tick.
	RotateOnStart bool
	// OnRotate se llama tras cada rotación exitosa (p.ej. invalidar la cache local).
	OnRotate func(jwtx.RotationResult)
}

// Run bloquea hasta que ctx se cancela.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.Interval <= 0 {
		return errors.New("rotation: interval must be > 0")
	}
	log := logger.From(ctx).With(logger.Component("rotation.scheduler"), logger.Namespace(s.Namespace))
	log.Info("scheduler started", logger.Any("interval", s.Interval))

	if s.RotateOnStart {
		s.runOnce(ctx, log)
	}

	t := time.NewTicker(s.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("scheduler stopped")
			return nil
		case <-t.C:
			s.runOnce(ctx, log)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, log *zap.Logger) {
	res, err := RotateWithRetry(ctx, s.Rotator, s.Namespace, s.Retry)
	if err != nil {
		if ctx.Err() == nil {
			log.Error("scheduled rotation failed", logger.Err(err))
		}
		return
	}
	if s.OnRotate != nil {
		s.OnRotate(res)
	}
}
