package jwt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/dropDatabas3/keyrelay/internal/metrics"
	"github.com/dropDatabas3/keyrelay/internal/observability/logger"
	"github.com/dropDatabas3/keyrelay/internal/rate"
)

// ErrKidNotFound: el kid no está en el set del issuer (ni tras el refresh permitido).
var ErrKidNotFound = errors.New("kid_not_found")

type IssuerCacheConfig struct {
	// TTL <= 0 usa DefaultTTL.
	TTL time.Duration
	// Separación mínima entre refresh forzados por kid desconocido, por issuer.
	RefreshDelay time.Duration
	// Timeout por fetch (0 = solo el del http.Client).
	FetchTimeout time.Duration
	Now          func() time.Time
}

// IssuerKeyCache cachea el JWKS remoto de cada issuer.
//
// Dos timers independientes: el TTL gobierna el refresh normal y el
// throttle (RefreshDelay) gobierna los refresh extra por kid desconocido.
type IssuerKeyCache struct {
	mapping      IssuerMapping
	fetcher      Fetcher
	ttl          time.Duration
	fetchTimeout time.Duration
	now          func() time.Time
	throttle     *rate.Throttle

	mu      sync.RWMutex
	entries map[string]*CacheEntry[PublishedKeySet] // issuer -> entry

	sf singleflight.Group // key = issuer
}

func NewIssuerKeyCache(mapping IssuerMapping, fetcher Fetcher, cfg IssuerCacheConfig) *IssuerKeyCache {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &IssuerKeyCache{
		mapping:      mapping,
		fetcher:      fetcher,
		ttl:          ttl,
		fetchTimeout: cfg.FetchTimeout,
		now:          now,
		throttle:     rate.NewThrottle(cfg.RefreshDelay, now),
		entries:      make(map[string]*CacheEntry[PublishedKeySet]),
	}
}

func (c *IssuerKeyCache) entry(issuer string) *CacheEntry[PublishedKeySet] {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.entries[issuer]
}

// GetKeys devuelve el set del issuer, refrescando si venció el TTL.
func (c *IssuerKeyCache) GetKeys(ctx context.Context, issuer string) (PublishedKeySet, error) {
	set, _, err := c.get(ctx, issuer)
	return set, err
}

// HasKid indica si el kid existe para el issuer (puede disparar un refresh throttled).
func (c *IssuerKeyCache) HasKid(ctx context.Context, issuer, kid string) bool {
	_, err := c.KeyForKid(ctx, issuer, kid)
	return err == nil
}

// KeyForKid busca kid en el set del issuer. Ante un miss permite un refresh
// forzado por issuer cada RefreshDelay; si el throttle está activo el miss se
// reporta sin tocar la red.
func (c *IssuerKeyCache) KeyForKid(ctx context.Context, issuer, kid string) (PublishedKey, error) {
	set, fetched, err := c.get(ctx, issuer)
	if err != nil {
		return PublishedKey{}, err
	}
	if k, ok := set.Find(kid); ok {
		return k, nil
	}

	log := logger.From(ctx).With(logger.Component("jwt.issuer_cache"), logger.Issuer(issuer), logger.KID(kid))

	// Ya se fue a la red en esta misma llamada: no repetir.
	if fetched {
		metrics.UnknownKidTotal.WithLabelValues(issuer, "final").Inc()
		return PublishedKey{}, fmt.Errorf("issuer %q kid %q: %w", issuer, kid, ErrKidNotFound)
	}
	if !c.throttle.Allow(issuer) {
		metrics.UnknownKidTotal.WithLabelValues(issuer, "throttled").Inc()
		log.Debug("unknown kid, forced refresh throttled")
		return PublishedKey{}, fmt.Errorf("issuer %q kid %q: %w", issuer, kid, ErrKidNotFound)
	}

	metrics.UnknownKidTotal.WithLabelValues(issuer, "forced").Inc()
	endpoint, err := c.mapping.Resolve(issuer)
	if err != nil {
		return PublishedKey{}, err
	}
	set, err = c.refresh(ctx, issuer, endpoint, true)
	if err != nil {
		return PublishedKey{}, err
	}
	if k, ok := set.Find(kid); ok {
		log.Info("kid found after forced refresh")
		return k, nil
	}
	return PublishedKey{}, fmt.Errorf("issuer %q kid %q: %w", issuer, kid, ErrKidNotFound)
}

// get devuelve el set y si hubo intento de fetch durante la llamada.
func (c *IssuerKeyCache) get(ctx context.Context, issuer string) (PublishedKeySet, bool, error) {
	endpoint, err := c.mapping.Resolve(issuer)
	if err != nil {
		return PublishedKeySet{}, false, err
	}
	if e := c.entry(issuer); e != nil && e.Fresh(c.now()) {
		return e.Value, false, nil
	}

	set, err := c.refresh(ctx, issuer, endpoint, false)
	if err != nil {
		if stale := c.entry(issuer); stale != nil {
			logger.From(ctx).Warn("jwks refresh failed, serving stale set",
				logger.Component("jwt.issuer_cache"),
				logger.Issuer(issuer),
				logger.Age(stale.Age(c.now())),
				logger.Err(err))
			return stale.Value, true, nil
		}
		return PublishedKeySet{}, true, err
	}
	return set, true, nil
}

// refresh coalesce fetches concurrentes del mismo issuer. Issuers distintos
// usan keys distintas del grupo, así que nunca se bloquean entre sí.
func (c *IssuerKeyCache) refresh(ctx context.Context, issuer, endpoint string, force bool) (PublishedKeySet, error) {
	ch := c.sf.DoChan(issuer, func() (any, error) {
		if !force {
			if e := c.entry(issuer); e != nil && e.Fresh(c.now()) {
				return e.Value, nil
			}
		}

		fctx := context.WithoutCancel(ctx)
		if c.fetchTimeout > 0 {
			var cancel context.CancelFunc
			fctx, cancel = context.WithTimeout(fctx, c.fetchTimeout)
			defer cancel()
		}

		set, err := c.fetcher.Fetch(fctx, endpoint)
		if err != nil {
			metrics.IssuerFetchTotal.WithLabelValues(issuer, fetchResult(err)).Inc()
			return nil, fmt.Errorf("issuer %q: %w", issuer, err)
		}
		metrics.IssuerFetchTotal.WithLabelValues(issuer, "ok").Inc()

		c.mu.Lock()
		c.entries[issuer] = &CacheEntry[PublishedKeySet]{Value: set, FetchedAt: c.now(), TTL: c.ttl}
		c.mu.Unlock()
		return set, nil
	})

	select {
	case <-ctx.Done():
		return PublishedKeySet{}, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return PublishedKeySet{}, r.Err
		}
		return r.Val.(PublishedKeySet), nil
	}
}

func fetchResult(err error) string {
	if errors.Is(err, ErrMalformedJWKS) {
		return "malformed"
	}
	return "error"
}
