package jwt

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/dropDatabas3/keyrelay/internal/keystore"
	"github.com/dropDatabas3/keyrelay/internal/metrics"
	"github.com/dropDatabas3/keyrelay/internal/observability/logger"
)

type PublishingCacheConfig struct {
	Namespace string
	Salt      string
	// TTL <= 0 usa DefaultTTL.
	TTL time.Duration
	// Timeout de la lectura al store dentro del refresh (0 = sin límite extra).
	FetchTimeout time.Duration
	Now          func() time.Time
}

// PublishingCache expone las claves públicas actuales con staleness acotada
// por TTL. Se construye una vez por proceso y se inyecta.
type PublishingCache struct {
	store        keystore.Store
	ns           string
	salt         string
	ttl          time.Duration
	fetchTimeout time.Duration
	now          func() time.Time

	mu    sync.RWMutex
	entry *CacheEntry[PublishedKeySet]

	sf singleflight.Group
}

func NewPublishingCache(store keystore.Store, cfg PublishingCacheConfig) *PublishingCache {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &PublishingCache{
		store:        store,
		ns:           strings.Trim(cfg.Namespace, "/"),
		salt:         cfg.Salt,
		ttl:          ttl,
		fetchTimeout: cfg.FetchTimeout,
		now:          now,
	}
}

func (c *PublishingCache) current() *CacheEntry[PublishedKeySet] {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.entry
}

// GetKeys devuelve el set cacheado si está fresco; si no, refresca una sola
// vez para todos los callers concurrentes.
func (c *PublishingCache) GetKeys(ctx context.Context) (PublishedKeySet, error) {
	if e := c.current(); e != nil && e.Fresh(c.now()) {
		return e.Value, nil
	}

	ch := c.sf.DoChan("keys", func() (any, error) {
		// otro flight pudo terminar entre el chequeo y el Do
		if e := c.current(); e != nil && e.Fresh(c.now()) {
			return e.Value, nil
		}
		return c.refresh(ctx)
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

// Invalidate descarta la entrada (p.ej. tras rotar en el mismo proceso).
func (c *PublishingCache) Invalidate() {
	c.mu.Lock()
	c.entry = nil
	c.mu.Unlock()
}

func (c *PublishingCache) refresh(ctx context.Context) (PublishedKeySet, error) {
	log := logger.From(ctx).With(logger.Component("jwt.publishing_cache"), logger.Namespace(c.ns))

	// El flight es compartido: no debe morir si cancela el primer caller.
	fctx := context.WithoutCancel(ctx)
	if c.fetchTimeout > 0 {
		var cancel context.CancelFunc
		fctx, cancel = context.WithTimeout(fctx, c.fetchTimeout)
		defer cancel()
	}

	set, err := c.load(fctx)
	if err != nil {
		stale := c.current()
		if stale != nil && !errors.Is(err, ErrNoValidKey) {
			metrics.PublishRefreshTotal.WithLabelValues("stale").Inc()
			log.Warn("key refresh failed, serving stale set",
				logger.Err(err), logger.Age(stale.Age(c.now())))
			return stale.Value, nil
		}
		metrics.PublishRefreshTotal.WithLabelValues("error").Inc()
		return PublishedKeySet{}, err
	}

	c.mu.Lock()
	c.entry = &CacheEntry[PublishedKeySet]{Value: set, FetchedAt: c.now(), TTL: c.ttl}
	c.mu.Unlock()
	metrics.PublishRefreshTotal.WithLabelValues("ok").Inc()
	log.Debug("published key set refreshed", logger.Count(len(set.Keys)))
	return set, nil
}

func (c *PublishingCache) load(ctx context.Context) (PublishedKeySet, error) {
	slots := []KeySlot{SlotPrimary, SlotSecondary}
	names := make([]string, len(slots))
	for i, s := range slots {
		names[i] = ParamName(c.ns, s, FieldPublicKey)
	}

	vals, err := c.store.GetMany(ctx, names)
	if err != nil {
		return PublishedKeySet{}, fmt.Errorf("publishing cache: read public keys: %w", err)
	}

	keys := make([]PublishedKey, 0, len(slots))
	for i, slot := range slots {
		pemStr := vals[names[i]]
		if pemStr == "" {
			continue
		}
		der, err := PublicKeyDER(pemStr)
		if err == nil {
			var pk PublishedKey
			if pk, err = NewPublishedKey(der, c.salt); err == nil {
				keys = append(keys, pk)
				continue
			}
		}
		// Material corrupto en un slot = slot ausente; el otro puede seguir sirviendo.
		logger.From(ctx).Error("unreadable public key in store",
			logger.Namespace(c.ns), logger.Slot(slot.String()), logger.Err(err))
	}
	if len(keys) == 0 {
		return PublishedKeySet{}, fmt.Errorf("publishing cache: namespace %q: %w", c.ns, ErrNoValidKey)
	}
	return NewKeySet(keys...), nil
}
