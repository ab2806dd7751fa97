// Package server arma el grafo de dependencias (store, caches, verificador,
// limiter, métricas) y el handler HTTP final.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	rdb "github.com/redis/go-redis/v9"

	"github.com/dropDatabas3/keyrelay/internal/config"
	authzctrl "github.com/dropDatabas3/keyrelay/internal/http/v2/controllers/authz"
	healthctrl "github.com/dropDatabas3/keyrelay/internal/http/v2/controllers/health"
	oidcctrl "github.com/dropDatabas3/keyrelay/internal/http/v2/controllers/oidc"
	mw "github.com/dropDatabas3/keyrelay/internal/http/v2/middlewares"
	"github.com/dropDatabas3/keyrelay/internal/http/v2/router"
	authzsvc "github.com/dropDatabas3/keyrelay/internal/http/v2/services/authz"
	healthsvc "github.com/dropDatabas3/keyrelay/internal/http/v2/services/health"
	oidcsvc "github.com/dropDatabas3/keyrelay/internal/http/v2/services/oidc"
	"github.com/dropDatabas3/keyrelay/internal/infra/storefactory"
	jwtx "github.com/dropDatabas3/keyrelay/internal/jwt"
	"github.com/dropDatabas3/keyrelay/internal/keystore"
	kspg "github.com/dropDatabas3/keyrelay/internal/keystore/pg"
	"github.com/dropDatabas3/keyrelay/internal/metrics"
	"github.com/dropDatabas3/keyrelay/internal/observability/logger"
	"github.com/dropDatabas3/keyrelay/internal/rate"
)

// Options permite inyectar dependencias (tests) en lugar de construirlas desde cfg.
type Options struct {
	Store    keystore.Store       // nil = storefactory.Open(cfg)
	Fetcher  jwtx.Fetcher         // nil = HTTPFetcher
	Registry *prometheus.Registry // nil = registry default
	Now      func() time.Time
	Version  string
}

// App agrupa lo construido. Las caches se crean una sola vez acá y se inyectan.
type App struct {
	Handler   http.Handler
	Store     keystore.Store
	Publisher *jwtx.PublishingCache
	Issuers   *jwtx.IssuerKeyCache
	Verifier  *jwtx.Verifier
	Rotator   *jwtx.Rotator

	closers []func()
}

// Close libera conexiones en orden inverso a la creación.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// Build construye la App completa a partir de la config.
func Build(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	log := logger.From(ctx).With(logger.Layer("server"), logger.Op("Build"))
	app := &App{}

	// 1. Store
	store := opts.Store
	if store == nil {
		s, closeStore, err := storefactory.Open(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("open key store: %w", err)
		}
		app.closers = append(app.closers, closeStore)
		store = s
	}
	app.Store = store

	// 2. Métricas
	var reg prometheus.Registerer = prometheus.DefaultRegisterer
	var gatherer prometheus.Gatherer = prometheus.DefaultGatherer
	if opts.Registry != nil {
		reg, gatherer = opts.Registry, opts.Registry
	}
	if err := metrics.RegisterKeys(reg); err != nil {
		app.Close()
		return nil, fmt.Errorf("register key metrics: %w", err)
	}
	var pool func() *pgxpool.Pool
	if ps, ok := store.(*kspg.Store); ok {
		pool = ps.Pool
	}
	if err := metrics.RegisterHTTP(reg, pool); err != nil {
		app.Close()
		return nil, fmt.Errorf("register http metrics: %w", err)
	}

	// 3. Lado emisor: rotación + publicación
	ns := cfg.App.Namespace
	app.Rotator = jwtx.NewRotator(store, jwtx.RotatorConfig{
		Salt:      cfg.Keys.Salt,
		Generator: jwtx.RSAGenerator(cfg.Keys.RSABits, opts.Now),
		Now:       opts.Now,
	})
	app.Publisher = jwtx.NewPublishingCache(store, jwtx.PublishingCacheConfig{
		Namespace:    ns,
		Salt:         cfg.Keys.Salt,
		TTL:          cfg.PublishTTL(),
		FetchTimeout: cfg.FetchTimeout(),
		Now:          opts.Now,
	})

	// 4. Lado verificador
	mapping := jwtx.IssuerMapping(cfg.Verifier.Issuers)
	fetcher := opts.Fetcher
	if fetcher == nil {
		fetcher = jwtx.NewHTTPFetcher(jwtx.HTTPFetcherConfig{
			Client:       &http.Client{Timeout: cfg.FetchTimeout()},
			MaxBodyBytes: cfg.Verifier.MaxBodyBytes,
			RPS:          cfg.Verifier.OutboundRPS,
			Burst:        cfg.Verifier.OutboundBurst,
		})
	}
	app.Issuers = jwtx.NewIssuerKeyCache(mapping, fetcher, jwtx.IssuerCacheConfig{
		TTL:          cfg.JWKSTTL(),
		RefreshDelay: cfg.RefreshDelay(),
		FetchTimeout: cfg.FetchTimeout(),
		Now:          opts.Now,
	})
	app.Verifier = jwtx.NewVerifier(mapping, app.Issuers, jwtx.VerifierConfig{
		Leeway: cfg.Leeway(),
		Now:    opts.Now,
	})

	// 5. Rate limiter de /v2/authorize
	limiter, redisCheck, closeLimiter := buildLimiter(cfg)
	app.closers = append(app.closers, closeLimiter)
	proxies, err := mw.ParseTrustedProxies(cfg.Rate.TrustedProxies)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("rate: %w", err)
	}

	// 6. Services + controllers + router
	app.Handler = router.New(router.Deps{
		JWKS: oidcctrl.NewJWKSController(oidcsvc.NewJWKSService(app.Publisher), cfg.PublishTTL()),
		Authorize: authzctrl.NewAuthorizeController(
			authzsvc.NewAuthorizeService(app.Verifier),
		),
		Health: healthctrl.NewHealthController(healthsvc.NewHealthService(healthsvc.Deps{
			Store:      store,
			Namespace:  ns,
			Keys:       app.Publisher,
			RedisCheck: redisCheck,
			Version:    opts.Version,
			Now:        opts.Now,
		})),
		Verifier:    app.Verifier,
		RateLimiter: limiter,
		Proxies:     proxies,
		Gatherer:    gatherer,
	})

	log.Info("server wired",
		logger.Namespace(ns),
		logger.String("store_driver", cfg.Store.Driver),
		logger.Count(len(mapping)),
		logger.Bool("rate_limit", limiter != nil),
	)
	return app, nil
}

// buildLimiter: Redis si hay addr (ventana compartida entre réplicas), si no memoria.
func buildLimiter(cfg *config.Config) (rate.Limiter, func(context.Context) error, func()) {
	noop := func() {}
	if !cfg.Rate.Enabled {
		return nil, nil, noop
	}
	if cfg.Rate.Redis.Addr != "" {
		client := rdb.NewClient(&rdb.Options{Addr: cfg.Rate.Redis.Addr, DB: cfg.Rate.Redis.DB})
		lim := rate.NewRedisLimiter(client, cfg.Rate.Redis.Prefix, cfg.Rate.MaxRequests, cfg.RateWindow())
		check := func(ctx context.Context) error { return client.Ping(ctx).Err() }
		return lim, check, func() { _ = client.Close() }
	}
	return rate.NewMemoryLimiter(cfg.Rate.MaxRequests, cfg.RateWindow()), nil, noop
}
