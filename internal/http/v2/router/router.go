// Package router arma el árbol de rutas HTTP (chi) con sus cadenas de middlewares.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	authzctrl "github.com/dropDatabas3/keyrelay/internal/http/v2/controllers/authz"
	healthctrl "github.com/dropDatabas3/keyrelay/internal/http/v2/controllers/health"
	oidcctrl "github.com/dropDatabas3/keyrelay/internal/http/v2/controllers/oidc"
	httperrors "github.com/dropDatabas3/keyrelay/internal/http/v2/errors"
	mw "github.com/dropDatabas3/keyrelay/internal/http/v2/middlewares"
	"github.com/dropDatabas3/keyrelay/internal/rate"
)

// Deps contiene todo lo que el router necesita.
type Deps struct {
	JWKS      *oidcctrl.JWKSController
	Authorize *authzctrl.AuthorizeController
	Health    *healthctrl.HealthController

	Verifier    mw.TokenVerifier // para RequireBearer
	RateLimiter rate.Limiter     // opcional; nil = sin rate limit
	Proxies     mw.TrustedProxies
	Gatherer    prometheus.Gatherer
}

// New registra todas las rutas.
func New(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httperrors.WriteError(w, httperrors.ErrNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		httperrors.WriteError(w, httperrors.ErrMethodNotAllowed)
	})

	// Infra común: recover -> request id -> metrics
	r.Use(mw.WithRecover(), mw.WithRequestID(), mw.WithMetrics())

	registerHealthRoutes(r, deps)
	registerJWKSRoutes(r, deps)
	registerAuthzRoutes(r, deps)
	return r
}

// ===========================================================================
// Health + metrics (sin logging: muy frecuentes)
// ===========================================================================

func registerHealthRoutes(r chi.Router, deps Deps) {
	if deps.Health != nil {
		r.Get("/healthz", deps.Health.Healthz)
		r.Get("/readyz", deps.Health.Readyz)
	}
	g := deps.Gatherer
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
}

// ===========================================================================
// JWKS público
// ===========================================================================

func registerJWKSRoutes(r chi.Router, deps Deps) {
	if deps.JWKS == nil {
		return
	}
	r.Group(func(r chi.Router) {
		r.Use(mw.WithLogging())
		r.Get("/jwks", deps.JWKS.Get)
		r.Head("/jwks", deps.JWKS.Get)
		r.Get("/.well-known/jwks.json", deps.JWKS.Get)
		r.Head("/.well-known/jwks.json", deps.JWKS.Get)
	})
}

// ===========================================================================
// Autorización (rate limited, no-store)
// ===========================================================================

func registerAuthzRoutes(r chi.Router, deps Deps) {
	if deps.Authorize == nil {
		return
	}
	r.Route("/v2", func(r chi.Router) {
		r.Use(
			mw.WithLogging(),
			mw.WithNoStore(),
			mw.WithRateLimit(mw.RateLimitConfig{Limiter: deps.RateLimiter, TrustedProxies: deps.Proxies}),
		)
		r.Post("/authorize", deps.Authorize.Authorize)
		if deps.Verifier != nil {
			r.With(mw.RequireBearer(deps.Verifier)).Get("/whoami", deps.Authorize.Whoami)
		}
	})
}
