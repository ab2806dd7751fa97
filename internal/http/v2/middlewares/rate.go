package middlewares

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"github.com/dropDatabas3/keyrelay/internal/http/v2/errors"
	"github.com/dropDatabas3/keyrelay/internal/metrics"
	"github.com/dropDatabas3/keyrelay/internal/observability/logger"
	"github.com/dropDatabas3/keyrelay/internal/rate"
)

// =================================================================================
// RATE LIMIT MIDDLEWARE
// =================================================================================

// TrustedProxies son los rangos desde los que se acepta X-Forwarded-For.
type TrustedProxies []netip.Prefix

// ParseTrustedProxies acepta CIDRs o IPs sueltas.
func ParseTrustedProxies(items []string) (TrustedProxies, error) {
	out := make(TrustedProxies, 0, len(items))
	for _, it := range items {
		it = strings.TrimSpace(it)
		if it == "" {
			continue
		}
		if !strings.Contains(it, "/") {
			addr, err := netip.ParseAddr(it)
			if err != nil {
				return nil, fmt.Errorf("trusted proxy %q: %w", it, err)
			}
			out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
			continue
		}
		p, err := netip.ParsePrefix(it)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q: %w", it, err)
		}
		out = append(out, p.Masked())
	}
	return out, nil
}

func (tp TrustedProxies) trusts(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range tp {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// ClientIP devuelve la IP del peer. Solo si el peer es un proxy confiable se
// recorre X-Forwarded-For de derecha a izquierda y se toma el primer salto no
// confiable; lo que está a su izquierda lo controla el cliente.
func (tp TrustedProxies) ClientIP(r *http.Request) string {
	ip := remoteIP(r)
	if len(tp) == 0 || !tp.trusts(ip) {
		return ip
	}
	xf := r.Header.Values("X-Forwarded-For")
	hops := strings.Split(strings.Join(xf, ","), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		h := strings.TrimSpace(hops[i])
		if h == "" {
			continue
		}
		if _, err := netip.ParseAddr(h); err != nil {
			// salto ilegible: no se sigue confiando en el header
			return ip
		}
		if !tp.trusts(h) {
			return h
		}
		ip = h
	}
	return ip
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return host
	}
	return r.RemoteAddr
}

// clientIP sin proxies confiables: siempre el peer TCP.
func clientIP(r *http.Request) string {
	return TrustedProxies(nil).ClientIP(r)
}

// RateKeyFunc define cómo generar la clave de rate limiting.
type RateKeyFunc func(r *http.Request) string

// DefaultRateKey: IP + path. No lee el body (el token viaja en el body de /v2/authorize).
func DefaultRateKey(r *http.Request) string {
	return clientIP(r) + "|" + r.URL.Path
}

// RateKeyBehind es DefaultRateKey resolviendo la IP a través de proxies confiables.
func RateKeyBehind(tp TrustedProxies) RateKeyFunc {
	return func(r *http.Request) string {
		return tp.ClientIP(r) + "|" + r.URL.Path
	}
}

// RateLimitConfig configura el comportamiento del middleware de rate limiting.
type RateLimitConfig struct {
	Limiter        rate.Limiter
	KeyFunc        RateKeyFunc
	TrustedProxies TrustedProxies // solo se usa si KeyFunc es nil
	Whitelist      []string       // paths excluidos (ej: /healthz)
	Now            func() time.Time
}

// WithRateLimit crea un middleware de rate limiting. Sin limiter es un no-op.
func WithRateLimit(cfg RateLimitConfig) Middleware {
	if cfg.Limiter == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = RateKeyBehind(cfg.TrustedProxies)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	whitelistSet := make(map[string]struct{}, len(cfg.Whitelist))
	for _, p := range cfg.Whitelist {
		whitelistSet[p] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := whitelistSet[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			res, err := cfg.Limiter.Allow(r.Context(), cfg.KeyFunc(r))
			if err != nil {
				// fail-open: un limiter caído no corta el tráfico
				logger.From(r.Context()).Warn("rate limiter error",
					logger.Component("rate"),
					logger.Err(err),
				)
				next.ServeHTTP(w, r)
				return
			}

			if res.WindowTTL > 0 {
				resetAt := cfg.Now().Add(res.WindowTTL).Unix()
				w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt, 10))
			}

			if !res.Allowed {
				if res.RetryAfter > 0 {
					secs := int(res.RetryAfter.Seconds())
					if secs < 1 {
						secs = 1
					}
					w.Header().Set("Retry-After", strconv.Itoa(secs))
				}
				metrics.RateLimitedTotal.WithLabelValues(normalizePath(r.URL.Path)).Inc()
				errors.WriteError(w, errors.ErrRateLimitExceeded)
				return
			}

			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(res.Remaining, 10))
			next.ServeHTTP(w, r)
		})
	}
}
