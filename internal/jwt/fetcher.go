package jwt

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	xrate "golang.org/x/time/rate"
)

// Fetcher trae el JWKS de un endpoint remoto.
type Fetcher interface {
	Fetch(ctx context.Context, endpoint string) (PublishedKeySet, error)
}

type HTTPFetcherConfig struct {
	Client       *http.Client
	MaxBodyBytes int64
	// Límite global de fetches salientes (todos los issuers). RPS <= 0 = sin límite.
	RPS   float64
	Burst int
}

// HTTPFetcher hace GET del documento JWKS.
type HTTPFetcher struct {
	client  *http.Client
	maxBody int64
	limiter *xrate.Limiter
}

func NewHTTPFetcher(cfg HTTPFetcherConfig) *HTTPFetcher {
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 1 << 20
	}
	limiter := xrate.NewLimiter(xrate.Inf, 0)
	if cfg.RPS > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = xrate.NewLimiter(xrate.Limit(cfg.RPS), burst)
	}
	return &HTTPFetcher{client: client, maxBody: maxBody, limiter: limiter}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, endpoint string) (PublishedKeySet, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return PublishedKeySet{}, fmt.Errorf("jwks fetch: outbound limit: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return PublishedKeySet{}, fmt.Errorf("jwks fetch: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return PublishedKeySet{}, fmt.Errorf("jwks fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return PublishedKeySet{}, fmt.Errorf("jwks fetch: %s: unexpected status %d", endpoint, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBody+1))
	if err != nil {
		return PublishedKeySet{}, fmt.Errorf("jwks fetch: read body: %w", err)
	}
	if int64(len(body)) > f.maxBody {
		return PublishedKeySet{}, fmt.Errorf("%w: body exceeds %d bytes", ErrMalformedJWKS, f.maxBody)
	}
	return ParseKeySet(body)
}
