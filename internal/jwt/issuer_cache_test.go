package jwt_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jwtx "github.com/dropDatabas3/keyrelay/internal/jwt"
)

// jwksServer sirve un body configurable y cuenta los hits.
type jwksServer struct {
	*httptest.Server
	hits atomic.Int32

	mu     sync.Mutex
	body   []byte
	status int
}

func newJWKSServer(t *testing.T) *jwksServer {
	t.Helper()
	s := &jwksServer{status: http.StatusOK}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.hits.Add(1)
		s.mu.Lock()
		body, status := s.body, s.status
		s.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write(body)
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *jwksServer) serveSet(t *testing.T, set jwtx.PublishedKeySet) {
	t.Helper()
	b, err := json.Marshal(set)
	require.NoError(t, err)
	s.serveRaw(b, http.StatusOK)
}

func (s *jwksServer) serveRaw(body []byte, status int) {
	s.mu.Lock()
	s.body, s.status = body, status
	s.mu.Unlock()
}

func publishedKey(t *testing.T, kp jwtx.KeyPair) jwtx.PublishedKey {
	t.Helper()
	pk, err := jwtx.NewPublishedKey(mustDER(t, kp.PublicKey), "salt")
	require.NoError(t, err)
	return pk
}

func newTestIssuerCache(mapping jwtx.IssuerMapping, clk *testClock, ttl, delay time.Duration) *jwtx.IssuerKeyCache {
	return jwtx.NewIssuerKeyCache(mapping, jwtx.NewHTTPFetcher(jwtx.HTTPFetcherConfig{}), jwtx.IssuerCacheConfig{
		TTL:          ttl,
		RefreshDelay: delay,
		FetchTimeout: 2 * time.Second,
		Now:          clk.Now,
	})
}

func TestIssuerCache_TTLRefresh(t *testing.T) {
	srv := newJWKSServer(t)
	pk := publishedKey(t, mustKeyPair(t))
	srv.serveSet(t, jwtx.NewKeySet(pk))
	clk := newClock()
	c := newTestIssuerCache(jwtx.IssuerMapping{"orders": srv.URL}, clk, time.Minute, time.Minute)
	ctx := context.Background()

	k, err := c.KeyForKid(ctx, "orders", pk.Kid)
	require.NoError(t, err)
	assert.Equal(t, pk.Kid, k.Kid)
	assert.True(t, c.HasKid(ctx, "orders", pk.Kid))
	assert.Equal(t, int32(1), srv.hits.Load())

	clk.Advance(time.Minute)
	_, err = c.GetKeys(ctx, "orders")
	require.NoError(t, err)
	assert.Equal(t, int32(2), srv.hits.Load())
}

func TestIssuerCache_UnknownKidThrottleBound(t *testing.T) {
	srv := newJWKSServer(t)
	srv.serveSet(t, jwtx.NewKeySet(publishedKey(t, mustKeyPair(t))))
	clk := newClock()
	delay := 30 * time.Second
	c := newTestIssuerCache(jwtx.IssuerMapping{"orders": srv.URL}, clk, time.Hour, delay)
	ctx := context.Background()

	_, err := c.GetKeys(ctx, "orders")
	require.NoError(t, err)
	require.Equal(t, int32(1), srv.hits.Load())

	// Dentro de una ventana D: a lo sumo un fetch extra.
	for i := 0; i < 20; i++ {
		_, err := c.KeyForKid(ctx, "orders", "forged-kid")
		assert.ErrorIs(t, err, jwtx.ErrKidNotFound)
		clk.Advance(time.Second)
	}
	assert.Equal(t, int32(2), srv.hits.Load())

	// Pasado D se permite otro.
	clk.Advance(delay)
	_, err = c.KeyForKid(ctx, "orders", "forged-kid")
	assert.ErrorIs(t, err, jwtx.ErrKidNotFound)
	assert.Equal(t, int32(3), srv.hits.Load())
}

func TestIssuerCache_ForcedRefreshFindsNewKey(t *testing.T) {
	srv := newJWKSServer(t)
	oldKey := publishedKey(t, mustKeyPair(t))
	newKey := publishedKey(t, mustKeyPair(t))
	srv.serveSet(t, jwtx.NewKeySet(oldKey))
	clk := newClock()
	c := newTestIssuerCache(jwtx.IssuerMapping{"orders": srv.URL}, clk, time.Hour, time.Minute)
	ctx := context.Background()

	_, err := c.GetKeys(ctx, "orders")
	require.NoError(t, err)

	// el emisor rotó
	srv.serveSet(t, jwtx.NewKeySet(newKey, oldKey))
	k, err := c.KeyForKid(ctx, "orders", newKey.Kid)
	require.NoError(t, err)
	assert.Equal(t, newKey.Kid, k.Kid)
	assert.Equal(t, int32(2), srv.hits.Load())
}

func TestIssuerCache_ColdMissDoesNotForceSecondFetch(t *testing.T) {
	srv := newJWKSServer(t)
	srv.serveSet(t, jwtx.NewKeySet(publishedKey(t, mustKeyPair(t))))
	c := newTestIssuerCache(jwtx.IssuerMapping{"orders": srv.URL}, newClock(), time.Hour, time.Nanosecond)

	_, err := c.KeyForKid(context.Background(), "orders", "nope")
	assert.ErrorIs(t, err, jwtx.ErrKidNotFound)
	assert.Equal(t, int32(1), srv.hits.Load())
}

func TestIssuerCache_MalformedIsIsolatedPerIssuer(t *testing.T) {
	good := newJWKSServer(t)
	pk := publishedKey(t, mustKeyPair(t))
	good.serveSet(t, jwtx.NewKeySet(pk))
	bad := newJWKSServer(t)
	bad.serveRaw([]byte("{not json"), http.StatusOK)

	c := newTestIssuerCache(jwtx.IssuerMapping{"good": good.URL, "bad": bad.URL}, newClock(), time.Hour, time.Minute)
	ctx := context.Background()

	_, err := c.GetKeys(ctx, "bad")
	assert.ErrorIs(t, err, jwtx.ErrMalformedJWKS)

	_, err = c.KeyForKid(ctx, "good", pk.Kid)
	assert.NoError(t, err)
}

func TestIssuerCache_StaleOnFetchFailure(t *testing.T) {
	srv := newJWKSServer(t)
	pk := publishedKey(t, mustKeyPair(t))
	srv.serveSet(t, jwtx.NewKeySet(pk))
	clk := newClock()
	c := newTestIssuerCache(jwtx.IssuerMapping{"orders": srv.URL}, clk, time.Minute, time.Minute)
	ctx := context.Background()

	_, err := c.GetKeys(ctx, "orders")
	require.NoError(t, err)

	clk.Advance(2 * time.Minute)
	srv.serveRaw(nil, http.StatusBadGateway)
	k, err := c.KeyForKid(ctx, "orders", pk.Kid)
	require.NoError(t, err)
	assert.Equal(t, pk.Kid, k.Kid)
}

func TestIssuerCache_SingleFlightPerIssuer(t *testing.T) {
	release := make(chan struct{})
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		<-release
		_, _ = w.Write([]byte(`{"keys":[]}`))
	}))
	t.Cleanup(srv.Close)

	c := newTestIssuerCache(jwtx.IssuerMapping{"orders": srv.URL}, newClock(), time.Hour, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = c.GetKeys(context.Background(), "orders")
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	assert.Equal(t, int32(1), hits.Load())
}

func TestIssuerCache_ConcurrentUnknownKidCoalesces(t *testing.T) {
	b, err := json.Marshal(jwtx.NewKeySet(publishedKey(t, mustKeyPair(t))))
	require.NoError(t, err)
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// el primer fetch calienta el cache; los siguientes son lentos
		if hits.Add(1) > 1 {
			time.Sleep(100 * time.Millisecond)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(b)
	}))
	t.Cleanup(srv.Close)

	clk := newClock()
	delay := 30 * time.Second
	c := newTestIssuerCache(jwtx.IssuerMapping{"orders": srv.URL}, clk, time.Hour, delay)
	ctx := context.Background()

	_, err = c.GetKeys(ctx, "orders")
	require.NoError(t, err)
	require.Equal(t, int32(1), hits.Load())

	// ventana abierta, set todavía fresco
	clk.Advance(delay + time.Second)

	const n = 50
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = c.KeyForKid(ctx, "orders", "forged")
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(2), hits.Load())
	for _, err := range errs {
		assert.ErrorIs(t, err, jwtx.ErrKidNotFound)
	}
}

func TestIssuerCache_UnknownIssuer(t *testing.T) {
	c := newTestIssuerCache(jwtx.IssuerMapping{"weird": "ftp://x"}, newClock(), 0, 0)

	_, err := c.GetKeys(context.Background(), "missing")
	assert.ErrorIs(t, err, jwtx.ErrUnknownIssuer)
	_, err = c.GetKeys(context.Background(), "weird")
	assert.ErrorIs(t, err, jwtx.ErrUnknownIssuer)
}
