package jwt_test

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jwtx "github.com/dropDatabas3/keyrelay/internal/jwt"
)

func TestHTTPFetcher_EmptyBodyIsEmptySet(t *testing.T) {
	srv := newJWKSServer(t)
	srv.serveRaw(nil, http.StatusOK)

	set, err := jwtx.NewHTTPFetcher(jwtx.HTTPFetcherConfig{}).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Empty(t, set.Keys)
}

func TestHTTPFetcher_Non2xx(t *testing.T) {
	srv := newJWKSServer(t)
	srv.serveRaw([]byte(`{"keys":[]}`), http.StatusServiceUnavailable)

	_, err := jwtx.NewHTTPFetcher(jwtx.HTTPFetcherConfig{}).Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.NotErrorIs(t, err, jwtx.ErrMalformedJWKS)
}

func TestHTTPFetcher_BodyCap(t *testing.T) {
	srv := newJWKSServer(t)
	srv.serveRaw([]byte(`{"keys":[{"kid":"`+strings.Repeat("x", 2048)+`"}]}`), http.StatusOK)

	_, err := jwtx.NewHTTPFetcher(jwtx.HTTPFetcherConfig{MaxBodyBytes: 1024}).Fetch(context.Background(), srv.URL)
	assert.ErrorIs(t, err, jwtx.ErrMalformedJWKS)
}

func TestHTTPFetcher_OutboundLimiter(t *testing.T) {
	srv := newJWKSServer(t)
	srv.serveRaw([]byte(`{"keys":[]}`), http.StatusOK)
	f := jwtx.NewHTTPFetcher(jwtx.HTTPFetcherConfig{RPS: 0.001, Burst: 1})

	_, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)

	// el segundo fetch tendría que esperar ~1000s: con deadline corto falla sin ir a la red
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = f.Fetch(ctx, srv.URL)
	assert.Error(t, err)
	assert.Equal(t, int32(1), srv.hits.Load())
}
