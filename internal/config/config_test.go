package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoad_Defaults(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "dev", c.App.Env)
	assert.Equal(t, "dev", c.App.Namespace)
	assert.Equal(t, "memory", c.Store.Driver)
	assert.Equal(t, DefaultPublishTTL, c.PublishTTL())
	assert.Equal(t, DefaultJWKSTTL, c.JWKSTTL())
	assert.Equal(t, DefaultRefreshDelay, c.RefreshDelay())
	assert.Equal(t, time.Duration(0), c.Leeway())
	assert.Empty(t, c.Verifier.Issuers)
}

func TestLoad_PerEnvTTL(t *testing.T) {
	p := writeYAML(t, `
app:
  app_env: prod
keys:
  publish_ttl: 5m
  publish_ttl_by_env:
    prod: 15m
verifier:
  jwks_ttl: 2m
  jwks_ttl_by_env:
    staging: 30s
`)
	c, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, c.PublishTTL())
	assert.Equal(t, 2*time.Minute, c.JWKSTTL())
	assert.Equal(t, "prod", c.App.Namespace)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "STAGING")
	t.Setenv("KEY_NAMESPACE", "/stg/")
	t.Setenv("ISSUER_ENDPOINTS", `{"orders":"https://orders.internal/jwks"}`)
	t.Setenv("JWKS_REFRESH_DELAY", "90s")
	t.Setenv("KID_SALT", "pepper")

	c, err := Load(writeYAML(t, "verifier:\n  issuers:\n    billing: https://billing/jwks\n"))
	require.NoError(t, err)
	assert.Equal(t, "staging", c.App.Env)
	assert.Equal(t, "stg", c.App.Namespace)
	assert.Equal(t, map[string]string{"orders": "https://orders.internal/jwks"}, c.Verifier.Issuers)
	assert.Equal(t, 90*time.Second, c.RefreshDelay())
	assert.Equal(t, "pepper", c.Keys.Salt)
}

func TestLoad_IssuerEndpointsKVFallback(t *testing.T) {
	t.Setenv("ISSUER_ENDPOINTS", "a=https://a/jwks; b=https://b/jwks")
	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "https://b/jwks", c.Verifier.Issuers["b"])
	assert.Len(t, c.Verifier.Issuers, 2)
}

func TestValidate(t *testing.T) {
	_, err := Load(writeYAML(t, "store:\n  driver: etcd\n"))
	assert.Error(t, err)

	_, err = Load(writeYAML(t, "store:\n  driver: postgres\n"))
	assert.Error(t, err)

	_, err = Load(writeYAML(t, "verifier:\n  refresh_delay: soon\n"))
	assert.Error(t, err)
}

func TestLoad_TrustedProxies(t *testing.T) {
	t.Setenv("RATE_TRUSTED_PROXIES", "10.0.0.0/8, 192.0.2.7,")
	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.0/8", "192.0.2.7"}, c.Rate.TrustedProxies)

	_, err = Load(writeYAML(t, "rate:\n  trusted_proxies: [\"10.0.0.0/33\"]\n"))
	assert.Error(t, err)
}
