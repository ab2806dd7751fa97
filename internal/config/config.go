package config

import (
	"encoding/json"
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults usados cuando ni el YAML ni el entorno setean el valor.
const (
	DefaultPublishTTL   = 600 * time.Second
	DefaultJWKSTTL      = 600 * time.Second
	DefaultRefreshDelay = 60 * time.Second
	DefaultFetchTimeout = 5 * time.Second
	DefaultMaxJWKSBytes = 1 << 20
)

type Config struct {
	App struct {
		// dev | staging | prod
		Env string `yaml:"app_env"`
		// Prefijo de los paths en el store: /{namespace}/accessToken.*
		Namespace string `yaml:"namespace"`
	} `yaml:"app"`

	Server struct {
		Addr         string `yaml:"addr"`
		ReadTimeout  string `yaml:"read_timeout"`
		WriteTimeout string `yaml:"write_timeout"`
	} `yaml:"server"`

	Log struct {
		Level   string `yaml:"level"`
		Service string `yaml:"service"`
	} `yaml:"log"`

	// Store = backend del material de claves (KeyMaterialStore).
	Store struct {
		// memory | redis | postgres | ssm | vault
		Driver string `yaml:"driver"`
		Redis  struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			Prefix   string `yaml:"prefix"`
		} `yaml:"redis"`
		Postgres struct {
			DSN             string `yaml:"dsn"`
			MaxConns        int    `yaml:"max_conns"`
			ConnMaxLifetime string `yaml:"conn_max_lifetime"`
			Migrate         bool   `yaml:"migrate"`
		} `yaml:"postgres"`
		SSM struct {
			Region   string `yaml:"region"`
			KMSKeyID string `yaml:"kms_key_id"`
		} `yaml:"ssm"`
		Vault struct {
			Address   string `yaml:"address"`
			Token     string `yaml:"token"`
			Namespace string `yaml:"namespace"`
			Mount     string `yaml:"mount"`
		} `yaml:"vault"`
	} `yaml:"store"`

	Keys struct {
		// Salt de despliegue que entra en el hash del kid.
		Salt    string `yaml:"salt"`
		RSABits int    `yaml:"rsa_bits"`
		// TTL del PublishingCache; publish_ttl_by_env pisa por APP_ENV.
		PublishTTL       string            `yaml:"publish_ttl"`
		PublishTTLByEnv  map[string]string `yaml:"publish_ttl_by_env"`
		RotationInterval string            `yaml:"rotation_interval"`
	} `yaml:"keys"`

	Verifier struct {
		// issuer -> URL del JWKS
		Issuers       map[string]string `yaml:"issuers"`
		JWKSTTL       string            `yaml:"jwks_ttl"`
		JWKSTTLByEnv  map[string]string `yaml:"jwks_ttl_by_env"`
		RefreshDelay  string            `yaml:"refresh_delay"`
		FetchTimeout  string            `yaml:"fetch_timeout"`
		MaxBodyBytes  int64             `yaml:"max_body_bytes"`
		OutboundRPS   float64           `yaml:"outbound_rps"`
		OutboundBurst int               `yaml:"outbound_burst"`
		Leeway        string            `yaml:"leeway"`
	} `yaml:"verifier"`

	Rate struct {
		Enabled     bool   `yaml:"enabled"`
		Window      string `yaml:"window"`
		MaxRequests int    `yaml:"max_requests"`
		// CIDRs de proxies cuyo X-Forwarded-For se acepta. Vacío = solo RemoteAddr.
		TrustedProxies []string `yaml:"trusted_proxies"`
		// Si hay addr se usa Redis (fixed window compartido); si no, memoria.
		Redis struct {
			Addr   string `yaml:"addr"`
			DB     int    `yaml:"db"`
			Prefix string `yaml:"prefix"`
		} `yaml:"redis"`
	} `yaml:"rate"`
}

// Load lee el YAML (si path != "") y aplica defaults y overrides de entorno.
func Load(path string) (*Config, error) {
	var c Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, err
		}
	}

	c.applyEnvOverrides()
	c.applyDefaults()

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.App.Namespace == "" {
		c.App.Namespace = c.App.Env
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.ReadTimeout == "" {
		c.Server.ReadTimeout = "10s"
	}
	if c.Server.WriteTimeout == "" {
		c.Server.WriteTimeout = "15s"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Service == "" {
		c.Log.Service = "keyrelay"
	}
	if c.Store.Driver == "" {
		c.Store.Driver = "memory"
	}
	if c.Store.Redis.Prefix == "" {
		c.Store.Redis.Prefix = "keyrelay:"
	}
	if c.Keys.RSABits == 0 {
		c.Keys.RSABits = 2048
	}
	if c.Keys.RotationInterval == "" {
		c.Keys.RotationInterval = "24h"
	}
	if c.Verifier.Issuers == nil {
		c.Verifier.Issuers = map[string]string{}
	}
	if c.Verifier.MaxBodyBytes == 0 {
		c.Verifier.MaxBodyBytes = DefaultMaxJWKSBytes
	}
	if c.Verifier.OutboundRPS == 0 {
		c.Verifier.OutboundRPS = 20
	}
	if c.Verifier.OutboundBurst == 0 {
		c.Verifier.OutboundBurst = 10
	}
	if c.Rate.Window == "" {
		c.Rate.Window = "1m"
	}
	if c.Rate.MaxRequests == 0 {
		c.Rate.MaxRequests = 600
	}
	if c.Rate.Redis.Prefix == "" {
		c.Rate.Redis.Prefix = "keyrelay:rl:"
	}
}

// ---- Helpers env ----

func getEnvStr(key string) (string, bool) {
	v := os.Getenv(key)
	return v, v != ""
}
func getEnvInt(key string) (int, bool) {
	if s, ok := getEnvStr(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return i, true
		}
	}
	return 0, false
}
func getEnvFloat(key string) (float64, bool) {
	if s, ok := getEnvStr(key); ok {
		if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return f, true
		}
	}
	return 0, false
}
func getEnvBool(key string) (bool, bool) {
	if s, ok := getEnvStr(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return b, true
		}
	}
	return false, false
}

// applyEnvOverrides: pisa config.yaml con variables de entorno.
func (c *Config) applyEnvOverrides() {
	// APP
	if v, ok := getEnvStr("APP_ENV"); ok {
		c.App.Env = strings.ToLower(v)
	}
	if v, ok := getEnvStr("KEY_NAMESPACE"); ok {
		c.App.Namespace = strings.Trim(v, "/")
	}

	// SERVER
	if v, ok := getEnvStr("SERVER_ADDR"); ok {
		c.Server.Addr = v
	}
	if v, ok := getEnvStr("LOG_LEVEL"); ok {
		c.Log.Level = v
	}

	// STORE
	if v, ok := getEnvStr("STORE_DRIVER"); ok {
		c.Store.Driver = strings.ToLower(v)
	}
	if v, ok := getEnvStr("STORE_REDIS_ADDR"); ok {
		c.Store.Redis.Addr = v
	}
	if v, ok := getEnvStr("STORE_REDIS_PASSWORD"); ok {
		c.Store.Redis.Password = v
	}
	if v, ok := getEnvInt("STORE_REDIS_DB"); ok {
		c.Store.Redis.DB = v
	}
	if v, ok := getEnvStr("STORE_REDIS_PREFIX"); ok {
		c.Store.Redis.Prefix = v
	}
	// Alias habitual
	if v, ok := getEnvStr("STORE_POSTGRES_DSN"); ok {
		c.Store.Postgres.DSN = v
	} else if v, ok := getEnvStr("DATABASE_URL"); ok {
		c.Store.Postgres.DSN = v
	}
	if v, ok := getEnvInt("STORE_POSTGRES_MAX_CONNS"); ok {
		c.Store.Postgres.MaxConns = v
	}
	if v, ok := getEnvBool("STORE_POSTGRES_MIGRATE"); ok {
		c.Store.Postgres.Migrate = v
	}
	if v, ok := getEnvStr("AWS_REGION"); ok && c.Store.SSM.Region == "" {
		c.Store.SSM.Region = v
	}
	if v, ok := getEnvStr("STORE_SSM_KMS_KEY_ID"); ok {
		c.Store.SSM.KMSKeyID = v
	}
	if v, ok := getEnvStr("VAULT_ADDR"); ok {
		c.Store.Vault.Address = v
	}
	if v, ok := getEnvStr("VAULT_TOKEN"); ok {
		c.Store.Vault.Token = v
	}
	if v, ok := getEnvStr("VAULT_NAMESPACE"); ok {
		c.Store.Vault.Namespace = v
	}
	if v, ok := getEnvStr("STORE_VAULT_MOUNT"); ok {
		c.Store.Vault.Mount = v
	}

	// KEYS
	if v, ok := getEnvStr("KID_SALT"); ok {
		c.Keys.Salt = v
	}
	if v, ok := getEnvInt("KEYS_RSA_BITS"); ok {
		c.Keys.RSABits = v
	}
	if v, ok := getEnvStr("PUBLISH_CACHE_TTL"); ok {
		c.Keys.PublishTTL = v
	}
	if v, ok := getEnvStr("ROTATION_INTERVAL"); ok {
		c.Keys.RotationInterval = v
	}

	// VERIFIER
	if v, ok := getEnvStr("ISSUER_ENDPOINTS"); ok {
		// JSON {"issuer":"https://.../jwks"}; si no parsea se intenta k=v;k=v
		m := map[string]string{}
		if err := json.Unmarshal([]byte(v), &m); err != nil {
			m = parseKVList(v, ";")
		}
		c.Verifier.Issuers = m
	}
	if v, ok := getEnvStr("JWKS_CACHE_TTL"); ok {
		c.Verifier.JWKSTTL = v
	}
	if v, ok := getEnvStr("JWKS_REFRESH_DELAY"); ok {
		c.Verifier.RefreshDelay = v
	}
	if v, ok := getEnvStr("JWKS_FETCH_TIMEOUT"); ok {
		c.Verifier.FetchTimeout = v
	}
	if v, ok := getEnvInt("JWKS_MAX_BODY_BYTES"); ok {
		c.Verifier.MaxBodyBytes = int64(v)
	}
	if v, ok := getEnvFloat("JWKS_OUTBOUND_RPS"); ok {
		c.Verifier.OutboundRPS = v
	}
	if v, ok := getEnvInt("JWKS_OUTBOUND_BURST"); ok {
		c.Verifier.OutboundBurst = v
	}
	if v, ok := getEnvStr("VERIFY_LEEWAY"); ok {
		c.Verifier.Leeway = v
	}

	// RATE
	if v, ok := getEnvBool("RATE_ENABLED"); ok {
		c.Rate.Enabled = v
	}
	if v, ok := getEnvStr("RATE_WINDOW"); ok {
		c.Rate.Window = v
	}
	if v, ok := getEnvInt("RATE_MAX_REQUESTS"); ok {
		c.Rate.MaxRequests = v
	}
	if v, ok := getEnvStr("RATE_REDIS_ADDR"); ok {
		c.Rate.Redis.Addr = v
	}
	if v, ok := getEnvStr("RATE_TRUSTED_PROXIES"); ok {
		c.Rate.TrustedProxies = splitList(v)
	}
}

// Validate revisa drivers y duraciones. Los endpoints de issuers no se
// validan acá: un endpoint inválido se rechaza al verificar (UnknownIssuer).
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "memory", "redis", "postgres", "ssm", "vault":
	default:
		return fmt.Errorf("config: unknown store driver %q", c.Store.Driver)
	}
	if c.Store.Driver == "postgres" && c.Store.Postgres.DSN == "" {
		return fmt.Errorf("config: store.postgres.dsn required")
	}
	if c.Store.Driver == "redis" && c.Store.Redis.Addr == "" {
		return fmt.Errorf("config: store.redis.addr required")
	}
	durs := map[string]string{
		"server.read_timeout":     c.Server.ReadTimeout,
		"server.write_timeout":    c.Server.WriteTimeout,
		"keys.publish_ttl":        c.Keys.PublishTTL,
		"keys.rotation_interval":  c.Keys.RotationInterval,
		"verifier.jwks_ttl":       c.Verifier.JWKSTTL,
		"verifier.refresh_delay":  c.Verifier.RefreshDelay,
		"verifier.fetch_timeout":  c.Verifier.FetchTimeout,
		"verifier.leeway":         c.Verifier.Leeway,
		"rate.window":             c.Rate.Window,
		"store.postgres.conn_max": c.Store.Postgres.ConnMaxLifetime,
	}
	for k, v := range c.Keys.PublishTTLByEnv {
		durs["keys.publish_ttl_by_env."+k] = v
	}
	for k, v := range c.Verifier.JWKSTTLByEnv {
		durs["verifier.jwks_ttl_by_env."+k] = v
	}
	for name, v := range durs {
		if v == "" {
			continue
		}
		if d, err := time.ParseDuration(v); err != nil || d < 0 {
			return fmt.Errorf("config: invalid duration %s=%q", name, v)
		}
	}
	for _, p := range c.Rate.TrustedProxies {
		if _, err := netip.ParsePrefix(p); err == nil {
			continue
		}
		if _, err := netip.ParseAddr(p); err != nil {
			return fmt.Errorf("config: invalid rate.trusted_proxies entry %q", p)
		}
	}
	return nil
}

// ---- Valores resueltos ----

func dur(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}

// byEnv elige el override del entorno actual y cae al valor general.
func (c *Config) byEnv(m map[string]string, general string, def time.Duration) time.Duration {
	if v, ok := m[c.App.Env]; ok && v != "" {
		return dur(v, def)
	}
	return dur(general, def)
}

func (c *Config) PublishTTL() time.Duration {
	return c.byEnv(c.Keys.PublishTTLByEnv, c.Keys.PublishTTL, DefaultPublishTTL)
}

func (c *Config) JWKSTTL() time.Duration {
	return c.byEnv(c.Verifier.JWKSTTLByEnv, c.Verifier.JWKSTTL, DefaultJWKSTTL)
}

func (c *Config) RefreshDelay() time.Duration {
	return dur(c.Verifier.RefreshDelay, DefaultRefreshDelay)
}
func (c *Config) FetchTimeout() time.Duration {
	return dur(c.Verifier.FetchTimeout, DefaultFetchTimeout)
}
func (c *Config) Leeway() time.Duration { return dur(c.Verifier.Leeway, 0) }
func (c *Config) RotationInterval() time.Duration {
	return dur(c.Keys.RotationInterval, 24*time.Hour)
}
func (c *Config) RateWindow() time.Duration { return dur(c.Rate.Window, time.Minute) }
func (c *Config) ReadTimeout() time.Duration {
	return dur(c.Server.ReadTimeout, 10*time.Second)
}
func (c *Config) WriteTimeout() time.Duration {
	return dur(c.Server.WriteTimeout, 15*time.Second)
}

// splitList parte "a, b,,c" en ["a" "b" "c"].
func splitList(s string) []string {
	var out []string
	for _, it := range strings.Split(s, ",") {
		if it = strings.TrimSpace(it); it != "" {
			out = append(out, it)
		}
	}
	return out
}

// parse env of form "k1=v1<sep>k2=v2" into map
func parseKVList(s, sep string) map[string]string {
	s = strings.TrimSpace(s)
	if s == "" {
		return map[string]string{}
	}
	items := strings.Split(s, sep)
	out := make(map[string]string, len(items))
	for _, it := range items {
		it = strings.TrimSpace(it)
		if it == "" {
			continue
		}
		// split at first '='
		if i := strings.IndexRune(it, '='); i > 0 {
			k := strings.TrimSpace(it[:i])
			v := strings.TrimSpace(it[i+1:])
			if k != "" && v != "" {
				out[k] = v
			}
		}
	}
	return out
}
