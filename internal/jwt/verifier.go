package jwt

import (
	"context"
	"errors"
	"strings"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"

	"github.com/dropDatabas3/keyrelay/internal/metrics"
	"github.com/dropDatabas3/keyrelay/internal/observability/logger"
)

// IncomingToken es el token parseado sin verificar.
type IncomingToken struct {
	Raw       string
	Kid       string
	Issuer    string
	ExpiresAt time.Time
	Claims    map[string]any
}

// AuthorizationContext es el resultado de una verificación exitosa.
type AuthorizationContext struct {
	Issuer   string
	Claims   map[string]any
	RawToken string
}

// Subject devuelve el claim "sub" (vacío si no es string).
func (a *AuthorizationContext) Subject() string {
	s, _ := a.Claims["sub"].(string)
	return s
}

// KeyResolver resuelve la clave pública de un (issuer, kid).
type KeyResolver interface {
	KeyForKid(ctx context.Context, issuer, kid string) (PublishedKey, error)
}

type VerifierConfig struct {
	// Tolerancia sobre exp (default 0).
	Leeway time.Duration
	Now    func() time.Time
}

// Verifier valida bearer tokens RS256 contra el JWKS de su issuer.
type Verifier struct {
	mapping IssuerMapping
	keys    KeyResolver
	leeway  time.Duration
	now     func() time.Time
	parser  *jwtv5.Parser
}

func NewVerifier(mapping IssuerMapping, keys KeyResolver, cfg VerifierConfig) *Verifier {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Verifier{
		mapping: mapping,
		keys:    keys,
		leeway:  cfg.Leeway,
		now:     now,
		// exp se chequea aparte, con nuestro reloj y leeway.
		parser: jwtv5.NewParser(
			jwtv5.WithValidMethods([]string{jwtv5.SigningMethodRS256.Alg()}),
			jwtv5.WithoutClaimsValidation(),
		),
	}
}

// ExtractBearer quita el prefijo "Bearer " (case-insensitive). Sin prefijo
// devuelve el valor tal cual.
func ExtractBearer(header string) string {
	h := strings.TrimSpace(header)
	// "Bearer " sin credencial queda como "Bearer" tras el trim.
	if strings.EqualFold(h, "bearer") {
		return ""
	}
	if len(h) >= 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return h
}

// Verify corre parse -> issuer -> kid -> firma -> exp. Cualquier fallo es un *Error.
func (v *Verifier) Verify(ctx context.Context, raw string) (*AuthorizationContext, error) {
	ac, err := v.verify(ctx, raw)
	if err != nil {
		kind, _ := KindOf(err)
		metrics.VerificationsTotal.WithLabelValues(kind.String()).Inc()
		logger.From(ctx).Debug("token rejected",
			logger.Component("jwt.verifier"),
			logger.Reason(kind.String()),
			logger.Err(err))
		return nil, err
	}
	metrics.VerificationsTotal.WithLabelValues("ok").Inc()
	return ac, nil
}

func (v *Verifier) verify(ctx context.Context, raw string) (*AuthorizationContext, error) {
	raw = ExtractBearer(raw)
	if raw == "" {
		return nil, newError(KindMissingToken, nil)
	}

	tok, err := v.ParseUnverified(raw)
	if err != nil {
		return nil, err
	}

	if _, err := v.mapping.Resolve(tok.Issuer); err != nil {
		return nil, err
	}

	key, err := v.keys.KeyForKid(ctx, tok.Issuer, tok.Kid)
	if err != nil {
		var vErr *Error
		if errors.As(err, &vErr) {
			return nil, vErr
		}
		return nil, newError(KindUnknownKeyID, err)
	}
	pub, err := key.RSAPublicKey()
	if err != nil {
		return nil, newError(KindUnknownKeyID, err)
	}

	if _, err := v.parser.Parse(raw, func(*jwtv5.Token) (any, error) { return pub, nil }); err != nil {
		return nil, newError(KindSignatureInvalid, err)
	}

	if !v.now().Before(tok.ExpiresAt.Add(v.leeway)) {
		return nil, newError(KindExpired, nil)
	}

	return &AuthorizationContext{
		Issuer:   tok.Issuer,
		Claims:   tok.Claims,
		RawToken: raw,
	}, nil
}

// ParseUnverified decodifica header y claims sin validar firma. Exige kid,
// iss y exp numérico.
func (v *Verifier) ParseUnverified(raw string) (*IncomingToken, error) {
	claims := jwtv5.MapClaims{}
	tok, _, err := v.parser.ParseUnverified(raw, claims)
	if err != nil {
		return nil, newError(KindMalformedToken, err)
	}

	kid, _ := tok.Header["kid"].(string)
	if kid == "" {
		return nil, newError(KindMalformedToken, errors.New("missing kid header"))
	}
	iss, err := claims.GetIssuer()
	if err != nil || iss == "" {
		return nil, newError(KindMalformedToken, errors.New("missing iss claim"))
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil, newError(KindMalformedToken, errors.New("missing or non-numeric exp claim"))
	}

	out := make(map[string]any, len(claims))
	for k, val := range claims {
		out[k] = val
	}
	return &IncomingToken{
		Raw:       raw,
		Kid:       kid,
		Issuer:    iss,
		ExpiresAt: exp.Time,
		Claims:    out,
	}, nil
}
