package jwt

import (
	"context"
	"fmt"
	"strings"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"

	"github.com/dropDatabas3/keyrelay/internal/keystore"
)

// Signer firma tokens con la clave primaria del namespace (lado emisor).
type Signer struct {
	Iss   string
	TTL   time.Duration // default 15m
	store keystore.Store
	ns    string
	salt  string
	now   func() time.Time
}

func NewSigner(iss string, store keystore.Store, namespace, salt string) *Signer {
	return &Signer{
		Iss:   iss,
		TTL:   15 * time.Minute,
		store: store,
		ns:    strings.Trim(namespace, "/"),
		salt:  salt,
		now:   time.Now,
	}
}

// SignRaw firma claims arbitrarios con header kid/typ. Devuelve token y kid.
func (s *Signer) SignRaw(ctx context.Context, claims jwtv5.MapClaims) (string, string, error) {
	pubName, privName, _ := SlotParams(s.ns, SlotPrimary)
	vals, err := s.store.GetMany(ctx, []string{pubName, privName})
	if err != nil {
		return "", "", fmt.Errorf("sign: read primary: %w", err)
	}
	if vals[pubName] == "" {
		return "", "", fmt.Errorf("sign: namespace %q: %w", s.ns, ErrNoValidKey)
	}
	if vals[privName] == "" {
		return "", "", fmt.Errorf("sign: namespace %q: %w", s.ns, ErrIncompleteKeyPair)
	}

	der, err := PublicKeyDER(vals[pubName])
	if err != nil {
		return "", "", err
	}
	priv, err := ParsePrivateKeyPEM(vals[privName])
	if err != nil {
		return "", "", err
	}
	kid := ComputeKID(der, s.salt)

	tk := jwtv5.NewWithClaims(jwtv5.SigningMethodRS256, claims)
	tk.Header["kid"] = kid
	tk.Header["typ"] = "JWT"
	signed, err := tk.SignedString(priv)
	if err != nil {
		return "", "", err
	}
	return signed, kid, nil
}

// Issue emite un token con iss/sub/iat/exp estándar más extra (flat).
func (s *Signer) Issue(ctx context.Context, sub string, extra map[string]any) (string, time.Time, error) {
	now := s.now().UTC()
	exp := now.Add(s.TTL)
	claims := jwtv5.MapClaims{
		"iss": s.Iss,
		"sub": sub,
		"iat": now.Unix(),
		"exp": exp.Unix(),
	}
	for k, v := range extra {
		claims[k] = v
	}
	tok, _, err := s.SignRaw(ctx, claims)
	if err != nil {
		return "", time.Time{}, err
	}
	return tok, exp, nil
}
