package jwt

import (
	"bytes"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
)

// PublishedKey es la forma pública de una clave dentro del JWKS.
// X5C[0] lleva el DER SPKI en base64 estándar; N/E van para clientes JWKS genéricos.
type PublishedKey struct {
	Kid string   `json:"kid"`
	Kty string   `json:"kty"` // "RSA"
	Alg string   `json:"alg"` // "RS256"
	Use string   `json:"use"` // "sig"
	X5C []string `json:"x5c"`
	N   string   `json:"n,omitempty"`
	E   string   `json:"e,omitempty"`
}

// PublishedKeySet: primary primero, secondary después, sin kids repetidos.
type PublishedKeySet struct {
	Keys []PublishedKey `json:"keys"`
}

// NewPublishedKey construye la entrada a partir del DER SPKI.
func NewPublishedKey(der []byte, salt string) (PublishedKey, error) {
	pub, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return PublishedKey{}, fmt.Errorf("%w: %v", ErrInvalidKeyMaterial, err)
	}
	rk, ok := pub.(*rsa.PublicKey)
	if !ok {
		return PublishedKey{}, fmt.Errorf("%w: not an RSA key", ErrInvalidKeyMaterial)
	}
	return PublishedKey{
		Kid: ComputeKID(der, salt),
		Kty: "RSA",
		Alg: "RS256",
		Use: "sig",
		X5C: []string{base64.StdEncoding.EncodeToString(der)},
		N:   base64.RawURLEncoding.EncodeToString(rk.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(rk.E)).Bytes()),
	}, nil
}

// RSAPublicKey decodifica la clave, preferentemente desde x5c.
func (k PublishedKey) RSAPublicKey() (*rsa.PublicKey, error) {
	if len(k.X5C) > 0 && k.X5C[0] != "" {
		der, err := base64.StdEncoding.DecodeString(k.X5C[0])
		if err != nil {
			return nil, fmt.Errorf("%w: x5c: %v", ErrInvalidKeyMaterial, err)
		}
		pub, err := x509.ParsePKIXPublicKey(der)
		if err != nil {
			// Algunos emisores publican un certificado en x5c.
			cert, cerr := x509.ParseCertificate(der)
			if cerr != nil {
				return nil, fmt.Errorf("%w: x5c: %v", ErrInvalidKeyMaterial, err)
			}
			pub = cert.PublicKey
		}
		rk, ok := pub.(*rsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("%w: not an RSA key", ErrInvalidKeyMaterial)
		}
		return rk, nil
	}
	if k.N == "" || k.E == "" {
		return nil, fmt.Errorf("%w: no x5c nor n/e", ErrInvalidKeyMaterial)
	}
	nb, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, fmt.Errorf("%w: n: %v", ErrInvalidKeyMaterial, err)
	}
	eb, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, fmt.Errorf("%w: e: %v", ErrInvalidKeyMaterial, err)
	}
	e := new(big.Int).SetBytes(eb)
	if !e.IsInt64() || e.Int64() < 3 || e.Int64() > 1<<31-1 {
		return nil, fmt.Errorf("%w: bad exponent", ErrInvalidKeyMaterial)
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(nb), E: int(e.Int64())}, nil
}

// NewKeySet arma el set respetando el orden y colapsando kids repetidos
// (tras el bootstrap primary y secondary son el mismo par).
func NewKeySet(keys ...PublishedKey) PublishedKeySet {
	out := PublishedKeySet{Keys: make([]PublishedKey, 0, len(keys))}
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if _, dup := seen[k.Kid]; dup {
			continue
		}
		seen[k.Kid] = struct{}{}
		out.Keys = append(out.Keys, k)
	}
	return out
}

// Find busca por kid.
func (s PublishedKeySet) Find(kid string) (PublishedKey, bool) {
	for _, k := range s.Keys {
		if k.Kid == kid {
			return k, true
		}
	}
	return PublishedKey{}, false
}

func (s PublishedKeySet) Kids() []string {
	out := make([]string, 0, len(s.Keys))
	for _, k := range s.Keys {
		out = append(out, k.Kid)
	}
	return out
}

// ParseKeySet decodifica un documento JWKS. Cuerpo vacío = set vacío.
// Entradas sin kid se descartan; JSON inválido es ErrMalformedJWKS.
func ParseKeySet(body []byte) (PublishedKeySet, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return PublishedKeySet{Keys: []PublishedKey{}}, nil
	}
	var doc PublishedKeySet
	if err := json.Unmarshal(body, &doc); err != nil {
		return PublishedKeySet{}, fmt.Errorf("%w: %v", ErrMalformedJWKS, err)
	}
	keys := make([]PublishedKey, 0, len(doc.Keys))
	for _, k := range doc.Keys {
		if k.Kid == "" {
			continue
		}
		keys = append(keys, k)
	}
	return NewKeySet(keys...), nil
}
