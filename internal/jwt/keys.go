package jwt

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"strings"
	"time"
)

// KeySlot identifica cuál de los dos pares ocupa una posición en el store.
type KeySlot int

const (
	SlotPrimary KeySlot = iota
	SlotSecondary
)

func (s KeySlot) String() string {
	switch s {
	case SlotPrimary:
		return "primary"
	case SlotSecondary:
		return "secondary"
	}
	return fmt.Sprintf("slot(%d)", int(s))
}

// Campos de cada slot en el store.
const (
	FieldPublicKey  = "publicKey"
	FieldPrivateKey = "privateKey"
	FieldCreatedAt  = "createdAt"
)

// KeyPair es el material de un slot tal como se guarda (PEM + timestamp).
type KeyPair struct {
	PublicKey  string
	PrivateKey string
	CreatedAt  time.Time
}

// ParamName arma el path namespaced: /{ns}/accessToken.{slot}.{field}
func ParamName(namespace string, slot KeySlot, field string) string {
	return "/" + strings.Trim(namespace, "/") + "/accessToken." + slot.String() + "." + field
}

// SlotParams devuelve los tres paths de un slot (public, private, createdAt).
func SlotParams(namespace string, slot KeySlot) (pub, priv, created string) {
	return ParamName(namespace, slot, FieldPublicKey),
		ParamName(namespace, slot, FieldPrivateKey),
		ParamName(namespace, slot, FieldCreatedAt)
}

// KeyGenerator produce un KeyPair nuevo.
type KeyGenerator func() (KeyPair, error)

// RSAGenerator genera pares RSA (SPKI/PKCS8 en PEM).
func RSAGenerator(bits int, now func() time.Time) KeyGenerator {
	if now == nil {
		now = time.Now
	}
	return func() (KeyPair, error) {
		priv, err := rsa.GenerateKey(rand.Reader, bits)
		if err != nil {
			return KeyPair{}, fmt.Errorf("generate rsa key: %w", err)
		}
		pubDER, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
		if err != nil {
			return KeyPair{}, err
		}
		privDER, err := x509.MarshalPKCS8PrivateKey(priv)
		if err != nil {
			return KeyPair{}, err
		}
		return KeyPair{
			PublicKey:  string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})),
			PrivateKey: string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER})),
			CreatedAt:  now().UTC(),
		}, nil
	}
}

// PublicKeyDER convierte un PEM de clave pública RSA al DER SPKI.
// Acepta "PUBLIC KEY" (PKIX) y "RSA PUBLIC KEY" (PKCS1).
func PublicKeyDER(pemStr string) ([]byte, error) {
	block, _ := pem.Decode([]byte(strings.TrimSpace(pemStr)))
	if block == nil {
		return nil, fmt.Errorf("%w: no PEM block", ErrInvalidKeyMaterial)
	}
	switch block.Type {
	case "PUBLIC KEY":
		pub, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidKeyMaterial, err)
		}
		if _, ok := pub.(*rsa.PublicKey); !ok {
			return nil, fmt.Errorf("%w: not an RSA key", ErrInvalidKeyMaterial)
		}
		return block.Bytes, nil
	case "RSA PUBLIC KEY":
		pub, err := x509.ParsePKCS1PublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidKeyMaterial, err)
		}
		return x509.MarshalPKIXPublicKey(pub)
	}
	return nil, fmt.Errorf("%w: unexpected PEM type %q", ErrInvalidKeyMaterial, block.Type)
}

// ParsePrivateKeyPEM lee una privada RSA en PKCS8 o PKCS1.
func ParsePrivateKeyPEM(pemStr string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(strings.TrimSpace(pemStr)))
	if block == nil {
		return nil, fmt.Errorf("%w: no PEM block", ErrInvalidKeyMaterial)
	}
	switch block.Type {
	case "PRIVATE KEY":
		k, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidKeyMaterial, err)
		}
		rk, ok := k.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("%w: not an RSA key", ErrInvalidKeyMaterial)
		}
		return rk, nil
	case "RSA PRIVATE KEY":
		k, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidKeyMaterial, err)
		}
		return k, nil
	}
	return nil, fmt.Errorf("%w: unexpected PEM type %q", ErrInvalidKeyMaterial, block.Type)
}
