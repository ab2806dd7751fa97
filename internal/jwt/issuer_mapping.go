package jwt

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// IssuerMapping: issuer -> URL del JWKS. Se carga una vez al arrancar.
type IssuerMapping map[string]string

// ParseIssuerMapping decodifica el mapa serializado (JSON object).
func ParseIssuerMapping(s string) (IssuerMapping, error) {
	m := IssuerMapping{}
	if strings.TrimSpace(s) == "" {
		return m, nil
	}
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, fmt.Errorf("issuer mapping: %w", err)
	}
	return m, nil
}

// Resolve devuelve el endpoint si el issuer está mapeado a una URL http(s)
// absoluta; cualquier otro caso es KindUnknownIssuer.
func (m IssuerMapping) Resolve(issuer string) (string, error) {
	raw, ok := m[issuer]
	if !ok || issuer == "" {
		return "", newError(KindUnknownIssuer, fmt.Errorf("issuer %q not mapped", issuer))
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", newError(KindUnknownIssuer, fmt.Errorf("issuer %q: %w", issuer, err))
	}
	if (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return "", newError(KindUnknownIssuer, fmt.Errorf("issuer %q: invalid endpoint %q", issuer, raw))
	}
	return u.String(), nil
}
