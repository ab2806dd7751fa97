// Package authz arma la decisión de autorización a partir de un token verificado.
package authz

import (
	"context"

	dto "github.com/dropDatabas3/keyrelay/internal/http/v2/dto/authz"
	jwtx "github.com/dropDatabas3/keyrelay/internal/jwt"
	"github.com/dropDatabas3/keyrelay/internal/observability/logger"
)

// TokenVerifier es lo que el service necesita del verificador.
type TokenVerifier interface {
	Verify(ctx context.Context, raw string) (*jwtx.AuthorizationContext, error)
}

// AuthorizeService verifica el token y devuelve la política "allow".
// Cualquier fallo de verificación se devuelve tal cual (*jwtx.Error).
type AuthorizeService interface {
	Authorize(ctx context.Context, req dto.AuthorizeRequest) (dto.AuthorizeResponse, error)
}

type authorizeService struct {
	verifier TokenVerifier
}

func NewAuthorizeService(v TokenVerifier) AuthorizeService {
	return &authorizeService{verifier: v}
}

const componentAuthz = "authz"

func (s *authorizeService) Authorize(ctx context.Context, req dto.AuthorizeRequest) (dto.AuthorizeResponse, error) {
	ac, err := s.verifier.Verify(ctx, req.Token)
	if err != nil {
		return dto.AuthorizeResponse{}, err
	}

	principal := ac.Subject()
	if principal == "" {
		principal = ac.Issuer
	}
	resource := req.Resource
	if resource == "" {
		resource = "*"
	}

	logger.From(ctx).Debug("token authorized",
		logger.Layer("service"),
		logger.Component(componentAuthz),
		logger.Issuer(ac.Issuer),
		logger.String("principal", principal),
	)

	return dto.AuthorizeResponse{
		PrincipalID: principal,
		PolicyDocument: dto.PolicyDocument{
			Version: dto.PolicyVersion,
			Statement: []dto.Statement{{
				Action:   dto.ActionInvoke,
				Effect:   dto.EffectAllow,
				Resource: resource,
			}},
		},
		Context: buildContext(ac, req.Metadata),
	}, nil
}

// buildContext mezcla claims verificados y metadata del llamador. La metadata
// nunca pisa claims.
func buildContext(ac *jwtx.AuthorizationContext, metadata map[string]string) map[string]any {
	out := map[string]any{
		"issuer": ac.Issuer,
		"claims": ac.Claims,
	}
	if len(metadata) > 0 {
		out["metadata"] = metadata
	}
	return out
}
