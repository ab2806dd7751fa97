// Package authz contiene el controller de POST /v2/authorize.
package authz

import (
	"context"
	"net/http"

	dto "github.com/dropDatabas3/keyrelay/internal/http/v2/dto/authz"
	httperrors "github.com/dropDatabas3/keyrelay/internal/http/v2/errors"
	"github.com/dropDatabas3/keyrelay/internal/http/v2/helpers"
	mw "github.com/dropDatabas3/keyrelay/internal/http/v2/middlewares"
	"github.com/dropDatabas3/keyrelay/internal/http/v2/pipeline"
	svc "github.com/dropDatabas3/keyrelay/internal/http/v2/services/authz"
	jwtx "github.com/dropDatabas3/keyrelay/internal/jwt"
	"github.com/dropDatabas3/keyrelay/internal/observability/logger"
)

type AuthorizeController struct {
	service svc.AuthorizeService
}

func NewAuthorizeController(service svc.AuthorizeService) *AuthorizeController {
	return &AuthorizeController{service: service}
}

// Authorize maneja POST /v2/authorize. Deny siempre es el mismo 401.
func (c *AuthorizeController) Authorize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("AuthorizeController.Authorize"))

	resp, err := pipeline.Run(ctx, pipeline.Steps[*http.Request, dto.AuthorizeRequest, dto.AuthorizeResponse]{
		Validate: func(_ context.Context, r *http.Request) error {
			return helpers.RequireMethod(w, r, http.MethodPost)
		},
		Prepare: func(_ context.Context, r *http.Request) (dto.AuthorizeRequest, error) {
			var req dto.AuthorizeRequest
			header := r.Header.Get("Authorization")
			// POST sin body: el token puede venir solo en el header.
			if r.ContentLength == 0 && header != "" {
				req.Token = header
				return req, nil
			}
			if err := helpers.DecodeJSON(w, r, &req); err != nil {
				return req, err
			}
			if req.Token == "" {
				req.Token = header
			}
			return req, nil
		},
		Execute: func(ctx context.Context, req dto.AuthorizeRequest) (dto.AuthorizeResponse, error) {
			return c.service.Authorize(ctx, req)
		},
	}, r)
	if err != nil {
		if kind, ok := jwtx.KindOf(err); ok {
			log.Info("authorization denied", logger.Reason(kind.String()))
			w.Header().Set("WWW-Authenticate", `Bearer realm="keyrelay"`)
		} else {
			log.Warn("authorization failed", logger.Err(err))
		}
		httperrors.WriteError(w, err)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	helpers.WriteJSON(w, http.StatusOK, resp)
}

// Whoami maneja GET /v2/whoami (detrás de RequireBearer): devuelve el
// contexto ya verificado.
func (c *AuthorizeController) Whoami(w http.ResponseWriter, r *http.Request) {
	ac := mw.GetAuthorization(r.Context())
	if ac == nil {
		httperrors.WriteError(w, httperrors.ErrUnauthorized)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	helpers.WriteJSON(w, http.StatusOK, map[string]any{
		"issuer":  ac.Issuer,
		"subject": ac.Subject(),
		"claims":  ac.Claims,
	})
}
