// Package oidc contiene el controller del JWKS publicado.
package oidc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	httperrors "github.com/dropDatabas3/keyrelay/internal/http/v2/errors"
	"github.com/dropDatabas3/keyrelay/internal/http/v2/helpers"
	"github.com/dropDatabas3/keyrelay/internal/http/v2/pipeline"
	svc "github.com/dropDatabas3/keyrelay/internal/http/v2/services/oidc"
	"github.com/dropDatabas3/keyrelay/internal/observability/logger"
)

// JWKSController maneja GET /jwks y /.well-known/jwks.json.
type JWKSController struct {
	service svc.JWKSService
	maxAge  time.Duration
}

// NewJWKSController crea el controller. maxAge alimenta Cache-Control; 0 = no-store.
func NewJWKSController(service svc.JWKSService, maxAge time.Duration) *JWKSController {
	return &JWKSController{service: service, maxAge: maxAge}
}

type jwksResult struct {
	body json.RawMessage
	etag string
}

// Get maneja GET/HEAD.
func (c *JWKSController) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("JWKSController.Get"))

	res, err := pipeline.Run(ctx, pipeline.Steps[*http.Request, json.RawMessage, jwksResult]{
		Validate: func(_ context.Context, r *http.Request) error {
			return helpers.RequireMethod(w, r, http.MethodGet, http.MethodHead)
		},
		Prepare: func(ctx context.Context, _ *http.Request) (json.RawMessage, error) {
			return c.service.GetJWKS(ctx)
		},
		Execute: func(_ context.Context, body json.RawMessage) (jwksResult, error) {
			return jwksResult{body: body, etag: helpers.ETag(body)}, nil
		},
	}, r)
	if err != nil {
		appErr := httperrors.FromError(err)
		if appErr.HTTPStatus >= http.StatusInternalServerError {
			log.Error("failed to serve JWKS", logger.Err(err))
		}
		httperrors.WriteError(w, appErr)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("ETag", res.etag)
	if c.maxAge > 0 {
		w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", int(c.maxAge.Seconds())))
	} else {
		w.Header().Set("Cache-Control", "no-store")
	}

	if helpers.NotModified(r, res.etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	_, _ = w.Write(res.body)
}
