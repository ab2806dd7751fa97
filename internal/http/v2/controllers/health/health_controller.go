// Package health contiene el controller para health checks.
package health

import (
	"net/http"

	httperrors "github.com/dropDatabas3/keyrelay/internal/http/v2/errors"
	"github.com/dropDatabas3/keyrelay/internal/http/v2/helpers"
	svc "github.com/dropDatabas3/keyrelay/internal/http/v2/services/health"
	"github.com/dropDatabas3/keyrelay/internal/observability/logger"
)

// HealthController maneja las rutas de health check.
type HealthController struct {
	service svc.HealthService
}

// NewHealthController crea un nuevo controller de health check.
func NewHealthController(service svc.HealthService) *HealthController {
	return &HealthController{service: service}
}

// Healthz: liveness, no toca dependencias.
func (c *HealthController) Healthz(w http.ResponseWriter, r *http.Request) {
	helpers.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Readyz maneja GET /readyz
func (c *HealthController) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("HealthController.Readyz"))

	if err := helpers.RequireMethod(w, r, http.MethodGet); err != nil {
		httperrors.WriteError(w, err)
		return
	}

	response := c.service.Check(ctx)
	if response.ActiveKeyID != "" {
		w.Header().Set("X-JWKS-KID", response.ActiveKeyID)
	}

	statusCode := http.StatusOK // "ready" o "degraded"
	if response.Status == "unavailable" {
		statusCode = http.StatusServiceUnavailable
	}

	log.Debug("health check completed",
		logger.String("status", response.Status),
		logger.Count(len(response.Components)),
	)
	helpers.WriteJSON(w, statusCode, response)
}
