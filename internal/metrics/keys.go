package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Métricas del ciclo de vida de claves. Viven en un paquete propio para que
// internal/jwt y las capas HTTP las compartan sin ciclos de import.

var (
	RotationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "keyrelay_rotations_total",
		Help: "Rotaciones por resultado (rotated|bootstrap|error)",
	}, []string{"result"})

	RotationDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "keyrelay_rotation_duration_seconds",
		Help:    "Duración de una rotación completa (lecturas + escrituras + generación)",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	})

	PublishRefreshTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "keyrelay_publish_refresh_total",
		Help: "Refrescos del PublishingCache contra el store (ok|stale|error)",
	}, []string{"result"})

	IssuerFetchTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "keyrelay_issuer_fetch_total",
		Help: "Fetches de JWKS remotos por issuer y resultado",
	}, []string{"issuer", "result"})

	UnknownKidTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "keyrelay_unknown_kid_total",
		Help: "Lookups de kid desconocido (forced|throttled|final)",
	}, []string{"issuer", "outcome"})

	VerificationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "keyrelay_verifications_total",
		Help: "Verificaciones de tokens por resultado (ok o el kind del error)",
	}, []string{"result"})
)

// RegisterKeys registra las métricas de claves en reg (o el default si nil).
func RegisterKeys(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range []prometheus.Collector{
		RotationsTotal,
		RotationDuration,
		PublishRefreshTotal,
		IssuerFetchTotal,
		UnknownKidTotal,
		VerificationsTotal,
	} {
		if err := register(reg, c); err != nil {
			return err
		}
	}
	return nil
}

func register(reg prometheus.Registerer, c prometheus.Collector) error {
	if err := reg.Register(c); err != nil {
		if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
			return err
		}
	}
	return nil
}
