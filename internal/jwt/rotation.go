package jwt

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dropDatabas3/keyrelay/internal/keystore"
	"github.com/dropDatabas3/keyrelay/internal/metrics"
	"github.com/dropDatabas3/keyrelay/internal/observability/logger"
)

// RotationResult resume una rotación exitosa.
type RotationResult struct {
	RunID        string
	Namespace    string
	Bootstrap    bool
	PrimaryKID   string
	SecondaryKID string
	RotatedAt    time.Time
}

type RotatorConfig struct {
	// Salt para calcular los kids del resultado (mismo que el PublishingCache).
	Salt      string
	Generator KeyGenerator
	Now       func() time.Time
}

// Rotator reemplaza la clave primaria y deja la anterior como secundaria.
// No serializa rotaciones concurrentes: eso es responsabilidad del scheduler.
type Rotator struct {
	store keystore.Store
	gen   KeyGenerator
	salt  string
	now   func() time.Time
}

func NewRotator(store keystore.Store, cfg RotatorConfig) *Rotator {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	gen := cfg.Generator
	if gen == nil {
		gen = RSAGenerator(2048, now)
	}
	return &Rotator{store: store, gen: gen, salt: cfg.Salt, now: now}
}

// Rotate ejecuta una rotación completa para namespace.
//
// Orden de escrituras: primero el slot secundario, después el primario. Si el
// proceso muere entre ambas, el primario anterior sigue en su lugar y además
// ya está copiado como secundario; nunca queda publicado un primario nuevo
// sin que el anterior siga verificable.
func (r *Rotator) Rotate(ctx context.Context, namespace string) (RotationResult, error) {
	ns := strings.Trim(namespace, "/")
	res := RotationResult{RunID: uuid.NewString(), Namespace: ns}
	if ns == "" {
		return res, errors.New("rotate: empty namespace")
	}

	start := r.now()
	log := logger.From(ctx).With(
		logger.Component("jwt.rotator"),
		logger.Namespace(ns),
		logger.RunID(res.RunID),
	)

	err := r.rotate(ctx, ns, &res)
	metrics.RotationDuration.Observe(r.now().Sub(start).Seconds())
	switch {
	case err != nil:
		metrics.RotationsTotal.WithLabelValues("error").Inc()
		log.Error("rotation failed", logger.Err(err))
		return res, err
	case res.Bootstrap:
		metrics.RotationsTotal.WithLabelValues("bootstrap").Inc()
		log.Info("signing keys bootstrapped", logger.KID(res.PrimaryKID))
	default:
		metrics.RotationsTotal.WithLabelValues("rotated").Inc()
		log.Info("signing key rotated",
			logger.KID(res.PrimaryKID),
			logger.String("previous_kid", res.SecondaryKID),
		)
	}
	return res, nil
}

func (r *Rotator) rotate(ctx context.Context, ns string, res *RotationResult) error {
	pPub, pPriv, pCreated := SlotParams(ns, SlotPrimary)
	cur, err := r.store.GetMany(ctx, []string{pPub, pPriv, pCreated})
	if err != nil {
		return fmt.Errorf("rotate: read primary: %w", err)
	}

	// Primera vez: un solo par en ambos slots.
	if cur[pPub] == "" {
		kp, err := r.gen()
		if err != nil {
			return fmt.Errorf("rotate: %w", err)
		}
		entries := append(slotEntries(ns, SlotSecondary, kp), slotEntries(ns, SlotPrimary, kp)...)
		if err := r.store.SetMany(ctx, entries); err != nil {
			return fmt.Errorf("rotate: bootstrap write: %w", err)
		}
		kid := r.kidOf(kp.PublicKey)
		res.Bootstrap = true
		res.PrimaryKID, res.SecondaryKID = kid, kid
		res.RotatedAt = kp.CreatedAt
		return nil
	}

	if cur[pPriv] == "" {
		return fmt.Errorf("rotate: primary in %q has no private key: %w", ns, ErrIncompleteKeyPair)
	}

	// 1) primario actual -> secundario, valores exactos
	sPub, sPriv, sCreated := SlotParams(ns, SlotSecondary)
	copyPrev := []keystore.Entry{
		{Name: sPub, Value: cur[pPub], Overwrite: true},
		{Name: sPriv, Value: cur[pPriv], Overwrite: true},
		{Name: sCreated, Value: cur[pCreated], Overwrite: true},
	}
	if err := r.store.SetMany(ctx, copyPrev); err != nil {
		return fmt.Errorf("rotate: write secondary: %w", err)
	}

	// 2) par nuevo -> primario
	kp, err := r.gen()
	if err != nil {
		return fmt.Errorf("rotate: %w", err)
	}
	if err := r.store.SetMany(ctx, slotEntries(ns, SlotPrimary, kp)); err != nil {
		return fmt.Errorf("rotate: write primary: %w", err)
	}

	res.PrimaryKID = r.kidOf(kp.PublicKey)
	res.SecondaryKID = r.kidOf(cur[pPub])
	res.RotatedAt = kp.CreatedAt
	return nil
}

func slotEntries(ns string, slot KeySlot, kp KeyPair) []keystore.Entry {
	pub, priv, created := SlotParams(ns, slot)
	return []keystore.Entry{
		{Name: pub, Value: kp.PublicKey, Overwrite: true},
		{Name: priv, Value: kp.PrivateKey, Overwrite: true},
		{Name: created, Value: kp.CreatedAt.UTC().Format(time.RFC3339), Overwrite: true},
	}
}

// kidOf es informativo (resultado y logs); material ilegible da "".
func (r *Rotator) kidOf(pub string) string {
	der, err := PublicKeyDER(pub)
	if err != nil {
		return ""
	}
	return ComputeKID(der, r.salt)
}
