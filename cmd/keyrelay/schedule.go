package main

import (
	"github.com/spf13/cobra"

	"github.com/dropDatabas3/keyrelay/internal/infra/storefactory"
	jwtx "github.com/dropDatabas3/keyrelay/internal/jwt"
	"github.com/dropDatabas3/keyrelay/internal/metrics"
	"github.com/dropDatabas3/keyrelay/internal/observability/logger"
	"github.com/dropDatabas3/keyrelay/internal/rotation"
)

func newScheduleCmd(g *globals) *cobra.Command {
	var now bool
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Rota cada keys.rotation_interval hasta recibir SIGTERM (una sola instancia por namespace)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cfg, cleanup, err := g.setup(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			store, closeStore, err := storefactory.Open(ctx, cfg)
			if err != nil {
				return err
			}
			defer closeStore()
			_ = metrics.RegisterKeys(nil)

			s := &rotation.Scheduler{
				Rotator: jwtx.NewRotator(store, jwtx.RotatorConfig{
					Salt:      cfg.Keys.Salt,
					Generator: jwtx.RSAGenerator(cfg.Keys.RSABits, nil),
				}),
				Namespace:     cfg.App.Namespace,
				Interval:      cfg.RotationInterval(),
				RotateOnStart: now,
				OnRotate: func(res jwtx.RotationResult) {
					logger.From(ctx).Info("rotated",
						logger.RunID(res.RunID),
						logger.KID(res.PrimaryKID),
						logger.Bool("bootstrap", res.Bootstrap))
				},
			}
			return s.Run(ctx)
		},
	}
	cmd.Flags().BoolVar(&now, "now", false, "Rotar también al arrancar")
	return cmd
}
