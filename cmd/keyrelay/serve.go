package main

import (
	"github.com/spf13/cobra"

	"github.com/dropDatabas3/keyrelay/internal/http/v2/server"
	jwtx "github.com/dropDatabas3/keyrelay/internal/jwt"
	"github.com/dropDatabas3/keyrelay/internal/observability/logger"
	"github.com/dropDatabas3/keyrelay/internal/rotation"
)

func newServeCmd(g *globals) *cobra.Command {
	var withScheduler bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Levanta el servidor HTTP (JWKS, /v2/authorize, /readyz, /metrics)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cfg, cleanup, err := g.setup(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			app, err := server.Build(ctx, cfg, server.Options{Version: version})
			if err != nil {
				return err
			}
			defer app.Close()

			// Solo para despliegues de una réplica; con varias, `schedule` aparte.
			if withScheduler {
				s := &rotation.Scheduler{
					Rotator:   app.Rotator,
					Namespace: cfg.App.Namespace,
					Interval:  cfg.RotationInterval(),
					OnRotate: func(res jwtx.RotationResult) {
						app.Publisher.Invalidate()
						logger.From(ctx).Info("rotated", logger.KID(res.PrimaryKID))
					},
				}
				go func() { _ = s.Run(ctx) }()
			}

			return server.Serve(ctx, cfg, app.Handler)
		},
	}
	cmd.Flags().BoolVar(&withScheduler, "with-scheduler", false, "Rotar en proceso cada keys.rotation_interval")
	return cmd
}
