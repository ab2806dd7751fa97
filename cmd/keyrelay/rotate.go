package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dropDatabas3/keyrelay/internal/infra/storefactory"
	jwtx "github.com/dropDatabas3/keyrelay/internal/jwt"
	"github.com/dropDatabas3/keyrelay/internal/metrics"
	"github.com/dropDatabas3/keyrelay/internal/rotation"
)

func newRotateCmd(g *globals) *cobra.Command {
	var (
		namespace string
		tries     uint
	)
	cmd := &cobra.Command{
		Use:   "rotate",
		Short: "Corre una rotación (bootstrap si el namespace no tiene claves)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cfg, cleanup, err := g.setup(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			if namespace == "" {
				namespace = cfg.App.Namespace
			}
			store, closeStore, err := storefactory.Open(ctx, cfg)
			if err != nil {
				return err
			}
			defer closeStore()
			_ = metrics.RegisterKeys(nil)

			rot := jwtx.NewRotator(store, jwtx.RotatorConfig{
				Salt:      cfg.Keys.Salt,
				Generator: jwtx.RSAGenerator(cfg.Keys.RSABits, nil),
			})
			res, err := rotation.RotateWithRetry(ctx, rot, namespace, rotation.RetryConfig{MaxTries: tries})
			if err != nil {
				return fmt.Errorf("rotate %s: %w", namespace, err)
			}

			return printResult(os.Stdout, g.out, res, func() string {
				if res.Bootstrap {
					return fmt.Sprintf("bootstrap ns=%s primary=%s", res.Namespace, res.PrimaryKID)
				}
				return fmt.Sprintf("rotated ns=%s primary=%s secondary=%s", res.Namespace, res.PrimaryKID, res.SecondaryKID)
			})
		},
	}
	cmd.Flags().StringVar(&namespace, "namespace", "", "Namespace a rotar (default: app.namespace)")
	cmd.Flags().UintVar(&tries, "tries", 5, "Intentos máximos ante errores transitorios del store")
	return cmd
}
