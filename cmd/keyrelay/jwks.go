package main

import (
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dropDatabas3/keyrelay/internal/infra/storefactory"
	jwtx "github.com/dropDatabas3/keyrelay/internal/jwt"
)

func newJWKSCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "jwks",
		Short: "Imprime el JWKS publicado para app.namespace (lee el store directo)",
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

			pub := jwtx.NewPublishingCache(store, jwtx.PublishingCacheConfig{
				Namespace:    cfg.App.Namespace,
				Salt:         cfg.Keys.Salt,
				FetchTimeout: cfg.FetchTimeout(),
			})
			set, err := pub.GetKeys(ctx)
			if err != nil {
				return err
			}
			return printResult(os.Stdout, g.out, set, func() string {
				return strings.Join(set.Kids(), "\n")
			})
		},
	}
}
