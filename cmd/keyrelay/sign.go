package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/dropDatabas3/keyrelay/internal/infra/storefactory"
	jwtx "github.com/dropDatabas3/keyrelay/internal/jwt"
)

func newSignCmd(g *globals) *cobra.Command {
	var (
		iss string
		sub string
		ttl time.Duration
	)
	cmd := &cobra.Command{
		Use:   "sign",
		Short: "Firma un token de prueba con la clave primaria de app.namespace",
		RunE: func(cmd *cobra.Command, args []string) error {
			if iss == "" || sub == "" {
				return fmt.Errorf("--iss y --sub son requeridos")
			}
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

			s := jwtx.NewSigner(iss, store, cfg.App.Namespace, cfg.Keys.Salt)
			if ttl > 0 {
				s.TTL = ttl
			}
			tok, exp, err := s.Issue(ctx, sub, nil)
			if err != nil {
				return err
			}
			return printResult(os.Stdout, g.out, map[string]any{"token": tok, "expires_at": exp}, func() string {
				return tok
			})
		},
	}
	cmd.Flags().StringVar(&iss, "iss", "", "Issuer (claim iss)")
	cmd.Flags().StringVar(&sub, "sub", "", "Subject (claim sub)")
	cmd.Flags().DurationVar(&ttl, "ttl", 15*time.Minute, "Vida del token")
	return cmd
}
