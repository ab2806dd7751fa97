package main

import (
	"bufio"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"

	jwtx "github.com/dropDatabas3/keyrelay/internal/jwt"
)

type verifyOutput struct {
	Decision string         `json:"decision"` // allow | deny
	Reason   string         `json:"reason,omitempty"`
	Issuer   string         `json:"issuer,omitempty"`
	Claims   map[string]any `json:"claims,omitempty"`
}

func newVerifyCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "verify [token]",
		Short: "Verifica un token contra los JWKS de issuers configurados (sin token lee stdin)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cfg, cleanup, err := g.setup(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			raw := ""
			if len(args) == 1 {
				raw = args[0]
			} else {
				sc := bufio.NewScanner(os.Stdin)
				sc.Buffer(make([]byte, 64<<10), 1<<20)
				if sc.Scan() {
					raw = sc.Text()
				}
			}

			mapping := jwtx.IssuerMapping(cfg.Verifier.Issuers)
			keys := jwtx.NewIssuerKeyCache(mapping, jwtx.NewHTTPFetcher(jwtx.HTTPFetcherConfig{
				Client:       &http.Client{Timeout: cfg.FetchTimeout()},
				MaxBodyBytes: cfg.Verifier.MaxBodyBytes,
			}), jwtx.IssuerCacheConfig{
				TTL:          cfg.JWKSTTL(),
				RefreshDelay: cfg.RefreshDelay(),
				FetchTimeout: cfg.FetchTimeout(),
			})
			v := jwtx.NewVerifier(mapping, keys, jwtx.VerifierConfig{Leeway: cfg.Leeway()})

			out := verifyOutput{Decision: "allow"}
			ac, verr := v.Verify(ctx, strings.TrimSpace(raw))
			if verr != nil {
				kind, _ := jwtx.KindOf(verr)
				out = verifyOutput{Decision: "deny", Reason: kind.String()}
			} else {
				out.Issuer = ac.Issuer
				out.Claims = ac.Claims
			}

			if err := printResult(os.Stdout, g.out, out, func() string {
				if out.Decision == "deny" {
					return "deny: " + out.Reason
				}
				return fmt.Sprintf("allow: iss=%s sub=%s", out.Issuer, ac.Subject())
			}); err != nil {
				return err
			}
			if verr != nil {
				return fmt.Errorf("token rejected")
			}
			return nil
		},
	}
}
