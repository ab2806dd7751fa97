// Command keyrelay sirve el JWKS propio, verifica tokens de otros issuers y
// rota las claves de firma.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/dropDatabas3/keyrelay/internal/config"
	"github.com/dropDatabas3/keyrelay/internal/observability/logger"
)

var version = "dev"

type globals struct {
	configPath string
	envFile    string
	out        string // json | text
}

func main() {
	g := &globals{}

	root := &cobra.Command{
		Use:           "keyrelay",
		Short:         "Ciclo de vida de claves JWT: rotación, JWKS y verificación",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&g.configPath, "config", envOr("KEYRELAY_CONFIG", ""), "Path al YAML de configuración (env KEYRELAY_CONFIG)")
	root.PersistentFlags().StringVar(&g.envFile, "env-file", ".env", "Archivo .env a cargar si existe")
	root.PersistentFlags().StringVar(&g.out, "out", envOr("KEYRELAY_OUT", "text"), "Formato de salida: json|text")

	root.AddCommand(
		newServeCmd(g),
		newRotateCmd(g),
		newScheduleCmd(g),
		newJWKSCmd(g),
		newVerifyCmd(g),
		newSignCmd(g),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

// setup carga .env + config, inicializa el logger y devuelve un ctx que se
// cancela con SIGINT/SIGTERM.
func (g *globals) setup(cmd *cobra.Command) (context.Context, *config.Config, func(), error) {
	if g.envFile != "" {
		if err := godotenv.Load(g.envFile); err != nil && !os.IsNotExist(err) {
			return nil, nil, nil, fmt.Errorf("load %s: %w", g.envFile, err)
		}
	}

	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("config: %w", err)
	}

	logEnv := "prod"
	if cfg.App.Env == "dev" {
		logEnv = "dev"
	}
	logger.Init(logger.Config{
		Env:         logEnv,
		Level:       cfg.Log.Level,
		ServiceName: cfg.Log.Service,
		Version:     version,
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	ctx = logger.ToContext(ctx, logger.L().With(logger.String("cmd", cmd.Name())))
	cleanup := func() {
		stop()
		_ = logger.Sync()
	}
	return ctx, cfg, cleanup, nil
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
