package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dropDatabas3/keyrelay/internal/config"
	"github.com/dropDatabas3/keyrelay/internal/observability/logger"
)

const shutdownGrace = 10 * time.Second

// Serve levanta el servidor HTTP y lo apaga ordenadamente cuando ctx se cancela.
func Serve(ctx context.Context, cfg *config.Config, h http.Handler) error {
	log := logger.From(ctx).With(logger.Layer("server"))

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           h,
		ReadTimeout:       cfg.ReadTimeout(),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.WriteTimeout(),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", logger.String("addr", cfg.Server.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownGrace)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
