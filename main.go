// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/go-core-stack/coi-devserver/pkg/config"
	"github.com/go-core-stack/coi-devserver/pkg/logging"
	"github.com/go-core-stack/coi-devserver/pkg/server"
)

func main() {
	cfg, err := config.Load(os.Args)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	if err := logging.Setup(os.Stderr, cfg.LogLevel, cfg.LogFormat); err != nil {
		log.Fatal().Err(err).Msg("failed to configure logging")
	}

	handler, err := server.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to construct server")
	}

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      handler,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  cfg.ServerIdleTimeout,
	}

	go func() {
		scheme := "http"
		if cfg.TLSEnabled() {
			scheme = "https"
		}
		event := log.Info().
			Str("listen_addr", cfg.Addr()).
			Str("root", cfg.Root)
		if cfg.ProxyEnabled() {
			event = event.
				Str("proxy_prefix", cfg.ProxyPrefix).
				Str("upstream", cfg.Upstream.String())
		}
		event.Msgf("Serving at %s://localhost:%d", scheme, cfg.Port)

		var err error
		if cfg.TLSEnabled() {
			err = srv.ListenAndServeTLS(cfg.TLSCertFile, cfg.TLSKeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("dev server exited unexpectedly")
		}
	}()

	waitForShutdown(context.Background(), srv, cfg.GracefulShutdownTimeout)
}

func waitForShutdown(ctx context.Context, srv *http.Server, timeout time.Duration) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	<-stop

	log.Info().Msg("shutting down dev server")

	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed; forcing close")
		if closeErr := srv.Close(); closeErr != nil {
			log.Error().Err(closeErr).Msg("forced close failed")
		}
	}

	log.Info().Msg("dev server stopped")
}
