package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tochka-exchange/internal/auth"
	"tochka-exchange/internal/cache"
	"tochka-exchange/internal/config"
	"tochka-exchange/internal/engine"
	"tochka-exchange/internal/httpapi"
	"tochka-exchange/internal/ledger"
	"tochka-exchange/internal/logging"
	"tochka-exchange/internal/storage"
)

const instrumentCacheSize = 256

func main() {
	log := logging.New()
	log.Info().Msg("starting tochka-exchange server")

	cfg := config.Load()

	db, err := storage.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer func() {
		log.Info().Msg("closing database connection")
		db.Close()
	}()
	log.Info().Msg("database connection established")

	ctx := context.Background()

	if err := db.CreateSchema(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to create schema")
	}
	if err := db.EnsureDefaultInstruments(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to seed default instruments")
	}
	if err := db.EnsureBootstrapAdmin(ctx, cfg.BootstrapAdminToken); err != nil {
		log.Fatal().Err(err).Msg("failed to bootstrap administrator")
	}
	log.Info().Msg("schema and bootstrap data ready")

	instruments, err := cache.New(db, instrumentCacheSize)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create instrument cache")
	}

	publisher := ledger.Connect(cfg.AMQPURL, log)
	defer publisher.Close()

	eng := engine.New(db, instruments, publisher, cfg, log)
	authn := auth.New(db)
	router := httpapi.NewRouter(db, eng, authn, cfg, log)

	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: router,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Info().Str("addr", cfg.ListenAddr).Msg("server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-stop
	log.Info().Msg("shutdown signal received, draining connections")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shut down")
	} else {
		log.Info().Msg("server gracefully stopped")
	}
}
