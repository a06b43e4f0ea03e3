package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/QTest-hq/stlc/internal/api"
	"github.com/QTest-hq/stlc/internal/config"
	"github.com/QTest-hq/stlc/internal/db"
	"github.com/QTest-hq/stlc/internal/llm"
	stlcnats "github.com/QTest-hq/stlc/internal/nats"
)

func main() {
	// Setup logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if os.Getenv("ENV") != "production" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx := context.Background()
	var deps api.Deps

	// Database (optional): selection runs and sessions
	if cfg.DatabaseURL != "" {
		database, err := db.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Warn().Err(err).Msg("database unavailable, run and session routes disabled")
		} else if err := database.Migrate(ctx); err != nil {
			log.Warn().Err(err).Msg("migration failed, run and session routes disabled")
			database.Close()
		} else {
			log.Info().Msg("connected to database")
			defer database.Close()
			deps.Store = db.NewStore(database)
		}
	}

	// NATS (optional): without it workers pick up runs by polling
	if cfg.NATSURL != "" && deps.Store != nil {
		natsClient, err := stlcnats.NewClient(cfg.NATSURL, "stlc-api")
		if err != nil {
			log.Warn().Err(err).Msg("failed to connect to NATS, workers will poll database")
		} else if _, err := natsClient.SetupStreams(ctx); err != nil {
			log.Warn().Err(err).Msg("failed to set up streams, workers will poll database")
			natsClient.Close()
		} else {
			log.Info().Str("url", cfg.NATSURL).Msg("connected to NATS")
			defer natsClient.Close()
			deps.Queue = natsClient
		}
	}

	completer, router, err := llm.NewFromConfig(cfg)
	if err != nil {
		log.Warn().Err(err).Msg("LLM disabled")
	} else {
		if err := router.HealthCheck(); err != nil {
			log.Warn().Err(err).Msg("no LLM server answering yet")
		}
		deps.LLM = completer
	}

	srv, err := api.NewServer(cfg, deps)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create server")
	}

	// Chains and synchronous selection can take minutes
	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      srv.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 11 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	done := make(chan bool)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Info().Msg("server is shutting down...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("could not gracefully shutdown the server")
		}
		close(done)
	}()

	log.Info().Int("port", cfg.Port).Msg("starting API server")
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("could not listen on port")
	}

	<-done
	log.Info().Msg("server stopped")
}
