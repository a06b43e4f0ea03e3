package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/QTest-hq/stlc/internal/config"
	"github.com/QTest-hq/stlc/internal/db"
	"github.com/QTest-hq/stlc/internal/llm"
	stlcnats "github.com/QTest-hq/stlc/internal/nats"
	"github.com/QTest-hq/stlc/internal/selection"
	"github.com/QTest-hq/stlc/internal/worker"
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Runs live in the database, so it is required here
	if cfg.DatabaseURL == "" {
		log.Fatal().Msg("DATABASE_URL is required")
	}
	database, err := db.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer database.Close()
	if err := database.Migrate(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate database")
	}

	// Connect to NATS (optional)
	var consumer jetstream.Consumer
	if cfg.NATSURL != "" {
		natsClient, err := stlcnats.NewClient(cfg.NATSURL, "stlc-worker")
		if err != nil {
			log.Warn().Err(err).Msg("failed to connect to NATS, workers will poll database")
		} else {
			defer natsClient.Close()
			consumer, err = natsClient.SetupStreams(ctx)
			if err != nil {
				log.Warn().Err(err).Msg("failed to set up consumer, workers will poll database")
				consumer = nil
			} else {
				log.Info().Str("url", cfg.NATSURL).Msg("connected to NATS")
			}
		}
	}

	oracleFor, err := oracleFactory(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("no similarity oracle available")
	}

	pool, err := worker.NewPool(worker.PoolConfig{
		Concurrency:  concurrency(),
		Store:        db.NewStore(database),
		Consumer:     consumer,
		OracleFor:    oracleFor,
		DefaultModel: cfg.Selection.Model,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create worker pool")
	}

	log.Info().Int("workers", len(pool.Workers())).Msg("starting worker pool")
	if err := pool.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatal().Err(err).Msg("worker pool error")
	}

	log.Info().Msg("worker pool stopped")
}

// oracleFactory asks the configured LLM, or compares titles when no LLM
// answers and the title fallback is configured
func oracleFactory(cfg *config.Config) (worker.OracleFactory, error) {
	completer, router, err := llm.NewFromConfig(cfg)
	if err == nil {
		err = router.HealthCheck()
	}
	if err != nil {
		if cfg.Selection.OfflineOracle != "title" {
			return nil, err
		}
		log.Warn().Err(err).Msg("LLM unavailable, comparing titles")
		return func(string) selection.Oracle { return selection.TitleOracle() }, nil
	}

	return func(model string) selection.Oracle {
		return selection.NewLLMOracle(completer, model)
	}, nil
}

func concurrency() int {
	n, err := strconv.Atoi(os.Getenv("WORKER_CONCURRENCY"))
	if err != nil || n <= 0 {
		return 2
	}
	return n
}
