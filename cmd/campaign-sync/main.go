package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/gosight/campaignsync/internal/app"
	"github.com/gosight/campaignsync/internal/config"
	"github.com/gosight/campaignsync/internal/syncer"
)

func main() {
	// Setup logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	// Load config
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/campaignsync.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", configPath).Msg("Failed to load config")
	}

	log.Info().
		Int("accounts", len(cfg.ActiveAccounts())).
		Str("sink", cfg.Sink.Driver).
		Str("redis_addr", cfg.Redis.Addr).
		Strs("kafka_brokers", cfg.Kafka.Brokers).
		Dur("interval", cfg.Sync.Interval).
		Bool("include_archived", cfg.Lemlist.IncludeArchived).
		Msg("Configuration loaded")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	syncApp, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize sync pipeline")
	}

	code := 0
	if cfg.Sync.Interval <= 0 {
		if _, err := syncApp.Runner.Run(ctx); err != nil {
			log.Error().Err(err).Msg("Sync failed")
			code = 1
		}
	} else {
		runScheduled(ctx, syncApp.Runner, cfg.Sync.Interval)
	}

	log.Info().Msg("Shutting down...")
	syncApp.Close()
	log.Info().Msg("Shutdown complete")
	os.Exit(code)
}

// runScheduled syncs immediately and then on every tick until ctx is cancelled
func runScheduled(ctx context.Context, runner *syncer.Runner, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := runner.Run(ctx); err != nil && !errors.Is(err, syncer.ErrSyncInProgress) {
			log.Error().Err(err).Msg("Scheduled sync failed")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
