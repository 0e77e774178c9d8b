package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/gosight/campaignsync/internal/config"
	"github.com/gosight/campaignsync/internal/lemlist"
	"github.com/gosight/campaignsync/internal/publisher"
	"github.com/gosight/campaignsync/internal/replies"
	"github.com/gosight/campaignsync/internal/storage"
	"github.com/gosight/campaignsync/internal/syncer"
)

// App holds the wired sync pipeline shared by the binaries
type App struct {
	Runner *syncer.Runner

	sink  storage.Sink
	cache *replies.RedisCache
	kafka *publisher.Kafka
}

// NewSink connects the configured sink and creates its tables
func NewSink(ctx context.Context, cfg *config.Config) (storage.Sink, error) {
	var (
		sink storage.Sink
		err  error
	)
	switch cfg.Sink.Driver {
	case config.DriverPostgres:
		sink, err = storage.NewPostgres(ctx, cfg.Postgres, cfg.Sink.ActivityBatchSize)
	default:
		sink, err = storage.NewClickHouse(cfg.ClickHouse, cfg.Sink.ActivityBatchSize)
	}
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", cfg.Sink.Driver, err)
	}

	if err := sink.Init(ctx); err != nil {
		sink.Close()
		return nil, fmt.Errorf("init %s: %w", cfg.Sink.Driver, err)
	}
	return sink, nil
}

// New wires the Lemlist client, reply resolver, orchestrator and runner.
// Redis and Kafka are optional and skipped when unconfigured.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	accounts := cfg.ActiveAccounts()
	if len(accounts) == 0 {
		return nil, fmt.Errorf("no accounts with an api key configured")
	}

	sink, err := NewSink(ctx, cfg)
	if err != nil {
		return nil, err
	}
	log.Info().Str("driver", cfg.Sink.Driver).Msg("Sink initialized")

	a := &App{sink: sink}

	var cache replies.Cache
	if cfg.Redis.Addr != "" {
		a.cache = replies.NewRedisCache(cfg.Redis)
		if err := a.cache.Ping(ctx); err != nil {
			log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("Reply cache unavailable, continuing without it")
			a.cache.Close()
			a.cache = nil
		} else {
			cache = a.cache
			log.Info().Str("addr", cfg.Redis.Addr).Msg("Reply cache initialized")
		}
	}

	var pub syncer.Publisher
	if len(cfg.Kafka.Brokers) > 0 {
		a.kafka = publisher.NewKafka(cfg.Kafka)
		pub = a.kafka
		log.Info().Strs("brokers", cfg.Kafka.Brokers).Msg("Kafka publisher initialized")
	}

	client := lemlist.NewClient(cfg.Lemlist)
	resolver := replies.NewResolver(client, cache, cfg.Lemlist.RequestDelay)
	orchestrator := syncer.NewOrchestrator(client, resolver, syncer.Options{
		IncludeArchived:  cfg.Lemlist.IncludeArchived,
		CampaignDelay:    cfg.Lemlist.RequestDelay,
		ParallelAccounts: cfg.Sync.ParallelAccounts,
	})

	a.Runner = syncer.NewRunner(orchestrator, sink, pub, accounts)
	log.Info().Int("accounts", len(accounts)).Msg("Sync pipeline ready")
	return a, nil
}

// Close releases every connection the app opened
func (a *App) Close() {
	if a.kafka != nil {
		if err := a.kafka.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close Kafka publisher")
		}
	}
	if a.cache != nil {
		a.cache.Close()
	}
	if err := a.sink.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close sink")
	}
}
