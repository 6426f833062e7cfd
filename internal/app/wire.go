package service

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/okian/leadtier/internal/adapters/redisclient"
	"github.com/okian/leadtier/internal/adapters/repository/postgres"
	"github.com/okian/leadtier/internal/adapters/sequence"
	"github.com/okian/leadtier/internal/config"
	"github.com/okian/leadtier/internal/domain/scoring"
	"github.com/okian/leadtier/internal/domain/tier"
	"github.com/okian/leadtier/internal/domain/transition"
	"github.com/okian/leadtier/pkg/logger"
)

// EngineOptionsFromConfig builds the pure scoring components from cfg.
func EngineOptionsFromConfig(cfg *config.Config) ([]EngineOption, error) {
	policy, err := transition.ParsePolicy(cfg.Transition.RegressionPolicy)
	if err != nil {
		return nil, err
	}
	return []EngineOption{
		WithCalculator(scoring.NewCalculator(
			scoring.WithWeights(cfg.Scoring.Weights),
			scoring.WithIncrements(cfg.Scoring.Increments),
		)),
		WithClassifier(tier.NewClassifier(
			tier.WithThresholds(cfg.Tiers.Thresholds),
			tier.WithReadinessThresholds(cfg.Tiers.Readiness),
		)),
		WithDetector(transition.NewDetector(transition.WithRegressionPolicy(policy))),
		WithChunkSize(cfg.Batch.ChunkSize),
	}, nil
}

// OptionsFromConfig connects the configured backends and returns the
// Service options for them. Connections opened here are closed by
// Service.Stop.
func OptionsFromConfig(ctx context.Context, cfg *config.Config, l logger.Logger) ([]Option, error) {
	engineOpts, err := EngineOptionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	opts := []Option{
		WithLogger(l),
		WithWorkerCount(cfg.Workers.Count),
		WithQueueSize(cfg.Queue.Size),
		WithDedupeSize(cfg.Dedupe.Size),
		WithDedupeTTL(cfg.Dedupe.TTL),
		WithCacheEntries(cfg.Cache.MaxEntries),
		WithSessionStatsTTL(cfg.Cache.SessionTTL),
		WithEngineOptions(engineOpts...),
	}

	var db *sql.DB
	if cfg.Storage.Driver == config.DriverPostgres {
		db, err = postgres.Open(ctx, cfg.Storage.DSN, postgres.PoolOptions{
			MaxOpenConns:    cfg.Storage.MaxOpenConns,
			MaxIdleConns:    cfg.Storage.MaxIdleConns,
			ConnMaxLifetime: cfg.Storage.ConnMaxLifetime,
		})
		if err != nil {
			return nil, err
		}
		if cfg.Storage.Migrate {
			if err := postgres.Migrate(db); err != nil {
				_ = db.Close()
				return nil, err
			}
			l.Info(ctx, "database migrations applied")
		}
		opts = append(opts,
			WithStore(postgres.New(db)),
			WithSequences(sequence.NewPostgresTrigger(db)),
		)
	}

	if cfg.Redis.Enabled {
		client, err := redisclient.New(ctx, redisclient.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err != nil {
			if db != nil {
				_ = db.Close()
			}
			return nil, fmt.Errorf("redis: %w", err)
		}
		opts = append(opts, WithRedis(client))
	}
	return opts, nil
}
