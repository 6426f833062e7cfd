package config

import (
	"fmt"

	"github.com/okian/leadtier/internal/domain/transition"
)

// Validate checks the values the service cannot start without.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("%w: server.addr must not be empty", ErrInvalidConfig)
	}
	if c.Server.MaxTopLimit < 1 {
		return fmt.Errorf("%w: server.max_top_limit must be positive", ErrInvalidConfig)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("%w: log.format must be text or json, got %q", ErrInvalidConfig, c.Log.Format)
	}
	switch c.Storage.Driver {
	case DriverMemory:
	case DriverPostgres:
		if c.Storage.DSN == "" {
			return fmt.Errorf("%w: storage.dsn is required for the postgres driver", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown storage.driver %q", ErrInvalidConfig, c.Storage.Driver)
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("%w: redis.addr is required when redis is enabled", ErrInvalidConfig)
	}
	if c.Queue.Size < 1 {
		return fmt.Errorf("%w: queue.size must be positive", ErrInvalidConfig)
	}
	if c.Batch.ChunkSize < 5 || c.Batch.ChunkSize > 10 {
		return fmt.Errorf("%w: batch.chunk_size must be between 5 and 10", ErrInvalidConfig)
	}
	if err := c.Scoring.Weights.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := c.Scoring.Increments.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := c.Tiers.Thresholds.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := c.Tiers.Readiness.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if _, err := transition.ParsePolicy(c.Transition.RegressionPolicy); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}
