// Package config defines service configuration and its loading.
//
// Values are layered defaults, then an optional YAML file, then
// environment variables. Nested keys use "__" in env names, so
// LEADTIER_SERVER__ADDR sets server.addr.
package config

import (
	"runtime"
	"time"

	"github.com/okian/leadtier/internal/domain/scoring"
	"github.com/okian/leadtier/internal/domain/tier"
)

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
)

// Config contains process configuration.
type Config struct {
	Server       Server       `koanf:"server"`
	Log          Log          `koanf:"log"`
	Storage      Storage      `koanf:"storage"`
	Redis        Redis        `koanf:"redis"`
	Queue        Queue        `koanf:"queue"`
	Workers      Workers      `koanf:"workers"`
	Dedupe       Dedupe       `koanf:"dedupe"`
	Cache        Cache        `koanf:"cache"`
	Batch        Batch        `koanf:"batch"`
	Scoring      Scoring      `koanf:"scoring"`
	Tiers        Tiers        `koanf:"tiers"`
	Transition   Transition   `koanf:"transition"`
	Interactions Interactions `koanf:"interactions"`
}

// Server configures the HTTP listener.
type Server struct {
	Addr            string        `koanf:"addr"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	// MaxTopLimit caps GET /v1/analytics/top?limit.
	MaxTopLimit int `koanf:"max_top_limit"`
}

// Log configures the process logger.
type Log struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // text or json
}

// Storage selects and configures the repository.
type Storage struct {
	Driver          string        `koanf:"driver"`
	DSN             string        `koanf:"dsn"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	Migrate         bool          `koanf:"migrate"`
}

// Redis configures the shared Redis client.
type Redis struct {
	Enabled  bool   `koanf:"enabled"`
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
	PoolSize int    `koanf:"pool_size"`
}

// Queue configures the async interaction queue.
type Queue struct {
	Size int `koanf:"size"`
}

// Workers configures the interaction worker pool.
type Workers struct {
	Count int `koanf:"count"`
}

// Dedupe configures interaction ID deduplication.
type Dedupe struct {
	Size int           `koanf:"size"`
	TTL  time.Duration `koanf:"ttl"`
}

// Cache configures the session statistics cache.
type Cache struct {
	MaxEntries int           `koanf:"max_entries"`
	SessionTTL time.Duration `koanf:"session_ttl"`
}

// Batch configures batch recomputation.
type Batch struct {
	ChunkSize int `koanf:"chunk_size"`
}

// Scoring holds the batch weights and the real-time increments.
type Scoring struct {
	Weights    scoring.Weights    `koanf:"weights"`
	Increments scoring.Increments `koanf:"increments"`
}

// Tiers holds tier and readiness cut points.
type Tiers struct {
	Thresholds tier.Thresholds          `koanf:"thresholds"`
	Readiness  tier.ReadinessThresholds `koanf:"readiness"`
}

// Transition configures tier change handling.
type Transition struct {
	// RegressionPolicy is "silent" or "win_back".
	RegressionPolicy string `koanf:"regression_policy"`
}

// Interactions configures the interaction boundary.
type Interactions struct {
	// AcceptUnknown scores unknown interaction types with the default
	// increment instead of rejecting them.
	AcceptUnknown bool `koanf:"accept_unknown"`
}

// New returns a Config holding the defaults.
func New() *Config {
	return &Config{
		Server: Server{
			Addr:            ":9080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			MaxTopLimit:     100,
		},
		Log: Log{Level: "info", Format: "text"},
		Storage: Storage{
			Driver:          DriverMemory,
			MaxOpenConns:    20,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
			Migrate:         true,
		},
		Redis: Redis{
			Addr:     "localhost:6379",
			PoolSize: 20,
		},
		Queue:      Queue{Size: 10_000},
		Workers:    Workers{Count: runtime.NumCPU() * 2},
		Dedupe:     Dedupe{Size: 50_000, TTL: 24 * time.Hour},
		Cache:      Cache{MaxEntries: 10_000, SessionTTL: 30 * time.Minute},
		Batch:      Batch{ChunkSize: 10},
		Scoring:    Scoring{Weights: scoring.DefaultWeights(), Increments: scoring.DefaultIncrements()},
		Tiers:      Tiers{Thresholds: tier.DefaultThresholds(), Readiness: tier.DefaultReadinessThresholds()},
		Transition: Transition{RegressionPolicy: "silent"},
	}
}
