// Package service wires the scoring engine to its storage, cache,
// broadcast and queue adapters and exposes what the HTTP API needs.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/okian/leadtier/internal/adapters/broadcast"
	"github.com/okian/leadtier/internal/adapters/cache"
	eventqueue "github.com/okian/leadtier/internal/adapters/mq/queue"
	workerpool "github.com/okian/leadtier/internal/adapters/mq/worker"
	"github.com/okian/leadtier/internal/adapters/repository"
	"github.com/okian/leadtier/internal/adapters/repository/memory"
	"github.com/okian/leadtier/internal/adapters/sequence"
	"github.com/okian/leadtier/internal/domain/dedupe"
	"github.com/okian/leadtier/internal/domain/model"
	"github.com/okian/leadtier/pkg/logger"
	"github.com/okian/leadtier/pkg/metrics"
)

// Service owns the engine and the async ingestion pipeline.
type Service struct {
	mu sync.RWMutex

	store      repository.Store
	redis      redis.UniversalClient
	sequences  sequence.Trigger
	engine     *Engine
	queue      *eventqueue.InMemoryQueue
	workerPool *workerpool.Pool

	workerCount   int
	queueSize     int
	dedupeSize    int
	dedupeTTL     time.Duration
	cacheEntries  int
	sessionTTL    time.Duration
	engineOptions []EngineOption

	started   bool
	startedAt time.Time

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of interaction workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the interaction queue capacity.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets the in-memory deduper capacity.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithDedupeTTL sets how long interaction IDs are remembered in Redis.
func WithDedupeTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.dedupeTTL = ttl
		}
	}
}

// WithCacheEntries bounds the in-memory session cache.
func WithCacheEntries(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.cacheEntries = n
		}
	}
}

// WithSessionStatsTTL sets the session statistics TTL.
func WithSessionStatsTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.sessionTTL = ttl
		}
	}
}

// WithStore sets the repository. The default is the in-memory store.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithRedis moves dedupe, session cache and broadcast onto Redis.
func WithRedis(client redis.UniversalClient) Option {
	return func(s *Service) {
		s.redis = client
	}
}

// WithSequences sets the sequence trigger. The default is in-memory.
func WithSequences(t sequence.Trigger) Option {
	return func(s *Service) {
		if t != nil {
			s.sequences = t
		}
	}
}

// WithEngineOptions passes options through to the engine.
func WithEngineOptions(opts ...EngineOption) Option {
	return func(s *Service) {
		s.engineOptions = append(s.engineOptions, opts...)
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a Service. Nothing runs until Start.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount:  runtime.NumCPU() * 2,
		queueSize:    10000,
		dedupeSize:   50000,
		dedupeTTL:    24 * time.Hour,
		cacheEntries: 10000,
		sessionTTL:   defaultSessionTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start builds the engine and starts the worker pool.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}
	s.logger.Info(ctx, "starting lead scoring service...")

	if s.store == nil {
		s.store = memory.New()
		s.logger.Info(ctx, "using in-memory store")
	}
	if s.sequences == nil {
		s.sequences = sequence.NewMemory()
	}

	engineOpts := []EngineOption{
		WithSequenceTrigger(s.sequences),
		WithSessionTTL(s.sessionTTL),
		WithEngineLogger(s.logger.Named("engine")),
	}
	if s.redis != nil {
		engineOpts = append(engineOpts,
			WithDeduper(dedupe.NewRedisDeduper(s.redis, dedupe.WithTTL(s.dedupeTTL))),
			WithSessionCache(cache.NewRedis(s.redis, cache.WithRedisTTL(s.sessionTTL))),
			WithPublisher(broadcast.NewRedisPublisher(s.redis)),
		)
		s.logger.Info(ctx, "using redis for dedupe, sessions and broadcast")
	} else {
		engineOpts = append(engineOpts,
			WithDeduper(dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))),
			WithSessionCache(cache.NewMemory(cache.WithMaxEntries(s.cacheEntries), cache.WithDefaultTTL(s.sessionTTL))),
		)
	}
	s.engine = NewEngine(s.store, append(engineOpts, s.engineOptions...)...)

	s.queue = eventqueue.NewInMemoryQueue(eventqueue.WithCapacity(s.queueSize))
	s.workerPool = workerpool.NewPool(s.workerCount, s.queue, s.engine,
		workerpool.WithPoolLogger(s.logger.Named("worker-pool")))
	// Workers outlive ctx. Stop closes the queue and they drain it.
	s.workerPool.Start(context.WithoutCancel(ctx))

	s.started = true
	s.startedAt = time.Now()
	s.logger.Info(ctx, "lead scoring service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Bool("redis", s.redis != nil),
	)
	return nil
}

// Stop drains the queue, stops the workers and closes the store.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	ctx := context.Background()
	s.logger.Info(ctx, "stopping lead scoring service...")

	if err := s.workerPool.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "worker pool shutdown incomplete", logger.Error(err))
	}
	if err := s.store.Close(); err != nil {
		s.logger.Warn(ctx, "failed to close store", logger.Error(err))
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.Warn(ctx, "failed to close redis", logger.Error(err))
		}
	}

	s.started = false
	s.logger.Info(ctx, "lead scoring service stopped")
}

// Engine returns the running engine, or nil before Start.
func (s *Service) Engine() *Engine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// Enqueue submits a tracked interaction for asynchronous application.
func (s *Service) Enqueue(ctx context.Context, t model.Tracked) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.started {
		return ErrNotStarted
	}
	err := s.queue.Enqueue(ctx, t)
	if errors.Is(err, eventqueue.ErrFull) {
		return ErrBackpressure
	}
	if err != nil {
		return fmt.Errorf("failed to enqueue interaction: %w", err)
	}
	return nil
}

// Ping checks the store and, when configured, Redis.
func (s *Service) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.started {
		return ErrNotStarted
	}
	if err := s.store.Ping(ctx); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	if s.redis != nil {
		if err := s.redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]any{
		"started":     s.started,
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
		"redis":       s.redis != nil,
	}
	if s.started {
		ctx := context.Background()
		queueLen := s.queue.Len(ctx)
		stats["queueLength"] = queueLen
		stats["busyWorkers"] = s.workerPool.Busy()
		stats["dedupeEntries"] = s.engine.deduper.Size()
		stats["uptimeSeconds"] = int64(time.Since(s.startedAt).Seconds())
		stats["regressionPolicy"] = string(s.engine.detector.Policy())

		metrics.UpdateQueueSize(queueLen)
		metrics.UpdateWorkerCount(s.workerCount)
		metrics.UpdateSystemMetrics()
	}
	return stats
}
