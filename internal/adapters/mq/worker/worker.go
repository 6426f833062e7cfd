// Package worker applies queued interactions through the scoring engine.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/okian/leadtier/internal/adapters/mq/queue"
	"github.com/okian/leadtier/internal/domain/model"
	"github.com/okian/leadtier/pkg/logger"
	"github.com/okian/leadtier/pkg/metrics"
)

const (
	defaultWorkerMultiplier = 4
	poolShutdownTimeout     = 30 * time.Second
)

// Applier applies one tracked interaction.
type Applier interface {
	Track(ctx context.Context, t model.Tracked) (model.RealTimeEngagementUpdate, error)
}

// Queue defines how workers receive jobs.
type Queue interface {
	Dequeue(ctx context.Context) <-chan queue.Job
}

// Worker processes jobs until stopped.
type Worker interface {
	Run(ctx context.Context)
	Shutdown(ctx context.Context) error
}

// InMemoryWorker pulls jobs off a Queue and hands them to an Applier.
type InMemoryWorker struct {
	queue   Queue
	applier Applier
	name    string

	onBusy, onIdle func()

	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a worker.
func NewInMemoryWorker(q Queue, applier Applier, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:    q,
		applier:  applier,
		name:     "worker",
		onBusy:   func() {},
		onIdle:   func() {},
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = logger.Get().Named(w.name)
	}
	return w
}

// Run processes jobs until Shutdown is called or the queue closes. A
// cancelled ctx does not stop the loop, so jobs accepted before a close
// are still applied.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	jobs := w.queue.Dequeue(ctx)
	for {
		select {
		case <-w.shutdown:
			return
		case j, ok := <-jobs:
			if !ok {
				return
			}
			metrics.RecordQueueDequeue()
			if err := w.process(ctx, j); err != nil {
				w.logger.Error(ctx, "failed to apply interaction",
					logger.String("user_id", j.UserID),
					logger.String("interaction_id", j.InteractionID),
					logger.Error(err),
				)
			}
		}
	}
}

// Shutdown stops the worker and waits for the in-flight job.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	close(w.shutdown)
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

func (w *InMemoryWorker) process(ctx context.Context, j queue.Job) error {
	w.onBusy()
	start := time.Now()
	defer func() {
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Microseconds()) / 1000)
		w.onIdle()
	}()

	if _, err := w.applier.Track(ctx, j); err != nil {
		metrics.RecordWorkerError()
		kind := "apply_error"
		if errors.Is(err, model.ErrNotFound) {
			kind = "not_found"
		}
		metrics.RecordErrorByComponent("worker", kind)
		return fmt.Errorf("interaction %s for %s: %w", j.Type(), j.UserID, err)
	}
	return nil
}

// Pool manages a fixed set of workers sharing one queue.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue
	busy    atomic.Int64
	logger  logger.Logger
}

// NewPool creates workerCount workers. A count below one selects a
// multiple of the CPU count.
func NewPool(workerCount int, q Queue, applier Applier, opts ...PoolOption) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU() * defaultWorkerMultiplier
	}
	p := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   q,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = logger.Get().Named("worker-pool")
	}
	for i := range p.workers {
		name := "worker-" + strconv.Itoa(i)
		p.workers[i] = NewInMemoryWorker(q, applier,
			WithName(name),
			WithLogger(p.logger.Named(name)),
			WithActivity(p.markBusy, p.markIdle),
		)
	}

	metrics.UpdateWorkerCount(workerCount)
	metrics.UpdateWorkerActiveCount(0)
	metrics.UpdateWorkerIdleCount(workerCount)
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Busy returns how many workers are applying a job right now.
func (p *Pool) Busy() int { return int(p.busy.Load()) }

func (p *Pool) markBusy() {
	n := p.busy.Add(1)
	metrics.UpdateWorkerActiveCount(int(n))
	metrics.UpdateWorkerIdleCount(len(p.workers) - int(n))
}

func (p *Pool) markIdle() {
	n := p.busy.Add(-1)
	metrics.UpdateWorkerActiveCount(int(n))
	metrics.UpdateWorkerIdleCount(len(p.workers) - int(n))
}

// Start launches every worker.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
	p.logger.Info(ctx, "worker pool started", logger.Int("workers", len(p.workers)))
}

// Shutdown closes the queue, lets workers drain it and waits for them.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-shutdownCtx.Done():
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
			return fmt.Errorf("worker pool shutdown: %w", shutdownCtx.Err())
		}
	}
	return nil
}
