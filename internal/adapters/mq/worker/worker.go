// Package worker runs queued allocation jobs in the background.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/okian/teamcap/internal/adapters/mq/queue"
	"github.com/okian/teamcap/pkg/logger"
	"github.com/okian/teamcap/pkg/metrics"
)

const (
	defaultJobTimeout   = 5 * time.Minute
	poolShutdownTimeout = 30 * time.Second
)

// Runner executes one job.
type Runner interface {
	RunJob(ctx context.Context, j queue.Job) error
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, j queue.Job) error

// RunJob calls f.
func (f RunnerFunc) RunJob(ctx context.Context, j queue.Job) error { return f(ctx, j) }

// Source is where workers read jobs from.
type Source interface {
	Dequeue(ctx context.Context) <-chan queue.Job
}

// InMemoryWorker pulls jobs off a Source and runs them one at a time.
type InMemoryWorker struct {
	source     Source
	runner     Runner
	name       string
	jobTimeout time.Duration
	logger     logger.Logger

	shutdown chan struct{}
	once     sync.Once
	done     chan struct{}
}

// NewInMemoryWorker creates a worker.
func NewInMemoryWorker(source Source, runner Runner, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		source:     source,
		runner:     runner,
		name:       "worker",
		jobTimeout: defaultJobTimeout,
		logger:     logger.Nop(),
		shutdown:   make(chan struct{}),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.Named(w.name)
	return w
}

// Run processes jobs until ctx is done, Shutdown is called, or the source closes.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	jobs := w.source.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case j, ok := <-jobs:
			if !ok {
				return
			}
			if err := w.process(ctx, j); err != nil {
				w.logger.Error(ctx, "job failed", logger.String("job_id", j.ID), logger.Error(err))
			}
		}
	}
}

// Shutdown stops the worker after its current job.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	w.once.Do(func() { close(w.shutdown) })
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

func (w *InMemoryWorker) process(ctx context.Context, j queue.Job) (err error) {
	start := time.Now()
	metrics.IncWorkerBusy()
	defer func() {
		metrics.DecWorkerBusy()
		status := "done"
		if err != nil {
			status = "failed"
		}
		metrics.RecordJob(status, float64(time.Since(start).Milliseconds()))
	}()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", j.ID, r)
		}
	}()

	jctx, cancel := context.WithTimeout(ctx, w.jobTimeout)
	defer cancel()
	if err := w.runner.RunJob(jctx, j); err != nil {
		return fmt.Errorf("job %s: %w", j.ID, err)
	}
	return nil
}

// Pool manages a fixed set of workers sharing one source.
type Pool struct {
	workers []*InMemoryWorker
	source  Source
	logger  logger.Logger
}

// NewPool creates workerCount workers. A count below 1 means one per CPU.
func NewPool(workerCount int, source Source, runner Runner, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU()
	}
	probe := &InMemoryWorker{logger: logger.Nop()}
	for _, opt := range opts {
		opt(probe)
	}
	p := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		source:  source,
		logger:  probe.logger.Named("worker-pool"),
	}
	for i := range p.workers {
		p.workers[i] = NewInMemoryWorker(source, runner, append(opts, WithName("worker-"+strconv.Itoa(i)))...)
	}
	metrics.UpdateWorkerCount(workerCount)
	return p
}

// Size is the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Start runs every worker in its own goroutine.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
}

// Shutdown closes the source if it can be closed, then waits for workers.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.source.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()
	var firstErr error
	for _, w := range p.workers {
		if err := w.Shutdown(shutdownCtx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	metrics.UpdateWorkerCount(0)
	return firstErr
}
