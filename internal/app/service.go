// Package service provides the core business service that implements
// the dependencies required by the HTTP API.
package service

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/okian/teamcap/internal/adapters/mq/queue"
	"github.com/okian/teamcap/internal/adapters/mq/worker"
	"github.com/okian/teamcap/internal/adapters/repository"
	"github.com/okian/teamcap/internal/domain/allocation"
	"github.com/okian/teamcap/internal/domain/dedupe"
	"github.com/okian/teamcap/pkg/logger"
	"github.com/okian/teamcap/pkg/metrics"
)

// Defaults.
const (
	DefaultQueueSize    = 1024
	DefaultDedupeSize   = 50000
	DefaultMaxBatchSize = 200
	DefaultJobRetention = 1000
	DefaultJobTimeout   = 5 * time.Minute

	stopTimeout = 10 * time.Second
)

// Service owns the store, the allocation engine and the async batch pipeline.
type Service struct {
	mu sync.RWMutex
	// commitMu serializes commits so a retry waits for the attempt in flight.
	commitMu sync.Mutex

	// Core components
	store   repository.Store
	engine  *allocation.Engine
	deduper dedupe.Deduper
	queue   queue.Queue
	pool    *worker.Pool
	jobs    *jobRegistry

	// Configuration
	workerCount  int
	queueSize    int
	dedupeSize   int
	maxBatchSize int
	jobRetention int
	jobTimeout   time.Duration

	// State
	started bool

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStore sets the backing store. The service closes it on Stop.
func WithStore(st repository.Store) Option {
	return func(s *Service) {
		if st != nil {
			s.store = st
		}
	}
}

// WithEngine sets the allocation engine.
func WithEngine(e *allocation.Engine) Option {
	return func(s *Service) {
		if e != nil {
			s.engine = e
		}
	}
}

// WithWorkerCount sets the number of batch workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the maximum number of waiting batches.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets how many commit ids are remembered.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithMaxBatchSize caps the number of work units in one allocation.
func WithMaxBatchSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxBatchSize = n
		}
	}
}

// WithJobRetention sets how many batch results are kept for polling.
func WithJobRetention(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.jobRetention = n
		}
	}
}

// WithJobTimeout bounds a single background batch.
func WithJobTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.jobTimeout = d
		}
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

// New constructs a Service. Without WithStore it keeps data in memory.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount:  runtime.NumCPU(),
		queueSize:    DefaultQueueSize,
		dedupeSize:   DefaultDedupeSize,
		maxBatchSize: DefaultMaxBatchSize,
		jobRetention: DefaultJobRetention,
		jobTimeout:   DefaultJobTimeout,
		logger:       logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.store == nil {
		s.store = repository.NewMemoryStore()
	}
	if s.engine == nil {
		s.engine = allocation.New(allocation.WithLogger(s.logger.Named("allocation")))
	}
	s.jobs = newJobRegistry(s.jobRetention)
	return s
}

// Start builds the async pipeline and starts the workers.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	s.logger.Info(ctx, "starting allocation service...")

	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.queue = queue.NewInMemoryQueue(queue.WithCapacity(s.queueSize))
	s.pool = worker.NewPool(s.workerCount, s.queue, s,
		worker.WithLogger(s.logger),
		worker.WithJobTimeout(s.jobTimeout),
	)
	s.pool.Start(ctx)

	s.started = true
	s.logger.Info(ctx, "allocation service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
		logger.String("mode", string(s.engine.Mode())),
	)
	return nil
}

// Stop drains the workers and closes the store.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	s.logger.Info(ctx, "stopping allocation service...")

	if s.pool != nil {
		if err := s.pool.Shutdown(ctx); err != nil {
			s.logger.Warn(ctx, "workers did not stop cleanly", logger.Error(err))
		}
	}
	if err := s.store.Close(); err != nil {
		s.logger.Warn(ctx, "error closing store", logger.Error(err))
	}

	s.started = false
	s.logger.Info(ctx, "allocation service stopped")
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]interface{}{
		"started":      s.started,
		"workerCount":  s.workerCount,
		"queueSize":    s.queueSize,
		"dedupeSize":   s.dedupeSize,
		"maxBatchSize": s.maxBatchSize,
		"mode":         string(s.engine.Mode()),
		"batches":      s.jobs.counts(),
	}

	if counts, err := s.store.Count(ctx); err == nil {
		stats["people"] = counts.People
		stats["workUnits"] = counts.WorkUnits
		stats["availability"] = counts.Availability
		metrics.UpdatePeopleTotal(counts.People)
		metrics.UpdateWorkUnitsTotal(counts.WorkUnits)
	}

	if s.started {
		queueLen := s.queue.Len()
		stats["queueLength"] = queueLen
		stats["commitsSeen"] = s.deduper.Size()
		metrics.UpdateQueueSize(queueLen)
		metrics.UpdateWorkerCount(s.pool.Size())
	}

	return stats
}

func (s *Service) isStarted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started
}
