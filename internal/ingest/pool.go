package ingest

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/neuralstark/kbindex/internal/models"
)

// ErrQueueFull reports that the job queue is at capacity. The caller should
// process the job synchronously instead of dropping it.
var ErrQueueFull = errors.New("ingestion queue full")

// Pool runs ingestion jobs on a fixed number of workers behind a bounded
// queue. Results are observable through an optional callback and the dead
// letter list.
type Pool struct {
	proc     *Processor
	jobs     chan models.IngestionJob
	group    *errgroup.Group
	workers  int
	logger   *zap.Logger
	onResult func(models.JobResult)

	mu          sync.Mutex
	deadLetters []models.JobResult
	started     bool
	closeOnce   sync.Once
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithPoolLogger sets the pool logger. A nil logger is ignored.
func WithPoolLogger(logger *zap.Logger) PoolOption {
	return func(p *Pool) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithResultCallback registers a callback invoked for every finished job.
// Called from worker goroutines; the callback must be safe for concurrent use.
func WithResultCallback(fn func(models.JobResult)) PoolOption {
	return func(p *Pool) { p.onResult = fn }
}

// NewPool creates a pool with the given worker count and queue capacity.
func NewPool(proc *Processor, workers, queueSize int, opts ...PoolOption) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 64
	}
	p := &Pool{
		proc:    proc,
		jobs:    make(chan models.IngestionJob, queueSize),
		workers: workers,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start launches the workers. They run until Close is called and the queue
// drains, or ctx is cancelled.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	group, ctx := errgroup.WithContext(ctx)
	p.group = group
	for i := 0; i < p.workers; i++ {
		group.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case job, ok := <-p.jobs:
					if !ok {
						return nil
					}
					p.finish(p.proc.Run(ctx, job))
				}
			}
		})
	}
	p.logger.Info("ingestion pool started",
		zap.Int("workers", p.workers),
		zap.Int("queue_size", cap(p.jobs)))
}

// Enqueue submits a job without blocking. Returns ErrQueueFull when the queue
// is at capacity.
func (p *Pool) Enqueue(job models.IngestionJob) error {
	select {
	case p.jobs <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// ProcessSync runs a job on the calling goroutine, bypassing the queue. Used
// as the fallback when Enqueue reports a full queue.
func (p *Pool) ProcessSync(ctx context.Context, job models.IngestionJob) models.JobResult {
	result := p.proc.Run(ctx, job)
	p.finish(result)
	return result
}

func (p *Pool) finish(result models.JobResult) {
	if result.Status == models.StatusDeadLetter {
		p.mu.Lock()
		p.deadLetters = append(p.deadLetters, result)
		p.mu.Unlock()
	}
	if p.onResult != nil {
		p.onResult(result)
	}
}

// DeadLetters returns a copy of the jobs that exhausted their retries.
func (p *Pool) DeadLetters() []models.JobResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.JobResult(nil), p.deadLetters...)
}

// Close stops accepting jobs and waits for in-flight work to finish.
func (p *Pool) Close() error {
	p.closeOnce.Do(func() { close(p.jobs) })
	if p.group == nil {
		return nil
	}
	err := p.group.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
