package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"sloppy/internal/content"
	"sloppy/internal/logging"
	"sloppy/internal/services"
)

// PoolOptions sizes the local executor.
type PoolOptions struct {
	Workers    int
	QueueSize  int
	JobTimeout time.Duration
	Logger     *slog.Logger
}

// PoolStats is a point-in-time view of the local executor.
type PoolStats struct {
	Workers   int   `json:"workers"`
	Queued    int   `json:"queued"`
	Running   int64 `json:"running"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

// Pool is the local Queue implementation. Submitted jobs are buffered and run
// by a fixed set of workers, each outcome is handed to the resolver.
type Pool struct {
	opts       PoolOptions
	performers map[content.Kind]Performer
	logger     *slog.Logger

	jobs chan Job

	mu       sync.RWMutex
	started  bool
	stopped  bool
	resolver Resolver
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	running   atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
}

// NewPool constructs a pool with one performer per stage kind.
func NewPool(opts PoolOptions, performers map[content.Kind]Performer) *Pool {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1
	}
	return &Pool{
		opts:       opts,
		performers: performers,
		logger:     logging.NewComponentLogger(opts.Logger, "job-pool"),
		jobs:       make(chan Job, opts.QueueSize),
	}
}

// Start launches the workers. Jobs accepted before Start wait in the buffer.
func (p *Pool) Start(ctx context.Context, resolver Resolver) error {
	if resolver == nil {
		return errors.New("job pool requires a resolver")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return ErrPoolStopped
	}
	if p.started {
		return errors.New("job pool already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.resolver = resolver
	p.started = true
	p.wg.Add(p.opts.Workers)
	for i := 0; i < p.opts.Workers; i++ {
		go p.work(runCtx, i)
	}
	p.logger.Info("job pool started",
		logging.Int("workers", p.opts.Workers),
		logging.Int("queue_size", p.opts.QueueSize),
	)
	return nil
}

// Submit enqueues a job without waiting for a worker.
func (p *Pool) Submit(ctx context.Context, job Job) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return "", ErrPoolStopped
	}
	job.JobID = uuid.NewString()
	select {
	case p.jobs <- job:
		return job.JobID, nil
	default:
		return "", fmt.Errorf("%w (%d queued)", ErrQueueFull, len(p.jobs))
	}
}

// Stop cancels running jobs and waits for workers to exit. Jobs still
// buffered are dropped; their items stay pending until recovered.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	cancel := p.cancel
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	p.wg.Wait()
	if dropped := len(p.jobs); dropped > 0 {
		p.logger.Info("job pool stopped with queued jobs",
			logging.Int("dropped", dropped),
		)
	}
}

// Stats reports pool counters.
func (p *Pool) Stats() PoolStats {
	return PoolStats{
		Workers:   p.opts.Workers,
		Queued:    len(p.jobs),
		Running:   p.running.Load(),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
	}
}

func (p *Pool) work(ctx context.Context, worker int) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-p.jobs:
			p.run(ctx, worker, job)
		}
	}
}

func (p *Pool) run(ctx context.Context, worker int, job Job) {
	p.running.Add(1)
	defer p.running.Add(-1)

	jobCtx := services.WithStage(services.WithJobID(services.WithItemID(ctx, job.ItemID), job.JobID), string(job.Kind))
	logger := logging.WithContext(jobCtx, p.logger).With(logging.Int("worker", worker))
	logger.Debug("job started", logging.String(logging.FieldEventType, "job_start"))

	started := time.Now()
	result, err := p.perform(jobCtx, job)
	if errors.Is(ctx.Err(), context.Canceled) {
		// Shutting down. The job stays pending for recovery on next start.
		return
	}

	outcome := Outcome{JobID: job.JobID, ItemID: job.ItemID, Result: result}
	if err != nil {
		p.failed.Add(1)
		outcome.Error = err.Error()
		logging.WarnWithContext(logger, "job execution failed", "job_execution_failed",
			logging.Error(err),
			logging.Duration("elapsed", time.Since(started)),
			logging.String(logging.FieldErrorHint, services.ErrorHint(err)),
			logging.Bool("retryable", services.Retryable(err)),
		)
	} else {
		p.completed.Add(1)
		outcome.Success = true
		logger.Debug("job finished", logging.Duration("elapsed", time.Since(started)))
	}

	p.mu.RLock()
	resolver := p.resolver
	p.mu.RUnlock()
	if _, err := resolver.Resolve(context.WithoutCancel(jobCtx), outcome); err != nil {
		logging.ErrorWithContext(logger, "resolve job outcome failed", "job_resolve_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "item stays in flight until swept or rolled back"),
			logging.String(logging.FieldErrorHint, "check content database access"),
		)
	}
}

func (p *Pool) perform(ctx context.Context, job Job) (result Result, err error) {
	performer := p.performers[job.Kind]
	if performer == nil {
		return Result{}, services.Wrap(services.ErrConfiguration, string(job.Kind), "perform", "no performer configured", nil)
	}
	if p.opts.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.JobTimeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("job performer panicked",
				logging.Any("panic", r),
				logging.String("stack", string(debug.Stack())),
			)
			err = fmt.Errorf("%s performer panicked: %v", job.Kind, r)
		}
	}()
	result, err = performer.Perform(ctx, job)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(err, services.ErrTimeout) {
		err = services.Wrap(services.ErrTimeout, string(job.Kind), "perform",
			fmt.Sprintf("exceeded %s", p.opts.JobTimeout), err)
	}
	return result, err
}
