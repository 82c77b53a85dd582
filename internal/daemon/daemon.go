package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"

	"sloppy/internal/api"
	"sloppy/internal/config"
	"sloppy/internal/content"
	"sloppy/internal/jobs"
	"sloppy/internal/logging"
	"sloppy/internal/notifications"
	"sloppy/internal/notify"
	"sloppy/internal/workflow"
)

// Daemon coordinates the background services and enforces single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *content.Store
	hub      *notify.Hub
	pool     *jobs.Pool
	registry *jobs.Registry
	workflow *workflow.Manager
	alerts   *notifications.Forwarder
	api      *apiServer

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
}

// Option customizes daemon construction.
type Option func(*options)

type options struct {
	queue      jobs.Queue
	performers map[content.Kind]jobs.Performer
}

// WithQueue replaces the configured executor with queue. Outcomes must then
// be reported through the outcome endpoint.
func WithQueue(queue jobs.Queue) Option {
	return func(o *options) { o.queue = queue }
}

// WithPerformers runs the local pool with the given performers instead of
// the configured stage commands.
func WithPerformers(performers map[content.Kind]jobs.Performer) Option {
	return func(o *options) { o.performers = performers }
}

// New constructs a daemon around an open store. The executor is chosen by
// jobs.executor: a local worker pool running the configured stage commands,
// or a remote executor reached over HTTP.
func New(cfg *config.Config, store *content.Store, logger *slog.Logger, opts ...Option) (*Daemon, error) {
	if cfg == nil || store == nil {
		return nil, errors.New("daemon requires config and store")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	hub := notify.NewHubFromConfig(cfg, logger)
	var (
		queue jobs.Queue
		pool  *jobs.Pool
	)
	switch {
	case o.queue != nil:
		queue = o.queue
	case cfg.Jobs.Executor == config.ExecutorRemote:
		queue = jobs.NewRemoteQueueFromConfig(cfg)
	default:
		performers := o.performers
		if performers == nil {
			performers = jobs.PerformersFromConfig(cfg)
		}
		pool = jobs.NewPool(jobs.PoolOptions{
			Workers:    cfg.Jobs.Workers,
			QueueSize:  cfg.Jobs.QueueSize,
			JobTimeout: cfg.JobTimeout(),
			Logger:     logger,
		}, performers)
		queue = pool
	}
	registry := jobs.NewRegistry(store, queue, hub, logger)

	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    store,
		hub:      hub,
		pool:     pool,
		registry: registry,
		workflow: workflow.NewManager(cfg, store, registry, logger),
		lockPath: cfg.LockPath(),
		lock:     flock.New(cfg.LockPath()),
	}
	if service := notifications.NewService(cfg); service.Enabled() {
		d.alerts = notifications.NewForwarder(hub, store, service, cfg, logger)
	}
	d.api = newAPIServer(cfg.Paths.APIBind, d, logger)
	return d, nil
}

// Run acquires the daemon lock and serves until ctx is cancelled or a
// background service fails.
func (d *Daemon) Run(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}
	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("another sloppyd instance holds %s", d.lockPath)
	}
	defer func() {
		if err := d.lock.Unlock(); err != nil {
			d.logger.Warn("failed to release daemon lock", logging.Error(err))
		}
	}()

	if d.pool != nil && d.cfg.Jobs.RecoverOnStart {
		if _, err := d.registry.RecoverPending(ctx, "daemon restarted before the job finished"); err != nil {
			return fmt.Errorf("recover pending jobs: %w", err)
		}
	}

	if err := d.api.listen(); err != nil {
		return err
	}

	d.running.Store(true)
	defer d.running.Store(false)
	d.logger.Info("sloppy daemon started",
		logging.String("lock", d.lockPath),
		logging.String("executor", d.cfg.Jobs.Executor),
		logging.String("address", d.api.Addr()),
	)

	group, groupCtx := errgroup.WithContext(ctx)
	if d.pool != nil {
		if err := d.pool.Start(groupCtx, d.registry); err != nil {
			d.api.shutdown()
			return fmt.Errorf("start job pool: %w", err)
		}
		group.Go(func() error {
			<-groupCtx.Done()
			d.pool.Stop()
			return nil
		})
	}
	group.Go(func() error {
		return d.api.serve()
	})
	group.Go(func() error {
		<-groupCtx.Done()
		d.api.shutdown()
		return nil
	})
	group.Go(func() error {
		return d.workflow.Run(groupCtx)
	})
	if d.alerts != nil {
		group.Go(func() error {
			return d.alerts.Run(groupCtx)
		})
	}

	err = group.Wait()
	d.logger.Info("sloppy daemon stopped")
	return err
}

// Running reports whether Run is serving.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// Addr returns the API listen address once Run has bound it.
func (d *Daemon) Addr() string {
	return d.api.Addr()
}

// Handler exposes the HTTP API for in-process tests.
func (d *Daemon) Handler() http.Handler {
	return d.api.handler
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) (api.StatusResponse, error) {
	summary, err := d.workflow.Status(ctx)
	if err != nil {
		return api.StatusResponse{}, err
	}
	hubStats := d.hub.Stats()
	status := api.StatusResponse{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		DatabasePath: d.store.Path(),
		Executor:     d.cfg.Jobs.Executor,
		Counts:       api.MergeStateCounts(summary.Counts),
		PendingJobs:  summary.Pending,
		StaleItems:   summary.StaleItems,
		TotalCost:    summary.TotalCost,
		LastError:    summary.LastError,
		Hub: api.HubStatus{
			Subscribers: hubStats.Subscribers,
			Channels:    hubStats.Channels,
			Delivered:   hubStats.Delivered,
			Dropped:     hubStats.Dropped,
			Evicted:     hubStats.Evicted,
		},
	}
	if !summary.LastSweep.IsZero() {
		status.LastSweep = summary.LastSweep.UTC().Format(time.RFC3339)
	}
	if d.pool != nil {
		stats := d.pool.Stats()
		status.Pool = &api.PoolStatus{
			Workers:   stats.Workers,
			Queued:    stats.Queued,
			Running:   stats.Running,
			Completed: stats.Completed,
			Failed:    stats.Failed,
		}
	}
	return status, nil
}
