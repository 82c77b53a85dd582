package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"sloppy/internal/config"
	"sloppy/internal/content"
	"sloppy/internal/jobs"
	"sloppy/internal/logging"
)

// Manager coordinates item actions and the staleness sweeper.
type Manager struct {
	store    *content.Store
	registry *jobs.Registry
	logger   *slog.Logger

	staleAfter    time.Duration
	sweepInterval time.Duration
	autoRollback  bool

	mu         sync.RWMutex
	running    bool
	lastSweep  time.Time
	lastErr    error
	staleCount int
}

// NewManager constructs a workflow manager.
func NewManager(cfg *config.Config, store *content.Store, registry *jobs.Registry, logger *slog.Logger) *Manager {
	return &Manager{
		store:         store,
		registry:      registry,
		logger:        logging.NewComponentLogger(logger, "workflow"),
		staleAfter:    cfg.StaleAfter(),
		sweepInterval: cfg.SweepInterval(),
		autoRollback:  cfg.Jobs.AutoRollbackStale,
	}
}

// Create starts a new item from prompt.
func (m *Manager) Create(ctx context.Context, prompt string) (*content.Item, error) {
	return m.registry.Create(ctx, prompt)
}

// Render submits the render stage for a drafted item.
func (m *Manager) Render(ctx context.Context, id string) (*content.Item, string, error) {
	return m.start(ctx, id, func() (string, error) {
		return m.registry.Register(ctx, id, content.KindRender)
	})
}

// Publish submits the publish stage for a rendered item.
func (m *Manager) Publish(ctx context.Context, id string) (*content.Item, string, error) {
	return m.start(ctx, id, func() (string, error) {
		return m.registry.Register(ctx, id, content.KindPublish)
	})
}

// Retry resubmits whichever stage moves the item forward. A failed draft
// is redrafted; otherwise the next stage after the current stable state runs.
func (m *Manager) Retry(ctx context.Context, id string) (*content.Item, string, error) {
	return m.start(ctx, id, func() (string, error) {
		return m.registry.Advance(ctx, id)
	})
}

func (m *Manager) start(ctx context.Context, id string, register func() (string, error)) (*content.Item, string, error) {
	jobID, err := register()
	if err != nil {
		return nil, "", err
	}
	item, err := m.Get(ctx, id)
	if err != nil {
		return nil, jobID, err
	}
	return item, jobID, nil
}

// Rollback fails the item's in-flight job.
func (m *Manager) Rollback(ctx context.Context, id, reason string) (*content.Item, error) {
	if strings.TrimSpace(reason) == "" {
		reason = "rolled back by operator"
	}
	if _, err := m.registry.ForceRollback(ctx, id, reason); err != nil {
		return nil, err
	}
	return m.Get(ctx, id)
}

// Delete removes an item and its job history.
func (m *Manager) Delete(ctx context.Context, id string) (bool, error) {
	return m.registry.Delete(ctx, id)
}

// Get returns an item or jobs.ErrNotFound.
func (m *Manager) Get(ctx context.Context, id string) (*content.Item, error) {
	item, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, fmt.Errorf("%w: item %s", jobs.ErrNotFound, id)
	}
	return item, nil
}

// List returns items matching filter.
func (m *Manager) List(ctx context.Context, filter content.Filter) ([]*content.Item, error) {
	return m.store.List(ctx, filter)
}

// Jobs returns an item's job history, oldest first.
func (m *Manager) Jobs(ctx context.Context, id string) ([]*content.JobRecord, error) {
	if _, err := m.Get(ctx, id); err != nil {
		return nil, err
	}
	return m.store.ListJobs(ctx, id)
}

// Job returns one job record or jobs.ErrNotFound.
func (m *Manager) Job(ctx context.Context, jobID string) (*content.JobRecord, error) {
	job, err := m.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, fmt.Errorf("%w: job %s", jobs.ErrNotFound, jobID)
	}
	return job, nil
}

// ReportOutcome applies an outcome delivered by an external executor.
func (m *Manager) ReportOutcome(ctx context.Context, outcome jobs.Outcome) (jobs.ResolveResult, error) {
	return m.registry.Resolve(ctx, outcome)
}
