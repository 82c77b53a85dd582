package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sloppy/internal/jobs"
	"sloppy/internal/logging"
	"sloppy/internal/services"
)

// Run sweeps for stale items every interval until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	m.running = true
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.running = false
		m.mu.Unlock()
	}()

	if m.sweepInterval <= 0 || m.staleAfter <= 0 {
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(m.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := m.Sweep(ctx); err != nil {
				if errors.Is(err, context.Canceled) {
					m.logger.Info("daemon shutting down, stale sweep cancelled")
					return nil
				}
				logging.WarnWithContext(m.logger, "stale sweep failed; stuck items may remain", "stale_sweep_failed",
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "check content database access"),
				)
			}
		}
	}
}

// SweepReport lists what one sweep found.
type SweepReport struct {
	Stale      []string
	RolledBack []string
}

// Sweep finds transient items whose job has not reported within the stale
// window. Idle failed drafts have no job and are skipped.
func (m *Manager) Sweep(ctx context.Context) (SweepReport, error) {
	var report SweepReport
	cutoff := time.Now().Add(-m.staleAfter)
	items, err := m.store.ListStale(ctx, cutoff)
	m.recordSweep(err)
	if err != nil {
		return report, err
	}

	for _, item := range items {
		if item.ActiveJobID == "" {
			continue
		}
		report.Stale = append(report.Stale, item.ID)
		itemCtx := services.WithJobID(services.WithItemID(ctx, item.ID), item.ActiveJobID)
		logger := logging.WithContext(itemCtx, m.logger)
		age := time.Since(item.UpdatedAt).Round(time.Second)
		if !m.autoRollback {
			logging.WarnWithContext(logger, "item has no job outcome past the stale window", "item_stale",
				logging.String("state", string(item.State)),
				logging.Duration("age", age),
				logging.String(logging.FieldImpact, "item stays in flight until its job reports"),
				logging.String(logging.FieldErrorHint, "run `sloppy rollback "+item.ID+"` if the job is lost"),
			)
			continue
		}
		reason := fmt.Sprintf("no outcome after %s", age)
		res, err := m.registry.ForceRollback(itemCtx, item.ID, reason)
		if err != nil {
			if errors.Is(err, jobs.ErrInvalidTransition) || errors.Is(err, jobs.ErrNotFound) {
				continue
			}
			m.recordSweep(err)
			return report, err
		}
		if res == jobs.ResolveApplied {
			report.RolledBack = append(report.RolledBack, item.ID)
			logger.Info("rolled back stale item",
				logging.String(logging.FieldEventType, "item_stale_rolled_back"),
				logging.Duration("age", age),
			)
		}
	}

	m.mu.Lock()
	m.staleCount = len(report.Stale) - len(report.RolledBack)
	m.mu.Unlock()
	return report, nil
}

func (m *Manager) recordSweep(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastSweep = time.Now()
	m.lastErr = err
}
