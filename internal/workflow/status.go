package workflow

import (
	"context"
	"time"

	"sloppy/internal/content"
)

// StatusSummary represents lightweight workflow diagnostics.
type StatusSummary struct {
	Running    bool
	Counts     map[content.State]int
	Pending    int
	TotalCost  float64
	StaleItems int
	LastSweep  time.Time
	LastError  string
}

// Status returns store counts and sweeper state.
func (m *Manager) Status(ctx context.Context) (StatusSummary, error) {
	m.mu.RLock()
	summary := StatusSummary{
		Running:    m.running,
		StaleItems: m.staleCount,
		LastSweep:  m.lastSweep,
	}
	if m.lastErr != nil {
		summary.LastError = m.lastErr.Error()
	}
	m.mu.RUnlock()

	stats, err := m.store.Stats(ctx)
	if err != nil {
		return summary, err
	}
	summary.Counts = stats.ByState
	summary.Pending = stats.PendingJobs
	summary.TotalCost = stats.TotalCost
	return summary, nil
}
