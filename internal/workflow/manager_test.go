package workflow_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"sloppy/internal/config"
	"sloppy/internal/content"
	"sloppy/internal/jobs"
	"sloppy/internal/testsupport"
	"sloppy/internal/workflow"
)

type managerEnv struct {
	cfg     *config.Config
	store   *content.Store
	queue   *testsupport.FakeQueue
	manager *workflow.Manager
}

func newManagerEnv(t *testing.T, opts ...testsupport.ConfigOption) *managerEnv {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	store := testsupport.MustOpenStore(t, cfg)
	queue := testsupport.NewFakeQueue()
	registry := jobs.NewRegistry(store, queue, nil, nil)
	return &managerEnv{
		cfg:     cfg,
		store:   store,
		queue:   queue,
		manager: workflow.NewManager(cfg, store, registry, nil),
	}
}

func TestManagerFullPipeline(t *testing.T) {
	env := newManagerEnv(t)
	ctx := context.Background()

	item, err := env.manager.Create(ctx, "prompt")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	steps := []struct {
		action func() (*content.Item, string, error)
		jobID  string
		result jobs.Result
		want   content.State
	}{
		{nil, "j1", jobs.Result{Draft: "d"}, content.StateDrafted},
		{func() (*content.Item, string, error) { return env.manager.Render(ctx, item.ID) }, "j2", jobs.Result{MediaRefs: []string{"m"}}, content.StateRendered},
		{func() (*content.Item, string, error) { return env.manager.Publish(ctx, item.ID) }, "j3", jobs.Result{PublishRef: "p"}, content.StatePublished},
	}
	for _, step := range steps {
		if step.action != nil {
			got, jobID, err := step.action()
			if err != nil {
				t.Fatalf("action failed: %v", err)
			}
			if jobID != step.jobID || got.ActiveJobID != step.jobID {
				t.Fatalf("unexpected job %q for item %+v", jobID, got)
			}
		}
		res, err := env.manager.ReportOutcome(ctx, jobs.Outcome{JobID: step.jobID, Success: true, Result: step.result})
		if err != nil || res != jobs.ResolveApplied {
			t.Fatalf("ReportOutcome = %v, %v", res, err)
		}
		got, err := env.manager.Get(ctx, item.ID)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got.State != step.want {
			t.Fatalf("expected %s, got %s", step.want, got.State)
		}
	}

	history, err := env.manager.Jobs(ctx, item.ID)
	if err != nil {
		t.Fatalf("Jobs failed: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("expected 3 jobs, got %d", len(history))
	}
	if _, _, err := env.manager.Retry(ctx, item.ID); !errors.Is(err, jobs.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition for published item, got %v", err)
	}
}

func TestManagerLookupsReportNotFound(t *testing.T) {
	env := newManagerEnv(t)
	ctx := context.Background()
	if _, err := env.manager.Get(ctx, "missing"); !errors.Is(err, jobs.ErrNotFound) {
		t.Fatalf("Get: expected not found, got %v", err)
	}
	if _, err := env.manager.Jobs(ctx, "missing"); !errors.Is(err, jobs.ErrNotFound) {
		t.Fatalf("Jobs: expected not found, got %v", err)
	}
	if _, err := env.manager.Job(ctx, "j404"); !errors.Is(err, jobs.ErrNotFound) {
		t.Fatalf("Job: expected not found, got %v", err)
	}
}

func TestSweepReportsAndRollsBackStaleItems(t *testing.T) {
	env := newManagerEnv(t)
	ctx := context.Background()
	stuck := testsupport.PutItem(t, env.store, content.StateRendering)
	testsupport.PutItem(t, env.store, content.StateDrafted)

	// Age the in-flight item past the stale window.
	time.Sleep(10 * time.Millisecond)
	env.cfg.Jobs.StaleAfterSeconds = 0
	manager := workflow.NewManager(env.cfg, env.store, jobs.NewRegistry(env.store, env.queue, nil, nil), nil)

	report, err := manager.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if len(report.Stale) != 1 || report.Stale[0] != stuck.ID || len(report.RolledBack) != 0 {
		t.Fatalf("unexpected report without auto rollback: %+v", report)
	}

	env.cfg.Jobs.AutoRollbackStale = true
	manager = workflow.NewManager(env.cfg, env.store, jobs.NewRegistry(env.store, env.queue, nil, nil), nil)
	report, err = manager.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if len(report.RolledBack) != 1 {
		t.Fatalf("expected rollback, got %+v", report)
	}
	got, err := manager.Get(ctx, stuck.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.State != content.StateDrafted || got.ActiveJobID != "" || got.Error == "" {
		t.Fatalf("unexpected item after stale rollback: %+v", got)
	}

	status, err := manager.Status(ctx)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if status.Counts[content.StateDrafted] != 2 || status.Pending != 0 || status.LastSweep.IsZero() {
		t.Fatalf("unexpected status: %+v", status)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	env := newManagerEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- env.manager.Run(ctx) }()
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
