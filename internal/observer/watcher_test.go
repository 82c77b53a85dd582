package observer_test

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"sloppy/internal/api"
	"sloppy/internal/content"
	"sloppy/internal/daemon"
	"sloppy/internal/jobs"
	"sloppy/internal/notify"
	"sloppy/internal/observer"
	"sloppy/internal/testsupport"
)

// connTracker records hijacked websocket connections so a test can sever them.
type connTracker struct {
	mu    sync.Mutex
	conns []net.Conn
}

func (c *connTracker) track(conn net.Conn, state http.ConnState) {
	if state != http.StateHijacked {
		return
	}
	c.mu.Lock()
	c.conns = append(c.conns, conn)
	c.mu.Unlock()
}

func (c *connTracker) closeAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, conn := range c.conns {
		conn.Close()
	}
	c.conns = nil
}

type watchEnv struct {
	store   *content.Store
	queue   *testsupport.FakeQueue
	daemon  *daemon.Daemon
	srv     *httptest.Server
	conns   *connTracker
	client  *api.Client
	events  chan observer.Event
	watcher *observer.Watcher
}

func newWatchEnv(t *testing.T) *watchEnv {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	queue := testsupport.NewFakeQueue()
	d, err := daemon.New(cfg, store, nil, daemon.WithQueue(queue))
	if err != nil {
		t.Fatalf("daemon.New failed: %v", err)
	}
	tracker := &connTracker{}
	srv := httptest.NewUnstartedServer(d.Handler())
	srv.Config.ConnState = tracker.track
	srv.Start()
	t.Cleanup(srv.Close)

	client := api.NewClient(srv.URL, 2*time.Second)
	events := make(chan observer.Event, 64)
	watcher := observer.New(observer.NewRESTSource(client), observer.Options{
		URL:          "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws",
		ReconnectMin: 10 * time.Millisecond,
		ReconnectMax: 50 * time.Millisecond,
		WriteTimeout: time.Second,
		OnEvent:      func(ev observer.Event) { events <- ev },
	})
	return &watchEnv{
		store:   store,
		queue:   queue,
		daemon:  d,
		srv:     srv,
		conns:   tracker,
		client:  client,
		events:  events,
		watcher: watcher,
	}
}

func (e *watchEnv) start(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.watcher.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("watcher returned error: %v", err)
		}
	})
}

func (e *watchEnv) await(t *testing.T, kind observer.EventKind) observer.Event {
	t.Helper()
	timeout := time.After(3 * time.Second)
	for {
		select {
		case ev := <-e.events:
			if ev.Kind == kind {
				return ev
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s event", kind)
		}
	}
}

// awaitJoined waits until the daemon sees exactly one observer holding
// exactly one channel.
func (e *watchEnv) awaitJoined(t *testing.T) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		status, err := e.daemon.Status(context.Background())
		if err != nil {
			t.Fatalf("Status failed: %v", err)
		}
		if status.Hub.Subscribers == 1 && status.Hub.Channels == 1 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("observer never settled: %+v", status.Hub)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestWatcherJoinsActiveJobsOnConnect(t *testing.T) {
	env := newWatchEnv(t)
	ctx := context.Background()
	testsupport.PutItem(t, env.store, content.StatePublished)
	created, err := env.client.CreateItem(ctx, "lighthouse")
	if err != nil {
		t.Fatalf("CreateItem failed: %v", err)
	}

	env.start(t)
	ev := env.await(t, observer.EventConnected)
	if !slices.Equal(ev.Report.Joined, []string{created.JobID}) {
		t.Fatalf("expected to join %s, got %+v", created.JobID, ev.Report)
	}
	env.awaitJoined(t)

	if _, err := env.client.ReportOutcome(ctx, created.JobID, api.OutcomeRequest{Success: true, Result: jobs.Result{Draft: "beam"}}); err != nil {
		t.Fatalf("ReportOutcome failed: %v", err)
	}
	outcome := env.await(t, observer.EventOutcome)
	if outcome.Message.JobID != created.JobID || outcome.Message.Status != notify.StatusCompleted {
		t.Fatalf("unexpected outcome: %+v", outcome.Message)
	}
	if !slices.Equal(outcome.Report.Left, []string{created.JobID}) {
		t.Fatalf("expected to leave finished channel, got %+v", outcome.Report)
	}
	item, ok := env.watcher.Engine().Item(created.Item.ID)
	if !ok || item.State != content.StateDrafted {
		t.Fatalf("expected cached item drafted, got %+v", item)
	}
	if subs := env.watcher.Engine().Subscriptions(); len(subs) != 0 {
		t.Fatalf("expected no subscriptions, got %v", subs)
	}
}

func TestWatcherConvergesAfterMissedOutcome(t *testing.T) {
	env := newWatchEnv(t)
	ctx := context.Background()
	created, err := env.client.CreateItem(ctx, "tidepool")
	if err != nil {
		t.Fatalf("CreateItem failed: %v", err)
	}
	env.start(t)
	env.await(t, observer.EventConnected)
	env.awaitJoined(t)

	env.conns.closeAll()
	env.await(t, observer.EventDisconnected)

	// While the observer is away the draft finishes and a render starts.
	if _, err := env.client.ReportOutcome(ctx, created.JobID, api.OutcomeRequest{Success: true, Result: jobs.Result{Draft: "shallows"}}); err != nil {
		t.Fatalf("ReportOutcome failed: %v", err)
	}
	env.queue.NextIDs("render-1")
	if _, err := env.client.Action(ctx, created.Item.ID, "render"); err != nil {
		t.Fatalf("render failed: %v", err)
	}

	ev := env.await(t, observer.EventConnected)
	if !slices.Equal(ev.Report.Joined, []string{"render-1"}) || len(ev.Report.Left) != 0 {
		t.Fatalf("unexpected reconnect report: %+v", ev.Report)
	}
	if subs := env.watcher.Engine().Subscriptions(); !slices.Equal(subs, []string{"render-1"}) {
		t.Fatalf("expected render-1 subscription, got %v", subs)
	}
	env.awaitJoined(t)

	if _, err := env.client.ReportOutcome(ctx, "render-1", api.OutcomeRequest{Success: true, Result: jobs.Result{MediaRefs: []string{"m.mp4"}}}); err != nil {
		t.Fatalf("ReportOutcome failed: %v", err)
	}
	outcome := env.await(t, observer.EventOutcome)
	if outcome.Message.JobID != "render-1" {
		t.Fatalf("unexpected outcome: %+v", outcome.Message)
	}
	item, _ := env.watcher.Engine().Item(created.Item.ID)
	if item == nil || item.State != content.StateRendered {
		t.Fatalf("expected rendered item in cache, got %+v", item)
	}
}

func TestJoinWithoutConnectionFails(t *testing.T) {
	watcher := observer.New(nil, observer.Options{URL: "ws://127.0.0.1:1/ws"})
	if err := watcher.Join("j1"); !errors.Is(err, observer.ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}
