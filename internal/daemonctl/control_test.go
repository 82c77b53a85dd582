package daemonctl_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"sloppy/internal/api"
	"sloppy/internal/config"
	"sloppy/internal/daemonctl"
)

type statusFunc func(ctx context.Context) (*api.StatusResponse, error)

func (f statusFunc) Status(ctx context.Context) (*api.StatusResponse, error) { return f(ctx) }

func statusServer(t *testing.T, pid int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/status" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(api.StatusResponse{Running: true, PID: pid})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestEnsureStartedSkipsLaunchWhenRunning(t *testing.T) {
	srv := statusServer(t, 4242)
	client := api.NewClient(srv.URL, time.Second)

	// An empty executable path would fail Launch, so success proves no launch.
	result, err := daemonctl.EnsureStarted(context.Background(), client, "", daemonctl.LaunchOptions{}, time.Second)
	if err != nil {
		t.Fatalf("EnsureStarted failed: %v", err)
	}
	if result.State != daemonctl.StartStateAlreadyRunning || result.PID != 4242 {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestEnsureStartedReportsLaunchFailure(t *testing.T) {
	down := statusFunc(func(context.Context) (*api.StatusResponse, error) {
		return nil, errors.New("connection refused")
	})
	_, err := daemonctl.EnsureStarted(context.Background(), down, filepath.Join(t.TempDir(), "missing"), daemonctl.LaunchOptions{}, time.Second)
	if err == nil {
		t.Fatal("expected launch error")
	}
}

func TestWaitForReadyPollsUntilServing(t *testing.T) {
	var calls atomic.Int32
	client := statusFunc(func(context.Context) (*api.StatusResponse, error) {
		if calls.Add(1) < 3 {
			return nil, errors.New("connection refused")
		}
		return &api.StatusResponse{Running: true, PID: 7}, nil
	})
	status, err := daemonctl.WaitForReady(context.Background(), client, 5*time.Second)
	if err != nil {
		t.Fatalf("WaitForReady failed: %v", err)
	}
	if status.PID != 7 || calls.Load() != 3 {
		t.Fatalf("unexpected status %+v after %d calls", status, calls.Load())
	}
}

func TestWaitForReadyTimesOut(t *testing.T) {
	client := statusFunc(func(context.Context) (*api.StatusResponse, error) {
		return nil, errors.New("connection refused")
	})
	_, err := daemonctl.WaitForReady(context.Background(), client, 300*time.Millisecond)
	if err == nil {
		t.Fatal("expected timeout")
	}
}

func TestStopNotRunningWhenUnreachable(t *testing.T) {
	srv := statusServer(t, 1)
	url := srv.URL
	srv.Close()

	cfg := config.Default()
	cfg.Paths.DataDir = t.TempDir()
	result, err := daemonctl.Stop(context.Background(), &cfg, api.NewClient(url, time.Second), time.Second)
	if err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if result.State != daemonctl.StopStateNotRunning {
		t.Fatalf("expected not running, got %+v", result)
	}
}

func TestStopSignalsProcessAndWaitsForShutdown(t *testing.T) {
	proc := exec.Command("sleep", "30")
	if err := proc.Start(); err != nil {
		t.Skipf("sleep unavailable: %v", err)
	}
	t.Cleanup(func() { _ = proc.Process.Kill() })

	srv := statusServer(t, proc.Process.Pid)
	exited := make(chan struct{})
	go func() {
		_ = proc.Wait()
		srv.Close()
		close(exited)
	}()

	cfg := config.Default()
	cfg.Paths.DataDir = t.TempDir()
	result, err := daemonctl.Stop(context.Background(), &cfg, api.NewClient(srv.URL, time.Second), 5*time.Second)
	if err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if result.State != daemonctl.StopStateStopped || result.PID != proc.Process.Pid {
		t.Fatalf("unexpected result: %+v", result)
	}
	select {
	case <-exited:
	case <-time.After(2 * time.Second):
		t.Fatal("process did not exit")
	}
}

func TestStopFallsBackToPIDFile(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.DataDir = t.TempDir()
	// Status answers with an error payload and no pid, and the pid file names a
	// process that does not exist.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(api.ErrorResponse{Error: "boom"})
	}))
	t.Cleanup(srv.Close)

	const missingPID = 1 << 22
	if err := os.WriteFile(filepath.Join(cfg.Paths.DataDir, "sloppyd.pid"), []byte(strconv.Itoa(missingPID)+"\n"), 0o644); err != nil {
		t.Fatalf("write pid: %v", err)
	}
	result, err := daemonctl.Stop(context.Background(), &cfg, api.NewClient(srv.URL, time.Second), time.Second)
	if err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if result.State != daemonctl.StopStateNotRunning || result.PID != missingPID {
		t.Fatalf("unexpected result: %+v", result)
	}
}
