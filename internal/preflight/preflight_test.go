package preflight

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"sloppy/internal/config"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_Failures(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name string
		path string
	}{
		{"missing", filepath.Join(t.TempDir(), "nope")},
		{"file", file},
		{"empty", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CheckDirectoryAccess("test", tt.path)
			if result.Passed {
				t.Fatalf("expected failure for %q", tt.path)
			}
			if result.Detail == "" {
				t.Fatal("expected non-empty detail")
			}
		})
	}
}

func TestCheckStageCommands(t *testing.T) {
	dir := t.TempDir()
	tool := filepath.Join(dir, "draft-tool")
	if err := os.WriteFile(tool, []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatalf("write tool: %v", err)
	}
	cfg := config.Default()
	cfg.Jobs.Commands.Draft = []string{tool, "--fast"}
	cfg.Jobs.Commands.Render = []string{filepath.Join(dir, "missing")}

	statuses := CheckStageCommands(&cfg)
	if len(statuses) != 3 {
		t.Fatalf("expected 3 statuses, got %d", len(statuses))
	}
	if !statuses[0].Available || statuses[0].Command != tool {
		t.Fatalf("expected draft available, got %+v", statuses[0])
	}
	if statuses[1].Available || statuses[1].Detail == "" {
		t.Fatalf("expected render missing, got %+v", statuses[1])
	}
	if statuses[2].Available || statuses[2].Detail != "command not configured" {
		t.Fatalf("expected publish unconfigured, got %+v", statuses[2])
	}
}

func TestCheckRemoteExecutor(t *testing.T) {
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer healthy.Close()
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer broken.Close()

	if result := CheckRemoteExecutor(context.Background(), healthy.URL); !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
	if result := CheckRemoteExecutor(context.Background(), broken.URL); result.Passed {
		t.Fatal("expected failure on 5xx")
	}
	if result := CheckRemoteExecutor(context.Background(), ""); result.Passed || result.Detail != "missing base_url" {
		t.Fatalf("unexpected result for empty url: %+v", result)
	}
}

func TestRunAllFollowsExecutor(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.DataDir = t.TempDir()
	cfg.Paths.LogDir = t.TempDir()

	local := RunAll(context.Background(), &cfg)
	if len(local) != 5 {
		t.Fatalf("expected directory and stage checks, got %+v", local)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))
	defer srv.Close()
	cfg.Jobs.Executor = config.ExecutorRemote
	cfg.Remote.BaseURL = srv.URL
	remote := RunAll(context.Background(), &cfg)
	if len(remote) != 3 || remote[2].Name != "Remote executor" || !remote[2].Passed {
		t.Fatalf("unexpected remote results: %+v", remote)
	}
}
