package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"sloppy/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantData := filepath.Join(tempHome, ".local", "share", "sloppy")
	if cfg.Paths.DataDir != wantData {
		t.Fatalf("unexpected data dir: got %q want %q", cfg.Paths.DataDir, wantData)
	}
	if cfg.DatabasePath() != filepath.Join(wantData, "sloppy.db") {
		t.Fatalf("unexpected database path: %q", cfg.DatabasePath())
	}
	if cfg.Paths.APIBind != "127.0.0.1:7488" {
		t.Fatalf("unexpected api bind: %q", cfg.Paths.APIBind)
	}
	if cfg.Jobs.Executor != config.ExecutorLocal {
		t.Fatalf("expected local executor by default, got %q", cfg.Jobs.Executor)
	}
	if cfg.Channel.OverflowPolicy != config.OverflowDisconnect {
		t.Fatalf("expected disconnect overflow policy by default, got %q", cfg.Channel.OverflowPolicy)
	}
	if !cfg.Jobs.RecoverOnStart {
		t.Fatal("expected recover_on_start enabled by default")
	}
	if cfg.WebSocketURL() != "ws://127.0.0.1:7488/ws" {
		t.Fatalf("unexpected websocket url: %q", cfg.WebSocketURL())
	}
}

func TestLoadCustomConfigOverrides(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	configPath := filepath.Join(t.TempDir(), "config.toml")
	payload := map[string]any{
		"paths": map[string]any{
			"data_dir": "~/data",
			"api_bind": "0.0.0.0:9000",
		},
		"jobs": map[string]any{
			"workers":    4,
			"queue_size": 8,
			"commands": map[string]any{
				"draft":  []string{"  /usr/bin/draft ", "--fast"},
				"render": []string{"render.sh"},
			},
		},
		"channel": map[string]any{
			"buffer_size":     4,
			"overflow_policy": "DROP_OLDEST",
		},
		"logging": map[string]any{
			"format": "JSON",
		},
	}
	data, err := toml.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != configPath {
		t.Fatalf("expected existing config at %q, got %q (exists=%v)", configPath, resolved, exists)
	}
	if cfg.Paths.DataDir != filepath.Join(tempHome, "data") {
		t.Fatalf("unexpected data dir: %q", cfg.Paths.DataDir)
	}
	if cfg.Jobs.Workers != 4 || cfg.Jobs.QueueSize != 8 {
		t.Fatalf("unexpected pool sizing: %+v", cfg.Jobs)
	}
	if got := cfg.CommandFor("draft"); len(got) != 2 || got[0] != "/usr/bin/draft" {
		t.Fatalf("unexpected draft command: %q", got)
	}
	if got := cfg.CommandFor("publish"); got != nil {
		t.Fatalf("expected no publish command, got %q", got)
	}
	if cfg.Channel.OverflowPolicy != config.OverflowDropOldest {
		t.Fatalf("expected normalized overflow policy, got %q", cfg.Channel.OverflowPolicy)
	}
	if cfg.Logging.Format != "json" {
		t.Fatalf("expected json format, got %q", cfg.Logging.Format)
	}
	// Defaults survive partial files.
	if cfg.Channel.PingIntervalSeconds != config.Default().Channel.PingIntervalSeconds {
		t.Fatalf("unexpected ping interval: %d", cfg.Channel.PingIntervalSeconds)
	}
}

func TestLoadReadsDotEnvBesideConfig(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(configPath, []byte("[jobs]\nexecutor = \"remote\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("SLOPPY_REMOTE_BASE_URL=http://executor.local:9000/\n"), 0o644); err != nil {
		t.Fatalf("write env: %v", err)
	}
	t.Setenv("SLOPPY_REMOTE_BASE_URL", "")
	os.Unsetenv("SLOPPY_REMOTE_BASE_URL")

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Remote.BaseURL != "http://executor.local:9000" {
		t.Fatalf("expected base url from .env, got %q", cfg.Remote.BaseURL)
	}
	if cfg.Remote.CallbackURL != cfg.APIBaseURL() {
		t.Fatalf("expected callback to default to api base url, got %q", cfg.Remote.CallbackURL)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"executor", func(c *config.Config) { c.Jobs.Executor = "celery" }, "jobs.executor"},
		{"workers", func(c *config.Config) { c.Jobs.Workers = 0 }, "jobs.workers"},
		{"queue", func(c *config.Config) { c.Jobs.QueueSize = -1 }, "jobs.queue_size"},
		{"stale", func(c *config.Config) { c.Jobs.StaleAfterSeconds = 10 }, "jobs.stale_after_seconds"},
		{"remote", func(c *config.Config) { c.Jobs.Executor = config.ExecutorRemote }, "remote.base_url"},
		{"buffer", func(c *config.Config) { c.Channel.BufferSize = 0 }, "channel.buffer_size"},
		{"policy", func(c *config.Config) { c.Channel.OverflowPolicy = "block" }, "channel.overflow_policy"},
		{"ping", func(c *config.Config) { c.Channel.PingIntervalSeconds = 90 }, "ping_interval_seconds"},
		{"reconnect", func(c *config.Config) { c.Observer.ReconnectMaxSeconds = 0 }, "observer.reconnect_max_seconds"},
		{"ntfy", func(c *config.Config) { c.Notifications.NtfyTopic = "my-topic" }, "notifications.ntfy_topic"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected %q in error, got %v", tt.want, err)
			}
		})
	}

	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestCreateSampleIsLoadable(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}
	if _, _, exists, err := config.Load(path); err != nil || !exists {
		t.Fatalf("Load sample: exists=%v err=%v", exists, err)
	}
}
