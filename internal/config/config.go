package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir string `toml:"data_dir"`
	LogDir  string `toml:"log_dir"`
	APIBind string `toml:"api_bind"`
}

// Commands maps each pipeline stage to the external collaborator invoked by
// the local executor. Each entry is an argv; the job payload arrives on stdin.
type Commands struct {
	Draft   []string `toml:"draft"`
	Render  []string `toml:"render"`
	Publish []string `toml:"publish"`
}

// Jobs contains configuration for job execution and stale-item recovery.
type Jobs struct {
	Executor             string   `toml:"executor"`
	Workers              int      `toml:"workers"`
	QueueSize            int      `toml:"queue_size"`
	JobTimeoutSeconds    int      `toml:"job_timeout_seconds"`
	StaleAfterSeconds    int      `toml:"stale_after_seconds"`
	SweepIntervalSeconds int      `toml:"sweep_interval_seconds"`
	AutoRollbackStale    bool     `toml:"auto_rollback_stale"`
	RecoverOnStart       bool     `toml:"recover_on_start"`
	Commands             Commands `toml:"commands"`
}

// Remote contains configuration for the remote executor. Jobs are POSTed to
// BaseURL and the executor reports outcomes to CallbackURL.
type Remote struct {
	BaseURL        string `toml:"base_url"`
	CallbackURL    string `toml:"callback_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Channel contains configuration for observer notification delivery.
type Channel struct {
	BufferSize          int    `toml:"buffer_size"`
	OverflowPolicy      string `toml:"overflow_policy"`
	WriteTimeoutSeconds int    `toml:"write_timeout_seconds"`
	PingIntervalSeconds int    `toml:"ping_interval_seconds"`
	PongTimeoutSeconds  int    `toml:"pong_timeout_seconds"`
}

// Observer contains configuration for the reconnecting watch client.
type Observer struct {
	ReconnectMinSeconds int `toml:"reconnect_min_seconds"`
	ReconnectMaxSeconds int `toml:"reconnect_max_seconds"`
}

// Notifications contains configuration for operator push alerts sent through
// an ntfy topic URL. An empty topic disables them.
type Notifications struct {
	NtfyTopic             string `toml:"ntfy_topic"`
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds"`
	Published             bool   `toml:"published"`
	Failures              bool   `toml:"failures"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for sloppy.
//
// Configuration sections by subsystem:
//   - Paths: data/log directories and API bind address
//   - Jobs: executor selection, worker pool sizing, stale-item recovery
//   - Remote: remote executor endpoints
//   - Channel: per-subscriber buffering and websocket keepalive
//   - Observer: watch client reconnect backoff
//   - Notifications: ntfy push alerts for publishes and failures
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Jobs          Jobs          `toml:"jobs"`
	Remote        Remote        `toml:"remote"`
	Channel       Channel       `toml:"channel"`
	Observer      Observer      `toml:"observer"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized. A .env file next to the config file, when present,
// seeds environment fallbacks without overriding variables already set.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if err := loadDotEnv(filepath.Join(filepath.Dir(resolvedPath), ".env")); err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat env file: %w", err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("sloppy.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the SQLite database location.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "sloppy.db")
}

// LockPath returns the daemon single-instance lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "sloppyd.lock")
}

// LogPath returns the daemon log file location.
func (c *Config) LogPath() string {
	return filepath.Join(c.Paths.LogDir, "sloppyd.log")
}

// APIBaseURL returns the HTTP base URL clients use to reach the daemon.
func (c *Config) APIBaseURL() string {
	return "http://" + c.Paths.APIBind
}

// WebSocketURL returns the observer channel endpoint.
func (c *Config) WebSocketURL() string {
	return "ws://" + c.Paths.APIBind + "/ws"
}

// CommandFor returns the configured collaborator argv for a stage.
func (c *Config) CommandFor(stage string) []string {
	switch stage {
	case "draft":
		return c.Jobs.Commands.Draft
	case "render":
		return c.Jobs.Commands.Render
	case "publish":
		return c.Jobs.Commands.Publish
	default:
		return nil
	}
}

// JobTimeout returns the per-job execution limit.
func (c *Config) JobTimeout() time.Duration {
	return time.Duration(c.Jobs.JobTimeoutSeconds) * time.Second
}

// StaleAfter returns the age after which a transient item counts as stuck.
func (c *Config) StaleAfter() time.Duration {
	return time.Duration(c.Jobs.StaleAfterSeconds) * time.Second
}

// SweepInterval returns how often the daemon looks for stuck items.
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.Jobs.SweepIntervalSeconds) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
