package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeJobs()
	c.normalizeRemote()
	c.normalizeChannel()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if value, ok := os.LookupEnv("SLOPPY_API_BIND"); ok && strings.TrimSpace(value) != "" {
		c.Paths.APIBind = value
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	return nil
}

func (c *Config) normalizeJobs() {
	c.Jobs.Executor = strings.ToLower(strings.TrimSpace(c.Jobs.Executor))
	if c.Jobs.Executor == "" {
		c.Jobs.Executor = defaultExecutor
	}
	if c.Jobs.JobTimeoutSeconds <= 0 {
		c.Jobs.JobTimeoutSeconds = defaultJobTimeoutSeconds
	}
	if c.Jobs.SweepIntervalSeconds <= 0 {
		c.Jobs.SweepIntervalSeconds = defaultSweepInterval
	}
	c.Jobs.Commands.Draft = trimArgs(c.Jobs.Commands.Draft)
	c.Jobs.Commands.Render = trimArgs(c.Jobs.Commands.Render)
	c.Jobs.Commands.Publish = trimArgs(c.Jobs.Commands.Publish)
}

func (c *Config) normalizeRemote() {
	c.Remote.BaseURL = strings.TrimRight(strings.TrimSpace(c.Remote.BaseURL), "/")
	if c.Remote.BaseURL == "" {
		if value, ok := os.LookupEnv("SLOPPY_REMOTE_BASE_URL"); ok {
			c.Remote.BaseURL = strings.TrimRight(strings.TrimSpace(value), "/")
		}
	}
	c.Remote.CallbackURL = strings.TrimRight(strings.TrimSpace(c.Remote.CallbackURL), "/")
	if c.Remote.CallbackURL == "" && c.Jobs.Executor == ExecutorRemote {
		c.Remote.CallbackURL = c.APIBaseURL()
	}
	if c.Remote.TimeoutSeconds <= 0 {
		c.Remote.TimeoutSeconds = defaultRemoteTimeout
	}
}

func (c *Config) normalizeChannel() {
	c.Channel.OverflowPolicy = strings.ToLower(strings.TrimSpace(c.Channel.OverflowPolicy))
	if c.Channel.OverflowPolicy == "" {
		c.Channel.OverflowPolicy = defaultOverflowPolicy
	}
	if c.Channel.WriteTimeoutSeconds <= 0 {
		c.Channel.WriteTimeoutSeconds = defaultWriteTimeoutSeconds
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.NtfyTopic == "" {
		if value, ok := os.LookupEnv("SLOPPY_NTFY_TOPIC"); ok {
			c.Notifications.NtfyTopic = strings.TrimSpace(value)
		}
	}
	if c.Notifications.RequestTimeoutSeconds <= 0 {
		c.Notifications.RequestTimeoutSeconds = defaultNtfyTimeoutSeconds
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func trimArgs(args []string) []string {
	if len(args) == 0 {
		return nil
	}
	out := make([]string, 0, len(args))
	for _, arg := range args {
		if trimmed := strings.TrimSpace(arg); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
