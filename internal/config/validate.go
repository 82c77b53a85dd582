package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateJobs(); err != nil {
		return err
	}
	if err := c.validateRemote(); err != nil {
		return err
	}
	if err := c.validateChannel(); err != nil {
		return err
	}
	if err := c.validateObserver(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateNotifications() error {
	topic := c.Notifications.NtfyTopic
	if topic == "" {
		return nil
	}
	if !strings.HasPrefix(topic, "http://") && !strings.HasPrefix(topic, "https://") {
		return fmt.Errorf("notifications.ntfy_topic must be a full http(s) URL, got %q", topic)
	}
	return nil
}

func (c *Config) validateJobs() error {
	switch c.Jobs.Executor {
	case ExecutorLocal, ExecutorRemote:
	default:
		return fmt.Errorf("jobs.executor must be %q or %q, got %q", ExecutorLocal, ExecutorRemote, c.Jobs.Executor)
	}
	if c.Jobs.Workers <= 0 {
		return errors.New("jobs.workers must be positive")
	}
	if c.Jobs.QueueSize <= 0 {
		return errors.New("jobs.queue_size must be positive")
	}
	if c.Jobs.StaleAfterSeconds <= 0 {
		return errors.New("jobs.stale_after_seconds must be positive")
	}
	if c.Jobs.Executor == ExecutorLocal && c.Jobs.StaleAfterSeconds <= c.Jobs.JobTimeoutSeconds {
		return fmt.Errorf("jobs.stale_after_seconds (%d) must exceed jobs.job_timeout_seconds (%d)", c.Jobs.StaleAfterSeconds, c.Jobs.JobTimeoutSeconds)
	}
	return nil
}

func (c *Config) validateRemote() error {
	if c.Jobs.Executor != ExecutorRemote {
		return nil
	}
	if c.Remote.BaseURL == "" {
		return errors.New("remote.base_url is required when jobs.executor is \"remote\" (or set SLOPPY_REMOTE_BASE_URL)")
	}
	return nil
}

func (c *Config) validateChannel() error {
	if c.Channel.BufferSize <= 0 {
		return errors.New("channel.buffer_size must be positive")
	}
	switch c.Channel.OverflowPolicy {
	case OverflowDropOldest, OverflowDisconnect:
	default:
		return fmt.Errorf("channel.overflow_policy must be %q or %q, got %q", OverflowDropOldest, OverflowDisconnect, c.Channel.OverflowPolicy)
	}
	if c.Channel.PingIntervalSeconds <= 0 || c.Channel.PongTimeoutSeconds <= 0 {
		return errors.New("channel.ping_interval_seconds and channel.pong_timeout_seconds must be positive")
	}
	if c.Channel.PingIntervalSeconds >= c.Channel.PongTimeoutSeconds {
		return errors.New("channel.ping_interval_seconds must be less than channel.pong_timeout_seconds")
	}
	return nil
}

func (c *Config) validateObserver() error {
	if c.Observer.ReconnectMinSeconds <= 0 {
		return errors.New("observer.reconnect_min_seconds must be positive")
	}
	if c.Observer.ReconnectMaxSeconds < c.Observer.ReconnectMinSeconds {
		return errors.New("observer.reconnect_max_seconds must be >= observer.reconnect_min_seconds")
	}
	return nil
}
