package config

const (
	defaultConfigPath          = "~/.config/sloppy/config.toml"
	defaultDataDir             = "~/.local/share/sloppy"
	defaultLogDir              = "~/.local/share/sloppy/logs"
	defaultAPIBind             = "127.0.0.1:7488"
	defaultExecutor            = ExecutorLocal
	defaultWorkers             = 2
	defaultQueueSize           = 64
	defaultJobTimeoutSeconds   = 900
	defaultStaleAfterSeconds   = 3600
	defaultSweepInterval       = 60
	defaultRemoteTimeout       = 15
	defaultChannelBufferSize   = 32
	defaultOverflowPolicy      = OverflowDisconnect
	defaultWriteTimeoutSeconds = 10
	defaultPingIntervalSeconds = 30
	defaultPongTimeoutSeconds  = 60
	defaultReconnectMinSeconds = 1
	defaultReconnectMaxSeconds = 30
	defaultNtfyTimeoutSeconds  = 10
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
)

// Executor names.
const (
	ExecutorLocal  = "local"
	ExecutorRemote = "remote"
)

// Overflow policies applied when a subscriber's buffer is full.
const (
	OverflowDropOldest = "drop_oldest"
	OverflowDisconnect = "disconnect"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		Jobs: Jobs{
			Executor:             defaultExecutor,
			Workers:              defaultWorkers,
			QueueSize:            defaultQueueSize,
			JobTimeoutSeconds:    defaultJobTimeoutSeconds,
			StaleAfterSeconds:    defaultStaleAfterSeconds,
			SweepIntervalSeconds: defaultSweepInterval,
			RecoverOnStart:       true,
		},
		Remote: Remote{
			TimeoutSeconds: defaultRemoteTimeout,
		},
		Channel: Channel{
			BufferSize:          defaultChannelBufferSize,
			OverflowPolicy:      defaultOverflowPolicy,
			WriteTimeoutSeconds: defaultWriteTimeoutSeconds,
			PingIntervalSeconds: defaultPingIntervalSeconds,
			PongTimeoutSeconds:  defaultPongTimeoutSeconds,
		},
		Observer: Observer{
			ReconnectMinSeconds: defaultReconnectMinSeconds,
			ReconnectMaxSeconds: defaultReconnectMaxSeconds,
		},
		Notifications: Notifications{
			RequestTimeoutSeconds: defaultNtfyTimeoutSeconds,
			Published:             true,
			Failures:              true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
