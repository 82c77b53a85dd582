package testsupport

import (
	"path/filepath"
	"testing"

	"sloppy/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Jobs.Workers = 1
	cfgVal.Jobs.QueueSize = 8
	cfgVal.Jobs.JobTimeoutSeconds = 5
	cfgVal.Jobs.StaleAfterSeconds = 60

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithChannelBuffer overrides the per-subscriber buffer size and overflow policy.
func WithChannelBuffer(size int, policy string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Channel.BufferSize = size
		b.cfg.Channel.OverflowPolicy = policy
	}
}

// WithStageCommand sets the local executor command for a stage.
func WithStageCommand(stage string, argv ...string) ConfigOption {
	return func(b *configBuilder) {
		switch stage {
		case "draft":
			b.cfg.Jobs.Commands.Draft = argv
		case "render":
			b.cfg.Jobs.Commands.Render = argv
		case "publish":
			b.cfg.Jobs.Commands.Publish = argv
		default:
			b.t.Fatalf("unknown stage %q", stage)
		}
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
