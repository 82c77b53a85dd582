package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"sloppy/internal/config"
	"sloppy/internal/daemonrun"
)

// runDaemon is swapped in tests so flag handling can be checked without
// binding a port.
var runDaemon = daemonrun.Run

func newRootCommand() *cobra.Command {
	var configFlag string
	var opts daemonrun.Options

	cmd := &cobra.Command{
		Use:           "sloppyd",
		Short:         "Run the sloppy content daemon in the foreground",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, exists, err := config.Load(strings.TrimSpace(configFlag))
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if !exists {
				fmt.Fprintf(cmd.ErrOrStderr(), "warn: %s not found; running with defaults\n", path)
			}
			return runDaemon(cmd.Context(), cfg, opts)
		},
	}
	cmd.Flags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")
	cmd.Flags().StringVar(&opts.LogLevel, "log-level", "", "Override logging.level")
	cmd.Flags().StringVar(&opts.Bind, "bind", "", "Override paths.api_bind")
	return cmd
}
