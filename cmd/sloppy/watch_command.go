package main

import (
	"fmt"
	"io"
	"sync"

	"github.com/spf13/cobra"

	"sloppy/internal/content"
	"sloppy/internal/logging"
	"sloppy/internal/notify"
	"sloppy/internal/observer"
)

func newWatchCommand(ctx *commandContext) *cobra.Command {
	var all bool
	var verbose bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow job outcomes live, reconnecting when the daemon restarts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			level := "warn"
			if verbose {
				level = "debug"
			}
			logger, err := logging.New(logging.Options{Level: level, Format: cfg.Logging.Format, OutputPaths: []string{"stderr"}})
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}

			printer := &eventPrinter{out: cmd.OutOrStdout()}
			opts := observer.OptionsFromConfig(cfg)
			opts.URL = ctx.webSocketURL()
			opts.WatchAll = all
			opts.Logger = logger
			opts.OnEvent = printer.print
			watcher := observer.New(observer.NewRESTSource(ctx.client()), opts)
			printer.lookup = watcher.Engine().Item

			fmt.Fprintf(cmd.OutOrStdout(), "Watching %s (Ctrl+C to stop)\n", opts.URL)
			return watcher.Run(cmd.Context())
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Also follow the aggregate channel of every outcome")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Log connection details to stderr")
	return cmd
}

// eventPrinter turns watcher events into one line each.
type eventPrinter struct {
	out    io.Writer
	lookup func(id string) (*content.Item, bool)

	mu           sync.Mutex
	disconnected bool
}

func (p *eventPrinter) print(ev observer.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch ev.Kind {
	case observer.EventConnected:
		verb := "Connected"
		if p.disconnected {
			verb = "Reconnected"
		}
		p.disconnected = false
		fmt.Fprintf(p.out, "%s; following %d job(s)\n", verb, len(ev.Report.Joined))
	case observer.EventDisconnected:
		if !p.disconnected {
			fmt.Fprintln(p.out, "Connection lost; retrying")
		}
		p.disconnected = true
	case observer.EventOutcome:
		fmt.Fprintln(p.out, p.describe(ev.Message))
	}
}

func (p *eventPrinter) describe(msg notify.Message) string {
	state := ""
	if p.lookup != nil {
		if item, ok := p.lookup(msg.ItemID); ok && item != nil {
			state = " -> " + stateLabel(string(item.State))
		}
	}
	if msg.Status == notify.StatusFailed {
		return fmt.Sprintf("Job %s for item %s failed: %s%s", msg.JobID, msg.ItemID, dash(msg.Error), state)
	}
	return fmt.Sprintf("Job %s for item %s completed%s", msg.JobID, msg.ItemID, state)
}
