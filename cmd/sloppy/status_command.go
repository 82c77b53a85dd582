package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"sloppy/internal/api"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, executor and item status",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := ctx.client().Status(cmd.Context())
			if err != nil {
				return ctx.wrapDialError(err)
			}
			if jsonOutput {
				return writeJSON(cmd, status)
			}
			renderStatus(cmd, ctx.apiBaseURL(), status)
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func renderStatus(cmd *cobra.Command, baseURL string, status *api.StatusResponse) {
	out := newStatusWriter(cmd.OutOrStdout())

	out.section("Daemon")
	out.line("API", statusOK, baseURL)
	out.line("Process", statusInfo, fmt.Sprintf("pid %d (serving: %s)", status.PID, yesNo(status.Running)))
	out.line("Database", statusInfo, status.DatabasePath)
	out.line("Executor", statusInfo, status.Executor)
	if pool := status.Pool; pool != nil {
		out.line("Workers", statusInfo, fmt.Sprintf("%d workers, %d queued, %d running, %d completed, %d failed",
			pool.Workers, pool.Queued, pool.Running, pool.Completed, pool.Failed))
	}
	out.line("Observers", statusInfo,
		fmt.Sprintf("%d connected, %d channels, %d dropped", status.Hub.Subscribers, status.Hub.Channels, status.Hub.Dropped))

	staleKind := statusOK
	if status.StaleItems > 0 {
		staleKind = statusWarn
	}
	out.line("Stale items", staleKind, fmt.Sprintf("%d", status.StaleItems))
	switch {
	case status.LastError != "":
		out.line("Last sweep", statusError, status.LastError)
	case status.LastSweep != "":
		out.line("Last sweep", statusOK, formatTimestamp(status.LastSweep))
	}
	out.blank()

	out.section("Items")
	out.line("Pending jobs", statusInfo, fmt.Sprintf("%d", status.PendingJobs))
	out.line("Total cost", statusInfo, formatCost(status.TotalCost))
	fmt.Fprint(out.out, renderTable([]string{"State", "Count"}, buildStateCountRows(status.Counts), []columnAlignment{alignLeft, alignRight}))
}
