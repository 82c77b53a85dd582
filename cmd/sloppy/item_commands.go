package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"sloppy/internal/api"
	"sloppy/internal/content"
)

func newItemCommands(ctx *commandContext) []*cobra.Command {
	return []*cobra.Command{
		newCreateCommand(ctx),
		newListCommand(ctx),
		newShowCommand(ctx),
		newJobsCommand(ctx),
		newActionCommand(ctx, "render", "Submit a render job for a drafted item"),
		newActionCommand(ctx, "publish", "Submit a publish job for a rendered item"),
		newActionCommand(ctx, "retry", "Resubmit the stage an item is waiting on"),
		newRollbackCommand(ctx),
		newDeleteCommand(ctx),
	}
}

func newCreateCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "create <prompt>",
		Short: "Create an item and submit its draft job",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt := strings.Join(args, " ")
			resp, err := ctx.client().CreateItem(cmd.Context(), prompt)
			if err != nil {
				return ctx.wrapDialError(err)
			}
			if jsonOutput {
				return writeJSON(cmd, resp)
			}
			printAction(cmd, "Created", resp)
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newListCommand(ctx *commandContext) *cobra.Command {
	var states []string
	var exclude []string
	var studio bool
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List content items",
		RunE: func(cmd *cobra.Command, args []string) error {
			include, err := api.ParseStates(states)
			if err != nil {
				return err
			}
			excluded, err := api.ParseStates(exclude)
			if err != nil {
				return err
			}
			if studio {
				excluded = append(excluded, content.StatePublished)
			}
			items, err := ctx.client().ListItems(cmd.Context(), content.Filter{States: include, Exclude: excluded})
			if err != nil {
				return ctx.wrapDialError(err)
			}
			if jsonOutput {
				return writeJSON(cmd, api.ItemListResponse{Items: items})
			}
			out := cmd.OutOrStdout()
			if len(items) == 0 {
				fmt.Fprintln(out, "No items")
				return nil
			}
			fmt.Fprint(out, renderTable(
				[]string{"ID", "State", "Prompt", "Job", "Cost", "Updated"},
				buildItemRows(items),
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
			))
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&states, "state", nil, "Only show items in these states (repeatable or comma separated)")
	cmd.Flags().StringSliceVar(&exclude, "exclude", nil, "Hide items in these states")
	cmd.Flags().BoolVar(&studio, "studio", false, "Hide published items")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one item in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			item, err := ctx.client().GetItem(cmd.Context(), args[0])
			if err != nil {
				return ctx.wrapDialError(err)
			}
			if jsonOutput {
				return writeJSON(cmd, api.ItemResponse{Item: *item})
			}
			printItemDetail(cmd.OutOrStdout(), *item)
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newJobsCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "jobs <id>",
		Short: "Show the job history of an item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := ctx.client().ItemJobs(cmd.Context(), args[0])
			if err != nil {
				return ctx.wrapDialError(err)
			}
			if jsonOutput {
				return writeJSON(cmd, api.JobListResponse{Jobs: records})
			}
			out := cmd.OutOrStdout()
			if len(records) == 0 {
				fmt.Fprintln(out, "No jobs")
				return nil
			}
			fmt.Fprint(out, renderTable(
				[]string{"Job", "Kind", "Status", "Created", "Resolved", "Error"},
				buildJobRows(records),
				nil,
			))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newActionCommand(ctx *commandContext, action, short string) *cobra.Command {
	return &cobra.Command{
		Use:   action + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := ctx.client().Action(cmd.Context(), args[0], action)
			if err != nil {
				return ctx.wrapDialError(err)
			}
			printAction(cmd, "Submitted "+action+" for", resp)
			return nil
		},
	}
}

func newRollbackCommand(ctx *commandContext) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "rollback <id>",
		Short: "Fail an item's in-flight job and return it to its previous state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := ctx.client().Rollback(cmd.Context(), args[0], reason)
			if err != nil {
				return ctx.wrapDialError(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Item %s rolled back to %s\n", resp.Item.ID, stateLabel(resp.Item.State))
			return nil
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "Error text recorded on the item")
	return cmd
}

func newDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an item and its job history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			_, err := ctx.client().DeleteItem(cmd.Context(), args[0])
			if api.IsNotFound(err) {
				fmt.Fprintf(out, "Item %s not found\n", args[0])
				return nil
			}
			if err != nil {
				return ctx.wrapDialError(err)
			}
			fmt.Fprintf(out, "Item %s deleted\n", args[0])
			return nil
		},
	}
}

func printAction(cmd *cobra.Command, verb string, resp *api.ActionResponse) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s item %s (%s)\n", verb, resp.Item.ID, stateLabel(resp.Item.State))
	if resp.JobID != "" {
		fmt.Fprintf(out, "Job: %s\n", resp.JobID)
	}
}
