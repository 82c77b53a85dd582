package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"sloppy/internal/api"
)

const promptPreviewWidth = 40

var titleCaser = cases.Title(language.English)

// stateLabel renders DRAFTING as Drafting.
func stateLabel(state string) string {
	if strings.TrimSpace(state) == "" {
		return "Unknown"
	}
	return titleCaser.String(strings.ToLower(state))
}

func formatCost(value float64) string {
	return fmt.Sprintf("$%.4f", value)
}

func truncate(value string, width int) string {
	value = strings.Join(strings.Fields(value), " ")
	runes := []rune(value)
	if len(runes) <= width {
		return value
	}
	return string(runes[:width-1]) + "…"
}

// formatTimestamp shortens API timestamps for tables.
func formatTimestamp(value string) string {
	if value == "" {
		return "-"
	}
	parsed, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return value
	}
	return parsed.Local().Format("2006-01-02 15:04")
}

func dash(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}

func buildItemRows(items []api.ContentItem) [][]string {
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		rows = append(rows, []string{
			item.ID,
			stateLabel(item.State),
			truncate(item.Prompt, promptPreviewWidth),
			dash(item.ActiveJobID),
			formatCost(item.TotalCost),
			formatTimestamp(item.UpdatedAt),
		})
	}
	return rows
}

func buildJobRows(records []api.JobRecord) [][]string {
	rows := make([][]string, 0, len(records))
	for _, record := range records {
		rows = append(rows, []string{
			record.JobID,
			record.Kind,
			record.Status,
			formatTimestamp(record.CreatedAt),
			formatTimestamp(record.ResolvedAt),
			dash(record.Error),
		})
	}
	return rows
}

func buildStateCountRows(counts map[string]int) [][]string {
	states := make([]string, 0, len(counts))
	for state := range counts {
		states = append(states, state)
	}
	sort.Strings(states)
	rows := make([][]string, 0, len(states))
	for _, state := range states {
		rows = append(rows, []string{stateLabel(state), fmt.Sprintf("%d", counts[state])})
	}
	return rows
}

func printItemDetail(out io.Writer, item api.ContentItem) {
	fmt.Fprintf(out, "ID:       %s\n", item.ID)
	fmt.Fprintf(out, "State:    %s\n", stateLabel(item.State))
	fmt.Fprintf(out, "Prompt:   %s\n", item.Prompt)
	if item.ActiveJobID != "" {
		fmt.Fprintf(out, "Job:      %s\n", item.ActiveJobID)
	}
	if item.Error != "" {
		fmt.Fprintf(out, "Error:    %s\n", item.Error)
	}
	if item.PublishRef != "" {
		fmt.Fprintf(out, "Publish:  %s\n", item.PublishRef)
	}
	for _, ref := range item.MediaRefs {
		fmt.Fprintf(out, "Media:    %s\n", ref)
	}
	fmt.Fprintf(out, "Cost:     %s\n", formatCost(item.TotalCost))
	stages := make([]string, 0, len(item.CostBreakdown))
	for stage := range item.CostBreakdown {
		stages = append(stages, stage)
	}
	sort.Strings(stages)
	for _, stage := range stages {
		fmt.Fprintf(out, "  %-8s %s\n", stage+":", formatCost(item.CostBreakdown[stage]))
	}
	fmt.Fprintf(out, "Created:  %s\n", formatTimestamp(item.CreatedAt))
	fmt.Fprintf(out, "Updated:  %s\n", formatTimestamp(item.UpdatedAt))
	if item.Draft != "" {
		fmt.Fprintln(out)
		fmt.Fprintln(out, item.Draft)
	}
}
