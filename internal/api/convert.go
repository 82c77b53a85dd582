package api

import (
	"fmt"
	"strings"
	"time"

	"sloppy/internal/content"
)

// FromItem converts a content item to its API representation.
func FromItem(item *content.Item) ContentItem {
	if item == nil {
		return ContentItem{}
	}
	dto := ContentItem{
		ID:          item.ID,
		Prompt:      item.Prompt,
		Draft:       item.Draft,
		State:       string(item.State),
		MediaRefs:   append([]string(nil), item.MediaRefs...),
		PublishRef:  item.PublishRef,
		TotalCost:   item.TotalCost(),
		ActiveJobID: item.ActiveJobID,
		Error:       item.Error,
		CreatedAt:   formatTime(item.CreatedAt),
		UpdatedAt:   formatTime(item.UpdatedAt),
	}
	if len(item.CostBreakdown) > 0 {
		dto.CostBreakdown = make(map[string]float64, len(item.CostBreakdown))
		for kind, cost := range item.CostBreakdown {
			dto.CostBreakdown[string(kind)] = cost
		}
	}
	return dto
}

// FromItems converts a slice of items.
func FromItems(items []*content.Item) []ContentItem {
	out := make([]ContentItem, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		out = append(out, FromItem(item))
	}
	return out
}

// ToItem converts a DTO back into a content item. Unknown states are rejected.
func ToItem(dto ContentItem) (*content.Item, error) {
	state, ok := content.ParseState(dto.State)
	if !ok {
		return nil, fmt.Errorf("item %s: unknown state %q", dto.ID, dto.State)
	}
	item := &content.Item{
		ID:          dto.ID,
		Prompt:      dto.Prompt,
		Draft:       dto.Draft,
		State:       state,
		MediaRefs:   append([]string(nil), dto.MediaRefs...),
		PublishRef:  dto.PublishRef,
		ActiveJobID: dto.ActiveJobID,
		Error:       dto.Error,
		CreatedAt:   parseTime(dto.CreatedAt),
		UpdatedAt:   parseTime(dto.UpdatedAt),
	}
	for kind, cost := range dto.CostBreakdown {
		if k, ok := content.ParseKind(kind); ok {
			item.AddCost(k, cost)
		}
	}
	return item, nil
}

// FromJob converts a job record to its API representation.
func FromJob(job *content.JobRecord) JobRecord {
	if job == nil {
		return JobRecord{}
	}
	dto := JobRecord{
		JobID:     job.JobID,
		ItemID:    job.ItemID,
		Kind:      string(job.Kind),
		Status:    string(job.Status),
		Error:     job.Error,
		CreatedAt: formatTime(job.CreatedAt),
	}
	if job.ResolvedAt != nil {
		dto.ResolvedAt = formatTime(*job.ResolvedAt)
	}
	return dto
}

// FromJobs converts a slice of job records.
func FromJobs(records []*content.JobRecord) []JobRecord {
	out := make([]JobRecord, 0, len(records))
	for _, job := range records {
		if job == nil {
			continue
		}
		out = append(out, FromJob(job))
	}
	return out
}

// MergeStateCounts returns counts for every lifecycle state, including zeros.
func MergeStateCounts(counts map[content.State]int) map[string]int {
	out := make(map[string]int, len(content.AllStates()))
	for _, state := range content.AllStates() {
		out[string(state)] = counts[state]
	}
	return out
}

// ParseStates converts comma separated or repeated query values into states.
func ParseStates(values []string) ([]content.State, error) {
	var states []content.State
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			state, ok := content.ParseState(part)
			if !ok {
				return nil, fmt.Errorf("unknown state %q", strings.TrimSpace(part))
			}
			states = append(states, state)
		}
	}
	return states, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

func parseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return t
}
