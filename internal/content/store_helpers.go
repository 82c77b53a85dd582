package content

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

// timeLayout is fixed width so stored timestamps compare correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const itemColumns = "id, prompt, draft, state, media_refs_json, publish_ref, cost_json, active_job_id, error_message, created_at, updated_at"

const jobColumns = "job_id, item_id, kind, status, error_message, created_at, resolved_at"

func scanItem(scanner interface{ Scan(dest ...any) error }) (*Item, error) {
	var (
		id          string
		prompt      string
		draft       sql.NullString
		stateStr    string
		mediaRefs   sql.NullString
		publishRef  sql.NullString
		costJSON    sql.NullString
		activeJobID sql.NullString
		errorMsg    sql.NullString
		createdRaw  sql.NullString
		updatedRaw  sql.NullString
	)
	if err := scanner.Scan(
		&id,
		&prompt,
		&draft,
		&stateStr,
		&mediaRefs,
		&publishRef,
		&costJSON,
		&activeJobID,
		&errorMsg,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	item := &Item{
		ID:          id,
		Prompt:      prompt,
		Draft:       draft.String,
		State:       State(stateStr),
		PublishRef:  publishRef.String,
		ActiveJobID: activeJobID.String,
		Error:       errorMsg.String,
	}
	if mediaRefs.Valid && mediaRefs.String != "" {
		if err := json.Unmarshal([]byte(mediaRefs.String), &item.MediaRefs); err != nil {
			return nil, err
		}
	}
	if costJSON.Valid && costJSON.String != "" {
		if err := json.Unmarshal([]byte(costJSON.String), &item.CostBreakdown); err != nil {
			return nil, err
		}
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		item.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		item.UpdatedAt = updated
	}
	return item, nil
}

func scanJob(scanner interface{ Scan(dest ...any) error }) (*JobRecord, error) {
	var (
		jobID       string
		itemID      string
		kind        string
		status      string
		errorMsg    sql.NullString
		createdRaw  sql.NullString
		resolvedRaw sql.NullString
	)
	if err := scanner.Scan(&jobID, &itemID, &kind, &status, &errorMsg, &createdRaw, &resolvedRaw); err != nil {
		return nil, err
	}
	job := &JobRecord{
		JobID:  jobID,
		ItemID: itemID,
		Kind:   Kind(kind),
		Status: JobStatus(status),
		Error:  errorMsg.String,
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		job.CreatedAt = created
	}
	if resolvedRaw.Valid {
		if resolved, err := parseTimeString(resolvedRaw.String); err == nil {
			job.ResolvedAt = &resolved
		}
	}
	return job, nil
}

func itemArgs(item *Item) ([]any, error) {
	var mediaRefs, cost any
	if len(item.MediaRefs) > 0 {
		raw, err := json.Marshal(item.MediaRefs)
		if err != nil {
			return nil, err
		}
		mediaRefs = string(raw)
	}
	if len(item.CostBreakdown) > 0 {
		raw, err := json.Marshal(item.CostBreakdown)
		if err != nil {
			return nil, err
		}
		cost = string(raw)
	}
	return []any{
		item.ID,
		item.Prompt,
		nullableString(item.Draft),
		string(item.State),
		mediaRefs,
		nullableString(item.PublishRef),
		cost,
		nullableString(item.ActiveJobID),
		nullableString(item.Error),
		formatTime(item.CreatedAt),
		formatTime(item.UpdatedAt),
	}, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return formatTime(*value)
}

func formatTime(value time.Time) string {
	return value.UTC().Format(timeLayout)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
