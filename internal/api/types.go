package api

import "sloppy/internal/jobs"

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// ContentItem describes a content item in a transport-friendly format.
type ContentItem struct {
	ID            string             `json:"id"`
	Prompt        string             `json:"prompt"`
	Draft         string             `json:"draft,omitempty"`
	State         string             `json:"state"`
	MediaRefs     []string           `json:"mediaRefs,omitempty"`
	PublishRef    string             `json:"publishRef,omitempty"`
	CostBreakdown map[string]float64 `json:"costBreakdown,omitempty"`
	TotalCost     float64            `json:"totalCost"`
	ActiveJobID   string             `json:"activeJobId,omitempty"`
	Error         string             `json:"error,omitempty"`
	CreatedAt     string             `json:"createdAt,omitempty"`
	UpdatedAt     string             `json:"updatedAt,omitempty"`
}

// JobRecord describes one submitted job.
type JobRecord struct {
	JobID      string `json:"jobId"`
	ItemID     string `json:"itemId"`
	Kind       string `json:"kind"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
	CreatedAt  string `json:"createdAt,omitempty"`
	ResolvedAt string `json:"resolvedAt,omitempty"`
}

// ItemListResponse wraps a collection of items.
type ItemListResponse struct {
	Items []ContentItem `json:"items"`
}

// ItemResponse wraps a single item.
type ItemResponse struct {
	Item ContentItem `json:"item"`
}

// ActionResponse is returned by actions that submit a job.
type ActionResponse struct {
	Item  ContentItem `json:"item"`
	JobID string      `json:"jobId,omitempty"`
}

// DeleteResponse reports whether an item was removed.
type DeleteResponse struct {
	Removed bool `json:"removed"`
}

// JobListResponse wraps the job history of an item.
type JobListResponse struct {
	Jobs []JobRecord `json:"jobs"`
}

// JobResponse wraps a single job record.
type JobResponse struct {
	Job JobRecord `json:"job"`
}

// CreateItemRequest starts a new item.
type CreateItemRequest struct {
	Prompt string `json:"prompt"`
}

// RollbackRequest fails an item's in-flight job.
type RollbackRequest struct {
	Reason string `json:"reason,omitempty"`
}

// OutcomeRequest is posted by an executor when a job ends.
type OutcomeRequest struct {
	ItemID  string      `json:"item_id,omitempty"`
	Success bool        `json:"success"`
	Result  jobs.Result `json:"result"`
	Error   string      `json:"error,omitempty"`
}

// OutcomeResponse tells the executor whether its outcome was applied.
type OutcomeResponse struct {
	Result string `json:"result"`
}

// PoolStatus mirrors the local executor counters.
type PoolStatus struct {
	Workers   int   `json:"workers"`
	Queued    int   `json:"queued"`
	Running   int64 `json:"running"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

// HubStatus mirrors notification hub usage.
type HubStatus struct {
	Subscribers int    `json:"subscribers"`
	Channels    int    `json:"channels"`
	Delivered   uint64 `json:"delivered"`
	Dropped     uint64 `json:"dropped"`
	Evicted     uint64 `json:"evicted"`
}

// StatusResponse aggregates daemon runtime information.
type StatusResponse struct {
	Running      bool           `json:"running"`
	PID          int            `json:"pid"`
	DatabasePath string         `json:"databasePath"`
	Executor     string         `json:"executor"`
	Counts       map[string]int `json:"counts"`
	PendingJobs  int            `json:"pendingJobs"`
	StaleItems   int            `json:"staleItems"`
	TotalCost    float64        `json:"totalCost"`
	LastSweep    string         `json:"lastSweep,omitempty"`
	LastError    string         `json:"lastError,omitempty"`
	Pool         *PoolStatus    `json:"pool,omitempty"`
	Hub          HubStatus      `json:"hub"`
}

// HealthResponse is served by /health.
type HealthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
}
