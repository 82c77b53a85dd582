package jobs

import (
	"context"

	"sloppy/internal/content"
	"sloppy/internal/notify"
)

// Job is the payload handed to a queue. JobID is filled in by the queue.
type Job struct {
	JobID     string       `json:"job_id,omitempty"`
	ItemID    string       `json:"item_id"`
	Kind      content.Kind `json:"kind"`
	Prompt    string       `json:"prompt"`
	Draft     string       `json:"draft,omitempty"`
	MediaRefs []string     `json:"media_refs,omitempty"`
}

// Result is the stage output carried by a successful outcome.
type Result struct {
	Draft      string   `json:"draft,omitempty"`
	MediaRefs  []string `json:"media_refs,omitempty"`
	PublishRef string   `json:"publish_ref,omitempty"`
	Cost       float64  `json:"cost,omitempty"`
}

// Outcome reports how a job ended. ItemID is optional but lets Resolve wait
// for a registration that is still being persisted.
type Outcome struct {
	JobID   string
	ItemID  string
	Success bool
	Result  Result
	Error   string
}

// ResolveResult tells the caller what Resolve did with an outcome.
type ResolveResult string

const (
	// ResolveApplied means the item and job record were updated and observers notified.
	ResolveApplied ResolveResult = "applied"
	// ResolveUnknown means the job was never registered, already resolved, or its item deleted.
	ResolveUnknown ResolveResult = "unknown"
)

// Queue accepts jobs for asynchronous execution. Submit must not block on
// job execution; it returns the opaque job id or fails fast.
type Queue interface {
	Submit(ctx context.Context, job Job) (string, error)
}

// Resolver receives job outcomes.
type Resolver interface {
	Resolve(ctx context.Context, outcome Outcome) (ResolveResult, error)
}

// Publisher is the notification side the registry talks to.
type Publisher interface {
	Publish(channelID string, msg notify.Message) int
	Evict(channelID string) int
}

// Performer executes one stage of work for a job.
type Performer interface {
	Perform(ctx context.Context, job Job) (Result, error)
}

// PerformerFunc adapts a function to Performer.
type PerformerFunc func(ctx context.Context, job Job) (Result, error)

// Perform calls f.
func (f PerformerFunc) Perform(ctx context.Context, job Job) (Result, error) {
	return f(ctx, job)
}

type noopPublisher struct{}

func (noopPublisher) Publish(string, notify.Message) int { return 0 }

func (noopPublisher) Evict(string) int { return 0 }
