package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"sloppy/internal/content"
	"sloppy/internal/logging"
	"sloppy/internal/notify"
	"sloppy/internal/services"
)

// Registry owns every content item mutation. It submits stage jobs, records
// them against their item, and applies outcomes as state transitions.
//
// All work for one item runs under that item's lock, so a resolve and its
// publish never interleave with a register for the same item.
type Registry struct {
	store     *content.Store
	queue     Queue
	publisher Publisher
	locks     *keyedMutex
	logger    *slog.Logger
}

// NewRegistry wires a registry. A nil publisher discards notifications.
func NewRegistry(store *content.Store, queue Queue, publisher Publisher, logger *slog.Logger) *Registry {
	if publisher == nil {
		publisher = noopPublisher{}
	}
	return &Registry{
		store:     store,
		queue:     queue,
		publisher: publisher,
		locks:     newKeyedMutex(),
		logger:    logging.NewComponentLogger(logger, "registry"),
	}
}

// Create stores a new item in DRAFTING with its draft job submitted. When the
// queue rejects the job the item is not stored and a SubmissionError is returned.
func (r *Registry) Create(ctx context.Context, prompt string) (*content.Item, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, services.Wrap(services.ErrValidation, string(content.KindDraft), "create", "", ErrEmptyPrompt)
	}
	item := &content.Item{ID: uuid.NewString(), Prompt: prompt, State: content.StateDrafting}

	unlock := r.locks.Lock(item.ID)
	defer unlock()

	ctx = services.WithStage(services.WithItemID(ctx, item.ID), string(content.KindDraft))
	jobID, err := r.submit(ctx, item, content.KindDraft)
	if err != nil {
		return nil, err
	}
	item.ActiveJobID = jobID
	job := &content.JobRecord{JobID: jobID, ItemID: item.ID, Kind: content.KindDraft}
	if err := r.store.InsertWithJob(ctx, item, job); err != nil {
		return nil, fmt.Errorf("record draft job: %w", err)
	}
	logging.WithContext(services.WithJobID(ctx, jobID), r.logger).Info("item created",
		logging.String(logging.FieldEventType, "item_created"),
	)
	return item.Clone(), nil
}

// Register submits a job of kind for an existing item and moves it into the
// matching transient state. It fails with ErrConflict when a job is already
// pending and with ErrInvalidTransition when the item is not in the stage's
// source state.
func (r *Registry) Register(ctx context.Context, itemID string, kind content.Kind) (string, error) {
	if _, ok := content.ParseKind(string(kind)); !ok {
		return "", fmt.Errorf("%w: unknown stage %q", ErrInvalidTransition, kind)
	}
	unlock := r.locks.Lock(itemID)
	defer unlock()

	ctx = services.WithStage(services.WithItemID(ctx, itemID), string(kind))
	item, err := r.store.Get(ctx, itemID)
	if err != nil {
		return "", err
	}
	if item == nil {
		return "", fmt.Errorf("%w: %s", ErrNotFound, itemID)
	}
	pending, err := r.store.PendingJob(ctx, itemID)
	if err != nil {
		return "", err
	}
	if pending != nil {
		return "", conflict(itemID, pending.JobID)
	}
	if item.ActiveJobID != "" {
		return "", conflict(itemID, item.ActiveJobID)
	}
	if item.State != kind.SourceState() {
		return "", invalidTransition(item, kind)
	}

	jobID, err := r.submit(ctx, item, kind)
	if err != nil {
		return "", err
	}
	item.State = kind.ActiveState()
	item.ActiveJobID = jobID
	job := &content.JobRecord{JobID: jobID, ItemID: itemID, Kind: kind}
	if err := r.store.StartJob(ctx, item, job); err != nil {
		if errors.Is(err, content.ErrPendingJob) {
			return "", conflict(itemID, "(unknown)")
		}
		if errors.Is(err, content.ErrNotFound) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, itemID)
		}
		return "", fmt.Errorf("record %s job: %w", kind, err)
	}
	logging.WithContext(services.WithJobID(ctx, jobID), r.logger).Info("job registered",
		logging.String(logging.FieldEventType, "job_registered"),
		logging.String("state", string(item.State)),
	)
	return jobID, nil
}

// Advance registers the stage that moves the item forward from where it
// stands: a failed draft is redrafted, DRAFTED renders, RENDERED publishes.
func (r *Registry) Advance(ctx context.Context, itemID string) (string, error) {
	item, err := r.store.Get(ctx, itemID)
	if err != nil {
		return "", err
	}
	if item == nil {
		return "", fmt.Errorf("%w: %s", ErrNotFound, itemID)
	}
	if item.State == content.StateDrafting {
		return r.Register(ctx, itemID, content.KindDraft)
	}
	kind, ok := content.NextKind(item.State)
	if !ok {
		if item.ActiveJobID != "" {
			return "", conflict(itemID, item.ActiveJobID)
		}
		return "", fmt.Errorf("%w: item %s in state %s has no next stage", ErrInvalidTransition, itemID, item.State)
	}
	return r.Register(ctx, itemID, kind)
}

func (r *Registry) submit(ctx context.Context, item *content.Item, kind content.Kind) (string, error) {
	jobID, err := r.queue.Submit(ctx, Job{
		ItemID:    item.ID,
		Kind:      kind,
		Prompt:    item.Prompt,
		Draft:     item.Draft,
		MediaRefs: item.MediaRefs,
	})
	if err == nil && strings.TrimSpace(jobID) == "" {
		err = errors.New("queue returned an empty job id")
	}
	if err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, r.logger), "job submission rejected", "job_submission_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "item left unchanged"),
			logging.String(logging.FieldErrorHint, "check executor availability and jobs.queue_size"),
		)
		return "", &SubmissionError{Kind: kind, Err: err}
	}
	return jobID, nil
}

// Resolve applies a job outcome. Outcomes for unknown, already resolved, or
// deleted jobs return ResolveUnknown and change nothing. Successful outcomes
// missing their stage result are applied as failures.
//
// The item a job belongs to is taken from its record. An outcome whose
// ItemID disagrees is still applied to the recorded item.
func (r *Registry) Resolve(ctx context.Context, outcome Outcome) (ResolveResult, error) {
	if outcome.JobID == "" {
		return ResolveUnknown, nil
	}
	recorded, err := r.store.GetJob(ctx, outcome.JobID)
	if err != nil {
		return "", err
	}
	if recorded == nil {
		r.discard(ctx, outcome, "no job record")
		return ResolveUnknown, nil
	}
	itemID := recorded.ItemID
	if outcome.ItemID != "" && outcome.ItemID != itemID {
		logging.WarnWithContext(logging.WithContext(services.WithJobID(ctx, outcome.JobID), r.logger),
			"job outcome names the wrong item", "job_outcome_item_mismatch",
			logging.String("reported_item_id", outcome.ItemID),
			logging.String(logging.FieldItemID, itemID),
			logging.String(logging.FieldImpact, "outcome applied to the item recorded for the job"),
			logging.String(logging.FieldErrorHint, "check the executor echoes item_id from the submitted job"),
		)
		outcome.ItemID = itemID
	}

	unlock := r.locks.Lock(itemID)
	defer unlock()

	ctx = services.WithJobID(services.WithItemID(ctx, itemID), outcome.JobID)
	job, err := r.store.GetJob(ctx, outcome.JobID)
	if err != nil {
		return "", err
	}
	switch {
	case job == nil:
		r.discard(ctx, outcome, "no job record")
		return ResolveUnknown, nil
	case !job.IsPending():
		r.discard(ctx, outcome, "job already "+string(job.Status))
		return ResolveUnknown, nil
	}
	ctx = services.WithStage(ctx, string(job.Kind))

	item, err := r.store.Get(ctx, itemID)
	if err != nil {
		return "", err
	}
	if item == nil || item.ActiveJobID != job.JobID {
		// Close the record so it stops counting as pending.
		job.Status = content.JobFailed
		job.Error = "item no longer waiting on this job"
		if err := r.store.FinishJob(ctx, nil, job); err != nil && !errors.Is(err, content.ErrJobNotPending) {
			return "", err
		}
		r.discard(ctx, outcome, job.Error)
		return ResolveUnknown, nil
	}

	success := outcome.Success
	errText := strings.TrimSpace(outcome.Error)
	if success {
		if verr := validateResult(job.Kind, outcome.Result); verr != nil {
			success = false
			errText = verr.Error()
		}
	} else if errText == "" {
		errText = string(job.Kind) + " job failed"
	}

	item.AddCost(job.Kind, outcome.Result.Cost)
	item.ActiveJobID = ""
	if success {
		applyResult(item, job.Kind, outcome.Result)
		item.State = job.Kind.CompletedState()
		item.Error = ""
		job.Status = content.JobCompleted
		job.Error = ""
	} else {
		item.State = job.Kind.FailedState()
		item.Error = errText
		job.Status = content.JobFailed
		job.Error = errText
	}

	if err := r.store.FinishJob(ctx, item, job); err != nil {
		if errors.Is(err, content.ErrJobNotPending) || errors.Is(err, content.ErrNotFound) {
			r.discard(ctx, outcome, "job resolved concurrently")
			return ResolveUnknown, nil
		}
		return "", err
	}

	msg := notify.JobOutcome(job.JobID, item.ID, success, errText)
	r.publisher.Publish(job.JobID, msg)
	r.publisher.Publish(notify.AggregateChannel, msg)

	logger := logging.WithContext(ctx, r.logger)
	if success {
		logger.Info("job completed",
			logging.String(logging.FieldEventType, "job_completed"),
			logging.String("state", string(item.State)),
			logging.Float64("cost", outcome.Result.Cost),
		)
	} else {
		logging.WarnWithContext(logger, "job failed", "job_failed",
			logging.String("error", errText),
			logging.String("state", string(item.State)),
			logging.String(logging.FieldImpact, "item rolled back to "+string(item.State)),
			logging.String(logging.FieldErrorHint, "run `sloppy retry "+item.ID+"` once the cause is fixed"),
		)
	}
	return ResolveApplied, nil
}

func (r *Registry) discard(ctx context.Context, outcome Outcome, reason string) {
	logging.WithContext(services.WithJobID(ctx, outcome.JobID), r.logger).Info("discarding job outcome",
		logging.String(logging.FieldEventType, "job_outcome_unknown"),
		logging.String("reason", reason),
		logging.Bool("success", outcome.Success),
	)
}

func validateResult(kind content.Kind, res Result) error {
	var missing string
	switch kind {
	case content.KindDraft:
		if strings.TrimSpace(res.Draft) == "" {
			missing = "draft"
		}
	case content.KindRender:
		if len(res.MediaRefs) == 0 {
			missing = "media_refs"
		}
	case content.KindPublish:
		if strings.TrimSpace(res.PublishRef) == "" {
			missing = "publish_ref"
		}
	}
	if missing != "" {
		return services.Wrap(services.ErrValidation, string(kind), "result", "malformed outcome: missing "+missing, nil)
	}
	return nil
}

func applyResult(item *content.Item, kind content.Kind, res Result) {
	switch kind {
	case content.KindDraft:
		item.Draft = res.Draft
	case content.KindRender:
		item.MediaRefs = append([]string(nil), res.MediaRefs...)
	case content.KindPublish:
		item.PublishRef = res.PublishRef
	}
}

// ActiveJobFor returns the item's outstanding job id, if any.
func (r *Registry) ActiveJobFor(ctx context.Context, itemID string) (string, bool, error) {
	item, err := r.store.Get(ctx, itemID)
	if err != nil {
		return "", false, err
	}
	if item == nil {
		return "", false, fmt.Errorf("%w: %s", ErrNotFound, itemID)
	}
	return item.ActiveJobID, item.ActiveJobID != "", nil
}

// Delete removes an item and its job records. Observers of its in-flight job
// channel are evicted, and the job's eventual outcome resolves as unknown.
func (r *Registry) Delete(ctx context.Context, itemID string) (bool, error) {
	unlock := r.locks.Lock(itemID)
	defer unlock()

	ctx = services.WithItemID(ctx, itemID)
	item, err := r.store.Get(ctx, itemID)
	if err != nil {
		return false, err
	}
	if item == nil {
		return false, nil
	}
	removed, err := r.store.Delete(ctx, itemID)
	if err != nil {
		return false, err
	}
	evicted := 0
	if item.ActiveJobID != "" {
		evicted = r.publisher.Evict(item.ActiveJobID)
	}
	logging.WithContext(ctx, r.logger).Info("item deleted",
		logging.String(logging.FieldEventType, "item_deleted"),
		logging.String("state", string(item.State)),
		logging.String(logging.FieldJobID, item.ActiveJobID),
		logging.Int("evicted_subscribers", evicted),
	)
	return removed, nil
}

// ForceRollback fails the item's in-flight job with reason, returning the item
// to its last stable state. It is the operator escape hatch for stuck items.
func (r *Registry) ForceRollback(ctx context.Context, itemID, reason string) (ResolveResult, error) {
	item, err := r.store.Get(ctx, itemID)
	if err != nil {
		return "", err
	}
	if item == nil {
		return "", fmt.Errorf("%w: %s", ErrNotFound, itemID)
	}
	if item.ActiveJobID == "" {
		return "", fmt.Errorf("%w: item %s in state %s has no job in flight", ErrInvalidTransition, itemID, item.State)
	}
	if strings.TrimSpace(reason) == "" {
		reason = "rolled back by operator"
	}
	return r.Resolve(ctx, Outcome{JobID: item.ActiveJobID, ItemID: itemID, Error: reason})
}

// RecoverPending fails every job still pending in the store. It runs at
// startup when the previous process owned those jobs and can no longer
// report their outcome.
func (r *Registry) RecoverPending(ctx context.Context, reason string) (int, error) {
	pending, err := r.store.ListPendingJobs(ctx)
	if err != nil {
		return 0, err
	}
	recovered := 0
	for _, job := range pending {
		res, err := r.Resolve(ctx, Outcome{JobID: job.JobID, ItemID: job.ItemID, Error: reason})
		if err != nil {
			return recovered, err
		}
		if res == ResolveApplied {
			recovered++
		}
	}
	if recovered > 0 {
		logging.WarnWithContext(r.logger, "failed jobs left over from previous run", "jobs_recovered",
			logging.Int("count", recovered),
			logging.String(logging.FieldImpact, "items rolled back to their last stable state"),
			logging.String(logging.FieldErrorHint, "retry affected items with `sloppy retry`"),
		)
	}
	return recovered, nil
}
