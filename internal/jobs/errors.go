package jobs

import (
	"errors"
	"fmt"

	"sloppy/internal/content"
)

var (
	// ErrConflict is returned when an item already has a job in flight.
	ErrConflict = errors.New("item already has a job in flight")
	// ErrInvalidTransition is returned when the requested stage cannot start from the item's state.
	ErrInvalidTransition = errors.New("stage cannot start from current state")
	// ErrNotFound is returned for unknown items.
	ErrNotFound = content.ErrNotFound
	// ErrEmptyPrompt is returned when creating an item without a prompt.
	ErrEmptyPrompt = errors.New("prompt is required")
	// ErrQueueFull is returned by the local pool when its buffer is exhausted.
	ErrQueueFull = errors.New("job queue is full")
	// ErrPoolStopped is returned by the local pool after Stop.
	ErrPoolStopped = errors.New("job pool is stopped")
)

// SubmissionError reports that the queue rejected a job. Nothing was
// persisted for the submission.
type SubmissionError struct {
	Kind content.Kind
	Err  error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("submit %s job: %v", e.Kind, e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// IsSubmissionError reports whether err wraps a SubmissionError.
func IsSubmissionError(err error) bool {
	var subErr *SubmissionError
	return errors.As(err, &subErr)
}

func conflict(itemID, jobID string) error {
	return fmt.Errorf("%w: item %s is waiting on job %s", ErrConflict, itemID, jobID)
}

func invalidTransition(item *content.Item, kind content.Kind) error {
	return fmt.Errorf("%w: cannot %s item %s in state %s", ErrInvalidTransition, kind, item.ID, item.State)
}
