package content

import "errors"

var (
	// ErrNotFound indicates the item does not exist.
	ErrNotFound = errors.New("content item not found")
	// ErrPendingJob indicates the item already has an outstanding job record.
	ErrPendingJob = errors.New("item already has a pending job")
	// ErrJobNotPending indicates the job record was already resolved or removed.
	ErrJobNotPending = errors.New("job is not pending")
)
