package content

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// GetJob fetches a job record by job ID. A missing record returns nil without error.
func (s *Store) GetJob(ctx context.Context, jobID string) (*JobRecord, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+jobColumns+` FROM job_records WHERE job_id = ?`, jobID)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", jobID, err)
	}
	return job, nil
}

// PendingJob returns the outstanding job for an item, if any.
func (s *Store) PendingJob(ctx context.Context, itemID string) (*JobRecord, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT `+jobColumns+` FROM job_records WHERE item_id = ? AND status = ?`,
		itemID, string(JobPending))
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pending job for %s: %w", itemID, err)
	}
	return job, nil
}

// ListJobs returns every job record for an item, oldest first.
func (s *Store) ListJobs(ctx context.Context, itemID string) ([]*JobRecord, error) {
	return s.queryJobs(ctx, `SELECT `+jobColumns+` FROM job_records WHERE item_id = ? ORDER BY created_at, job_id`, itemID)
}

// ListPendingJobs returns all outstanding job records.
func (s *Store) ListPendingJobs(ctx context.Context) ([]*JobRecord, error) {
	return s.queryJobs(ctx, `SELECT `+jobColumns+` FROM job_records WHERE status = ? ORDER BY created_at`, string(JobPending))
}

func (s *Store) queryJobs(ctx context.Context, query string, args ...any) ([]*JobRecord, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*JobRecord
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// InsertWithJob stores a new item together with its first pending job.
func (s *Store) InsertWithJob(ctx context.Context, item *Item, job *JobRecord) error {
	now := time.Now().UTC()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	item.UpdatedAt = now
	stampJob(job, now)
	args, err := itemArgs(item)
	if err != nil {
		return fmt.Errorf("encode item %s: %w", item.ID, err)
	}
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO content_items (`+itemColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, args...); err != nil {
			return err
		}
		return insertJobTx(ctx, tx, job)
	})
	if err != nil {
		return fmt.Errorf("insert item %s: %w", item.ID, err)
	}
	return nil
}

// StartJob records a new pending job and the item's move into its transient
// state in one transaction. ErrPendingJob is returned when the item already
// has an outstanding job; ErrNotFound when the item is gone.
func (s *Store) StartJob(ctx context.Context, item *Item, job *JobRecord) error {
	stampJob(job, time.Now().UTC())
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := updateItemTx(ctx, tx, item); err != nil {
			return err
		}
		return insertJobTx(ctx, tx, job)
	})
	if err != nil {
		return fmt.Errorf("start %s job for %s: %w", job.Kind, item.ID, err)
	}
	return nil
}

// FinishJob marks a pending job resolved and writes the item's post-job state
// in one transaction. A nil item only resolves the job record.
// ErrJobNotPending is returned when the job was already resolved or removed.
func (s *Store) FinishJob(ctx context.Context, item *Item, job *JobRecord) error {
	now := time.Now().UTC()
	job.ResolvedAt = &now
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE job_records SET status = ?, error_message = ?, resolved_at = ? WHERE job_id = ? AND status = ?`,
			string(job.Status), nullableString(job.Error), nullableTime(job.ResolvedAt), job.JobID, string(JobPending))
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrJobNotPending
		}
		if item == nil {
			return nil
		}
		return updateItemTx(ctx, tx, item)
	})
	if err != nil {
		return fmt.Errorf("finish job %s: %w", job.JobID, err)
	}
	return nil
}

func stampJob(job *JobRecord, now time.Time) {
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	if job.Status == "" {
		job.Status = JobPending
	}
}

func insertJobTx(ctx context.Context, tx *sql.Tx, job *JobRecord) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO job_records (`+jobColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		job.JobID, job.ItemID, string(job.Kind), string(job.Status),
		nullableString(job.Error), formatTime(job.CreatedAt), nullableTime(job.ResolvedAt))
	if isPendingJobViolation(err) {
		return ErrPendingJob
	}
	return err
}
