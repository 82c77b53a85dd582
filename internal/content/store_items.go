package content

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const upsertItemSQL = `INSERT INTO content_items (` + itemColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    prompt = excluded.prompt,
    draft = excluded.draft,
    state = excluded.state,
    media_refs_json = excluded.media_refs_json,
    publish_ref = excluded.publish_ref,
    cost_json = excluded.cost_json,
    active_job_id = excluded.active_job_id,
    error_message = excluded.error_message,
    updated_at = excluded.updated_at`

const updateItemSQL = `UPDATE content_items SET
    prompt = ?, draft = ?, state = ?, media_refs_json = ?, publish_ref = ?,
    cost_json = ?, active_job_id = ?, error_message = ?, updated_at = ?
WHERE id = ?`

// Get fetches an item by ID. A missing item returns nil without error.
func (s *Store) Get(ctx context.Context, id string) (*Item, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+itemColumns+` FROM content_items WHERE id = ?`, id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get item %s: %w", id, err)
	}
	return item, nil
}

// List returns items matching filter, oldest first.
func (s *Store) List(ctx context.Context, filter Filter) ([]*Item, error) {
	query := `SELECT ` + itemColumns + ` FROM content_items`
	var (
		clauses []string
		args    []any
	)
	if len(filter.States) > 0 {
		clauses = append(clauses, "state IN ("+makePlaceholders(len(filter.States))+")")
		for _, st := range filter.States {
			args = append(args, string(st))
		}
	}
	if len(filter.Exclude) > 0 {
		clauses = append(clauses, "state NOT IN ("+makePlaceholders(len(filter.Exclude))+")")
		for _, st := range filter.Exclude {
			args = append(args, string(st))
		}
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at, id"
	return s.queryItems(ctx, query, args...)
}

// ListTransient returns items with a stage in flight.
func (s *Store) ListTransient(ctx context.Context) ([]*Item, error) {
	return s.List(ctx, Filter{States: []State{StateDrafting, StateRendering, StatePublishing}})
}

// ListStale returns transient items not updated since cutoff.
func (s *Store) ListStale(ctx context.Context, cutoff time.Time) ([]*Item, error) {
	return s.queryItems(ctx,
		`SELECT `+itemColumns+` FROM content_items
         WHERE state IN (?, ?, ?) AND updated_at < ?
         ORDER BY updated_at`,
		string(StateDrafting), string(StateRendering), string(StatePublishing),
		formatTime(cutoff),
	)
}

func (s *Store) queryItems(ctx context.Context, query string, args ...any) ([]*Item, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// Put inserts or replaces an item, stamping UpdatedAt (and CreatedAt for new items).
func (s *Store) Put(ctx context.Context, item *Item) error {
	if item == nil || item.ID == "" {
		return errors.New("put item: id is required")
	}
	now := time.Now().UTC()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	item.UpdatedAt = now
	args, err := itemArgs(item)
	if err != nil {
		return fmt.Errorf("encode item %s: %w", item.ID, err)
	}
	if _, err := s.execWithRetry(ctx, upsertItemSQL, args...); err != nil {
		return fmt.Errorf("put item %s: %w", item.ID, err)
	}
	return nil
}

// Delete removes an item and its job records. It reports whether the item existed.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	var removed bool
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM job_records WHERE item_id = ?`, id); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM content_items WHERE id = ?`, id)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		removed = n > 0
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("delete item %s: %w", id, err)
	}
	return removed, nil
}

// Stats counts items per state and pending jobs.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	ctx = ensureContext(ctx)
	stats := Stats{ByState: make(map[State]int, len(allStates))}
	rows, err := s.db.QueryContext(ctx, `SELECT state, COUNT(1) FROM content_items GROUP BY state`)
	if err != nil {
		return stats, fmt.Errorf("count items: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			state string
			count int
		)
		if err := rows.Scan(&state, &count); err != nil {
			return stats, fmt.Errorf("scan count: %w", err)
		}
		stats.ByState[State(state)] = count
	}
	if err := rows.Err(); err != nil {
		return stats, err
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM job_records WHERE status = ?`, string(JobPending)).Scan(&stats.PendingJobs); err != nil {
		return stats, fmt.Errorf("count pending jobs: %w", err)
	}
	costs, err := s.queryItems(ctx, `SELECT `+itemColumns+` FROM content_items WHERE cost_json IS NOT NULL`)
	if err != nil {
		return stats, err
	}
	for _, item := range costs {
		stats.TotalCost = saturatingAdd(stats.TotalCost, item.TotalCost())
	}
	return stats, nil
}

func updateItemTx(ctx context.Context, tx *sql.Tx, item *Item) error {
	item.UpdatedAt = time.Now().UTC()
	args, err := itemArgs(item)
	if err != nil {
		return fmt.Errorf("encode item %s: %w", item.ID, err)
	}
	// itemArgs order: id, prompt, draft, state, media, publish, cost, job, error, created, updated
	res, err := tx.ExecContext(ctx, updateItemSQL,
		args[1], args[2], args[3], args[4], args[5], args[6], args[7], args[8], args[10], args[0])
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
