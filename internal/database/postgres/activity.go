package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/kozaktomas/facecam/internal/activity"
)

// ActivityRepository provides PostgreSQL-backed activity storage
type ActivityRepository struct {
	pool *Pool
}

// NewActivityRepository creates a new PostgreSQL activity repository
func NewActivityRepository(pool *Pool) *ActivityRepository {
	return &ActivityRepository{pool: pool}
}

// Append stores one entry. Entries are immutable; a repeated id is ignored.
func (r *ActivityRepository) Append(ctx context.Context, e activity.Entry) error {
	query := `
		INSERT INTO activity_log (
			id, recorded_at, event, is_collecting, collected_count, current_person,
			model_trained, people_count, people_names,
			face_cascade_loaded, eye_cascade_loaded, require_eyes_for_face
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO NOTHING
	`

	names := e.PeopleNames
	if names == nil {
		names = []string{}
	}
	_, err := r.pool.Exec(ctx, query,
		e.ID, e.Timestamp, e.Event, e.IsCollecting, e.CollectedCount, e.CurrentPerson,
		e.ModelTrained, e.PeopleCount, pq.Array(names),
		e.FaceCascadeLoaded, e.EyeCascadeLoaded, e.RequireEyesForFace,
	)
	if err != nil {
		return fmt.Errorf("append activity: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (r *ActivityRepository) Recent(ctx context.Context, limit int) ([]activity.Entry, error) {
	query := `
		SELECT id, recorded_at, event, is_collecting, collected_count, current_person,
			model_trained, people_count, people_names,
			face_cascade_loaded, eye_cascade_loaded, require_eyes_for_face
		FROM activity_log
		ORDER BY recorded_at DESC
		LIMIT $1
	`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}
	defer rows.Close()

	var entries []activity.Entry
	for rows.Next() {
		var e activity.Entry
		var names pq.StringArray
		if err := rows.Scan(
			&e.ID, &e.Timestamp, &e.Event, &e.IsCollecting, &e.CollectedCount, &e.CurrentPerson,
			&e.ModelTrained, &e.PeopleCount, &names,
			&e.FaceCascadeLoaded, &e.EyeCascadeLoaded, &e.RequireEyesForFace,
		); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		e.PeopleNames = []string(names)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate activity: %w", err)
	}
	return entries, nil
}

// Cleanup deletes entries recorded before the cutoff.
func (r *ActivityRepository) Cleanup(ctx context.Context, before time.Time) (int, error) {
	result, err := r.pool.Exec(ctx, "DELETE FROM activity_log WHERE recorded_at < $1", before)
	if err != nil {
		return 0, fmt.Errorf("cleanup activity: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("cleanup activity: %w", err)
	}
	return int(n), nil
}
