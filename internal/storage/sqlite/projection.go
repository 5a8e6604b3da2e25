package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/wordloom/wordloom/internal/storage"
)

// PutProjectionStatus upserts the bookkeeping row for one projection.
func (s *Store) PutProjectionStatus(ctx context.Context, status storage.ProjectionStatus) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	if strings.TrimSpace(status.ProjectionName) == "" {
		return fmt.Errorf("projection name is required")
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO projection_status (projection_name, last_event_id, last_run_at, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT(projection_name) DO UPDATE SET
	last_event_id = excluded.last_event_id,
	last_run_at = excluded.last_run_at,
	updated_at = excluded.updated_at
`,
		status.ProjectionName,
		status.LastEventID,
		nullMicros(status.LastRunAt),
		toMicros(status.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("put projection status: %w", err)
	}
	return nil
}

// GetProjectionStatus returns the bookkeeping row for one projection.
func (s *Store) GetProjectionStatus(ctx context.Context, projectionName string) (storage.ProjectionStatus, error) {
	if err := ctx.Err(); err != nil {
		return storage.ProjectionStatus{}, err
	}
	if err := s.ready(); err != nil {
		return storage.ProjectionStatus{}, err
	}
	projectionName = strings.TrimSpace(projectionName)
	if projectionName == "" {
		return storage.ProjectionStatus{}, fmt.Errorf("projection name is required")
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT projection_name, last_event_id, last_run_at, updated_at
FROM projection_status
WHERE projection_name = ?
`, projectionName)

	var status storage.ProjectionStatus
	var lastRunAt sql.NullInt64
	var updatedAt int64
	if err := row.Scan(&status.ProjectionName, &status.LastEventID, &lastRunAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.ProjectionStatus{}, storage.ErrNotFound
		}
		return storage.ProjectionStatus{}, fmt.Errorf("get projection status: %w", err)
	}
	status.LastRunAt = microsPtr(lastRunAt)
	status.UpdatedAt = fromMicros(updatedAt)
	return status, nil
}
