package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wordloom/wordloom/internal/storage"
)

const outboxColumns = `
	id,
	entity_type,
	entity_id,
	op,
	event_version,
	status,
	owner,
	lease_until,
	processing_started_at,
	attempts,
	next_retry_at,
	error_reason,
	error,
	replay_count,
	processed_at,
	traceparent,
	tracestate,
	created_at,
	updated_at`

type execContexter interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func outboxTable(kind storage.OutboxKind) (string, error) {
	switch kind {
	case storage.OutboxKindChronicle:
		return "chronicle_outbox_events", nil
	case storage.OutboxKindSearch:
		return "search_outbox_events", nil
	default:
		return "", fmt.Errorf("unknown outbox kind %q", kind)
	}
}

func normalizeOutboxEvent(event storage.OutboxEvent) (storage.OutboxEvent, error) {
	event.ID = strings.TrimSpace(event.ID)
	event.EntityType = strings.TrimSpace(event.EntityType)
	event.EntityID = strings.TrimSpace(event.EntityID)
	event.Op = strings.TrimSpace(event.Op)
	event.Status = strings.TrimSpace(event.Status)
	if event.ID == "" {
		return storage.OutboxEvent{}, fmt.Errorf("outbox event id is required")
	}
	if event.EntityType == "" {
		return storage.OutboxEvent{}, fmt.Errorf("entity type is required")
	}
	if event.EntityID == "" {
		return storage.OutboxEvent{}, fmt.Errorf("entity id is required")
	}
	if event.Op != storage.OutboxOpUpsert && event.Op != storage.OutboxOpDelete {
		return storage.OutboxEvent{}, fmt.Errorf("op must be upsert or delete")
	}
	if event.EventVersion <= 0 {
		return storage.OutboxEvent{}, fmt.Errorf("event version must be greater than zero")
	}
	if event.Status == "" {
		event.Status = storage.OutboxStatusPending
	}
	now := time.Now().UTC()
	if event.CreatedAt.IsZero() {
		event.CreatedAt = now
	}
	if event.UpdatedAt.IsZero() {
		event.UpdatedAt = event.CreatedAt
	}
	return event, nil
}

func enqueueOutboxEvent(ctx context.Context, target execContexter, kind storage.OutboxKind, event storage.OutboxEvent) error {
	table, err := outboxTable(kind)
	if err != nil {
		return err
	}
	normalized, err := normalizeOutboxEvent(event)
	if err != nil {
		return err
	}

	_, err = target.ExecContext(ctx, `
INSERT INTO `+table+` (
	id, entity_type, entity_id, op, event_version, status, owner,
	lease_until, processing_started_at, attempts, next_retry_at,
	error_reason, error, replay_count, processed_at, traceparent,
	tracestate, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`,
		normalized.ID,
		normalized.EntityType,
		normalized.EntityID,
		normalized.Op,
		normalized.EventVersion,
		normalized.Status,
		normalized.Owner,
		nullMicros(normalized.LeaseUntil),
		nullMicros(normalized.ProcessingStartedAt),
		normalized.Attempts,
		nullMicros(normalized.NextRetryAt),
		normalized.ErrorReason,
		normalized.Error,
		normalized.ReplayCount,
		nullMicros(normalized.ProcessedAt),
		normalized.Traceparent,
		normalized.Tracestate,
		toMicros(normalized.CreatedAt),
		toMicros(normalized.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("enqueue outbox event: %w", err)
	}
	return nil
}

// EnqueueOutboxEvent inserts a pending row.
func (s *Store) EnqueueOutboxEvent(ctx context.Context, kind storage.OutboxKind, event storage.OutboxEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	return enqueueOutboxEvent(ctx, s.sqlDB, kind, event)
}

// GetOutboxEvent returns one row by ID.
func (s *Store) GetOutboxEvent(ctx context.Context, kind storage.OutboxKind, id string) (storage.OutboxEvent, error) {
	if err := ctx.Err(); err != nil {
		return storage.OutboxEvent{}, err
	}
	if err := s.ready(); err != nil {
		return storage.OutboxEvent{}, err
	}
	table, err := outboxTable(kind)
	if err != nil {
		return storage.OutboxEvent{}, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return storage.OutboxEvent{}, fmt.Errorf("outbox event id is required")
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT`+outboxColumns+`
FROM `+table+`
WHERE id = ?
`, id)
	event, err := scanOutboxEvent(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.OutboxEvent{}, storage.ErrNotFound
		}
		return storage.OutboxEvent{}, fmt.Errorf("get outbox event: %w", err)
	}
	return event, nil
}

// ClaimOutboxEvents leases up to limit due rows for one owner. Candidates are
// selected and conditionally updated inside one transaction; a row that
// changed state between select and update is skipped, so two workers can
// never hold the same lease.
func (s *Store) ClaimOutboxEvents(ctx context.Context, kind storage.OutboxKind, owner string, limit int, now time.Time, lease time.Duration) ([]storage.OutboxEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.ready(); err != nil {
		return nil, err
	}
	table, err := outboxTable(kind)
	if err != nil {
		return nil, err
	}
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return nil, fmt.Errorf("owner is required")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}
	if lease <= 0 {
		return nil, fmt.Errorf("lease must be greater than zero")
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}
	now = now.UTC()
	leaseUntil := now.Add(lease)

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("start claim transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	rows, err := tx.QueryContext(ctx, `
SELECT id
FROM `+table+`
WHERE status = ?
AND (next_retry_at IS NULL OR next_retry_at <= ?)
ORDER BY event_version ASC, created_at ASC, id ASC
LIMIT ?
`, storage.OutboxStatusPending, toMicros(now), limit)
	if err != nil {
		return nil, fmt.Errorf("select claim candidates: %w", err)
	}
	candidateIDs := make([]string, 0, limit)
	for rows.Next() {
		var id string
		if scanErr := rows.Scan(&id); scanErr != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan claim candidate: %w", scanErr)
		}
		candidateIDs = append(candidateIDs, id)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("iterate claim candidates: %w", err)
	}
	if err := rows.Close(); err != nil {
		return nil, fmt.Errorf("close claim candidates: %w", err)
	}
	if len(candidateIDs) == 0 {
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("commit empty claim transaction: %w", err)
		}
		return []storage.OutboxEvent{}, nil
	}

	claimed := make([]storage.OutboxEvent, 0, len(candidateIDs))
	for _, id := range candidateIDs {
		result, updateErr := tx.ExecContext(ctx, `
UPDATE `+table+`
SET
	status = ?,
	owner = ?,
	lease_until = ?,
	processing_started_at = ?,
	updated_at = ?
WHERE id = ?
AND status = ?
AND (next_retry_at IS NULL OR next_retry_at <= ?)
`,
			storage.OutboxStatusProcessing,
			owner,
			toMicros(leaseUntil),
			toMicros(now),
			toMicros(now),
			id,
			storage.OutboxStatusPending,
			toMicros(now),
		)
		if updateErr != nil {
			return nil, fmt.Errorf("claim outbox event %s: %w", id, updateErr)
		}
		affected, rowsErr := result.RowsAffected()
		if rowsErr != nil {
			return nil, fmt.Errorf("claim rows affected for %s: %w", id, rowsErr)
		}
		if affected == 0 {
			continue
		}

		row := tx.QueryRowContext(ctx, `
SELECT`+outboxColumns+`
FROM `+table+`
WHERE id = ?
`, id)
		event, scanErr := scanOutboxEvent(row.Scan)
		if scanErr != nil {
			return nil, fmt.Errorf("scan claimed outbox event %s: %w", id, scanErr)
		}
		claimed = append(claimed, event)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit claim transaction: %w", err)
	}
	return claimed, nil
}

// RenewOutboxLeases extends lease_until for rows still owned by owner.
func (s *Store) RenewOutboxLeases(ctx context.Context, kind storage.OutboxKind, owner string, ids []string, leaseUntil time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	table, err := outboxTable(kind)
	if err != nil {
		return err
	}
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return fmt.Errorf("owner is required")
	}
	if len(ids) == 0 {
		return nil
	}

	placeholders := make([]string, 0, len(ids))
	args := []any{toMicros(leaseUntil.UTC()), toMicros(time.Now().UTC())}
	for _, id := range ids {
		placeholders = append(placeholders, "?")
		args = append(args, id)
	}
	args = append(args, storage.OutboxStatusProcessing, owner)

	_, err = s.sqlDB.ExecContext(ctx, `
UPDATE `+table+`
SET lease_until = ?, updated_at = ?
WHERE id IN (`+strings.Join(placeholders, ", ")+`)
AND status = ?
AND owner = ?
`, args...)
	if err != nil {
		return fmt.Errorf("renew outbox leases: %w", err)
	}
	return nil
}

// MarkOutboxDone finishes a leased row.
func (s *Store) MarkOutboxDone(ctx context.Context, kind storage.OutboxKind, id, owner string, processedAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	table, err := outboxTable(kind)
	if err != nil {
		return err
	}
	id = strings.TrimSpace(id)
	owner = strings.TrimSpace(owner)
	if id == "" {
		return fmt.Errorf("outbox event id is required")
	}
	if owner == "" {
		return fmt.Errorf("owner is required")
	}
	if processedAt.IsZero() {
		processedAt = time.Now().UTC()
	}
	processedAt = processedAt.UTC()

	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE `+table+`
SET
	status = ?,
	owner = '',
	lease_until = NULL,
	processing_started_at = NULL,
	error_reason = '',
	error = '',
	processed_at = ?,
	updated_at = ?
WHERE id = ?
AND status = ?
AND owner = ?
`,
		storage.OutboxStatusDone,
		toMicros(processedAt),
		toMicros(processedAt),
		id,
		storage.OutboxStatusProcessing,
		owner,
	)
	if err != nil {
		return fmt.Errorf("mark outbox done: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark outbox done rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// MarkOutboxRetry returns a leased row to pending with attempts+1 and a retry
// deadline.
func (s *Store) MarkOutboxRetry(ctx context.Context, kind storage.OutboxKind, id, owner string, nextRetryAt time.Time, reason, errMsg string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	table, err := outboxTable(kind)
	if err != nil {
		return err
	}
	id = strings.TrimSpace(id)
	owner = strings.TrimSpace(owner)
	if id == "" {
		return fmt.Errorf("outbox event id is required")
	}
	if owner == "" {
		return fmt.Errorf("owner is required")
	}
	if nextRetryAt.IsZero() {
		return fmt.Errorf("next retry at is required")
	}
	now := time.Now().UTC()

	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE `+table+`
SET
	status = ?,
	attempts = attempts + 1,
	next_retry_at = ?,
	owner = '',
	lease_until = NULL,
	processing_started_at = NULL,
	error_reason = ?,
	error = ?,
	updated_at = ?
WHERE id = ?
AND status = ?
AND owner = ?
`,
		storage.OutboxStatusPending,
		toMicros(nextRetryAt.UTC()),
		strings.TrimSpace(reason),
		strings.TrimSpace(errMsg),
		toMicros(now),
		id,
		storage.OutboxStatusProcessing,
		owner,
	)
	if err != nil {
		return fmt.Errorf("mark outbox retry: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark outbox retry rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// MarkOutboxFailed terminates a leased row.
func (s *Store) MarkOutboxFailed(ctx context.Context, kind storage.OutboxKind, id, owner string, reason, errMsg string, processedAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	table, err := outboxTable(kind)
	if err != nil {
		return err
	}
	id = strings.TrimSpace(id)
	owner = strings.TrimSpace(owner)
	if id == "" {
		return fmt.Errorf("outbox event id is required")
	}
	if owner == "" {
		return fmt.Errorf("owner is required")
	}
	if processedAt.IsZero() {
		processedAt = time.Now().UTC()
	}
	processedAt = processedAt.UTC()

	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE `+table+`
SET
	status = ?,
	attempts = attempts + 1,
	owner = '',
	lease_until = NULL,
	processing_started_at = NULL,
	error_reason = ?,
	error = ?,
	processed_at = ?,
	updated_at = ?
WHERE id = ?
AND status = ?
AND owner = ?
`,
		storage.OutboxStatusFailed,
		strings.TrimSpace(reason),
		strings.TrimSpace(errMsg),
		toMicros(processedAt),
		toMicros(processedAt),
		id,
		storage.OutboxStatusProcessing,
		owner,
	)
	if err != nil {
		return fmt.Errorf("mark outbox failed: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark outbox failed rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// SanitizeTerminalOutboxRows clears stray owner/lease values from rows already
// in a terminal status.
func (s *Store) SanitizeTerminalOutboxRows(ctx context.Context, kind storage.OutboxKind, now time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := s.ready(); err != nil {
		return 0, err
	}
	table, err := outboxTable(kind)
	if err != nil {
		return 0, err
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE `+table+`
SET owner = '', lease_until = NULL, processing_started_at = NULL, updated_at = ?
WHERE (status IN (?, ?) OR processed_at IS NOT NULL)
AND (owner <> '' OR lease_until IS NOT NULL OR processing_started_at IS NOT NULL)
`,
		toMicros(now.UTC()),
		storage.OutboxStatusDone,
		storage.OutboxStatusFailed,
	)
	if err != nil {
		return 0, fmt.Errorf("sanitize terminal outbox rows: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sanitize rows affected: %w", err)
	}
	return int(affected), nil
}

// ReclaimStuckOutboxEvents returns rows stuck in processing beyond
// maxProcessing to pending. Attempts are not bumped.
func (s *Store) ReclaimStuckOutboxEvents(ctx context.Context, kind storage.OutboxKind, now time.Time, maxProcessing time.Duration) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := s.ready(); err != nil {
		return 0, err
	}
	table, err := outboxTable(kind)
	if err != nil {
		return 0, err
	}
	if maxProcessing <= 0 {
		return 0, fmt.Errorf("max processing must be greater than zero")
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}
	now = now.UTC()
	deadline := now.Add(-maxProcessing)

	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE `+table+`
SET
	status = ?,
	owner = '',
	lease_until = NULL,
	processing_started_at = NULL,
	replay_count = replay_count + 1,
	updated_at = ?
WHERE status = ?
AND processing_started_at IS NOT NULL
AND processing_started_at < ?
`,
		storage.OutboxStatusPending,
		toMicros(now),
		storage.OutboxStatusProcessing,
		toMicros(deadline),
	)
	if err != nil {
		return 0, fmt.Errorf("reclaim stuck outbox events: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reclaim rows affected: %w", err)
	}
	return int(affected), nil
}

// ReleaseOwnedOutboxEvents returns every row still leased by owner to pending.
func (s *Store) ReleaseOwnedOutboxEvents(ctx context.Context, kind storage.OutboxKind, owner string, now time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := s.ready(); err != nil {
		return 0, err
	}
	table, err := outboxTable(kind)
	if err != nil {
		return 0, err
	}
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return 0, fmt.Errorf("owner is required")
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE `+table+`
SET
	status = ?,
	owner = '',
	lease_until = NULL,
	processing_started_at = NULL,
	updated_at = ?
WHERE status = ?
AND owner = ?
`,
		storage.OutboxStatusPending,
		toMicros(now.UTC()),
		storage.OutboxStatusProcessing,
		owner,
	)
	if err != nil {
		return 0, fmt.Errorf("release owned outbox events: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("release rows affected: %w", err)
	}
	return int(affected), nil
}

// OutboxStats computes the gauge snapshot for one table.
func (s *Store) OutboxStats(ctx context.Context, kind storage.OutboxKind, now time.Time, maxProcessing time.Duration) (storage.OutboxStats, error) {
	if err := ctx.Err(); err != nil {
		return storage.OutboxStats{}, err
	}
	if err := s.ready(); err != nil {
		return storage.OutboxStats{}, err
	}
	table, err := outboxTable(kind)
	if err != nil {
		return storage.OutboxStats{}, err
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}
	now = now.UTC()
	stuckDeadline := now.Add(-maxProcessing)

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT
	COUNT(*) FILTER (WHERE processed_at IS NULL),
	COUNT(*) FILTER (WHERE status = ?),
	COALESCE(MIN(created_at) FILTER (WHERE processed_at IS NULL), 0),
	COUNT(*) FILTER (WHERE status = ? AND processing_started_at IS NOT NULL AND processing_started_at < ?)
FROM `+table+`
`,
		storage.OutboxStatusProcessing,
		storage.OutboxStatusProcessing,
		toMicros(stuckDeadline),
	)

	var stats storage.OutboxStats
	var oldestCreatedAt int64
	if err := row.Scan(&stats.Lag, &stats.Inflight, &oldestCreatedAt, &stats.Stuck); err != nil {
		return storage.OutboxStats{}, fmt.Errorf("outbox stats: %w", err)
	}
	if oldestCreatedAt > 0 {
		age := now.Sub(fromMicros(oldestCreatedAt))
		if age > 0 {
			stats.OldestAge = age
		}
	}
	return stats, nil
}

func scanOutboxEvent(scan func(dest ...any) error) (storage.OutboxEvent, error) {
	var event storage.OutboxEvent
	var leaseUntil, processingStartedAt, nextRetryAt, processedAt sql.NullInt64
	var createdAt, updatedAt int64
	if err := scan(
		&event.ID,
		&event.EntityType,
		&event.EntityID,
		&event.Op,
		&event.EventVersion,
		&event.Status,
		&event.Owner,
		&leaseUntil,
		&processingStartedAt,
		&event.Attempts,
		&nextRetryAt,
		&event.ErrorReason,
		&event.Error,
		&event.ReplayCount,
		&processedAt,
		&event.Traceparent,
		&event.Tracestate,
		&createdAt,
		&updatedAt,
	); err != nil {
		return storage.OutboxEvent{}, err
	}
	event.LeaseUntil = microsPtr(leaseUntil)
	event.ProcessingStartedAt = microsPtr(processingStartedAt)
	event.NextRetryAt = microsPtr(nextRetryAt)
	event.ProcessedAt = microsPtr(processedAt)
	event.CreatedAt = fromMicros(createdAt)
	event.UpdatedAt = fromMicros(updatedAt)
	return event, nil
}
