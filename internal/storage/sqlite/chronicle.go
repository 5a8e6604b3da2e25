package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/wordloom/wordloom/internal/domain/event"
	"github.com/wordloom/wordloom/internal/storage"
)

const chronicleEventColumns = `
	id,
	event_type,
	book_id,
	block_id,
	library_id,
	actor_id,
	actor_kind,
	source,
	provenance,
	correlation_id,
	schema_version,
	payload_json,
	occurred_at,
	created_at`

// AppendChronicleEvent inserts the immutable event row and its outbox row in
// one transaction. Either both become visible or neither does.
func (s *Store) AppendChronicleEvent(ctx context.Context, evt event.Event, outbox storage.OutboxEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	if strings.TrimSpace(evt.ID) == "" {
		return fmt.Errorf("event id is required")
	}
	if !evt.Type.IsValid() {
		return fmt.Errorf("event type %q is not in the closed set", evt.Type)
	}
	if strings.TrimSpace(evt.BookID) == "" {
		return fmt.Errorf("book id is required")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("start append transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	payload := string(evt.PayloadJSON)
	if strings.TrimSpace(payload) == "" {
		payload = "{}"
	}
	createdAt := toMicros(evt.OccurredAt)

	if _, err := tx.ExecContext(ctx, `
INSERT INTO chronicle_events (
	id, event_type, book_id, block_id, library_id, actor_id, actor_kind,
	source, provenance, correlation_id, schema_version, payload_json,
	occurred_at, created_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`,
		evt.ID,
		string(evt.Type),
		evt.BookID,
		evt.BlockID,
		evt.LibraryID,
		evt.ActorID,
		string(evt.ActorKind),
		evt.Source,
		string(evt.Provenance),
		evt.CorrelationID,
		evt.SchemaVersion,
		payload,
		toMicros(evt.OccurredAt),
		createdAt,
	); err != nil {
		if isUniqueViolation(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("insert chronicle event: %w", err)
	}

	if err := enqueueOutboxEvent(ctx, tx, storage.OutboxKindChronicle, outbox); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit append transaction: %w", err)
	}
	return nil
}

// GetChronicleEvent returns one event by ID.
func (s *Store) GetChronicleEvent(ctx context.Context, id string) (event.Event, error) {
	if err := ctx.Err(); err != nil {
		return event.Event{}, err
	}
	if err := s.ready(); err != nil {
		return event.Event{}, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return event.Event{}, fmt.Errorf("event id is required")
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT`+chronicleEventColumns+`
FROM chronicle_events
WHERE id = ?
`, id)
	evt, err := scanChronicleEvent(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return event.Event{}, storage.ErrNotFound
		}
		return event.Event{}, fmt.Errorf("get chronicle event: %w", err)
	}
	return evt, nil
}

// ListChronicleEvents pages events for one book, newest occurred_at first.
func (s *Store) ListChronicleEvents(ctx context.Context, params storage.ListChronicleEventsParams) (storage.ChroniclePage, error) {
	if err := ctx.Err(); err != nil {
		return storage.ChroniclePage{}, err
	}
	if err := s.ready(); err != nil {
		return storage.ChroniclePage{}, err
	}
	bookID := strings.TrimSpace(params.BookID)
	if bookID == "" {
		return storage.ChroniclePage{}, fmt.Errorf("book id is required")
	}
	limit := params.Limit
	if limit <= 0 {
		limit = 50
	}
	skip := params.Skip
	if skip < 0 {
		skip = 0
	}

	query := `
SELECT` + chronicleEventColumns + `
FROM chronicle_events
WHERE book_id = ?`
	args := []any{bookID}
	if len(params.EventTypes) > 0 {
		placeholders := make([]string, 0, len(params.EventTypes))
		for _, t := range params.EventTypes {
			if !t.IsValid() {
				return storage.ChroniclePage{}, fmt.Errorf("event type %q is not in the closed set", t)
			}
			placeholders = append(placeholders, "?")
			args = append(args, string(t))
		}
		query += ` AND event_type IN (` + strings.Join(placeholders, ", ") + `)`
	}
	query += ` ORDER BY occurred_at DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, limit+1, skip)

	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return storage.ChroniclePage{}, fmt.Errorf("list chronicle events: %w", err)
	}
	defer rows.Close()

	var events []event.Event
	for rows.Next() {
		evt, scanErr := scanChronicleEvent(rows.Scan)
		if scanErr != nil {
			return storage.ChroniclePage{}, fmt.Errorf("scan chronicle event: %w", scanErr)
		}
		events = append(events, evt)
	}
	if err := rows.Err(); err != nil {
		return storage.ChroniclePage{}, fmt.Errorf("iterate chronicle events: %w", err)
	}

	page := storage.ChroniclePage{Events: events}
	if len(events) > limit {
		page.Events = events[:limit]
		page.HasMore = true
	}
	return page, nil
}

// ListRecentChronicleEvents returns the newest events for one book.
func (s *Store) ListRecentChronicleEvents(ctx context.Context, bookID string, limit int) ([]event.Event, error) {
	if limit <= 0 {
		limit = 10
	}
	page, err := s.ListChronicleEvents(ctx, storage.ListChronicleEventsParams{BookID: bookID, Limit: limit})
	if err != nil {
		return nil, err
	}
	return page.Events, nil
}

// UpsertChronicleEntry writes the projection row keyed by event ID. Replays
// overwrite the same row, so processing an outbox row twice is harmless.
func (s *Store) UpsertChronicleEntry(ctx context.Context, entry storage.ChronicleEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	if strings.TrimSpace(entry.ID) == "" {
		return fmt.Errorf("entry id is required")
	}

	payload := string(entry.PayloadJSON)
	if strings.TrimSpace(payload) == "" {
		payload = "{}"
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO chronicle_entries (
	id, event_type, book_id, block_id, actor_id, actor_kind, source,
	provenance, correlation_id, schema_version, summary, projection_version,
	payload_json, occurred_at, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	event_type = excluded.event_type,
	book_id = excluded.book_id,
	block_id = excluded.block_id,
	actor_id = excluded.actor_id,
	actor_kind = excluded.actor_kind,
	source = excluded.source,
	provenance = excluded.provenance,
	correlation_id = excluded.correlation_id,
	schema_version = excluded.schema_version,
	summary = excluded.summary,
	projection_version = excluded.projection_version,
	payload_json = excluded.payload_json,
	occurred_at = excluded.occurred_at,
	updated_at = excluded.updated_at
`,
		entry.ID,
		string(entry.EventType),
		entry.BookID,
		entry.BlockID,
		entry.ActorID,
		string(entry.ActorKind),
		entry.Source,
		string(entry.Provenance),
		entry.CorrelationID,
		entry.SchemaVersion,
		entry.Summary,
		entry.ProjectionVersion,
		payload,
		toMicros(entry.OccurredAt),
		toMicros(entry.CreatedAt),
		toMicros(entry.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert chronicle entry: %w", err)
	}
	return nil
}

// GetChronicleEntry returns one projection row by event ID.
func (s *Store) GetChronicleEntry(ctx context.Context, id string) (storage.ChronicleEntry, error) {
	if err := ctx.Err(); err != nil {
		return storage.ChronicleEntry{}, err
	}
	if err := s.ready(); err != nil {
		return storage.ChronicleEntry{}, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return storage.ChronicleEntry{}, fmt.Errorf("entry id is required")
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT
	id,
	event_type,
	book_id,
	block_id,
	actor_id,
	actor_kind,
	source,
	provenance,
	correlation_id,
	schema_version,
	summary,
	projection_version,
	payload_json,
	occurred_at,
	created_at,
	updated_at
FROM chronicle_entries
WHERE id = ?
`, id)

	var entry storage.ChronicleEntry
	var eventType, actorKind, provenance, payload string
	var occurredAt, createdAt, updatedAt int64
	if err := row.Scan(
		&entry.ID,
		&eventType,
		&entry.BookID,
		&entry.BlockID,
		&entry.ActorID,
		&actorKind,
		&entry.Source,
		&provenance,
		&entry.CorrelationID,
		&entry.SchemaVersion,
		&entry.Summary,
		&entry.ProjectionVersion,
		&payload,
		&occurredAt,
		&createdAt,
		&updatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.ChronicleEntry{}, storage.ErrNotFound
		}
		return storage.ChronicleEntry{}, fmt.Errorf("get chronicle entry: %w", err)
	}
	entry.EventType = event.Type(eventType)
	entry.ActorKind = event.ActorKind(actorKind)
	entry.Provenance = event.Provenance(provenance)
	entry.PayloadJSON = []byte(payload)
	entry.OccurredAt = fromMicros(occurredAt)
	entry.CreatedAt = fromMicros(createdAt)
	entry.UpdatedAt = fromMicros(updatedAt)
	return entry, nil
}

func scanChronicleEvent(scan func(dest ...any) error) (event.Event, error) {
	var evt event.Event
	var eventType, actorKind, provenance, payload string
	var occurredAt, createdAt int64
	if err := scan(
		&evt.ID,
		&eventType,
		&evt.BookID,
		&evt.BlockID,
		&evt.LibraryID,
		&evt.ActorID,
		&actorKind,
		&evt.Source,
		&provenance,
		&evt.CorrelationID,
		&evt.SchemaVersion,
		&payload,
		&occurredAt,
		&createdAt,
	); err != nil {
		return event.Event{}, err
	}
	evt.Type = event.Type(eventType)
	evt.ActorKind = event.ActorKind(actorKind)
	evt.Provenance = event.Provenance(provenance)
	evt.PayloadJSON = []byte(payload)
	evt.OccurredAt = fromMicros(occurredAt)
	return evt, nil
}
