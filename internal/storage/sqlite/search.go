package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/wordloom/wordloom/internal/storage"
)

// UpsertSearchDocument writes the document unless the existing row already
// carries an equal or greater event_version. The guard lives in the conflict
// clause so the check and the write are one statement.
func (s *Store) UpsertSearchDocument(ctx context.Context, doc storage.SearchDocument) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := s.ready(); err != nil {
		return false, err
	}
	doc.EntityType = strings.TrimSpace(doc.EntityType)
	doc.EntityID = strings.TrimSpace(doc.EntityID)
	if doc.EntityType == "" || doc.EntityID == "" {
		return false, fmt.Errorf("entity type and entity id are required")
	}
	if doc.EventVersion <= 0 {
		return false, fmt.Errorf("event version must be greater than zero")
	}

	result, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO search_index (
	entity_type, entity_id, library_id, text, snippet, event_version,
	created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(entity_type, entity_id) DO UPDATE SET
	library_id = excluded.library_id,
	text = excluded.text,
	snippet = excluded.snippet,
	event_version = excluded.event_version,
	updated_at = excluded.updated_at
WHERE search_index.event_version < excluded.event_version
`,
		doc.EntityType,
		doc.EntityID,
		doc.LibraryID,
		doc.Text,
		doc.Snippet,
		doc.EventVersion,
		toMicros(doc.CreatedAt),
		toMicros(doc.UpdatedAt),
	)
	if err != nil {
		return false, fmt.Errorf("upsert search document: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("upsert search document rows affected: %w", err)
	}
	return affected > 0, nil
}

// GetSearchDocument returns one row by its composite key.
func (s *Store) GetSearchDocument(ctx context.Context, entityType, entityID string) (storage.SearchDocument, error) {
	if err := ctx.Err(); err != nil {
		return storage.SearchDocument{}, err
	}
	if err := s.ready(); err != nil {
		return storage.SearchDocument{}, err
	}
	entityType = strings.TrimSpace(entityType)
	entityID = strings.TrimSpace(entityID)
	if entityType == "" || entityID == "" {
		return storage.SearchDocument{}, fmt.Errorf("entity type and entity id are required")
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT
	entity_type,
	entity_id,
	library_id,
	text,
	snippet,
	event_version,
	created_at,
	updated_at
FROM search_index
WHERE entity_type = ? AND entity_id = ?
`, entityType, entityID)

	var doc storage.SearchDocument
	var createdAt, updatedAt int64
	if err := row.Scan(
		&doc.EntityType,
		&doc.EntityID,
		&doc.LibraryID,
		&doc.Text,
		&doc.Snippet,
		&doc.EventVersion,
		&createdAt,
		&updatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.SearchDocument{}, storage.ErrNotFound
		}
		return storage.SearchDocument{}, fmt.Errorf("get search document: %w", err)
	}
	doc.CreatedAt = fromMicros(createdAt)
	doc.UpdatedAt = fromMicros(updatedAt)
	return doc, nil
}

// DeleteSearchDocument removes the row. A missing row is not an error.
func (s *Store) DeleteSearchDocument(ctx context.Context, entityType, entityID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	entityType = strings.TrimSpace(entityType)
	entityID = strings.TrimSpace(entityID)
	if entityType == "" || entityID == "" {
		return fmt.Errorf("entity type and entity id are required")
	}

	_, err := s.sqlDB.ExecContext(ctx, `
DELETE FROM search_index WHERE entity_type = ? AND entity_id = ?
`, entityType, entityID)
	if err != nil {
		return fmt.Errorf("delete search document: %w", err)
	}
	return nil
}
