package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// GetLibraryTags returns the library's tags in insertion order.
func (s *Store) GetLibraryTags(ctx context.Context, libraryID string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.ready(); err != nil {
		return nil, err
	}
	libraryID = strings.TrimSpace(libraryID)
	if libraryID == "" {
		return nil, fmt.Errorf("library id is required")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT tag
FROM library_tags
WHERE library_id = ?
ORDER BY position ASC
`, libraryID)
	if err != nil {
		return nil, fmt.Errorf("list library tags: %w", err)
	}
	defer rows.Close()

	var tags []string
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return nil, fmt.Errorf("scan library tag: %w", err)
		}
		tags = append(tags, tag)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate library tags: %w", err)
	}
	return tags, nil
}

// ReplaceLibraryTags swaps the full tag list in one transaction.
func (s *Store) ReplaceLibraryTags(ctx context.Context, libraryID string, tags []string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	libraryID = strings.TrimSpace(libraryID)
	if libraryID == "" {
		return fmt.Errorf("library id is required")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace library tags: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM library_tags WHERE library_id = ?`, libraryID); err != nil {
		return fmt.Errorf("clear library tags: %w", err)
	}
	for position, tag := range tags {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO library_tags (library_id, tag, position, created_at)
VALUES (?, ?, ?, ?)
`, libraryID, tag, position, toMicros(at)); err != nil {
			return fmt.Errorf("insert library tag: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace library tags: %w", err)
	}
	return nil
}
