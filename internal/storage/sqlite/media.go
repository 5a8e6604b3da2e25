package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/wordloom/wordloom/internal/storage"
)

// PutMedia inserts or replaces a media row by primary key.
func (s *Store) PutMedia(ctx context.Context, media storage.Media) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	if strings.TrimSpace(media.ID) == "" {
		return fmt.Errorf("media id is required")
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO media (id, library_id, filename, mime, size_bytes, path, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	library_id = excluded.library_id,
	filename = excluded.filename,
	mime = excluded.mime,
	size_bytes = excluded.size_bytes,
	path = excluded.path`,
		media.ID,
		media.LibraryID,
		media.Filename,
		media.MIME,
		media.SizeBytes,
		media.Path,
		toMicros(media.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("put media: %w", err)
	}
	return nil
}

// GetMedia returns one media row by ID.
func (s *Store) GetMedia(ctx context.Context, id string) (storage.Media, error) {
	if err := ctx.Err(); err != nil {
		return storage.Media{}, err
	}
	if err := s.ready(); err != nil {
		return storage.Media{}, err
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT id, library_id, filename, mime, size_bytes, path, created_at
FROM media WHERE id = ?`, id)

	var media storage.Media
	var createdAt int64
	err := row.Scan(&media.ID, &media.LibraryID, &media.Filename, &media.MIME, &media.SizeBytes, &media.Path, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Media{}, storage.ErrNotFound
		}
		return storage.Media{}, fmt.Errorf("get media: %w", err)
	}
	media.CreatedAt = fromMicros(createdAt)
	return media, nil
}

// MediaBytesByLibrary sums the stored bytes of one library's media rows.
func (s *Store) MediaBytesByLibrary(ctx context.Context, libraryID string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := s.ready(); err != nil {
		return 0, err
	}

	var total int64
	err := s.sqlDB.QueryRowContext(ctx, `
SELECT COALESCE(SUM(size_bytes), 0) FROM media WHERE library_id = ?`, libraryID).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum media bytes: %w", err)
	}
	return total, nil
}

// DeleteMedia removes the row permanently.
func (s *Store) DeleteMedia(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}

	result, err := s.sqlDB.ExecContext(ctx, `DELETE FROM media WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete media: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete media rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}
