package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/wordloom/wordloom/internal/domain/library"
	"github.com/wordloom/wordloom/internal/storage"
)

const libraryColumns = `
	id,
	user_id,
	name,
	description,
	cover_media_id,
	basement_bookshelf_id,
	pinned,
	archived,
	views_count,
	last_viewed_at,
	last_activity_at,
	soft_deleted_at,
	created_at,
	updated_at`

// PutLibrary upserts a library by primary key.
func (s *Store) PutLibrary(ctx context.Context, lib library.Library) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	if strings.TrimSpace(lib.ID) == "" {
		return fmt.Errorf("library id is required")
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO libraries (
	id, user_id, name, description, cover_media_id, basement_bookshelf_id,
	pinned, archived, views_count, last_viewed_at, last_activity_at,
	soft_deleted_at, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	user_id = excluded.user_id,
	name = excluded.name,
	description = excluded.description,
	cover_media_id = excluded.cover_media_id,
	basement_bookshelf_id = excluded.basement_bookshelf_id,
	pinned = excluded.pinned,
	archived = excluded.archived,
	views_count = excluded.views_count,
	last_viewed_at = excluded.last_viewed_at,
	last_activity_at = excluded.last_activity_at,
	soft_deleted_at = excluded.soft_deleted_at,
	updated_at = excluded.updated_at
`,
		lib.ID,
		lib.UserID,
		lib.Name,
		lib.Description,
		lib.CoverMediaID,
		lib.BasementBookshelfID,
		boolToInt(lib.Pinned),
		boolToInt(lib.Archived),
		lib.ViewsCount,
		nullMicros(lib.LastViewedAt),
		nullMicros(lib.LastActivityAt),
		nullMicros(lib.SoftDeletedAt),
		toMicros(lib.CreatedAt),
		toMicros(lib.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("put library: %w", err)
	}
	return nil
}

// GetLibrary returns one live library.
func (s *Store) GetLibrary(ctx context.Context, id string) (library.Library, error) {
	if err := ctx.Err(); err != nil {
		return library.Library{}, err
	}
	if err := s.ready(); err != nil {
		return library.Library{}, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return library.Library{}, fmt.Errorf("library id is required")
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT`+libraryColumns+`
FROM libraries
WHERE id = ? AND soft_deleted_at IS NULL
`, id)
	lib, err := scanLibrary(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return library.Library{}, storage.ErrNotFound
		}
		return library.Library{}, fmt.Errorf("get library: %w", err)
	}
	return lib, nil
}

// ListLibraries returns a page of live libraries for one user.
func (s *Store) ListLibraries(ctx context.Context, params storage.ListLibrariesParams) ([]library.Library, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.ready(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(params.UserID) == "" {
		return nil, fmt.Errorf("user id is required")
	}
	limit := params.Limit
	if limit <= 0 {
		limit = 50
	}

	query := `
SELECT` + libraryColumns + `
FROM libraries
WHERE user_id = ? AND soft_deleted_at IS NULL`
	args := []any{params.UserID}
	if !params.IncludeArchived {
		query += ` AND archived = 0`
	}
	if q := strings.TrimSpace(params.Query); q != "" {
		query += ` AND name LIKE ? ESCAPE '\'`
		args = append(args, "%"+escapeLike(q)+"%")
	}
	query += ` ORDER BY `
	if params.PinnedFirst {
		query += `pinned DESC, `
	}
	query += orderClause(params.Sort) + ` LIMIT ? OFFSET ?`
	args = append(args, limit, params.Skip)

	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list libraries: %w", err)
	}
	defer rows.Close()

	var libs []library.Library
	for rows.Next() {
		lib, scanErr := scanLibrary(rows.Scan)
		if scanErr != nil {
			return nil, fmt.Errorf("scan library: %w", scanErr)
		}
		libs = append(libs, lib)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate libraries: %w", err)
	}
	return libs, nil
}

// DeleteLibrary removes the row permanently.
func (s *Store) DeleteLibrary(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("library id is required")
	}

	result, err := s.sqlDB.ExecContext(ctx, `DELETE FROM libraries WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete library: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete library rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func scanLibrary(scan func(dest ...any) error) (library.Library, error) {
	var lib library.Library
	var pinned, archived int
	var lastViewedAt, lastActivityAt, softDeletedAt sql.NullInt64
	var createdAt, updatedAt int64
	if err := scan(
		&lib.ID,
		&lib.UserID,
		&lib.Name,
		&lib.Description,
		&lib.CoverMediaID,
		&lib.BasementBookshelfID,
		&pinned,
		&archived,
		&lib.ViewsCount,
		&lastViewedAt,
		&lastActivityAt,
		&softDeletedAt,
		&createdAt,
		&updatedAt,
	); err != nil {
		return library.Library{}, err
	}
	lib.Pinned = pinned != 0
	lib.Archived = archived != 0
	lib.LastViewedAt = microsPtr(lastViewedAt)
	lib.LastActivityAt = microsPtr(lastActivityAt)
	lib.SoftDeletedAt = microsPtr(softDeletedAt)
	lib.CreatedAt = fromMicros(createdAt)
	lib.UpdatedAt = fromMicros(updatedAt)
	return lib, nil
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func escapeLike(value string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(value)
}
