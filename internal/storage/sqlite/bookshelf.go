package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/wordloom/wordloom/internal/domain/bookshelf"
	"github.com/wordloom/wordloom/internal/storage"
)

const bookshelfColumns = `
	id,
	library_id,
	name,
	is_basement,
	status,
	book_count,
	pinned,
	favorite,
	soft_deleted_at,
	created_at,
	updated_at`

// PutBookshelf upserts a bookshelf by primary key. Duplicate names within one
// library surface as storage.ErrAlreadyExists.
func (s *Store) PutBookshelf(ctx context.Context, shelf bookshelf.Bookshelf) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	if strings.TrimSpace(shelf.ID) == "" {
		return fmt.Errorf("bookshelf id is required")
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO bookshelves (
	id, library_id, name, is_basement, status, book_count,
	pinned, favorite, soft_deleted_at, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	library_id = excluded.library_id,
	name = excluded.name,
	is_basement = excluded.is_basement,
	status = excluded.status,
	book_count = excluded.book_count,
	pinned = excluded.pinned,
	favorite = excluded.favorite,
	soft_deleted_at = excluded.soft_deleted_at,
	updated_at = excluded.updated_at
`,
		shelf.ID,
		shelf.LibraryID,
		shelf.Name,
		boolToInt(shelf.IsBasement),
		shelf.Status.Label(),
		shelf.BookCount,
		boolToInt(shelf.Pinned),
		boolToInt(shelf.Favorite),
		nullMicros(shelf.SoftDeletedAt),
		toMicros(shelf.CreatedAt),
		toMicros(shelf.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("put bookshelf: %w", err)
	}
	return nil
}

// GetBookshelf returns one bookshelf by ID.
func (s *Store) GetBookshelf(ctx context.Context, id string) (bookshelf.Bookshelf, error) {
	if err := ctx.Err(); err != nil {
		return bookshelf.Bookshelf{}, err
	}
	if err := s.ready(); err != nil {
		return bookshelf.Bookshelf{}, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return bookshelf.Bookshelf{}, fmt.Errorf("bookshelf id is required")
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT`+bookshelfColumns+`
FROM bookshelves
WHERE id = ? AND soft_deleted_at IS NULL
`, id)
	shelf, err := scanBookshelf(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return bookshelf.Bookshelf{}, storage.ErrNotFound
		}
		return bookshelf.Bookshelf{}, fmt.Errorf("get bookshelf: %w", err)
	}
	return shelf, nil
}

// GetBasementBookshelf returns the single basement shelf of a library.
func (s *Store) GetBasementBookshelf(ctx context.Context, libraryID string) (bookshelf.Bookshelf, error) {
	if err := ctx.Err(); err != nil {
		return bookshelf.Bookshelf{}, err
	}
	if err := s.ready(); err != nil {
		return bookshelf.Bookshelf{}, err
	}
	libraryID = strings.TrimSpace(libraryID)
	if libraryID == "" {
		return bookshelf.Bookshelf{}, fmt.Errorf("library id is required")
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT`+bookshelfColumns+`
FROM bookshelves
WHERE library_id = ? AND is_basement = 1
`, libraryID)
	shelf, err := scanBookshelf(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return bookshelf.Bookshelf{}, storage.ErrNotFound
		}
		return bookshelf.Bookshelf{}, fmt.Errorf("get basement bookshelf: %w", err)
	}
	return shelf, nil
}

// ListBookshelvesByLibrary returns a page of shelves for one library.
func (s *Store) ListBookshelvesByLibrary(ctx context.Context, libraryID string, params storage.ListParams) ([]bookshelf.Bookshelf, error) {
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
	limit := params.Limit
	if limit <= 0 {
		limit = 50
	}

	query := `
SELECT` + bookshelfColumns + `
FROM bookshelves
WHERE library_id = ?`
	if !params.IncludeDeleted {
		query += ` AND soft_deleted_at IS NULL`
	}
	query += ` ORDER BY ` + orderClause(params.Sort) + ` LIMIT ? OFFSET ?`

	rows, err := s.sqlDB.QueryContext(ctx, query, libraryID, limit, params.Skip)
	if err != nil {
		return nil, fmt.Errorf("list bookshelves: %w", err)
	}
	defer rows.Close()

	var shelves []bookshelf.Bookshelf
	for rows.Next() {
		shelf, scanErr := scanBookshelf(rows.Scan)
		if scanErr != nil {
			return nil, fmt.Errorf("scan bookshelf: %w", scanErr)
		}
		shelves = append(shelves, shelf)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bookshelves: %w", err)
	}
	return shelves, nil
}

// DeleteBookshelf removes the row permanently.
func (s *Store) DeleteBookshelf(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("bookshelf id is required")
	}

	result, err := s.sqlDB.ExecContext(ctx, `DELETE FROM bookshelves WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete bookshelf: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete bookshelf rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func scanBookshelf(scan func(dest ...any) error) (bookshelf.Bookshelf, error) {
	var shelf bookshelf.Bookshelf
	var isBasement, pinned, favorite int
	var status string
	var softDeletedAt sql.NullInt64
	var createdAt, updatedAt int64
	if err := scan(
		&shelf.ID,
		&shelf.LibraryID,
		&shelf.Name,
		&isBasement,
		&status,
		&shelf.BookCount,
		&pinned,
		&favorite,
		&softDeletedAt,
		&createdAt,
		&updatedAt,
	); err != nil {
		return bookshelf.Bookshelf{}, err
	}
	shelf.IsBasement = isBasement != 0
	shelf.Pinned = pinned != 0
	shelf.Favorite = favorite != 0
	if parsed, ok := bookshelf.ParseStatus(status); ok {
		shelf.Status = parsed
	}
	shelf.SoftDeletedAt = microsPtr(softDeletedAt)
	shelf.CreatedAt = fromMicros(createdAt)
	shelf.UpdatedAt = fromMicros(updatedAt)
	return shelf, nil
}
