package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/wordloom/wordloom/internal/domain/book"
	"github.com/wordloom/wordloom/internal/storage"
)

const bookColumns = `
	id,
	bookshelf_id,
	library_id,
	title,
	summary,
	status,
	maturity,
	cover_icon,
	cover_media_id,
	soft_deleted_at,
	previous_bookshelf_id,
	moved_to_basement_at,
	last_opened_at,
	block_count,
	created_at,
	updated_at`

// PutBook upserts a book by primary key. Every column is copied from the
// aggregate, including library_id; it is never inferred from the shelf row.
func (s *Store) PutBook(ctx context.Context, b book.Book) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	if strings.TrimSpace(b.ID) == "" {
		return fmt.Errorf("book id is required")
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO books (
	id, bookshelf_id, library_id, title, summary, status, maturity,
	cover_icon, cover_media_id, soft_deleted_at, previous_bookshelf_id,
	moved_to_basement_at, last_opened_at, block_count, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	bookshelf_id = excluded.bookshelf_id,
	library_id = excluded.library_id,
	title = excluded.title,
	summary = excluded.summary,
	status = excluded.status,
	maturity = excluded.maturity,
	cover_icon = excluded.cover_icon,
	cover_media_id = excluded.cover_media_id,
	soft_deleted_at = excluded.soft_deleted_at,
	previous_bookshelf_id = excluded.previous_bookshelf_id,
	moved_to_basement_at = excluded.moved_to_basement_at,
	last_opened_at = excluded.last_opened_at,
	block_count = excluded.block_count,
	updated_at = excluded.updated_at
`,
		b.ID,
		b.BookshelfID,
		b.LibraryID,
		b.Title,
		b.Summary,
		b.Status.Label(),
		b.Maturity.Label(),
		b.CoverIcon,
		b.CoverMediaID,
		nullMicros(b.SoftDeletedAt),
		b.PreviousBookshelfID,
		nullMicros(b.MovedToBasementAt),
		nullMicros(b.LastOpenedAt),
		b.BlockCount,
		toMicros(b.CreatedAt),
		toMicros(b.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("put book: %w", err)
	}
	return nil
}

// GetBook returns one live book; soft-deleted rows are excluded.
func (s *Store) GetBook(ctx context.Context, id string) (book.Book, error) {
	return s.getBook(ctx, id, false)
}

// GetDeletedBook returns one soft-deleted book for restore flows.
func (s *Store) GetDeletedBook(ctx context.Context, id string) (book.Book, error) {
	return s.getBook(ctx, id, true)
}

func (s *Store) getBook(ctx context.Context, id string, deleted bool) (book.Book, error) {
	if err := ctx.Err(); err != nil {
		return book.Book{}, err
	}
	if err := s.ready(); err != nil {
		return book.Book{}, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return book.Book{}, fmt.Errorf("book id is required")
	}

	filter := "soft_deleted_at IS NULL"
	if deleted {
		filter = "soft_deleted_at IS NOT NULL"
	}
	row := s.sqlDB.QueryRowContext(ctx, `
SELECT`+bookColumns+`
FROM books
WHERE id = ? AND `+filter+`
`, id)
	b, err := scanBook(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return book.Book{}, storage.ErrNotFound
		}
		return book.Book{}, fmt.Errorf("get book: %w", err)
	}
	return b, nil
}

// ListBooksByBookshelf returns a page of books on one shelf.
func (s *Store) ListBooksByBookshelf(ctx context.Context, bookshelfID string, params storage.ListParams) ([]book.Book, error) {
	return s.listBooks(ctx, "bookshelf_id", bookshelfID, params)
}

// ListBooksByLibrary returns a page of books across one library.
func (s *Store) ListBooksByLibrary(ctx context.Context, libraryID string, params storage.ListParams) ([]book.Book, error) {
	return s.listBooks(ctx, "library_id", libraryID, params)
}

func (s *Store) listBooks(ctx context.Context, column, value string, params storage.ListParams) ([]book.Book, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.ready(); err != nil {
		return nil, err
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, fmt.Errorf("%s is required", column)
	}
	limit := params.Limit
	if limit <= 0 {
		limit = 50
	}

	query := `
SELECT` + bookColumns + `
FROM books
WHERE ` + column + ` = ?`
	if !params.IncludeDeleted {
		query += ` AND soft_deleted_at IS NULL`
	}
	query += ` ORDER BY ` + orderClause(params.Sort) + ` LIMIT ? OFFSET ?`

	rows, err := s.sqlDB.QueryContext(ctx, query, value, limit, params.Skip)
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	defer rows.Close()

	var books []book.Book
	for rows.Next() {
		b, scanErr := scanBook(rows.Scan)
		if scanErr != nil {
			return nil, fmt.Errorf("scan book: %w", scanErr)
		}
		books = append(books, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate books: %w", err)
	}
	return books, nil
}

// BookExists reports whether a live book row exists.
func (s *Store) BookExists(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := s.ready(); err != nil {
		return false, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return false, fmt.Errorf("book id is required")
	}

	var found int
	row := s.sqlDB.QueryRowContext(ctx, `
SELECT 1 FROM books WHERE id = ? AND soft_deleted_at IS NULL
`, id)
	if err := row.Scan(&found); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("book exists: %w", err)
	}
	return true, nil
}

// DeleteBook removes the row permanently.
func (s *Store) DeleteBook(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("book id is required")
	}

	result, err := s.sqlDB.ExecContext(ctx, `DELETE FROM books WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete book: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete book rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// CountBooksByBookshelf counts live books on one shelf.
func (s *Store) CountBooksByBookshelf(ctx context.Context, bookshelfID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := s.ready(); err != nil {
		return 0, err
	}
	bookshelfID = strings.TrimSpace(bookshelfID)
	if bookshelfID == "" {
		return 0, fmt.Errorf("bookshelf id is required")
	}

	var count int
	row := s.sqlDB.QueryRowContext(ctx, `
SELECT COUNT(*) FROM books WHERE bookshelf_id = ? AND soft_deleted_at IS NULL
`, bookshelfID)
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count books: %w", err)
	}
	return count, nil
}

func scanBook(scan func(dest ...any) error) (book.Book, error) {
	var b book.Book
	var status, maturity string
	var softDeletedAt, movedToBasementAt, lastOpenedAt sql.NullInt64
	var createdAt, updatedAt int64
	if err := scan(
		&b.ID,
		&b.BookshelfID,
		&b.LibraryID,
		&b.Title,
		&b.Summary,
		&status,
		&maturity,
		&b.CoverIcon,
		&b.CoverMediaID,
		&softDeletedAt,
		&b.PreviousBookshelfID,
		&movedToBasementAt,
		&lastOpenedAt,
		&b.BlockCount,
		&createdAt,
		&updatedAt,
	); err != nil {
		return book.Book{}, err
	}
	if parsed, ok := book.ParseStatus(status); ok {
		b.Status = parsed
	}
	if parsed, ok := book.ParseMaturity(maturity); ok {
		b.Maturity = parsed
	}
	b.SoftDeletedAt = microsPtr(softDeletedAt)
	b.MovedToBasementAt = microsPtr(movedToBasementAt)
	b.LastOpenedAt = microsPtr(lastOpenedAt)
	b.CreatedAt = fromMicros(createdAt)
	b.UpdatedAt = fromMicros(updatedAt)
	return b, nil
}
