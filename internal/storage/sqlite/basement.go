package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/wordloom/wordloom/internal/storage"
)

const basementColumns = `
	book_id,
	library_id,
	bookshelf_id,
	previous_bookshelf_id,
	title_snapshot,
	summary_snapshot,
	status_snapshot,
	block_count_snapshot,
	moved_at,
	created_at`

// PutBasementEntry inserts or replaces the snapshot for one book.
func (s *Store) PutBasementEntry(ctx context.Context, entry storage.BasementEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	if strings.TrimSpace(entry.BookID) == "" {
		return fmt.Errorf("book id is required")
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO basement_entries (
	book_id, library_id, bookshelf_id, previous_bookshelf_id,
	title_snapshot, summary_snapshot, status_snapshot, block_count_snapshot,
	moved_at, created_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(book_id) DO UPDATE SET
	library_id = excluded.library_id,
	bookshelf_id = excluded.bookshelf_id,
	previous_bookshelf_id = excluded.previous_bookshelf_id,
	title_snapshot = excluded.title_snapshot,
	summary_snapshot = excluded.summary_snapshot,
	status_snapshot = excluded.status_snapshot,
	block_count_snapshot = excluded.block_count_snapshot,
	moved_at = excluded.moved_at
`,
		entry.BookID,
		entry.LibraryID,
		entry.BookshelfID,
		entry.PreviousBookshelfID,
		entry.TitleSnapshot,
		entry.SummarySnapshot,
		entry.StatusSnapshot,
		entry.BlockCountSnapshot,
		toMicros(entry.MovedAt),
		toMicros(entry.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("put basement entry: %w", err)
	}
	return nil
}

// GetBasementEntry returns the snapshot for one book.
func (s *Store) GetBasementEntry(ctx context.Context, bookID string) (storage.BasementEntry, error) {
	if err := ctx.Err(); err != nil {
		return storage.BasementEntry{}, err
	}
	if err := s.ready(); err != nil {
		return storage.BasementEntry{}, err
	}
	bookID = strings.TrimSpace(bookID)
	if bookID == "" {
		return storage.BasementEntry{}, fmt.Errorf("book id is required")
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT`+basementColumns+`
FROM basement_entries
WHERE book_id = ?
`, bookID)
	entry, err := scanBasementEntry(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.BasementEntry{}, storage.ErrNotFound
		}
		return storage.BasementEntry{}, fmt.Errorf("get basement entry: %w", err)
	}
	return entry, nil
}

// ListBasementEntries pages snapshots for one library, newest move first with
// book_id as tie-break. One extra row is fetched to compute HasMore.
func (s *Store) ListBasementEntries(ctx context.Context, libraryID string, skip, limit int) (storage.BasementPage, error) {
	if err := ctx.Err(); err != nil {
		return storage.BasementPage{}, err
	}
	if err := s.ready(); err != nil {
		return storage.BasementPage{}, err
	}
	libraryID = strings.TrimSpace(libraryID)
	if libraryID == "" {
		return storage.BasementPage{}, fmt.Errorf("library id is required")
	}
	if limit <= 0 {
		limit = 50
	}
	if skip < 0 {
		skip = 0
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT`+basementColumns+`
FROM basement_entries
WHERE library_id = ?
ORDER BY moved_at DESC, book_id ASC
LIMIT ? OFFSET ?
`, libraryID, limit+1, skip)
	if err != nil {
		return storage.BasementPage{}, fmt.Errorf("list basement entries: %w", err)
	}
	defer rows.Close()

	var entries []storage.BasementEntry
	for rows.Next() {
		entry, scanErr := scanBasementEntry(rows.Scan)
		if scanErr != nil {
			return storage.BasementPage{}, fmt.Errorf("scan basement entry: %w", scanErr)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return storage.BasementPage{}, fmt.Errorf("iterate basement entries: %w", err)
	}

	page := storage.BasementPage{Entries: entries}
	if len(entries) > limit {
		page.Entries = entries[:limit]
		page.HasMore = true
	}
	return page, nil
}

// DeleteBasementEntry removes the snapshot for one book.
func (s *Store) DeleteBasementEntry(ctx context.Context, bookID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	bookID = strings.TrimSpace(bookID)
	if bookID == "" {
		return fmt.Errorf("book id is required")
	}

	result, err := s.sqlDB.ExecContext(ctx, `DELETE FROM basement_entries WHERE book_id = ?`, bookID)
	if err != nil {
		return fmt.Errorf("delete basement entry: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete basement entry rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func scanBasementEntry(scan func(dest ...any) error) (storage.BasementEntry, error) {
	var entry storage.BasementEntry
	var movedAt, createdAt int64
	if err := scan(
		&entry.BookID,
		&entry.LibraryID,
		&entry.BookshelfID,
		&entry.PreviousBookshelfID,
		&entry.TitleSnapshot,
		&entry.SummarySnapshot,
		&entry.StatusSnapshot,
		&entry.BlockCountSnapshot,
		&movedAt,
		&createdAt,
	); err != nil {
		return storage.BasementEntry{}, err
	}
	entry.MovedAt = fromMicros(movedAt)
	entry.CreatedAt = fromMicros(createdAt)
	return entry, nil
}
