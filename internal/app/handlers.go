package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/wordloom/wordloom/internal/domain/book"
	"github.com/wordloom/wordloom/internal/domain/event"
	"github.com/wordloom/wordloom/internal/eventbus"
)

// RegisterCascades attaches the denormalization handlers: bookshelf
// book_count, book block_count and the library activity stamp. All of them
// are DB-bound so the bus can scope them per its transaction mode.
func (s *Service) RegisterCascades(bus *eventbus.Bus) {
	bus.RegisterTx(event.TypeBookCreated, "shelf-book-count", s.onBookCreated)
	bus.RegisterTx(event.TypeBookMoved, "shelf-book-count", s.onBookMoved)
	bus.RegisterTx(event.TypeBookSoftDeleted, "shelf-book-count", s.onBookSoftDeleted)
	bus.RegisterTx(event.TypeBookRestored, "shelf-book-count", s.onBookRestored)
	bus.RegisterTx(event.TypeBookDeleted, "shelf-book-count", s.onBookDeleted)

	bus.RegisterTx(event.TypeBlockCreated, "book-block-count", s.blockCountHandler(+1))
	bus.RegisterTx(event.TypeBlockSoftDeleted, "book-block-count", s.blockCountHandler(-1))
	bus.RegisterTx(event.TypeBlockRestored, "book-block-count", s.blockCountHandler(+1))

	bus.RegisterTx(event.TypeBookViewed, "library-activity", s.onLibraryActivity)
}

func (s *Service) onBookCreated(ctx context.Context, evt event.Event, tx *sql.Tx) error {
	var payload book.CreatedPayload
	if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
		return fmt.Errorf("decode book_created payload: %w", err)
	}
	if err := s.adjustShelfCount(ctx, tx, payload.BookshelfID, +1); err != nil {
		return err
	}
	return s.touchLibrary(ctx, tx, evt.LibraryID)
}

func (s *Service) onBookMoved(ctx context.Context, evt event.Event, tx *sql.Tx) error {
	var payload book.MovedPayload
	if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
		return fmt.Errorf("decode book_moved payload: %w", err)
	}
	if err := s.adjustShelfCount(ctx, tx, payload.FromBookshelfID, -1); err != nil {
		return err
	}
	if err := s.adjustShelfCount(ctx, tx, payload.ToBookshelfID, +1); err != nil {
		return err
	}
	return s.touchLibrary(ctx, tx, evt.LibraryID)
}

// onBookSoftDeleted moves the count from the previous shelf to the basement.
// Registered on the canonical type only; the legacy alias carries the same
// payload and must not double-count.
func (s *Service) onBookSoftDeleted(ctx context.Context, evt event.Event, tx *sql.Tx) error {
	var payload book.BasementPayload
	if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
		return fmt.Errorf("decode book_soft_deleted payload: %w", err)
	}
	if err := s.adjustShelfCount(ctx, tx, payload.PreviousBookshelfID, -1); err != nil {
		return err
	}
	if err := s.adjustShelfCount(ctx, tx, payload.BasementBookshelfID, +1); err != nil {
		return err
	}
	return s.touchLibrary(ctx, tx, evt.LibraryID)
}

func (s *Service) onBookRestored(ctx context.Context, evt event.Event, tx *sql.Tx) error {
	var payload book.RestoredPayload
	if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
		return fmt.Errorf("decode book_restored payload: %w", err)
	}
	if err := s.adjustShelfCount(ctx, tx, payload.TargetBookshelfID, +1); err != nil {
		return err
	}
	// The restore payload names only the target; the basement shelf is unique
	// per library, so it decrements by lookup.
	if _, err := tx.ExecContext(ctx, `
UPDATE bookshelves
SET book_count = MAX(book_count - 1, 0), updated_at = ?
WHERE library_id = ? AND is_basement = 1
`, s.now().UTC().UnixMicro(), evt.LibraryID); err != nil {
		return fmt.Errorf("adjust basement book count: %w", err)
	}
	return s.touchLibrary(ctx, tx, evt.LibraryID)
}

func (s *Service) onBookDeleted(ctx context.Context, evt event.Event, tx *sql.Tx) error {
	var payload book.DeletedPayload
	if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
		return fmt.Errorf("decode book_deleted payload: %w", err)
	}
	if err := s.adjustShelfCount(ctx, tx, payload.BasementBookshelfID, -1); err != nil {
		return err
	}
	return s.touchLibrary(ctx, tx, evt.LibraryID)
}

func (s *Service) blockCountHandler(delta int) eventbus.TxFunc {
	return func(ctx context.Context, evt event.Event, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
UPDATE books
SET block_count = MAX(block_count + ?, 0), updated_at = ?
WHERE id = ?
`, delta, s.now().UTC().UnixMicro(), evt.BookID); err != nil {
			return fmt.Errorf("adjust block count: %w", err)
		}
		return nil
	}
}

func (s *Service) onLibraryActivity(ctx context.Context, evt event.Event, tx *sql.Tx) error {
	return s.touchLibrary(ctx, tx, evt.LibraryID)
}

func (s *Service) adjustShelfCount(ctx context.Context, tx *sql.Tx, bookshelfID string, delta int) error {
	if bookshelfID == "" {
		return nil
	}
	if _, err := tx.ExecContext(ctx, `
UPDATE bookshelves
SET book_count = MAX(book_count + ?, 0), updated_at = ?
WHERE id = ?
`, delta, s.now().UTC().UnixMicro(), bookshelfID); err != nil {
		return fmt.Errorf("adjust book count for shelf %s: %w", bookshelfID, err)
	}
	return nil
}

// touchLibrary stamps last_activity_at without churning updated_at, so
// activity never reorders the default library sort.
func (s *Service) touchLibrary(ctx context.Context, tx *sql.Tx, libraryID string) error {
	if libraryID == "" {
		return nil
	}
	if _, err := tx.ExecContext(ctx, `
UPDATE libraries
SET last_activity_at = ?
WHERE id = ?
`, s.now().UTC().UnixMicro(), libraryID); err != nil {
		return fmt.Errorf("touch library %s: %w", libraryID, err)
	}
	return nil
}
