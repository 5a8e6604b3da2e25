package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/wordloom/wordloom/internal/domain/block"
	"github.com/wordloom/wordloom/internal/domain/book"
	"github.com/wordloom/wordloom/internal/domain/event"
	apperrors "github.com/wordloom/wordloom/internal/platform/errors"
	"github.com/wordloom/wordloom/internal/storage"
)

// ErrBasementMismatch indicates a requested basement shelf that is not the
// book's library basement.
var ErrBasementMismatch = apperrors.New(apperrors.CodeBookLibraryMismatch, "basement bookshelf belongs to a different library")

// MoveBookToBasement soft-deletes a book into its library's basement shelf and
// snapshots the metadata the recycle bin renders. The snapshot is immutable:
// basement listings stay stable no matter what happens to the row afterwards.
// A non-empty basementBookshelfID must name the library's own basement.
func (s *Service) MoveBookToBasement(ctx context.Context, bookID, basementBookshelfID, reason string) (book.Book, error) {
	b, err := s.GetBook(ctx, bookID)
	if err != nil {
		return book.Book{}, err
	}
	basement, err := s.stores.Bookshelves.GetBasementBookshelf(ctx, b.LibraryID)
	if err != nil {
		return book.Book{}, fmt.Errorf("resolve basement shelf: %w", err)
	}
	if basementBookshelfID != "" && basementBookshelfID != basement.ID {
		return book.Book{}, ErrBasementMismatch
	}

	b, err = book.MoveToBasement(b, basement, s.now)
	if err != nil {
		return book.Book{}, err
	}
	if err := s.stores.Books.PutBook(ctx, b); err != nil {
		return book.Book{}, fmt.Errorf("persist book: %w", err)
	}

	entry := storage.BasementEntry{
		BookID:              b.ID,
		LibraryID:           b.LibraryID,
		BookshelfID:         b.BookshelfID,
		PreviousBookshelfID: b.PreviousBookshelfID,
		TitleSnapshot:       b.Title,
		SummarySnapshot:     b.Summary,
		StatusSnapshot:      b.Status.Label(),
		BlockCountSnapshot:  b.BlockCount,
		MovedAt:             *b.MovedToBasementAt,
		CreatedAt:           s.now().UTC(),
	}
	if err := s.stores.Basement.PutBasementEntry(ctx, entry); err != nil {
		return book.Book{}, fmt.Errorf("persist basement entry: %w", err)
	}

	if err := s.recorder.BookMovedToBasement(ctx, b, reason); err != nil {
		return book.Book{}, err
	}
	s.bus.Publish(ctx, book.BasementEvents(b, reason))
	return b, nil
}

// RestoreBookFromBasement returns a basement book to a live shelf: the
// explicit target when the caller names one, otherwise the shelf the book
// came from. A vanished implicit target rejects the restore rather than
// guessing a shelf.
func (s *Service) RestoreBookFromBasement(ctx context.Context, bookID, targetBookshelfID string) (book.Book, error) {
	b, err := s.stores.Books.GetDeletedBook(ctx, bookID)
	if err != nil {
		return book.Book{}, err
	}
	if _, err := s.authorizeLibraryID(ctx, b.LibraryID); err != nil {
		return book.Book{}, err
	}

	implicit := targetBookshelfID == ""
	if implicit {
		targetBookshelfID = b.PreviousBookshelfID
	}
	if targetBookshelfID == "" {
		return book.Book{}, book.ErrRestoreTargetMissing
	}
	target, err := s.stores.Bookshelves.GetBookshelf(ctx, targetBookshelfID)
	if err != nil {
		if implicit && errors.Is(err, storage.ErrNotFound) {
			return book.Book{}, book.ErrRestoreTargetMissing
		}
		return book.Book{}, err
	}

	b, err = book.RestoreFromBasement(b, target, s.now)
	if err != nil {
		return book.Book{}, err
	}
	if err := s.stores.Books.PutBook(ctx, b); err != nil {
		return book.Book{}, fmt.Errorf("persist book: %w", err)
	}
	if err := s.stores.Basement.DeleteBasementEntry(ctx, bookID); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return book.Book{}, fmt.Errorf("delete basement entry: %w", err)
	}

	if err := s.recorder.BookRestored(ctx, b); err != nil {
		return book.Book{}, err
	}
	s.bus.Publish(ctx, []event.Event{book.RestoredEvent(b)})
	return b, nil
}

// HardDeleteBook permanently removes a basement book together with its blocks
// and snapshot. Only basement residents can be hard-deleted; the chronicle
// trail is the one thing that survives.
func (s *Service) HardDeleteBook(ctx context.Context, bookID string) error {
	b, err := s.stores.Books.GetDeletedBook(ctx, bookID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			live, existsErr := s.stores.Books.BookExists(ctx, bookID)
			if existsErr != nil {
				return existsErr
			}
			if live {
				return book.ErrNotInBasement
			}
		}
		return err
	}
	if _, err := s.authorizeLibraryID(ctx, b.LibraryID); err != nil {
		return err
	}

	blocks, err := s.allBlocksIncludingDeleted(ctx, b.ID)
	if err != nil {
		return err
	}
	for _, blk := range blocks {
		if err := s.stores.Blocks.DeleteBlock(ctx, blk.ID); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("delete block: %w", err)
		}
	}
	if err := s.stores.Basement.DeleteBasementEntry(ctx, b.ID); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("delete basement entry: %w", err)
	}
	if err := s.stores.Books.DeleteBook(ctx, b.ID); err != nil {
		return fmt.Errorf("delete book: %w", err)
	}

	if err := s.recorder.BookDeleted(ctx, b); err != nil {
		return err
	}

	// Tear the blocks out of the search index as well; the rows are gone, so
	// the soft-delete envelope is only a deletion signal to the indexer.
	events := []event.Event{book.DeletedEvent(b, s.now().UTC())}
	for _, blk := range blocks {
		events = append(events, event.Event{
			Type:       event.TypeBlockSoftDeleted,
			BookID:     b.ID,
			BlockID:    blk.ID,
			LibraryID:  b.LibraryID,
			OccurredAt: s.now().UTC(),
		})
	}
	s.bus.Publish(ctx, events)
	return nil
}

// ListBasementBooks pages the recycle-bin snapshots of one library, newest
// move first.
func (s *Service) ListBasementBooks(ctx context.Context, libraryID string, skip, limit int) (storage.BasementPage, error) {
	if _, err := s.authorizeLibraryID(ctx, libraryID); err != nil {
		return storage.BasementPage{}, err
	}
	return s.stores.Basement.ListBasementEntries(ctx, libraryID, skip, limit)
}

// allBlocksIncludingDeleted pages every block row of a book, live or not.
func (s *Service) allBlocksIncludingDeleted(ctx context.Context, bookID string) ([]block.Block, error) {
	const pageSize = 500
	var all []block.Block
	for skip := 0; ; skip += pageSize {
		page, err := s.stores.Blocks.ListBlocksByBook(ctx, bookID, storage.ListParams{
			IncludeDeleted: true,
			Skip:           skip,
			Limit:          pageSize,
		})
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < pageSize {
			return all, nil
		}
	}
}
