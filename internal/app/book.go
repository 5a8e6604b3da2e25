package app

import (
	"context"
	"fmt"

	"github.com/wordloom/wordloom/internal/domain/book"
	"github.com/wordloom/wordloom/internal/domain/event"
	"github.com/wordloom/wordloom/internal/storage"
)

// CreateBookInput names the caller-provided book metadata.
type CreateBookInput struct {
	BookshelfID string
	Title       string
	Summary     string
	CoverIcon   string
}

// CreateBook creates a book on a live, non-basement shelf.
func (s *Service) CreateBook(ctx context.Context, input CreateBookInput) (book.Book, error) {
	shelf, err := s.GetBookshelf(ctx, input.BookshelfID)
	if err != nil {
		return book.Book{}, err
	}

	b, err := book.Create(shelf, book.CreateInput{
		Title:     input.Title,
		Summary:   input.Summary,
		CoverIcon: input.CoverIcon,
	}, s.now, s.newID)
	if err != nil {
		return book.Book{}, err
	}
	if err := s.stores.Books.PutBook(ctx, b); err != nil {
		return book.Book{}, fmt.Errorf("persist book: %w", err)
	}

	if err := s.recorder.BookCreated(ctx, b); err != nil {
		return book.Book{}, err
	}
	s.bus.Publish(ctx, []event.Event{book.CreatedEvent(b)})
	return b, nil
}

// GetBook returns one live book owned by the actor.
func (s *Service) GetBook(ctx context.Context, id string) (book.Book, error) {
	b, err := s.stores.Books.GetBook(ctx, id)
	if err != nil {
		return book.Book{}, err
	}
	if _, err := s.authorizeLibraryID(ctx, b.LibraryID); err != nil {
		return book.Book{}, err
	}
	return b, nil
}

// ListBooksByBookshelf pages the live books of one shelf.
func (s *Service) ListBooksByBookshelf(ctx context.Context, bookshelfID string, params storage.ListParams) ([]book.Book, error) {
	if _, err := s.GetBookshelf(ctx, bookshelfID); err != nil {
		return nil, err
	}
	return s.stores.Books.ListBooksByBookshelf(ctx, bookshelfID, params)
}

// ListBooksByLibrary pages the live books of one library.
func (s *Service) ListBooksByLibrary(ctx context.Context, libraryID string, params storage.ListParams) ([]book.Book, error) {
	if _, err := s.authorizeLibraryID(ctx, libraryID); err != nil {
		return nil, err
	}
	return s.stores.Books.ListBooksByLibrary(ctx, libraryID, params)
}

// MoveBook moves a live book to another non-basement shelf in the same
// library.
func (s *Service) MoveBook(ctx context.Context, bookID, targetBookshelfID string) (book.Book, error) {
	b, err := s.GetBook(ctx, bookID)
	if err != nil {
		return book.Book{}, err
	}
	target, err := s.stores.Bookshelves.GetBookshelf(ctx, targetBookshelfID)
	if err != nil {
		return book.Book{}, err
	}

	fromBookshelfID := b.BookshelfID
	b, err = book.MoveToBookshelf(b, target, s.now)
	if err != nil {
		return book.Book{}, err
	}
	if err := s.stores.Books.PutBook(ctx, b); err != nil {
		return book.Book{}, fmt.Errorf("persist book: %w", err)
	}

	if err := s.recorder.BookMoved(ctx, b, fromBookshelfID); err != nil {
		return book.Book{}, err
	}
	s.bus.Publish(ctx, []event.Event{book.MovedEvent(b, fromBookshelfID)})
	return b, nil
}

// RenameBook applies a validated title change.
func (s *Service) RenameBook(ctx context.Context, bookID, title string) (book.Book, error) {
	b, err := s.GetBook(ctx, bookID)
	if err != nil {
		return book.Book{}, err
	}
	oldTitle := b.Title
	b, err = book.Rename(b, title, s.now)
	if err != nil {
		return book.Book{}, err
	}
	if err := s.stores.Books.PutBook(ctx, b); err != nil {
		return book.Book{}, fmt.Errorf("persist book: %w", err)
	}

	if err := s.recorder.BookRenamed(ctx, b, oldTitle); err != nil {
		return book.Book{}, err
	}
	s.bus.Publish(ctx, []event.Event{book.RenamedEvent(b, oldTitle)})
	return b, nil
}

// ChangeBookStage applies an editorial status transition
// (draft→published, published→archived).
func (s *Service) ChangeBookStage(ctx context.Context, bookID string, target book.Status) (book.Book, error) {
	b, err := s.GetBook(ctx, bookID)
	if err != nil {
		return book.Book{}, err
	}
	oldStatus := b.Status
	b, err = book.ChangeStage(b, target, s.now)
	if err != nil {
		return book.Book{}, err
	}
	if err := s.stores.Books.PutBook(ctx, b); err != nil {
		return book.Book{}, fmt.Errorf("persist book: %w", err)
	}

	if err := s.recorder.BookStageChanged(ctx, b, oldStatus); err != nil {
		return book.Book{}, err
	}
	s.bus.Publish(ctx, []event.Event{book.StageChangedEvent(b, oldStatus)})
	return b, nil
}

// ChangeBookMaturity applies a maturity transition. Leaving stable clears the
// cover media binding in the same write.
func (s *Service) ChangeBookMaturity(ctx context.Context, bookID string, target book.Maturity) (book.Book, error) {
	b, err := s.GetBook(ctx, bookID)
	if err != nil {
		return book.Book{}, err
	}
	oldMaturity := b.Maturity
	b, coverCleared, err := book.ChangeMaturity(b, target, s.now)
	if err != nil {
		return book.Book{}, err
	}
	if err := s.stores.Books.PutBook(ctx, b); err != nil {
		return book.Book{}, fmt.Errorf("persist book: %w", err)
	}

	if err := s.recorder.BookMaturityChanged(ctx, b, oldMaturity, coverCleared); err != nil {
		return book.Book{}, err
	}
	s.bus.Publish(ctx, []event.Event{book.MaturityChangedEvent(b, oldMaturity, coverCleared)})
	return b, nil
}

// SetBookCoverMedia binds or clears the book's cover media reference. Binding
// requires stable maturity.
func (s *Service) SetBookCoverMedia(ctx context.Context, bookID, mediaID string) (book.Book, error) {
	b, err := s.GetBook(ctx, bookID)
	if err != nil {
		return book.Book{}, err
	}
	if mediaID != "" {
		if _, err := s.stores.Media.GetMedia(ctx, mediaID); err != nil {
			return book.Book{}, err
		}
	}
	b, err = book.SetCoverMedia(b, mediaID, s.now)
	if err != nil {
		return book.Book{}, err
	}
	if err := s.stores.Books.PutBook(ctx, b); err != nil {
		return book.Book{}, fmt.Errorf("persist book: %w", err)
	}

	if err := s.recorder.CoverChanged(ctx, b); err != nil {
		return book.Book{}, err
	}
	s.bus.Publish(ctx, []event.Event{book.CoverChangedEvent(b)})
	return b, nil
}

// OpenBook stamps the most recent open and records book_opened. Opens do not
// touch updated_at, so they never churn the default sort.
func (s *Service) OpenBook(ctx context.Context, bookID string) (book.Book, error) {
	b, err := s.GetBook(ctx, bookID)
	if err != nil {
		return book.Book{}, err
	}
	b = book.RecordOpen(b, s.now)
	if err := s.stores.Books.PutBook(ctx, b); err != nil {
		return book.Book{}, fmt.Errorf("persist book: %w", err)
	}
	if err := s.recorder.BookOpened(ctx, b); err != nil {
		return book.Book{}, err
	}
	s.bus.Publish(ctx, []event.Event{book.OpenedEvent(b, s.now().UTC())})
	return b, nil
}
