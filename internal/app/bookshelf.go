package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/wordloom/wordloom/internal/domain/bookshelf"
	apperrors "github.com/wordloom/wordloom/internal/platform/errors"
	"github.com/wordloom/wordloom/internal/storage"
)

// CreateBookshelfInput names the caller-provided shelf metadata.
type CreateBookshelfInput struct {
	LibraryID string
	Name      string
}

// CreateBookshelf creates a user shelf in the actor's library. Shelf names are
// unique per library; collisions surface as BOOKSHELF_NAME_TAKEN.
func (s *Service) CreateBookshelf(ctx context.Context, input CreateBookshelfInput) (bookshelf.Bookshelf, error) {
	if _, err := s.authorizeLibraryID(ctx, input.LibraryID); err != nil {
		return bookshelf.Bookshelf{}, err
	}

	shelf, err := bookshelf.Create(bookshelf.CreateInput{
		LibraryID: input.LibraryID,
		Name:      input.Name,
	}, s.now, s.newID)
	if err != nil {
		return bookshelf.Bookshelf{}, err
	}

	if err := s.stores.Bookshelves.PutBookshelf(ctx, shelf); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return bookshelf.Bookshelf{}, apperrors.New(apperrors.CodeBookshelfNameTaken, "bookshelf name is already used in this library")
		}
		return bookshelf.Bookshelf{}, fmt.Errorf("persist bookshelf: %w", err)
	}
	return shelf, nil
}

// GetBookshelf returns one live shelf owned by the actor.
func (s *Service) GetBookshelf(ctx context.Context, id string) (bookshelf.Bookshelf, error) {
	shelf, err := s.stores.Bookshelves.GetBookshelf(ctx, id)
	if err != nil {
		return bookshelf.Bookshelf{}, err
	}
	if _, err := s.authorizeLibraryID(ctx, shelf.LibraryID); err != nil {
		return bookshelf.Bookshelf{}, err
	}
	return shelf, nil
}

// ListBookshelves pages the shelves of one library.
func (s *Service) ListBookshelves(ctx context.Context, libraryID string, params storage.ListParams) ([]bookshelf.Bookshelf, error) {
	if _, err := s.authorizeLibraryID(ctx, libraryID); err != nil {
		return nil, err
	}
	return s.stores.Bookshelves.ListBookshelvesByLibrary(ctx, libraryID, params)
}

// RenameBookshelf applies a validated name change. The basement shelf is
// system-owned and cannot be renamed.
func (s *Service) RenameBookshelf(ctx context.Context, id, name string) (bookshelf.Bookshelf, error) {
	shelf, err := s.GetBookshelf(ctx, id)
	if err != nil {
		return bookshelf.Bookshelf{}, err
	}
	shelf, err = bookshelf.Rename(shelf, name, s.now)
	if err != nil {
		return bookshelf.Bookshelf{}, err
	}
	if err := s.stores.Bookshelves.PutBookshelf(ctx, shelf); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return bookshelf.Bookshelf{}, apperrors.New(apperrors.CodeBookshelfNameTaken, "bookshelf name is already used in this library")
		}
		return bookshelf.Bookshelf{}, fmt.Errorf("persist bookshelf: %w", err)
	}
	return shelf, nil
}

// ChangeBookshelfStatus applies a lifecycle transition
// (active↔archived, active→deleted).
func (s *Service) ChangeBookshelfStatus(ctx context.Context, id string, target bookshelf.Status) (bookshelf.Bookshelf, error) {
	shelf, err := s.GetBookshelf(ctx, id)
	if err != nil {
		return bookshelf.Bookshelf{}, err
	}
	if shelf.IsBasement {
		return bookshelf.Bookshelf{}, bookshelf.ErrBasementReserved
	}
	shelf, err = bookshelf.Transition(shelf, target, s.now)
	if err != nil {
		return bookshelf.Bookshelf{}, err
	}
	if err := s.stores.Bookshelves.PutBookshelf(ctx, shelf); err != nil {
		return bookshelf.Bookshelf{}, fmt.Errorf("persist bookshelf: %w", err)
	}
	return shelf, nil
}
