// Package storage defines the persistence ports for the content lifecycle
// engine. Adapters live in subpackages; use cases depend only on these
// interfaces.
package storage

import (
	"context"
	"time"

	"github.com/wordloom/wordloom/internal/domain/block"
	"github.com/wordloom/wordloom/internal/domain/book"
	"github.com/wordloom/wordloom/internal/domain/bookshelf"
	"github.com/wordloom/wordloom/internal/domain/library"
	apperrors "github.com/wordloom/wordloom/internal/platform/errors"
)

// ErrNotFound indicates a requested persistence record is missing.
// Callers use this to differentiate between legitimate "no such entity" states
// and transport or data corruption failures.
var ErrNotFound = apperrors.New(apperrors.CodeNotFound, "record not found")

// ErrAlreadyExists indicates a business-key collision, such as a duplicate
// bookshelf name within one library.
var ErrAlreadyExists = apperrors.New(apperrors.CodeAlreadyExists, "record already exists")

// LibraryStore owns library rows and their activity counters.
type LibraryStore interface {
	// PutLibrary upserts a library by primary key.
	PutLibrary(ctx context.Context, lib library.Library) error
	// GetLibrary returns one live library; soft-deleted rows are excluded.
	GetLibrary(ctx context.Context, id string) (library.Library, error)
	// ListLibraries returns a page of live libraries for one user.
	ListLibraries(ctx context.Context, params ListLibrariesParams) ([]library.Library, error)
	// DeleteLibrary removes the row permanently.
	DeleteLibrary(ctx context.Context, id string) error
}

// ListLibrariesParams narrows and orders a library listing.
type ListLibrariesParams struct {
	UserID string
	// Query filters by substring match on the name (optional).
	Query string
	// Sort is a key from the closed allow-list; empty means DefaultSort.
	Sort            string
	IncludeArchived bool
	// PinnedFirst orders pinned libraries ahead of the sort key.
	PinnedFirst bool
	Skip        int
	Limit       int
}

// BookshelfStore owns bookshelf rows, including the system basement shelf.
type BookshelfStore interface {
	PutBookshelf(ctx context.Context, shelf bookshelf.Bookshelf) error
	GetBookshelf(ctx context.Context, id string) (bookshelf.Bookshelf, error)
	// GetBasementBookshelf returns the single basement shelf of a library.
	GetBasementBookshelf(ctx context.Context, libraryID string) (bookshelf.Bookshelf, error)
	ListBookshelvesByLibrary(ctx context.Context, libraryID string, params ListParams) ([]bookshelf.Bookshelf, error)
	DeleteBookshelf(ctx context.Context, id string) error
}

// BookStore owns book rows. Reads exclude soft-deleted books unless the
// dedicated deleted-book accessors are used.
type BookStore interface {
	// PutBook upserts a book by primary key; every column is copied from the
	// aggregate, including library_id.
	PutBook(ctx context.Context, b book.Book) error
	// GetBook returns one live book; soft-deleted rows are excluded.
	GetBook(ctx context.Context, id string) (book.Book, error)
	// GetDeletedBook returns one soft-deleted book for restore flows.
	GetDeletedBook(ctx context.Context, id string) (book.Book, error)
	ListBooksByBookshelf(ctx context.Context, bookshelfID string, params ListParams) ([]book.Book, error)
	ListBooksByLibrary(ctx context.Context, libraryID string, params ListParams) ([]book.Book, error)
	// BookExists reports whether a live book row exists.
	BookExists(ctx context.Context, id string) (bool, error)
	// DeleteBook removes the row permanently.
	DeleteBook(ctx context.Context, id string) error
	// CountBooksByBookshelf counts live books on one shelf.
	CountBooksByBookshelf(ctx context.Context, bookshelfID string) (int, error)
}

// BlockStore owns block rows ordered by their fractional keys.
type BlockStore interface {
	PutBlock(ctx context.Context, blk block.Block) error
	// GetBlock returns one live block; soft-deleted rows are excluded.
	GetBlock(ctx context.Context, id string) (block.Block, error)
	// GetDeletedBlock returns one soft-deleted block for restore flows.
	GetDeletedBlock(ctx context.Context, id string) (block.Block, error)
	// ListBlocksByBook returns live blocks in fractional order.
	ListBlocksByBook(ctx context.Context, bookID string, params ListParams) ([]block.Block, error)
	DeleteBlock(ctx context.Context, id string) error
}

// ListParams is the shared pagination and ordering envelope for list reads.
type ListParams struct {
	// Sort is a key from the closed allow-list; empty means DefaultSort.
	Sort string
	// IncludeDeleted opts into soft-deleted rows.
	IncludeDeleted bool
	Skip           int
	Limit          int
}

// BasementEntry is the immutable snapshot taken when a book enters the
// basement. List-basement queries render these snapshots, so recycle-bin
// titles stay stable even if the underlying row changes.
type BasementEntry struct {
	BookID              string
	LibraryID           string
	BookshelfID         string
	PreviousBookshelfID string
	TitleSnapshot       string
	SummarySnapshot     string
	StatusSnapshot      string
	BlockCountSnapshot  int
	MovedAt             time.Time
	CreatedAt           time.Time
}

// BasementPage is one page of basement snapshots ordered by moved_at DESC.
type BasementPage struct {
	Entries []BasementEntry
	HasMore bool
}

// BasementStore owns the recycle-bin snapshots.
type BasementStore interface {
	PutBasementEntry(ctx context.Context, entry BasementEntry) error
	GetBasementEntry(ctx context.Context, bookID string) (BasementEntry, error)
	// ListBasementEntries pages snapshots for one library, newest move first.
	ListBasementEntries(ctx context.Context, libraryID string, skip, limit int) (BasementPage, error)
	DeleteBasementEntry(ctx context.Context, bookID string) error
}

// ProjectionStatus tracks rebuild bookkeeping, one row per projection.
type ProjectionStatus struct {
	ProjectionName string
	LastEventID    string
	LastRunAt      *time.Time
	UpdatedAt      time.Time
}

// ProjectionStatusStore owns per-projection bookkeeping rows.
type ProjectionStatusStore interface {
	PutProjectionStatus(ctx context.Context, status ProjectionStatus) error
	GetProjectionStatus(ctx context.Context, projectionName string) (ProjectionStatus, error)
}
