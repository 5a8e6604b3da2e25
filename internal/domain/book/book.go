// Package book holds the Book aggregate and its lifecycle mutators. Every
// mutator returns the updated value plus the domain events it emitted; the
// use-case layer persists first and publishes the events afterwards.
package book

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/wordloom/wordloom/internal/domain/bookshelf"
	apperrors "github.com/wordloom/wordloom/internal/platform/errors"
	"github.com/wordloom/wordloom/internal/platform/id"
)

// MaxTitleLength bounds book titles, counted in characters.
const MaxTitleLength = 255

// Status describes the editorial lifecycle of a book.
type Status int

const (
	// StatusUnspecified represents an invalid status value.
	StatusUnspecified Status = iota
	// StatusDraft indicates the book is being written.
	StatusDraft
	// StatusPublished indicates the book is visible to readers.
	StatusPublished
	// StatusArchived indicates the book is retired but kept.
	StatusArchived
	// StatusDeleted indicates the book is logically removed.
	StatusDeleted
)

// Maturity describes how settled a book's content is.
type Maturity int

const (
	// MaturityUnspecified represents an invalid maturity value.
	MaturityUnspecified Maturity = iota
	// MaturitySeed indicates a freshly planted idea.
	MaturitySeed
	// MaturityGrowing indicates active development.
	MaturityGrowing
	// MaturityStable indicates settled content; only stable books may carry
	// a cover media binding.
	MaturityStable
	// MaturityLegacy indicates content kept for reference only.
	MaturityLegacy
)

var (
	// ErrEmptyTitle indicates a missing book title.
	ErrEmptyTitle = apperrors.New(apperrors.CodeBookTitleEmpty, "book title is required")
	// ErrTitleTooLong indicates a book title above the length bound.
	ErrTitleTooLong = apperrors.New(apperrors.CodeBookTitleTooLong, "book title exceeds 255 characters")
	// ErrInvalidCoverIcon indicates a cover icon that does not normalize to a slug.
	ErrInvalidCoverIcon = apperrors.New(apperrors.CodeBookInvalidCoverIcon, "cover icon must normalize to [a-z0-9-]+")
	// ErrCoverRequiresStable indicates a cover media bind outside stable maturity.
	ErrCoverRequiresStable = apperrors.New(apperrors.CodeBookCoverRequiresStable, "cover media requires stable maturity")
	// ErrLibraryMismatch indicates a move across library boundaries.
	ErrLibraryMismatch = apperrors.New(apperrors.CodeBookLibraryMismatch, "target bookshelf belongs to a different library")
	// ErrTargetIsBasement indicates a user-initiated move into the basement.
	ErrTargetIsBasement = apperrors.New(apperrors.CodeBookMoveTargetIsBasement, "basement cannot be the target of a move")
	// ErrSoftDeleted indicates a mutation on a soft-deleted book.
	ErrSoftDeleted = apperrors.New(apperrors.CodeBookSoftDeleted, "book is soft-deleted")
	// ErrAlreadyInBasement indicates a repeated move to the basement.
	ErrAlreadyInBasement = apperrors.New(apperrors.CodeBookAlreadyInBasement, "book is already in the basement")
	// ErrNotInBasement indicates a restore of a live book.
	ErrNotInBasement = apperrors.New(apperrors.CodeBookNotInBasement, "book is not in the basement")
	// ErrRestoreTargetMissing indicates a restore with no usable target shelf.
	ErrRestoreTargetMissing = apperrors.New(apperrors.CodeBookRestoreTargetMissing, "no restore target bookshelf available")
	// ErrInvalidStatus indicates an unknown status label or transition.
	ErrInvalidStatus = apperrors.New(apperrors.CodeBookInvalidStatus, "book status transition is not allowed")
	// ErrInvalidMaturity indicates an unknown maturity label.
	ErrInvalidMaturity = apperrors.New(apperrors.CodeBookInvalidMaturity, "book maturity is not valid")
)

// Book is the central aggregate of the content lifecycle.
//
// LibraryID is a redundant FK that always equals the owning bookshelf's
// library; it is copied on create and on every move, never inferred, and is
// what authorization checks read.
type Book struct {
	ID          string
	BookshelfID string
	LibraryID   string
	Title       string
	// Summary is optional free-form text.
	Summary  string
	Status   Status
	Maturity Maturity
	// CoverIcon is a normalized [a-z0-9-]+ slug (optional).
	CoverIcon string
	// CoverMediaID references an uploaded cover; non-empty only at stable maturity.
	CoverMediaID string
	// SoftDeletedAt marks the book as basement-resident; nil means live.
	SoftDeletedAt *time.Time
	// PreviousBookshelfID remembers where the book lived before the basement.
	PreviousBookshelfID string
	// MovedToBasementAt is when the book entered the basement.
	MovedToBasementAt *time.Time
	// LastOpenedAt is the most recent recorded open.
	LastOpenedAt *time.Time
	// BlockCount is denormalized and maintained by event handlers.
	BlockCount int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// InBasement reports whether the book currently lives in the basement.
func (b Book) InBasement() bool {
	return b.SoftDeletedAt != nil
}

// CreateInput describes the metadata needed to create a book.
type CreateInput struct {
	Title     string
	Summary   string
	CoverIcon string
}

// Create creates a book on the given shelf. The shelf must not be the
// basement; the caller has already verified it belongs to the actor.
func Create(shelf bookshelf.Bookshelf, input CreateInput, now func() time.Time, idGenerator func() (string, error)) (Book, error) {
	if now == nil {
		now = time.Now
	}
	if idGenerator == nil {
		idGenerator = id.NewID
	}
	if shelf.IsBasement {
		return Book{}, ErrTargetIsBasement
	}

	title, err := NormalizeTitle(input.Title)
	if err != nil {
		return Book{}, err
	}
	coverIcon, err := NormalizeCoverIcon(input.CoverIcon)
	if err != nil {
		return Book{}, err
	}

	bookID, err := idGenerator()
	if err != nil {
		return Book{}, fmt.Errorf("generate book id: %w", err)
	}

	createdAt := now().UTC()
	return Book{
		ID:          bookID,
		BookshelfID: shelf.ID,
		LibraryID:   shelf.LibraryID,
		Title:       title,
		Summary:     strings.TrimSpace(input.Summary),
		Status:      StatusDraft,
		Maturity:    MaturitySeed,
		CoverIcon:   coverIcon,
		CreatedAt:   createdAt,
		UpdatedAt:   createdAt,
	}, nil
}

// NormalizeTitle trims and validates a book title.
func NormalizeTitle(raw string) (string, error) {
	title := strings.TrimSpace(raw)
	if title == "" {
		return "", ErrEmptyTitle
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return "", ErrTitleTooLong
	}
	return title, nil
}

// NormalizeCoverIcon lowercases and validates a cover icon slug. Spaces and
// underscores collapse to hyphens; an empty icon stays empty.
func NormalizeCoverIcon(raw string) (string, error) {
	icon := strings.ToLower(strings.TrimSpace(raw))
	if icon == "" {
		return "", nil
	}
	icon = strings.NewReplacer(" ", "-", "_", "-").Replace(icon)
	for _, r := range icon {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') && r != '-' {
			return "", ErrInvalidCoverIcon
		}
	}
	return icon, nil
}

// MoveToBookshelf moves a live book to another shelf in the same library.
func MoveToBookshelf(b Book, target bookshelf.Bookshelf, now func() time.Time) (Book, error) {
	if now == nil {
		now = time.Now
	}
	if b.InBasement() {
		return Book{}, ErrSoftDeleted
	}
	if target.IsBasement {
		return Book{}, ErrTargetIsBasement
	}
	if target.LibraryID != b.LibraryID {
		return Book{}, ErrLibraryMismatch
	}

	b.BookshelfID = target.ID
	b.LibraryID = target.LibraryID
	b.UpdatedAt = now().UTC()
	return b, nil
}

// MoveToBasement soft-deletes a book into the basement shelf, remembering the
// shelf it came from so a default restore can undo the move.
func MoveToBasement(b Book, basement bookshelf.Bookshelf, now func() time.Time) (Book, error) {
	if now == nil {
		now = time.Now
	}
	if b.InBasement() {
		return Book{}, ErrAlreadyInBasement
	}
	if !basement.IsBasement {
		return Book{}, ErrNotInBasement
	}
	if basement.LibraryID != b.LibraryID {
		return Book{}, ErrLibraryMismatch
	}

	movedAt := now().UTC()
	b.PreviousBookshelfID = b.BookshelfID
	b.BookshelfID = basement.ID
	b.SoftDeletedAt = &movedAt
	b.MovedToBasementAt = &movedAt
	b.UpdatedAt = movedAt
	return b, nil
}

// RestoreFromBasement returns a basement book to a live shelf. The caller
// resolves the target: the explicit request target, or the remembered
// previous shelf when the request omits one.
func RestoreFromBasement(b Book, target bookshelf.Bookshelf, now func() time.Time) (Book, error) {
	if now == nil {
		now = time.Now
	}
	if !b.InBasement() {
		return Book{}, ErrNotInBasement
	}
	if target.IsBasement {
		return Book{}, ErrTargetIsBasement
	}
	if target.LibraryID != b.LibraryID {
		return Book{}, ErrLibraryMismatch
	}

	b.BookshelfID = target.ID
	b.SoftDeletedAt = nil
	b.PreviousBookshelfID = ""
	b.MovedToBasementAt = nil
	b.UpdatedAt = now().UTC()
	return b, nil
}

// Rename applies a validated title change.
func Rename(b Book, title string, now func() time.Time) (Book, error) {
	if now == nil {
		now = time.Now
	}
	normalized, err := NormalizeTitle(title)
	if err != nil {
		return Book{}, err
	}
	b.Title = normalized
	b.UpdatedAt = now().UTC()
	return b, nil
}

// ChangeStage applies an editorial status transition.
// Allowed: draft→published, published→archived.
func ChangeStage(b Book, target Status, now func() time.Time) (Book, error) {
	if now == nil {
		now = time.Now
	}
	if b.InBasement() {
		return Book{}, ErrSoftDeleted
	}
	allowed := (b.Status == StatusDraft && target == StatusPublished) ||
		(b.Status == StatusPublished && target == StatusArchived)
	if !allowed {
		return Book{}, ErrInvalidStatus
	}
	b.Status = target
	b.UpdatedAt = now().UTC()
	return b, nil
}

// ChangeMaturity applies a maturity transition. Transitions are free among
// the four levels, but leaving stable clears any bound cover media in the
// same mutation so the cover-gating invariant never observes a gap.
func ChangeMaturity(b Book, target Maturity, now func() time.Time) (Book, bool, error) {
	if now == nil {
		now = time.Now
	}
	if target < MaturitySeed || target > MaturityLegacy {
		return Book{}, false, ErrInvalidMaturity
	}

	coverCleared := false
	if target != MaturityStable && b.CoverMediaID != "" {
		b.CoverMediaID = ""
		coverCleared = true
	}
	b.Maturity = target
	b.UpdatedAt = now().UTC()
	return b, coverCleared, nil
}

// SetCoverMedia binds or clears the cover media reference. Binding requires
// stable maturity; clearing is allowed unconditionally.
func SetCoverMedia(b Book, mediaID string, now func() time.Time) (Book, error) {
	if now == nil {
		now = time.Now
	}
	mediaID = strings.TrimSpace(mediaID)
	if mediaID != "" && b.Maturity != MaturityStable {
		return Book{}, ErrCoverRequiresStable
	}
	b.CoverMediaID = mediaID
	b.UpdatedAt = now().UTC()
	return b, nil
}

// RecordOpen stamps the most recent open without touching UpdatedAt, so
// reads do not churn the default -updated_at sort.
func RecordOpen(b Book, now func() time.Time) Book {
	if now == nil {
		now = time.Now
	}
	openedAt := now().UTC()
	b.LastOpenedAt = &openedAt
	return b
}

// Label returns the wire label for a status.
func (s Status) Label() string {
	switch s {
	case StatusDraft:
		return "draft"
	case StatusPublished:
		return "published"
	case StatusArchived:
		return "archived"
	case StatusDeleted:
		return "deleted"
	default:
		return "unspecified"
	}
}

// ParseStatus resolves a wire label to a status.
func ParseStatus(raw string) (Status, bool) {
	switch strings.TrimSpace(strings.ToLower(raw)) {
	case "draft":
		return StatusDraft, true
	case "published":
		return StatusPublished, true
	case "archived":
		return StatusArchived, true
	case "deleted":
		return StatusDeleted, true
	default:
		return StatusUnspecified, false
	}
}

// Label returns the wire label for a maturity.
func (m Maturity) Label() string {
	switch m {
	case MaturitySeed:
		return "seed"
	case MaturityGrowing:
		return "growing"
	case MaturityStable:
		return "stable"
	case MaturityLegacy:
		return "legacy"
	default:
		return "unspecified"
	}
}

// ParseMaturity resolves a wire label to a maturity.
func ParseMaturity(raw string) (Maturity, bool) {
	switch strings.TrimSpace(strings.ToLower(raw)) {
	case "seed":
		return MaturitySeed, true
	case "growing":
		return MaturityGrowing, true
	case "stable":
		return MaturityStable, true
	case "legacy":
		return MaturityLegacy, true
	default:
		return MaturityUnspecified, false
	}
}
