// Package bookshelf holds the Bookshelf aggregate. Exactly one bookshelf per
// library is the system-owned basement; it backs the recycle bin for books.
package bookshelf

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	apperrors "github.com/wordloom/wordloom/internal/platform/errors"
	"github.com/wordloom/wordloom/internal/platform/id"
)

// MaxNameLength bounds bookshelf names, counted in characters.
const MaxNameLength = 255

// BasementName is the reserved display name of the basement shelf.
const BasementName = "Basement"

// Status describes the lifecycle of a bookshelf.
type Status int

const (
	// StatusUnspecified represents an invalid status value.
	StatusUnspecified Status = iota
	// StatusActive indicates the bookshelf accepts books.
	StatusActive
	// StatusArchived indicates the bookshelf is read-only.
	StatusArchived
	// StatusDeleted indicates the bookshelf is logically removed.
	StatusDeleted
)

var (
	// ErrEmptyName indicates a missing bookshelf name.
	ErrEmptyName = apperrors.New(apperrors.CodeBookshelfNameEmpty, "bookshelf name is required")
	// ErrNameTooLong indicates a bookshelf name above the length bound.
	ErrNameTooLong = apperrors.New(apperrors.CodeBookshelfNameTooLong, "bookshelf name exceeds 255 characters")
	// ErrBasementReserved indicates an attempt to create or rename a user shelf
	// into the system-owned basement.
	ErrBasementReserved = apperrors.New(apperrors.CodeBookshelfBasementReserved, "basement bookshelf is system-owned")
	// ErrInvalidStatusTransition indicates a disallowed status change.
	ErrInvalidStatusTransition = apperrors.New(apperrors.CodeBookshelfInvalidTransition, "bookshelf status transition is not allowed")
)

// Bookshelf groups books inside one library.
type Bookshelf struct {
	ID        string
	LibraryID string
	// Name is unique within the library.
	Name string
	// IsBasement marks the single system-owned recycle shelf per library.
	IsBasement bool
	Status     Status
	// BookCount is denormalized and maintained by event handlers.
	BookCount int
	Pinned    bool
	Favorite  bool
	// SoftDeletedAt marks logical deletion; nil means live.
	SoftDeletedAt *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// CreateInput describes the metadata needed to create a user bookshelf.
type CreateInput struct {
	LibraryID string
	Name      string
}

// Create creates a user-owned bookshelf. Basement shelves cannot be created
// through this path; the use-case layer calls CreateBasement during library
// creation.
func Create(input CreateInput, now func() time.Time, idGenerator func() (string, error)) (Bookshelf, error) {
	name, err := NormalizeName(input.Name)
	if err != nil {
		return Bookshelf{}, err
	}
	if strings.EqualFold(name, BasementName) {
		return Bookshelf{}, ErrBasementReserved
	}
	return newShelf(input.LibraryID, name, false, now, idGenerator)
}

// CreateBasement creates the system-owned basement shelf for a new library.
func CreateBasement(libraryID string, now func() time.Time, idGenerator func() (string, error)) (Bookshelf, error) {
	return newShelf(libraryID, BasementName, true, now, idGenerator)
}

func newShelf(libraryID, name string, isBasement bool, now func() time.Time, idGenerator func() (string, error)) (Bookshelf, error) {
	if now == nil {
		now = time.Now
	}
	if idGenerator == nil {
		idGenerator = id.NewID
	}

	shelfID, err := idGenerator()
	if err != nil {
		return Bookshelf{}, fmt.Errorf("generate bookshelf id: %w", err)
	}

	createdAt := now().UTC()
	return Bookshelf{
		ID:         shelfID,
		LibraryID:  strings.TrimSpace(libraryID),
		Name:       name,
		IsBasement: isBasement,
		Status:     StatusActive,
		CreatedAt:  createdAt,
		UpdatedAt:  createdAt,
	}, nil
}

// NormalizeName trims and validates a bookshelf name.
func NormalizeName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return "", ErrEmptyName
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return "", ErrNameTooLong
	}
	return name, nil
}

// Rename applies a validated name change. The basement shelf cannot be
// renamed, and no user shelf may take its reserved name.
func Rename(shelf Bookshelf, name string, now func() time.Time) (Bookshelf, error) {
	if now == nil {
		now = time.Now
	}
	if shelf.IsBasement {
		return Bookshelf{}, ErrBasementReserved
	}
	normalized, err := NormalizeName(name)
	if err != nil {
		return Bookshelf{}, err
	}
	if strings.EqualFold(normalized, BasementName) {
		return Bookshelf{}, ErrBasementReserved
	}
	shelf.Name = normalized
	shelf.UpdatedAt = now().UTC()
	return shelf, nil
}

// Transition applies a status change and updates timestamps.
// Allowed: active↔archived, active→deleted.
func Transition(shelf Bookshelf, target Status, now func() time.Time) (Bookshelf, error) {
	if now == nil {
		now = time.Now
	}
	if !transitionAllowed(shelf.Status, target) {
		return Bookshelf{}, ErrInvalidStatusTransition
	}

	updatedAt := now().UTC()
	shelf.Status = target
	shelf.UpdatedAt = updatedAt
	if target == StatusDeleted {
		shelf.SoftDeletedAt = &updatedAt
	}
	return shelf, nil
}

func transitionAllowed(from, to Status) bool {
	switch from {
	case StatusActive:
		return to == StatusArchived || to == StatusDeleted
	case StatusArchived:
		return to == StatusActive
	default:
		return false
	}
}

// Label returns the wire label for a status.
func (s Status) Label() string {
	switch s {
	case StatusActive:
		return "active"
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
	case "active":
		return StatusActive, true
	case "archived":
		return StatusArchived, true
	case "deleted":
		return StatusDeleted, true
	default:
		return StatusUnspecified, false
	}
}
