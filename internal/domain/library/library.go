// Package library holds the Library aggregate: the top-level container for a
// user's bookshelves, including the system-owned basement shelf reference.
package library

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	apperrors "github.com/wordloom/wordloom/internal/platform/errors"
	"github.com/wordloom/wordloom/internal/platform/id"
)

// MaxNameLength bounds library names, counted in characters.
const MaxNameLength = 255

var (
	// ErrEmptyName indicates a missing library name.
	ErrEmptyName = apperrors.New(apperrors.CodeLibraryNameEmpty, "library name is required")
	// ErrNameTooLong indicates a library name above the length bound.
	ErrNameTooLong = apperrors.New(apperrors.CodeLibraryNameTooLong, "library name exceeds 255 characters")
)

// Library represents the top-level content container for one user.
//
// BasementBookshelfID is a weak back-reference to the single basement shelf;
// the aggregate never holds the shelf in memory, callers resolve it by id.
type Library struct {
	ID     string
	UserID string
	Name   string
	// Description is optional free-form text.
	Description string
	// CoverMediaID references an uploaded cover image (optional).
	CoverMediaID string
	// BasementBookshelfID points at this library's basement shelf.
	BasementBookshelfID string
	Pinned              bool
	Archived            bool
	// ViewsCount counts recorded library views.
	ViewsCount int
	// LastViewedAt is the timestamp of the most recent recorded view.
	LastViewedAt *time.Time
	// LastActivityAt is the timestamp of the most recent content mutation.
	LastActivityAt *time.Time
	// SoftDeletedAt marks logical deletion; nil means live.
	SoftDeletedAt *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// CreateInput describes the metadata needed to create a library.
type CreateInput struct {
	UserID      string
	Name        string
	Description string
}

// Create creates a new library with a generated ID and timestamps. The
// basement shelf is created by the use-case layer and linked afterwards via
// LinkBasementShelf so the two aggregates stay acyclic in memory.
func Create(input CreateInput, now func() time.Time, idGenerator func() (string, error)) (Library, error) {
	if now == nil {
		now = time.Now
	}
	if idGenerator == nil {
		idGenerator = id.NewID
	}

	name, err := NormalizeName(input.Name)
	if err != nil {
		return Library{}, err
	}

	libraryID, err := idGenerator()
	if err != nil {
		return Library{}, fmt.Errorf("generate library id: %w", err)
	}

	createdAt := now().UTC()
	return Library{
		ID:          libraryID,
		UserID:      strings.TrimSpace(input.UserID),
		Name:        name,
		Description: strings.TrimSpace(input.Description),
		CreatedAt:   createdAt,
		UpdatedAt:   createdAt,
	}, nil
}

// NormalizeName trims and validates a library name.
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

// LinkBasementShelf records the weak reference to the basement shelf.
func LinkBasementShelf(lib Library, shelfID string, now func() time.Time) Library {
	if now == nil {
		now = time.Now
	}
	lib.BasementBookshelfID = strings.TrimSpace(shelfID)
	lib.UpdatedAt = now().UTC()
	return lib
}

// Rename applies a validated name change.
func Rename(lib Library, name string, now func() time.Time) (Library, error) {
	if now == nil {
		now = time.Now
	}
	normalized, err := NormalizeName(name)
	if err != nil {
		return Library{}, err
	}
	lib.Name = normalized
	lib.UpdatedAt = now().UTC()
	return lib, nil
}

// RecordView bumps the activity counters for one library view.
func RecordView(lib Library, now func() time.Time) Library {
	if now == nil {
		now = time.Now
	}
	viewedAt := now().UTC()
	lib.ViewsCount++
	lib.LastViewedAt = &viewedAt
	lib.LastActivityAt = &viewedAt
	return lib
}

// TouchActivity stamps LastActivityAt for a content mutation inside the library.
func TouchActivity(lib Library, now func() time.Time) Library {
	if now == nil {
		now = time.Now
	}
	activityAt := now().UTC()
	lib.LastActivityAt = &activityAt
	return lib
}

// ViewPayload is the chronicle payload for library view events.
type ViewPayload struct {
	LibraryID  string `json:"library_id"`
	ViewsCount int    `json:"views_count"`
}

// MarshalViewPayload renders the view payload for the chronicle recorder.
func MarshalViewPayload(lib Library) []byte {
	payload, _ := json.Marshal(ViewPayload{LibraryID: lib.ID, ViewsCount: lib.ViewsCount})
	return payload
}
