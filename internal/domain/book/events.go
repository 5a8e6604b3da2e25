package book

import (
	"encoding/json"
	"time"

	"github.com/wordloom/wordloom/internal/domain/event"
)

// Event payloads. Every producing code path goes through a typed constructor
// below, keeping the JSON store extensible while the producer surface stays
// closed.

// CreatedPayload records the birth shelf of a book.
type CreatedPayload struct {
	Title       string `json:"title"`
	BookshelfID string `json:"bookshelf_id"`
	LibraryID   string `json:"library_id"`
}

// MovedPayload records a shelf-to-shelf move.
type MovedPayload struct {
	FromBookshelfID string `json:"from_bookshelf_id"`
	ToBookshelfID   string `json:"to_bookshelf_id"`
}

// BasementPayload records a soft delete into the basement.
type BasementPayload struct {
	PreviousBookshelfID string `json:"previous_bookshelf_id"`
	BasementBookshelfID string `json:"basement_bookshelf_id"`
	Reason              string `json:"reason,omitempty"`
}

// RestoredPayload records a restore out of the basement.
type RestoredPayload struct {
	TargetBookshelfID string `json:"target_bookshelf_id"`
}

// RenamedPayload records a title change.
type RenamedPayload struct {
	OldTitle string `json:"old_title"`
	NewTitle string `json:"new_title"`
}

// StageChangedPayload records an editorial status transition.
type StageChangedPayload struct {
	OldStatus string `json:"old_status"`
	NewStatus string `json:"new_status"`
}

// MaturityChangedPayload records a maturity transition.
type MaturityChangedPayload struct {
	OldMaturity  string `json:"old_maturity"`
	NewMaturity  string `json:"new_maturity"`
	CoverCleared bool   `json:"cover_cleared,omitempty"`
}

// CoverChangedPayload records a cover media bind or clear.
type CoverChangedPayload struct {
	CoverMediaID string `json:"cover_media_id"`
}

// DeletedPayload records a permanent delete out of the basement.
type DeletedPayload struct {
	Title               string `json:"title"`
	BasementBookshelfID string `json:"basement_bookshelf_id"`
}

func newEvent(typ event.Type, b Book, occurredAt time.Time, payload any) event.Event {
	payloadJSON, _ := json.Marshal(payload)
	return event.Event{
		Type:        typ,
		BookID:      b.ID,
		LibraryID:   b.LibraryID,
		OccurredAt:  occurredAt.UTC(),
		PayloadJSON: payloadJSON,
	}
}

// CreatedEvent builds the book_created event for a freshly created book.
func CreatedEvent(b Book) event.Event {
	return newEvent(event.TypeBookCreated, b, b.CreatedAt, CreatedPayload{
		Title:       b.Title,
		BookshelfID: b.BookshelfID,
		LibraryID:   b.LibraryID,
	})
}

// MovedEvent builds the book_moved event for a completed move.
func MovedEvent(b Book, fromBookshelfID string) event.Event {
	return newEvent(event.TypeBookMoved, b, b.UpdatedAt, MovedPayload{
		FromBookshelfID: fromBookshelfID,
		ToBookshelfID:   b.BookshelfID,
	})
}

// BasementEvents builds the pair of events emitted by a move to the basement:
// the canonical book_soft_deleted and the legacy book_moved_to_basement alias
// old readers still consume. Both share one occurred_at.
func BasementEvents(b Book, reason string) []event.Event {
	payload := BasementPayload{
		PreviousBookshelfID: b.PreviousBookshelfID,
		BasementBookshelfID: b.BookshelfID,
		Reason:              reason,
	}
	occurredAt := b.UpdatedAt
	return []event.Event{
		newEvent(event.TypeBookMovedToBasement, b, occurredAt, payload),
		newEvent(event.TypeBookSoftDeleted, b, occurredAt, payload),
	}
}

// RestoredEvent builds the book_restored event for a completed restore.
func RestoredEvent(b Book) event.Event {
	return newEvent(event.TypeBookRestored, b, b.UpdatedAt, RestoredPayload{
		TargetBookshelfID: b.BookshelfID,
	})
}

// RenamedEvent builds the book_renamed event.
func RenamedEvent(b Book, oldTitle string) event.Event {
	return newEvent(event.TypeBookRenamed, b, b.UpdatedAt, RenamedPayload{
		OldTitle: oldTitle,
		NewTitle: b.Title,
	})
}

// StageChangedEvent builds the book_stage_changed event.
func StageChangedEvent(b Book, oldStatus Status) event.Event {
	return newEvent(event.TypeBookStageChanged, b, b.UpdatedAt, StageChangedPayload{
		OldStatus: oldStatus.Label(),
		NewStatus: b.Status.Label(),
	})
}

// MaturityChangedEvent builds the book_maturity_recomputed event.
func MaturityChangedEvent(b Book, oldMaturity Maturity, coverCleared bool) event.Event {
	return newEvent(event.TypeBookMaturityRecomputed, b, b.UpdatedAt, MaturityChangedPayload{
		OldMaturity:  oldMaturity.Label(),
		NewMaturity:  b.Maturity.Label(),
		CoverCleared: coverCleared,
	})
}

// CoverChangedEvent builds the cover_changed event.
func CoverChangedEvent(b Book) event.Event {
	return newEvent(event.TypeCoverChanged, b, b.UpdatedAt, CoverChangedPayload{
		CoverMediaID: b.CoverMediaID,
	})
}

// DeletedEvent builds the book_deleted event for a permanent delete. The
// hard-delete trail outlives both the row and its basement snapshot.
func DeletedEvent(b Book, occurredAt time.Time) event.Event {
	return newEvent(event.TypeBookDeleted, b, occurredAt, DeletedPayload{
		Title:               b.Title,
		BasementBookshelfID: b.BookshelfID,
	})
}

// OpenedEvent builds the book_opened event for an explicit open.
func OpenedEvent(b Book, occurredAt time.Time) event.Event {
	return newEvent(event.TypeBookOpened, b, occurredAt, struct{}{})
}
