package api

import (
	"encoding/json"
	"time"

	"github.com/wordloom/wordloom/internal/domain/block"
	"github.com/wordloom/wordloom/internal/domain/book"
	"github.com/wordloom/wordloom/internal/domain/bookshelf"
	"github.com/wordloom/wordloom/internal/domain/event"
	"github.com/wordloom/wordloom/internal/domain/library"
	"github.com/wordloom/wordloom/internal/storage"
)

// LibraryResponse is the wire shape of a library.
type LibraryResponse struct {
	ID                  string     `json:"id"`
	Name                string     `json:"name"`
	Description         string     `json:"description,omitempty"`
	CoverMediaID        string     `json:"cover_media_id,omitempty"`
	BasementBookshelfID string     `json:"basement_bookshelf_id"`
	Pinned              bool       `json:"pinned"`
	Archived            bool       `json:"archived"`
	ViewsCount          int        `json:"views_count"`
	LastViewedAt        *time.Time `json:"last_viewed_at,omitempty"`
	LastActivityAt      *time.Time `json:"last_activity_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

func toLibraryResponse(lib library.Library) LibraryResponse {
	return LibraryResponse{
		ID:                  lib.ID,
		Name:                lib.Name,
		Description:         lib.Description,
		CoverMediaID:        lib.CoverMediaID,
		BasementBookshelfID: lib.BasementBookshelfID,
		Pinned:              lib.Pinned,
		Archived:            lib.Archived,
		ViewsCount:          lib.ViewsCount,
		LastViewedAt:        lib.LastViewedAt,
		LastActivityAt:      lib.LastActivityAt,
		CreatedAt:           lib.CreatedAt,
		UpdatedAt:           lib.UpdatedAt,
	}
}

// BookshelfResponse is the wire shape of a bookshelf.
type BookshelfResponse struct {
	ID         string    `json:"id"`
	LibraryID  string    `json:"library_id"`
	Name       string    `json:"name"`
	IsBasement bool      `json:"is_basement"`
	Status     string    `json:"status"`
	BookCount  int       `json:"book_count"`
	Pinned     bool      `json:"pinned"`
	Favorite   bool      `json:"favorite"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func toBookshelfResponse(shelf bookshelf.Bookshelf) BookshelfResponse {
	return BookshelfResponse{
		ID:         shelf.ID,
		LibraryID:  shelf.LibraryID,
		Name:       shelf.Name,
		IsBasement: shelf.IsBasement,
		Status:     shelf.Status.Label(),
		BookCount:  shelf.BookCount,
		Pinned:     shelf.Pinned,
		Favorite:   shelf.Favorite,
		CreatedAt:  shelf.CreatedAt,
		UpdatedAt:  shelf.UpdatedAt,
	}
}

// BookResponse is the wire shape of a book.
type BookResponse struct {
	ID                  string     `json:"id"`
	BookshelfID         string     `json:"bookshelf_id"`
	LibraryID           string     `json:"library_id"`
	Title               string     `json:"title"`
	Summary             string     `json:"summary,omitempty"`
	Status              string     `json:"status"`
	Maturity            string     `json:"maturity"`
	CoverIcon           string     `json:"cover_icon,omitempty"`
	CoverMediaID        string     `json:"cover_media_id,omitempty"`
	SoftDeletedAt       *time.Time `json:"soft_deleted_at,omitempty"`
	PreviousBookshelfID string     `json:"previous_bookshelf_id,omitempty"`
	LastOpenedAt        *time.Time `json:"last_opened_at,omitempty"`
	BlockCount          int        `json:"block_count"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

func toBookResponse(b book.Book) BookResponse {
	return BookResponse{
		ID:                  b.ID,
		BookshelfID:         b.BookshelfID,
		LibraryID:           b.LibraryID,
		Title:               b.Title,
		Summary:             b.Summary,
		Status:              b.Status.Label(),
		Maturity:            b.Maturity.Label(),
		CoverIcon:           b.CoverIcon,
		CoverMediaID:        b.CoverMediaID,
		SoftDeletedAt:       b.SoftDeletedAt,
		PreviousBookshelfID: b.PreviousBookshelfID,
		LastOpenedAt:        b.LastOpenedAt,
		BlockCount:          b.BlockCount,
		CreatedAt:           b.CreatedAt,
		UpdatedAt:           b.UpdatedAt,
	}
}

// BlockResponse is the wire shape of a block.
type BlockResponse struct {
	ID            string     `json:"id"`
	BookID        string     `json:"book_id"`
	Type          string     `json:"type"`
	Content       string     `json:"content"`
	Order         float64    `json:"order"`
	HeadingLevel  int        `json:"heading_level,omitempty"`
	SoftDeletedAt *time.Time `json:"soft_deleted_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func toBlockResponse(blk block.Block) BlockResponse {
	return BlockResponse{
		ID:            blk.ID,
		BookID:        blk.BookID,
		Type:          blk.Type,
		Content:       blk.Content,
		Order:         blk.Order,
		HeadingLevel:  blk.HeadingLevel,
		SoftDeletedAt: blk.SoftDeletedAt,
		CreatedAt:     blk.CreatedAt,
		UpdatedAt:     blk.UpdatedAt,
	}
}

// BasementBookResponse renders one recycle-bin snapshot.
type BasementBookResponse struct {
	BookID              string    `json:"book_id"`
	LibraryID           string    `json:"library_id"`
	PreviousBookshelfID string    `json:"previous_bookshelf_id,omitempty"`
	Title               string    `json:"title"`
	Summary             string    `json:"summary,omitempty"`
	Status              string    `json:"status"`
	BlockCount          int       `json:"block_count"`
	MovedAt             time.Time `json:"moved_at"`
}

func toBasementBookResponse(entry storage.BasementEntry) BasementBookResponse {
	return BasementBookResponse{
		BookID:              entry.BookID,
		LibraryID:           entry.LibraryID,
		PreviousBookshelfID: entry.PreviousBookshelfID,
		Title:               entry.TitleSnapshot,
		Summary:             entry.SummarySnapshot,
		Status:              entry.StatusSnapshot,
		BlockCount:          entry.BlockCountSnapshot,
		MovedAt:             entry.MovedAt,
	}
}

// EventResponse is the wire shape of a chronicle event.
type EventResponse struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	BookID        string          `json:"book_id"`
	BlockID       string          `json:"block_id,omitempty"`
	LibraryID     string          `json:"library_id,omitempty"`
	ActorID       string          `json:"actor_id,omitempty"`
	ActorKind     string          `json:"actor_kind"`
	Source        string          `json:"source"`
	Provenance    string          `json:"provenance"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	SchemaVersion int             `json:"schema_version"`
	Payload       json.RawMessage `json:"payload"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

func toEventResponse(evt event.Event) EventResponse {
	payload := json.RawMessage(evt.PayloadJSON)
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}
	return EventResponse{
		ID:            evt.ID,
		Type:          string(evt.Type),
		BookID:        evt.BookID,
		BlockID:       evt.BlockID,
		LibraryID:     evt.LibraryID,
		ActorID:       evt.ActorID,
		ActorKind:     string(evt.ActorKind),
		Source:        evt.Source,
		Provenance:    string(evt.Provenance),
		CorrelationID: evt.CorrelationID,
		SchemaVersion: evt.SchemaVersion,
		Payload:       payload,
		OccurredAt:    evt.OccurredAt,
	}
}

func toEventResponses(events []event.Event) []EventResponse {
	out := make([]EventResponse, 0, len(events))
	for _, evt := range events {
		out = append(out, toEventResponse(evt))
	}
	return out
}
