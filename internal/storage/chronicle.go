package storage

import (
	"context"
	"time"

	"github.com/wordloom/wordloom/internal/domain/event"
)

// ChronicleEntry is the one-per-event projection row read by timeline queries.
type ChronicleEntry struct {
	ID            string
	EventType     event.Type
	BookID        string
	BlockID       string
	ActorID       string
	ActorKind     event.ActorKind
	Source        string
	Provenance    event.Provenance
	CorrelationID string
	SchemaVersion int
	// Summary is the derived human-readable line, e.g.
	// "block_updated (book=X, block=Y)".
	Summary string
	// ProjectionVersion versions the summary derivation rules.
	ProjectionVersion int
	PayloadJSON       []byte
	OccurredAt        time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// ListChronicleEventsParams narrows a chronicle read for one book.
type ListChronicleEventsParams struct {
	BookID string
	// EventTypes filters to the given kinds (empty means all).
	EventTypes []event.Type
	Skip       int
	Limit      int
}

// ChroniclePage is one page of chronicle events, newest first.
type ChroniclePage struct {
	Events  []event.Event
	HasMore bool
}

// ChronicleStore owns the immutable event log, its outbox feed, and the
// chronicle_entries projection.
type ChronicleStore interface {
	// AppendChronicleEvent inserts the immutable event row and its outbox row
	// in one transaction.
	AppendChronicleEvent(ctx context.Context, evt event.Event, outbox OutboxEvent) error
	// GetChronicleEvent returns one event by ID.
	GetChronicleEvent(ctx context.Context, id string) (event.Event, error)
	// ListChronicleEvents pages events for one book, newest occurred_at first.
	ListChronicleEvents(ctx context.Context, params ListChronicleEventsParams) (ChroniclePage, error)
	// ListRecentChronicleEvents returns the newest events for one book.
	ListRecentChronicleEvents(ctx context.Context, bookID string, limit int) ([]event.Event, error)
	// UpsertChronicleEntry writes the projection row keyed by event ID;
	// replaying the same outbox row twice yields the same entry.
	UpsertChronicleEntry(ctx context.Context, entry ChronicleEntry) error
	// GetChronicleEntry returns one projection row by event ID.
	GetChronicleEntry(ctx context.Context, id string) (ChronicleEntry, error)
}
