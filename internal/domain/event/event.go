// Package event defines the immutable domain event envelope shared by the
// event bus, the chronicle log, and the search indexer.
package event

import (
	"strings"
	"time"
)

// Type identifies the kind of a domain event. The set is closed: new values
// require coordinated updates in every consumer.
type Type string

// Book lifecycle events.
const (
	TypeBookCreated            Type = "book_created"
	TypeBookMoved              Type = "book_moved"
	TypeBookMovedToBasement    Type = "book_moved_to_basement" // legacy alias kept for old readers
	TypeBookSoftDeleted        Type = "book_soft_deleted"
	TypeBookRestored           Type = "book_restored"
	TypeBookDeleted            Type = "book_deleted"
	TypeBookRenamed            Type = "book_renamed"
	TypeBookUpdated            Type = "book_updated"
	TypeBookOpened             Type = "book_opened"
	TypeBookViewed             Type = "book_viewed"
	TypeBookStageChanged       Type = "book_stage_changed"
	TypeBookMaturityRecomputed Type = "book_maturity_recomputed"
)

// Block events.
const (
	TypeBlockCreated       Type = "block_created"
	TypeBlockUpdated       Type = "block_updated"
	TypeBlockSoftDeleted   Type = "block_soft_deleted"
	TypeBlockRestored      Type = "block_restored"
	TypeBlockTypeChanged   Type = "block_type_changed"
	TypeBlockStatusChanged Type = "block_status_changed"
)

// Structure and progress events.
const (
	TypeStructureTaskCompleted    Type = "structure_task_completed"
	TypeStructureTaskRegressed    Type = "structure_task_regressed"
	TypeCoverChanged              Type = "cover_changed"
	TypeCoverColorChanged         Type = "cover_color_changed"
	TypeContentSnapshotTaken      Type = "content_snapshot_taken"
	TypeWordcountMilestoneReached Type = "wordcount_milestone_reached"
	TypeTodoPromotedFromBlock     Type = "todo_promoted_from_block"
	TypeTodoCompleted             Type = "todo_completed"
	TypeWorkSessionSummary        Type = "work_session_summary"
)

// Tag and focus events.
const (
	TypeTagAddedToBook     Type = "tag_added_to_book"
	TypeTagRemovedFromBook Type = "tag_removed_from_book"
	TypeFocusStarted       Type = "focus_started"
	TypeFocusEnded         Type = "focus_ended"
)

// ActorKind identifies who or what triggered an event.
type ActorKind string

const (
	// ActorKindUser indicates the event was triggered by an authenticated user.
	ActorKindUser ActorKind = "user"
	// ActorKindSystem indicates the event was triggered by the system.
	ActorKindSystem ActorKind = "system"
	// ActorKindJob indicates the event was triggered by a background job.
	ActorKindJob ActorKind = "job"
)

// Provenance distinguishes events recorded live from backfilled history.
type Provenance string

const (
	// ProvenanceLive marks events recorded as they happen.
	ProvenanceLive Provenance = "live"
	// ProvenanceBackfill marks events reconstructed from historical data.
	ProvenanceBackfill Provenance = "backfill"
)

// SchemaVersion is the current payload envelope schema.
const SchemaVersion = 1

// Event is the immutable envelope for one domain occurrence. BookID is the
// aggregate scope for every chronicle event; BlockID narrows block-level
// events.
type Event struct {
	// ID identifies the event (assigned at creation, never reused).
	ID string
	// Type identifies the kind of event.
	Type Type
	// BookID is the book this event belongs to.
	BookID string
	// BlockID narrows the event to one block (optional).
	BlockID string
	// LibraryID scopes search-facing events to a library (optional).
	LibraryID string
	// ActorID identifies the user who triggered the event (optional).
	ActorID string
	// ActorKind identifies the kind of acting principal.
	ActorKind ActorKind
	// Source names the surface that produced the event ("unknown" when absent).
	Source string
	// Provenance distinguishes live recording from backfill.
	Provenance Provenance
	// CorrelationID links the event to the request that caused it (optional).
	CorrelationID string
	// SchemaVersion versions the payload envelope.
	SchemaVersion int
	// OccurredAt is when the event happened. Not globally monotonic; per-entity
	// ordering comes from Version.
	OccurredAt time.Time
	// PayloadJSON holds event-specific data as JSON.
	PayloadJSON []byte
}

// Version derives the monotone per-entity ordinal from OccurredAt microseconds.
func (e Event) Version() int64 {
	return e.OccurredAt.UTC().UnixMicro()
}

// IsValid reports whether the event type belongs to the closed set.
func (t Type) IsValid() bool {
	_, ok := registry[t]
	return ok
}

// ParseType validates a raw string against the closed event-type set.
func ParseType(raw string) (Type, bool) {
	t := Type(strings.TrimSpace(raw))
	if !t.IsValid() {
		return "", false
	}
	return t, true
}

// Types returns every known event type. The slice is a copy.
func Types() []Type {
	out := make([]Type, 0, len(registry))
	for t := range registry {
		out = append(out, t)
	}
	return out
}

var registry = map[Type]struct{}{
	TypeBookCreated:               {},
	TypeBookMoved:                 {},
	TypeBookMovedToBasement:       {},
	TypeBookSoftDeleted:           {},
	TypeBookRestored:              {},
	TypeBookDeleted:               {},
	TypeBookRenamed:               {},
	TypeBookUpdated:               {},
	TypeBookOpened:                {},
	TypeBookViewed:                {},
	TypeBookStageChanged:          {},
	TypeBookMaturityRecomputed:    {},
	TypeBlockCreated:              {},
	TypeBlockUpdated:              {},
	TypeBlockSoftDeleted:          {},
	TypeBlockRestored:             {},
	TypeBlockTypeChanged:          {},
	TypeBlockStatusChanged:        {},
	TypeStructureTaskCompleted:    {},
	TypeStructureTaskRegressed:    {},
	TypeCoverChanged:              {},
	TypeCoverColorChanged:         {},
	TypeContentSnapshotTaken:      {},
	TypeWordcountMilestoneReached: {},
	TypeTodoPromotedFromBlock:     {},
	TypeTodoCompleted:             {},
	TypeWorkSessionSummary:        {},
	TypeTagAddedToBook:            {},
	TypeTagRemovedFromBook:        {},
	TypeFocusStarted:              {},
	TypeFocusEnded:                {},
}
