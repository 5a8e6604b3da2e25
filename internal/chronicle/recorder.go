// Package chronicle records immutable domain events and feeds the projection
// outbox. Every producing code path goes through a typed helper, keeping the
// payload store extensible while the producer surface stays closed.
package chronicle

import (
	"context"
	"fmt"
	"time"

	"github.com/wordloom/wordloom/internal/domain/block"
	"github.com/wordloom/wordloom/internal/domain/book"
	"github.com/wordloom/wordloom/internal/domain/event"
	"github.com/wordloom/wordloom/internal/domain/library"
	"github.com/wordloom/wordloom/internal/platform/id"
	platformotel "github.com/wordloom/wordloom/internal/platform/otel"
	"github.com/wordloom/wordloom/internal/platform/requestctx"
	"github.com/wordloom/wordloom/internal/storage"
)

// SourceUnknown is recorded when the request context names no surface.
const SourceUnknown = "unknown"

// Recorder appends chronicle events together with their outbox rows.
type Recorder struct {
	store storage.ChronicleStore
	now   func() time.Time
	newID func() (string, error)
}

// NewRecorder creates a recorder over the chronicle store.
func NewRecorder(store storage.ChronicleStore) *Recorder {
	return &Recorder{
		store: store,
		now:   time.Now,
		newID: id.NewID,
	}
}

// NewRecorderForTest creates a recorder with injected clock and id source.
func NewRecorderForTest(store storage.ChronicleStore, now func() time.Time, newID func() (string, error)) *Recorder {
	return &Recorder{store: store, now: now, newID: newID}
}

// Record fills the durable envelope defaults and appends the event with its
// outbox row in one transaction. The envelope defaults are schema_version 1,
// provenance live, source and actor values from the request context.
func (r *Recorder) Record(ctx context.Context, evt event.Event) (event.Event, error) {
	if r == nil || r.store == nil {
		return event.Event{}, fmt.Errorf("chronicle recorder is not configured")
	}

	if evt.ID == "" {
		eventID, err := r.newID()
		if err != nil {
			return event.Event{}, fmt.Errorf("generate chronicle event id: %w", err)
		}
		evt.ID = eventID
	}
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = r.now().UTC()
	}
	evt.OccurredAt = evt.OccurredAt.UTC()
	if evt.SchemaVersion == 0 {
		evt.SchemaVersion = event.SchemaVersion
	}
	if evt.Provenance == "" {
		evt.Provenance = event.ProvenanceLive
	}
	if evt.ActorID == "" {
		evt.ActorID = requestctx.UserIDFromContext(ctx)
	}
	if evt.ActorKind == "" {
		if kind := requestctx.ActorKindFromContext(ctx); kind != "" {
			evt.ActorKind = event.ActorKind(kind)
		} else {
			evt.ActorKind = event.ActorKindUser
		}
	}
	if evt.Source == "" {
		evt.Source = requestctx.SourceFromContext(ctx)
	}
	if evt.Source == "" {
		evt.Source = SourceUnknown
	}
	if evt.CorrelationID == "" {
		evt.CorrelationID = requestctx.CorrelationIDFromContext(ctx)
	}

	outboxID, err := r.newID()
	if err != nil {
		return event.Event{}, fmt.Errorf("generate outbox event id: %w", err)
	}
	trace := platformotel.InjectTraceContext(ctx)
	outbox := storage.OutboxEvent{
		ID:           outboxID,
		EntityType:   "chronicle_event",
		EntityID:     evt.ID,
		Op:           storage.OutboxOpUpsert,
		EventVersion: evt.Version(),
		Status:       storage.OutboxStatusPending,
		Traceparent:  trace.Traceparent,
		Tracestate:   trace.Tracestate,
		CreatedAt:    evt.OccurredAt,
		UpdatedAt:    evt.OccurredAt,
	}

	if err := r.store.AppendChronicleEvent(ctx, evt, outbox); err != nil {
		return event.Event{}, fmt.Errorf("append chronicle event: %w", err)
	}
	return evt, nil
}

// recordAll appends a batch of events in order.
func (r *Recorder) recordAll(ctx context.Context, events []event.Event) error {
	for _, evt := range events {
		if _, err := r.Record(ctx, evt); err != nil {
			return err
		}
	}
	return nil
}

// BookCreated records book_created.
func (r *Recorder) BookCreated(ctx context.Context, b book.Book) error {
	_, err := r.Record(ctx, book.CreatedEvent(b))
	return err
}

// BookMoved records book_moved.
func (r *Recorder) BookMoved(ctx context.Context, b book.Book, fromBookshelfID string) error {
	_, err := r.Record(ctx, book.MovedEvent(b, fromBookshelfID))
	return err
}

// BookMovedToBasement records the canonical book_soft_deleted together with
// the legacy book_moved_to_basement alias, sharing one occurred_at.
func (r *Recorder) BookMovedToBasement(ctx context.Context, b book.Book, reason string) error {
	return r.recordAll(ctx, book.BasementEvents(b, reason))
}

// BookRestored records book_restored.
func (r *Recorder) BookRestored(ctx context.Context, b book.Book) error {
	_, err := r.Record(ctx, book.RestoredEvent(b))
	return err
}

// BookRenamed records book_renamed.
func (r *Recorder) BookRenamed(ctx context.Context, b book.Book, oldTitle string) error {
	_, err := r.Record(ctx, book.RenamedEvent(b, oldTitle))
	return err
}

// BookStageChanged records book_stage_changed.
func (r *Recorder) BookStageChanged(ctx context.Context, b book.Book, oldStatus book.Status) error {
	_, err := r.Record(ctx, book.StageChangedEvent(b, oldStatus))
	return err
}

// BookMaturityChanged records book_maturity_recomputed.
func (r *Recorder) BookMaturityChanged(ctx context.Context, b book.Book, oldMaturity book.Maturity, coverCleared bool) error {
	_, err := r.Record(ctx, book.MaturityChangedEvent(b, oldMaturity, coverCleared))
	return err
}

// CoverChanged records cover_changed.
func (r *Recorder) CoverChanged(ctx context.Context, b book.Book) error {
	_, err := r.Record(ctx, book.CoverChangedEvent(b))
	return err
}

// BookDeleted records book_deleted. The hard-delete trail outlives the row.
func (r *Recorder) BookDeleted(ctx context.Context, b book.Book) error {
	_, err := r.Record(ctx, book.DeletedEvent(b, r.now().UTC()))
	return err
}

// BookOpened records book_opened.
func (r *Recorder) BookOpened(ctx context.Context, b book.Book) error {
	_, err := r.Record(ctx, book.OpenedEvent(b, r.now().UTC()))
	return err
}

// LibraryViewed records book_viewed scoped to the library's activity. The
// event reuses the book envelope with the library id carried in the payload.
func (r *Recorder) LibraryViewed(ctx context.Context, lib library.Library, bookID string) error {
	_, err := r.Record(ctx, event.Event{
		Type:        event.TypeBookViewed,
		BookID:      bookID,
		LibraryID:   lib.ID,
		PayloadJSON: library.MarshalViewPayload(lib),
		OccurredAt:  r.now().UTC(),
	})
	return err
}

// BlockCreated records block_created.
func (r *Recorder) BlockCreated(ctx context.Context, blk block.Block) error {
	_, err := r.Record(ctx, block.CreatedEvent(blk))
	return err
}

// BlockUpdated records block_updated.
func (r *Recorder) BlockUpdated(ctx context.Context, blk block.Block) error {
	_, err := r.Record(ctx, block.UpdatedEvent(blk))
	return err
}

// BlockSoftDeleted records block_soft_deleted.
func (r *Recorder) BlockSoftDeleted(ctx context.Context, blk block.Block) error {
	_, err := r.Record(ctx, block.SoftDeletedEvent(blk))
	return err
}

// BlockRestored records block_restored.
func (r *Recorder) BlockRestored(ctx context.Context, blk block.Block) error {
	_, err := r.Record(ctx, block.RestoredEvent(blk))
	return err
}

// BlockTypeChanged records block_type_changed.
func (r *Recorder) BlockTypeChanged(ctx context.Context, blk block.Block, oldType string) error {
	_, err := r.Record(ctx, block.TypeChangedEvent(blk, oldType))
	return err
}
