package sqlite

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/wordloom/wordloom/internal/domain/event"
	"github.com/wordloom/wordloom/internal/storage"
)

func chronicleEvent(id string, typ event.Type, occurredAt time.Time) event.Event {
	return event.Event{
		ID:            id,
		Type:          typ,
		BookID:        "book-1",
		ActorKind:     event.ActorKindUser,
		Source:        "api",
		Provenance:    event.ProvenanceLive,
		SchemaVersion: event.SchemaVersion,
		OccurredAt:    occurredAt,
		PayloadJSON:   []byte(`{"title":"Draft"}`),
	}
}

func TestAppendChronicleEventWritesOutboxRow(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	evt := chronicleEvent("evt-1", event.TypeBookCreated, now)
	outbox := storage.OutboxEvent{
		ID:           "ob-1",
		EntityType:   "chronicle_event",
		EntityID:     evt.ID,
		Op:           storage.OutboxOpUpsert,
		EventVersion: evt.Version(),
	}
	if err := store.AppendChronicleEvent(ctx, evt, outbox); err != nil {
		t.Fatalf("append: %v", err)
	}

	gotEvent, err := store.GetChronicleEvent(ctx, "evt-1")
	if err != nil {
		t.Fatalf("get event: %v", err)
	}
	if gotEvent.Type != event.TypeBookCreated || gotEvent.BookID != "book-1" {
		t.Fatalf("event = %+v", gotEvent)
	}
	if gotEvent.Version() != evt.Version() {
		t.Fatalf("version = %d, want %d", gotEvent.Version(), evt.Version())
	}

	gotOutbox, err := store.GetOutboxEvent(ctx, storage.OutboxKindChronicle, "ob-1")
	if err != nil {
		t.Fatalf("get outbox: %v", err)
	}
	if gotOutbox.Status != storage.OutboxStatusPending || gotOutbox.EventVersion != evt.Version() {
		t.Fatalf("outbox row = %+v", gotOutbox)
	}
}

func TestAppendChronicleEventRejectsUnknownType(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	evt := chronicleEvent("evt-1", event.Type("book_teleported"), now)
	err := store.AppendChronicleEvent(ctx, evt, storage.OutboxEvent{
		ID:           "ob-1",
		EntityType:   "chronicle_event",
		EntityID:     "evt-1",
		Op:           storage.OutboxOpUpsert,
		EventVersion: 1,
	})
	if err == nil {
		t.Fatal("expected append of unknown type to fail")
	}
}

func TestAppendChronicleEventAtomicWithOutbox(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// An invalid outbox row must roll the event insert back.
	evt := chronicleEvent("evt-1", event.TypeBookCreated, now)
	err := store.AppendChronicleEvent(ctx, evt, storage.OutboxEvent{ID: "ob-1"})
	if err == nil {
		t.Fatal("expected append with invalid outbox row to fail")
	}
	if _, err := store.GetChronicleEvent(ctx, "evt-1"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("event after rollback err = %v, want ErrNotFound", err)
	}
}

func TestListChronicleEventsFilterAndPaging(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	types := []event.Type{
		event.TypeBookCreated,
		event.TypeBookRenamed,
		event.TypeBlockUpdated,
		event.TypeBookRenamed,
	}
	for i, typ := range types {
		evt := chronicleEvent(fmt.Sprintf("evt-%d", i), typ, now.Add(time.Duration(i)*time.Second))
		outbox := storage.OutboxEvent{
			ID:           fmt.Sprintf("ob-%d", i),
			EntityType:   "chronicle_event",
			EntityID:     evt.ID,
			Op:           storage.OutboxOpUpsert,
			EventVersion: evt.Version(),
		}
		if err := store.AppendChronicleEvent(ctx, evt, outbox); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	page, err := store.ListChronicleEvents(ctx, storage.ListChronicleEventsParams{BookID: "book-1", Limit: 3})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Events) != 3 || !page.HasMore {
		t.Fatalf("page = %d events, has_more %v; want 3, true", len(page.Events), page.HasMore)
	}
	if page.Events[0].ID != "evt-3" {
		t.Fatalf("first event = %q, want newest evt-3", page.Events[0].ID)
	}

	renames, err := store.ListChronicleEvents(ctx, storage.ListChronicleEventsParams{
		BookID:     "book-1",
		EventTypes: []event.Type{event.TypeBookRenamed},
	})
	if err != nil {
		t.Fatalf("list renames: %v", err)
	}
	if len(renames.Events) != 2 {
		t.Fatalf("renames = %d, want 2", len(renames.Events))
	}
	for _, evt := range renames.Events {
		if evt.Type != event.TypeBookRenamed {
			t.Fatalf("filtered event type = %q", evt.Type)
		}
	}

	recent, err := store.ListRecentChronicleEvents(ctx, "book-1", 2)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recent) != 2 || recent[0].ID != "evt-3" {
		t.Fatalf("recent = %+v, want newest 2", recent)
	}
}

func TestUpsertChronicleEntryIdempotent(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	entry := storage.ChronicleEntry{
		ID:                "evt-1",
		EventType:         event.TypeBlockUpdated,
		BookID:            "book-1",
		BlockID:           "blk-1",
		ActorKind:         event.ActorKindUser,
		Source:            "api",
		Provenance:        event.ProvenanceLive,
		SchemaVersion:     1,
		Summary:           "block_updated (book=book-1, block=blk-1)",
		ProjectionVersion: 1,
		PayloadJSON:       []byte(`{"snippet":"hello"}`),
		OccurredAt:        now,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := store.UpsertChronicleEntry(ctx, entry); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	// Replaying the same row is harmless.
	if err := store.UpsertChronicleEntry(ctx, entry); err != nil {
		t.Fatalf("replay upsert: %v", err)
	}

	got, err := store.GetChronicleEntry(ctx, "evt-1")
	if err != nil {
		t.Fatalf("get entry: %v", err)
	}
	if got.Summary != entry.Summary || got.ProjectionVersion != 1 {
		t.Fatalf("entry = %+v", got)
	}
}
