package chronicle

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/wordloom/wordloom/internal/domain/event"
	"github.com/wordloom/wordloom/internal/platform/requestctx"
	"github.com/wordloom/wordloom/internal/storage"
)

type appendCall struct {
	event  event.Event
	outbox storage.OutboxEvent
}

// fakeChronicleStore captures appended events for envelope assertions.
type fakeChronicleStore struct {
	storage.ChronicleStore
	appends []appendCall
}

func (f *fakeChronicleStore) AppendChronicleEvent(_ context.Context, evt event.Event, outbox storage.OutboxEvent) error {
	f.appends = append(f.appends, appendCall{event: evt, outbox: outbox})
	return nil
}

func newTestRecorder(store *fakeChronicleStore) *Recorder {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	n := 0
	return NewRecorderForTest(store,
		func() time.Time { return now },
		func() (string, error) {
			n++
			return fmt.Sprintf("id-%04d", n), nil
		},
	)
}

func TestRecordFillsEnvelopeDefaults(t *testing.T) {
	store := &fakeChronicleStore{}
	recorder := newTestRecorder(store)

	ctx := requestctx.WithUserID(context.Background(), "user-1")
	ctx = requestctx.WithSource(ctx, "api")
	ctx = requestctx.WithCorrelationID(ctx, "corr-1")

	recorded, err := recorder.Record(ctx, event.Event{
		Type:   event.TypeBookCreated,
		BookID: "book-1",
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}

	if recorded.ID == "" {
		t.Fatal("expected generated event id")
	}
	if recorded.SchemaVersion != event.SchemaVersion {
		t.Fatalf("schema version = %d, want %d", recorded.SchemaVersion, event.SchemaVersion)
	}
	if recorded.Provenance != event.ProvenanceLive {
		t.Fatalf("provenance = %q, want live", recorded.Provenance)
	}
	if recorded.ActorID != "user-1" || recorded.ActorKind != event.ActorKindUser {
		t.Fatalf("actor = %q/%q, want user-1/user", recorded.ActorID, recorded.ActorKind)
	}
	if recorded.Source != "api" || recorded.CorrelationID != "corr-1" {
		t.Fatalf("source/correlation = %q/%q", recorded.Source, recorded.CorrelationID)
	}
	if recorded.OccurredAt.IsZero() {
		t.Fatal("expected occurred_at default")
	}

	if len(store.appends) != 1 {
		t.Fatalf("appends = %d, want 1", len(store.appends))
	}
	outbox := store.appends[0].outbox
	if outbox.Op != storage.OutboxOpUpsert || outbox.EntityID != recorded.ID {
		t.Fatalf("outbox row = %+v", outbox)
	}
	if outbox.EventVersion != recorded.Version() {
		t.Fatalf("outbox version = %d, want %d", outbox.EventVersion, recorded.Version())
	}
}

func TestRecordDefaultsSourceToUnknown(t *testing.T) {
	store := &fakeChronicleStore{}
	recorder := newTestRecorder(store)

	recorded, err := recorder.Record(context.Background(), event.Event{
		Type:   event.TypeBookOpened,
		BookID: "book-1",
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if recorded.Source != SourceUnknown {
		t.Fatalf("source = %q, want %q", recorded.Source, SourceUnknown)
	}
}

func TestRecordKeepsCallerOccurredAt(t *testing.T) {
	store := &fakeChronicleStore{}
	recorder := newTestRecorder(store)

	occurredAt := time.Date(2025, 12, 24, 8, 30, 0, 0, time.UTC)
	recorded, err := recorder.Record(context.Background(), event.Event{
		Type:       event.TypeBookRenamed,
		BookID:     "book-1",
		OccurredAt: occurredAt,
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if !recorded.OccurredAt.Equal(occurredAt) {
		t.Fatalf("occurred_at = %v, want caller-provided %v", recorded.OccurredAt, occurredAt)
	}
	if recorded.Version() != occurredAt.UnixMicro() {
		t.Fatalf("version = %d, want %d", recorded.Version(), occurredAt.UnixMicro())
	}
}

func TestSummarize(t *testing.T) {
	withBlock := event.Event{Type: event.TypeBlockUpdated, BookID: "book-1", BlockID: "blk-1"}
	if got := Summarize(withBlock); got != "block_updated (book=book-1, block=blk-1)" {
		t.Fatalf("summary = %q", got)
	}

	bookOnly := event.Event{Type: event.TypeBookCreated, BookID: "book-1"}
	if got := Summarize(bookOnly); got != "book_created (book=book-1)" {
		t.Fatalf("summary = %q", got)
	}
}

func TestEntryFromEvent(t *testing.T) {
	occurredAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	evt := event.Event{
		ID:            "evt-1",
		Type:          event.TypeBlockUpdated,
		BookID:        "book-1",
		BlockID:       "blk-1",
		ActorID:       "user-1",
		ActorKind:     event.ActorKindUser,
		Source:        "api",
		Provenance:    event.ProvenanceLive,
		SchemaVersion: 1,
		OccurredAt:    occurredAt,
		PayloadJSON:   []byte(`{"snippet":"hi"}`),
	}

	entry := EntryFromEvent(evt)
	if entry.ID != "evt-1" || entry.EventType != event.TypeBlockUpdated {
		t.Fatalf("entry = %+v", entry)
	}
	if entry.ProjectionVersion != ProjectionVersion {
		t.Fatalf("projection version = %d, want %d", entry.ProjectionVersion, ProjectionVersion)
	}
	if entry.Summary != "block_updated (book=book-1, block=blk-1)" {
		t.Fatalf("summary = %q", entry.Summary)
	}
}
