// Package search maintains the denormalized search table and the outbox feed
// that propagates it to the external engine.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/wordloom/wordloom/internal/domain/block"
	"github.com/wordloom/wordloom/internal/domain/event"
	"github.com/wordloom/wordloom/internal/eventbus"
	"github.com/wordloom/wordloom/internal/platform/id"
	platformotel "github.com/wordloom/wordloom/internal/platform/otel"
	"github.com/wordloom/wordloom/internal/storage"
)

// Indexer reacts to domain events by upserting search documents and enqueuing
// the matching search-outbox rows.
type Indexer struct {
	search storage.SearchStore
	outbox storage.OutboxStore
	blocks storage.BlockStore
	books  storage.BookStore
	now    func() time.Time
	newID  func() (string, error)
}

// NewIndexer creates an indexer over the search, outbox and lookup stores.
func NewIndexer(search storage.SearchStore, outbox storage.OutboxStore, blocks storage.BlockStore, books storage.BookStore) *Indexer {
	return &Indexer{
		search: search,
		outbox: outbox,
		blocks: blocks,
		books:  books,
		now:    time.Now,
		newID:  id.NewID,
	}
}

// NewIndexerForTest creates an indexer with injected clock and id source.
func NewIndexerForTest(search storage.SearchStore, outbox storage.OutboxStore, blocks storage.BlockStore, books storage.BookStore, now func() time.Time, newID func() (string, error)) *Indexer {
	return &Indexer{search: search, outbox: outbox, blocks: blocks, books: books, now: now, newID: newID}
}

// Register attaches the indexer to every event type it reacts to.
func (ix *Indexer) Register(bus *eventbus.Bus) {
	handled := []event.Type{
		event.TypeBlockCreated,
		event.TypeBlockUpdated,
		event.TypeBlockRestored,
		event.TypeBlockTypeChanged,
		event.TypeBlockSoftDeleted,
		event.TypeTagAddedToBook,
		event.TypeTagRemovedFromBook,
	}
	for _, typ := range handled {
		bus.RegisterPure(typ, "search-indexer", ix.Apply)
	}
}

// Apply routes one event to the matching index operation.
func (ix *Indexer) Apply(ctx context.Context, evt event.Event) error {
	switch evt.Type {
	case event.TypeBlockCreated, event.TypeBlockUpdated, event.TypeBlockRestored, event.TypeBlockTypeChanged:
		return ix.upsertBlock(ctx, evt)
	case event.TypeBlockSoftDeleted:
		return ix.deleteEntity(ctx, storage.SearchEntityBlock, evt.BlockID)
	case event.TypeTagAddedToBook:
		return ix.upsertTag(ctx, evt)
	case event.TypeTagRemovedFromBook:
		return ix.deleteEntity(ctx, storage.SearchEntityTag, tagEntityID(evt))
	default:
		return nil
	}
}

func (ix *Indexer) upsertBlock(ctx context.Context, evt event.Event) error {
	blk, err := ix.blocks.GetBlock(ctx, evt.BlockID)
	if err != nil {
		// The block may have been soft-deleted between the event and this
		// handler; the delete event will clean the document up.
		return fmt.Errorf("load block %s: %w", evt.BlockID, err)
	}

	libraryID := evt.LibraryID
	if libraryID == "" {
		if b, err := ix.books.GetBook(ctx, blk.BookID); err == nil {
			libraryID = b.LibraryID
		}
	}

	version := evt.Version()
	now := ix.now().UTC()
	doc := storage.SearchDocument{
		EntityType:   storage.SearchEntityBlock,
		EntityID:     blk.ID,
		LibraryID:    libraryID,
		Text:         blk.Content,
		Snippet:      block.Snippet(blk.Content),
		EventVersion: version,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	accepted, err := ix.search.UpsertSearchDocument(ctx, doc)
	if err != nil {
		return fmt.Errorf("upsert search document: %w", err)
	}
	if !accepted {
		// An out-of-order event lost the version race; the newer document
		// already covers it and needs no outbox row.
		return nil
	}

	return ix.enqueue(ctx, storage.SearchEntityBlock, blk.ID, storage.OutboxOpUpsert, version)
}

func (ix *Indexer) upsertTag(ctx context.Context, evt event.Event) error {
	var payload struct {
		Tag string `json:"tag"`
	}
	if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
		return fmt.Errorf("decode tag payload: %w", err)
	}
	if payload.Tag == "" {
		return fmt.Errorf("tag payload has no tag")
	}

	entityID := evt.BookID + ":" + payload.Tag
	version := evt.Version()
	now := ix.now().UTC()
	doc := storage.SearchDocument{
		EntityType:   storage.SearchEntityTag,
		EntityID:     entityID,
		LibraryID:    evt.LibraryID,
		Text:         payload.Tag,
		Snippet:      payload.Tag,
		EventVersion: version,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	accepted, err := ix.search.UpsertSearchDocument(ctx, doc)
	if err != nil {
		return fmt.Errorf("upsert tag document: %w", err)
	}
	if !accepted {
		return nil
	}
	return ix.enqueue(ctx, storage.SearchEntityTag, entityID, storage.OutboxOpUpsert, version)
}

func (ix *Indexer) deleteEntity(ctx context.Context, entityType, entityID string) error {
	if entityID == "" {
		return fmt.Errorf("entity id is required for delete")
	}
	if err := ix.search.DeleteSearchDocument(ctx, entityType, entityID); err != nil {
		return fmt.Errorf("delete search document: %w", err)
	}
	// Deletes derive a synthetic version from now so they order after every
	// already-issued update for the entity.
	version := ix.now().UTC().UnixMicro()
	return ix.enqueue(ctx, entityType, entityID, storage.OutboxOpDelete, version)
}

func (ix *Indexer) enqueue(ctx context.Context, entityType, entityID, op string, version int64) error {
	outboxID, err := ix.newID()
	if err != nil {
		return fmt.Errorf("generate search outbox id: %w", err)
	}
	trace := platformotel.InjectTraceContext(ctx)
	now := ix.now().UTC()
	row := storage.OutboxEvent{
		ID:           outboxID,
		EntityType:   entityType,
		EntityID:     entityID,
		Op:           op,
		EventVersion: version,
		Status:       storage.OutboxStatusPending,
		Traceparent:  trace.Traceparent,
		Tracestate:   trace.Tracestate,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := ix.outbox.EnqueueOutboxEvent(ctx, storage.OutboxKindSearch, row); err != nil {
		return fmt.Errorf("enqueue search outbox event: %w", err)
	}
	return nil
}

// tagEntityID scopes a tag document to its book so removing a tag from one
// book cannot delete another book's document.
func tagEntityID(evt event.Event) string {
	var payload struct {
		Tag string `json:"tag"`
	}
	_ = json.Unmarshal(evt.PayloadJSON, &payload)
	return evt.BookID + ":" + payload.Tag
}
