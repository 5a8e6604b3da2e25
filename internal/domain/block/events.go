package block

import (
	"encoding/json"
	"time"

	"github.com/wordloom/wordloom/internal/domain/event"
)

// CreatedPayload records the birth position of a block.
type CreatedPayload struct {
	Type  string  `json:"type"`
	Order float64 `json:"order"`
}

// UpdatedPayload records a content change. The full content stays out of the
// event store; the snippet is enough for timelines and the search outbox.
type UpdatedPayload struct {
	Snippet string `json:"snippet"`
}

// SoftDeletedPayload records the live neighbors at deletion time.
type SoftDeletedPayload struct {
	PrevBlockID string `json:"prev_block_id,omitempty"`
	NextBlockID string `json:"next_block_id,omitempty"`
}

// RestoredPayload records where the block landed on restore.
type RestoredPayload struct {
	Order float64 `json:"order"`
}

// TypeChangedPayload records a content-kind switch.
type TypeChangedPayload struct {
	OldType string `json:"old_type"`
	NewType string `json:"new_type"`
}

// SnippetLength caps the content excerpt carried on block_updated payloads.
const SnippetLength = 200

// Snippet returns the leading excerpt of the block content used in event
// payloads and search documents.
func Snippet(content string) string {
	runes := []rune(content)
	if len(runes) <= SnippetLength {
		return content
	}
	return string(runes[:SnippetLength])
}

func newEvent(typ event.Type, blk Block, occurredAt time.Time, payload any) event.Event {
	payloadJSON, _ := json.Marshal(payload)
	return event.Event{
		Type:        typ,
		BookID:      blk.BookID,
		BlockID:     blk.ID,
		OccurredAt:  occurredAt.UTC(),
		PayloadJSON: payloadJSON,
	}
}

// CreatedEvent builds the block_created event for a freshly created block.
func CreatedEvent(blk Block) event.Event {
	return newEvent(event.TypeBlockCreated, blk, blk.CreatedAt, CreatedPayload{
		Type:  blk.Type,
		Order: blk.Order,
	})
}

// UpdatedEvent builds the block_updated event after a content change.
func UpdatedEvent(blk Block) event.Event {
	return newEvent(event.TypeBlockUpdated, blk, blk.UpdatedAt, UpdatedPayload{
		Snippet: Snippet(blk.Content),
	})
}

// SoftDeletedEvent builds the block_soft_deleted event.
func SoftDeletedEvent(blk Block) event.Event {
	return newEvent(event.TypeBlockSoftDeleted, blk, blk.UpdatedAt, SoftDeletedPayload{
		PrevBlockID: blk.DeletedPrevID,
		NextBlockID: blk.DeletedNextID,
	})
}

// RestoredEvent builds the block_restored event.
func RestoredEvent(blk Block) event.Event {
	return newEvent(event.TypeBlockRestored, blk, blk.UpdatedAt, RestoredPayload{
		Order: blk.Order,
	})
}

// TypeChangedEvent builds the block_type_changed event.
func TypeChangedEvent(blk Block, oldType string) event.Event {
	return newEvent(event.TypeBlockTypeChanged, blk, blk.UpdatedAt, TypeChangedPayload{
		OldType: oldType,
		NewType: blk.Type,
	})
}
