// Package block holds the Block aggregate: the ordered content units inside a
// book. Ordering uses fractional keys so insertion between neighbors never
// renumbers siblings.
package block

import (
	"fmt"
	"strings"
	"time"

	apperrors "github.com/wordloom/wordloom/internal/platform/errors"
	"github.com/wordloom/wordloom/internal/platform/id"
)

// Block types mirror the editor's content kinds. The set is advisory, not
// closed; unknown types round-trip untouched.
const (
	TypeParagraph = "paragraph"
	TypeHeading   = "heading"
	TypeTodo      = "todo"
	TypeQuote     = "quote"
	TypeCode      = "code"
)

var (
	// ErrEmptyContent indicates a block with no content.
	ErrEmptyContent = apperrors.New(apperrors.CodeBlockContentInvalid, "block content is required")
	// ErrInvalidOrder indicates a non-finite or non-increasing order key.
	ErrInvalidOrder = apperrors.New(apperrors.CodeBlockOrderInvalid, "block order key is not strictly between its neighbors")
	// ErrNotSoftDeleted indicates a restore of a live block.
	ErrNotSoftDeleted = apperrors.New(apperrors.CodeBlockNotSoftDeleted, "block is not soft-deleted")
	// ErrAlreadySoftDeleted indicates a repeated soft delete.
	ErrAlreadySoftDeleted = apperrors.New(apperrors.CodeBlockNotSoftDeleted, "block is already soft-deleted")
)

// Block is one ordered content unit inside a book.
type Block struct {
	ID     string
	BookID string
	Type   string
	// Content is the rendered-source text of the block.
	Content string
	// Order is the fractional sort key; strictly increasing per book.
	Order float64
	// HeadingLevel applies to heading blocks only (1..6, 0 = unset).
	HeadingLevel int
	// SoftDeletedAt marks logical deletion; nil means live.
	SoftDeletedAt *time.Time
	// DeletedPrevID and DeletedNextID capture the neighbor ids at deletion
	// time so a restore can reinsert into the same gap.
	DeletedPrevID string
	DeletedNextID string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// CreateInput describes the data needed to create a block.
type CreateInput struct {
	BookID       string
	Type         string
	Content      string
	Order        float64
	HeadingLevel int
}

// Create creates a block at the given fractional position.
func Create(input CreateInput, now func() time.Time, idGenerator func() (string, error)) (Block, error) {
	if now == nil {
		now = time.Now
	}
	if idGenerator == nil {
		idGenerator = id.NewID
	}

	content := input.Content
	if strings.TrimSpace(content) == "" {
		return Block{}, ErrEmptyContent
	}
	if !isFinite(input.Order) {
		return Block{}, ErrInvalidOrder
	}

	blockType := strings.TrimSpace(input.Type)
	if blockType == "" {
		blockType = TypeParagraph
	}

	blockID, err := idGenerator()
	if err != nil {
		return Block{}, fmt.Errorf("generate block id: %w", err)
	}

	createdAt := now().UTC()
	return Block{
		ID:           blockID,
		BookID:       strings.TrimSpace(input.BookID),
		Type:         blockType,
		Content:      content,
		Order:        input.Order,
		HeadingLevel: input.HeadingLevel,
		CreatedAt:    createdAt,
		UpdatedAt:    createdAt,
	}, nil
}

// UpdateContent replaces the block content.
func UpdateContent(blk Block, content string, now func() time.Time) (Block, error) {
	if now == nil {
		now = time.Now
	}
	if strings.TrimSpace(content) == "" {
		return Block{}, ErrEmptyContent
	}
	blk.Content = content
	blk.UpdatedAt = now().UTC()
	return blk, nil
}

// ChangeType switches the block's content kind, resetting the heading level
// when the block stops being a heading.
func ChangeType(blk Block, blockType string, headingLevel int, now func() time.Time) (Block, error) {
	if now == nil {
		now = time.Now
	}
	blockType = strings.TrimSpace(blockType)
	if blockType == "" {
		blockType = TypeParagraph
	}
	blk.Type = blockType
	if blockType == TypeHeading {
		blk.HeadingLevel = headingLevel
	} else {
		blk.HeadingLevel = 0
	}
	blk.UpdatedAt = now().UTC()
	return blk, nil
}

// SoftDelete marks the block deleted, recording the ids of its live neighbors
// at deletion time so Restore can reinsert it into the same gap.
func SoftDelete(blk Block, prevID, nextID string, now func() time.Time) (Block, error) {
	if now == nil {
		now = time.Now
	}
	if blk.SoftDeletedAt != nil {
		return Block{}, ErrAlreadySoftDeleted
	}
	deletedAt := now().UTC()
	blk.SoftDeletedAt = &deletedAt
	blk.DeletedPrevID = strings.TrimSpace(prevID)
	blk.DeletedNextID = strings.TrimSpace(nextID)
	blk.UpdatedAt = deletedAt
	return blk, nil
}

// Restore reinserts a soft-deleted block at the given fractional position.
// The caller resolves the position from the recorded sibling pointers; when
// either sibling has since moved or died, the caller falls back to the end of
// the book.
func Restore(blk Block, order float64, now func() time.Time) (Block, error) {
	if now == nil {
		now = time.Now
	}
	if blk.SoftDeletedAt == nil {
		return Block{}, ErrNotSoftDeleted
	}
	if !isFinite(order) {
		return Block{}, ErrInvalidOrder
	}
	blk.SoftDeletedAt = nil
	blk.DeletedPrevID = ""
	blk.DeletedNextID = ""
	blk.Order = order
	blk.UpdatedAt = now().UTC()
	return blk, nil
}

func isFinite(v float64) bool {
	return v == v && v < 1e308 && v > -1e308
}
