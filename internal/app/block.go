package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/wordloom/wordloom/internal/domain/block"
	"github.com/wordloom/wordloom/internal/domain/event"
	"github.com/wordloom/wordloom/internal/storage"
)

// orderRetries bounds the re-bisect attempts when a fractional key collides
// with a concurrent insert.
const orderRetries = 3

// CreateBlockInput names the caller-provided block data. An empty AfterBlockID
// appends to the end of the book.
type CreateBlockInput struct {
	BookID       string
	Type         string
	Content      string
	HeadingLevel int
	AfterBlockID string
}

// CreateBlock inserts a block at the requested position. Fractional keys make
// the insert a single write; a key collision with a concurrent insert
// re-resolves the position and retries.
func (s *Service) CreateBlock(ctx context.Context, input CreateBlockInput) (block.Block, error) {
	if _, err := s.GetBook(ctx, input.BookID); err != nil {
		return block.Block{}, err
	}

	var blk block.Block
	for attempt := 0; ; attempt++ {
		order, err := s.insertOrder(ctx, input.BookID, input.AfterBlockID)
		if err != nil {
			return block.Block{}, err
		}

		blk, err = block.Create(block.CreateInput{
			BookID:       input.BookID,
			Type:         input.Type,
			Content:      input.Content,
			Order:        order,
			HeadingLevel: input.HeadingLevel,
		}, s.now, s.newID)
		if err != nil {
			return block.Block{}, err
		}

		err = s.stores.Blocks.PutBlock(ctx, blk)
		if err == nil {
			break
		}
		if errors.Is(err, storage.ErrAlreadyExists) && attempt < orderRetries {
			continue
		}
		return block.Block{}, fmt.Errorf("persist block: %w", err)
	}

	if err := s.recorder.BlockCreated(ctx, blk); err != nil {
		return block.Block{}, err
	}
	s.bus.Publish(ctx, []event.Event{block.CreatedEvent(blk)})
	return blk, nil
}

// GetBlock returns one live block owned by the actor.
func (s *Service) GetBlock(ctx context.Context, id string) (block.Block, error) {
	blk, err := s.stores.Blocks.GetBlock(ctx, id)
	if err != nil {
		return block.Block{}, err
	}
	if _, err := s.GetBook(ctx, blk.BookID); err != nil {
		return block.Block{}, err
	}
	return blk, nil
}

// ListBlocks pages the blocks of one book in fractional order.
func (s *Service) ListBlocks(ctx context.Context, bookID string, params storage.ListParams) ([]block.Block, error) {
	if _, err := s.GetBook(ctx, bookID); err != nil {
		return nil, err
	}
	return s.stores.Blocks.ListBlocksByBook(ctx, bookID, params)
}

// UpdateBlock replaces the block content.
func (s *Service) UpdateBlock(ctx context.Context, blockID, content string) (block.Block, error) {
	blk, err := s.GetBlock(ctx, blockID)
	if err != nil {
		return block.Block{}, err
	}
	blk, err = block.UpdateContent(blk, content, s.now)
	if err != nil {
		return block.Block{}, err
	}
	if err := s.stores.Blocks.PutBlock(ctx, blk); err != nil {
		return block.Block{}, fmt.Errorf("persist block: %w", err)
	}

	if err := s.recorder.BlockUpdated(ctx, blk); err != nil {
		return block.Block{}, err
	}
	s.bus.Publish(ctx, []event.Event{block.UpdatedEvent(blk)})
	return blk, nil
}

// ChangeBlockType switches the block's content kind.
func (s *Service) ChangeBlockType(ctx context.Context, blockID, blockType string, headingLevel int) (block.Block, error) {
	blk, err := s.GetBlock(ctx, blockID)
	if err != nil {
		return block.Block{}, err
	}
	oldType := blk.Type
	blk, err = block.ChangeType(blk, blockType, headingLevel, s.now)
	if err != nil {
		return block.Block{}, err
	}
	if err := s.stores.Blocks.PutBlock(ctx, blk); err != nil {
		return block.Block{}, fmt.Errorf("persist block: %w", err)
	}

	if err := s.recorder.BlockTypeChanged(ctx, blk, oldType); err != nil {
		return block.Block{}, err
	}
	s.bus.Publish(ctx, []event.Event{block.TypeChangedEvent(blk, oldType)})
	return blk, nil
}

// SoftDeleteBlock marks the block deleted, recording its live neighbors so a
// restore can reinsert it into the same gap.
func (s *Service) SoftDeleteBlock(ctx context.Context, blockID string) (block.Block, error) {
	blk, err := s.GetBlock(ctx, blockID)
	if err != nil {
		return block.Block{}, err
	}

	prevID, nextID, err := s.liveNeighbors(ctx, blk)
	if err != nil {
		return block.Block{}, err
	}
	blk, err = block.SoftDelete(blk, prevID, nextID, s.now)
	if err != nil {
		return block.Block{}, err
	}
	if err := s.stores.Blocks.PutBlock(ctx, blk); err != nil {
		return block.Block{}, fmt.Errorf("persist block: %w", err)
	}

	if err := s.recorder.BlockSoftDeleted(ctx, blk); err != nil {
		return block.Block{}, err
	}
	s.bus.Publish(ctx, []event.Event{block.SoftDeletedEvent(blk)})
	return blk, nil
}

// RestoreBlock brings a soft-deleted block back, preferring the gap between
// its recorded neighbors and falling back to the end of the book when either
// neighbor has since moved or died.
func (s *Service) RestoreBlock(ctx context.Context, blockID string) (block.Block, error) {
	blk, err := s.stores.Blocks.GetDeletedBlock(ctx, blockID)
	if err != nil {
		return block.Block{}, err
	}
	if _, err := s.GetBook(ctx, blk.BookID); err != nil {
		return block.Block{}, err
	}

	for attempt := 0; ; attempt++ {
		order, err := s.restoreOrder(ctx, blk)
		if err != nil {
			return block.Block{}, err
		}
		restored, err := block.Restore(blk, order, s.now)
		if err != nil {
			return block.Block{}, err
		}

		err = s.stores.Blocks.PutBlock(ctx, restored)
		if err == nil {
			blk = restored
			break
		}
		if errors.Is(err, storage.ErrAlreadyExists) && attempt < orderRetries {
			continue
		}
		return block.Block{}, fmt.Errorf("persist block: %w", err)
	}

	if err := s.recorder.BlockRestored(ctx, blk); err != nil {
		return block.Block{}, err
	}
	s.bus.Publish(ctx, []event.Event{block.RestoredEvent(blk)})
	return blk, nil
}

// insertOrder resolves the fractional key for a new block: between the anchor
// and its successor, or past the current last key when appending.
func (s *Service) insertOrder(ctx context.Context, bookID, afterBlockID string) (float64, error) {
	blocks, err := s.allLiveBlocks(ctx, bookID)
	if err != nil {
		return 0, err
	}
	if len(blocks) == 0 {
		return block.OrderFirst(), nil
	}
	last := blocks[len(blocks)-1].Order

	if afterBlockID == "" {
		return block.OrderAfter(last), nil
	}
	for i, blk := range blocks {
		if blk.ID != afterBlockID {
			continue
		}
		if i == len(blocks)-1 {
			return block.OrderAfter(blk.Order), nil
		}
		if mid, ok := block.OrderBetween(blk.Order, blocks[i+1].Order); ok {
			return mid, nil
		}
		// Gap collapsed below float precision; append instead.
		return block.OrderAfter(last), nil
	}
	return 0, storage.ErrNotFound
}

// restoreOrder resolves where a restored block lands.
func (s *Service) restoreOrder(ctx context.Context, blk block.Block) (float64, error) {
	var prev, next *block.Block
	if blk.DeletedPrevID != "" {
		if p, err := s.stores.Blocks.GetBlock(ctx, blk.DeletedPrevID); err == nil {
			prev = &p
		} else if !errors.Is(err, storage.ErrNotFound) {
			return 0, err
		}
	}
	if blk.DeletedNextID != "" {
		if n, err := s.stores.Blocks.GetBlock(ctx, blk.DeletedNextID); err == nil {
			next = &n
		} else if !errors.Is(err, storage.ErrNotFound) {
			return 0, err
		}
	}

	switch {
	case prev != nil && next != nil:
		if mid, ok := block.OrderBetween(prev.Order, next.Order); ok {
			return mid, nil
		}
	case prev == nil && next != nil && blk.DeletedPrevID == "":
		return block.OrderBefore(next.Order), nil
	}

	blocks, err := s.allLiveBlocks(ctx, blk.BookID)
	if err != nil {
		return 0, err
	}
	if len(blocks) == 0 {
		return block.OrderFirst(), nil
	}
	return block.OrderAfter(blocks[len(blocks)-1].Order), nil
}

// allLiveBlocks pages through every live block of a book in fractional order.
func (s *Service) allLiveBlocks(ctx context.Context, bookID string) ([]block.Block, error) {
	const pageSize = 500
	var all []block.Block
	for skip := 0; ; skip += pageSize {
		page, err := s.stores.Blocks.ListBlocksByBook(ctx, bookID, storage.ListParams{Skip: skip, Limit: pageSize})
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < pageSize {
			return all, nil
		}
	}
}

// liveNeighbors finds the ids of the blocks directly around one live block.
func (s *Service) liveNeighbors(ctx context.Context, blk block.Block) (prevID, nextID string, err error) {
	blocks, err := s.allLiveBlocks(ctx, blk.BookID)
	if err != nil {
		return "", "", err
	}
	for i, candidate := range blocks {
		if candidate.ID != blk.ID {
			continue
		}
		if i > 0 {
			prevID = blocks[i-1].ID
		}
		if i < len(blocks)-1 {
			nextID = blocks[i+1].ID
		}
		return prevID, nextID, nil
	}
	return "", "", nil
}
