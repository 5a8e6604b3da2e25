package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/wordloom/wordloom/internal/domain/block"
	"github.com/wordloom/wordloom/internal/storage"
)

const blockColumns = `
	id,
	book_id,
	type,
	content,
	sort_order,
	heading_level,
	soft_deleted_at,
	deleted_prev_id,
	deleted_next_id,
	created_at,
	updated_at`

// PutBlock upserts a block by primary key. A colliding fractional key within
// one book surfaces as storage.ErrAlreadyExists so callers can re-bisect.
func (s *Store) PutBlock(ctx context.Context, blk block.Block) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	if strings.TrimSpace(blk.ID) == "" {
		return fmt.Errorf("block id is required")
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO blocks (
	id, book_id, type, content, sort_order, heading_level,
	soft_deleted_at, deleted_prev_id, deleted_next_id, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	book_id = excluded.book_id,
	type = excluded.type,
	content = excluded.content,
	sort_order = excluded.sort_order,
	heading_level = excluded.heading_level,
	soft_deleted_at = excluded.soft_deleted_at,
	deleted_prev_id = excluded.deleted_prev_id,
	deleted_next_id = excluded.deleted_next_id,
	updated_at = excluded.updated_at
`,
		blk.ID,
		blk.BookID,
		blk.Type,
		blk.Content,
		blk.Order,
		blk.HeadingLevel,
		nullMicros(blk.SoftDeletedAt),
		blk.DeletedPrevID,
		blk.DeletedNextID,
		toMicros(blk.CreatedAt),
		toMicros(blk.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("put block: %w", err)
	}
	return nil
}

// GetBlock returns one live block; soft-deleted rows are excluded.
func (s *Store) GetBlock(ctx context.Context, id string) (block.Block, error) {
	return s.getBlock(ctx, id, false)
}

// GetDeletedBlock returns one soft-deleted block for restore flows.
func (s *Store) GetDeletedBlock(ctx context.Context, id string) (block.Block, error) {
	return s.getBlock(ctx, id, true)
}

func (s *Store) getBlock(ctx context.Context, id string, deleted bool) (block.Block, error) {
	if err := ctx.Err(); err != nil {
		return block.Block{}, err
	}
	if err := s.ready(); err != nil {
		return block.Block{}, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return block.Block{}, fmt.Errorf("block id is required")
	}

	filter := "soft_deleted_at IS NULL"
	if deleted {
		filter = "soft_deleted_at IS NOT NULL"
	}
	row := s.sqlDB.QueryRowContext(ctx, `
SELECT`+blockColumns+`
FROM blocks
WHERE id = ? AND `+filter+`
`, id)
	blk, err := scanBlock(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return block.Block{}, storage.ErrNotFound
		}
		return block.Block{}, fmt.Errorf("get block: %w", err)
	}
	return blk, nil
}

// ListBlocksByBook returns blocks for one book in fractional order.
func (s *Store) ListBlocksByBook(ctx context.Context, bookID string, params storage.ListParams) ([]block.Block, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.ready(); err != nil {
		return nil, err
	}
	bookID = strings.TrimSpace(bookID)
	if bookID == "" {
		return nil, fmt.Errorf("book id is required")
	}
	limit := params.Limit
	if limit <= 0 {
		limit = 500
	}

	query := `
SELECT` + blockColumns + `
FROM blocks
WHERE book_id = ?`
	if !params.IncludeDeleted {
		query += ` AND soft_deleted_at IS NULL`
	}
	query += ` ORDER BY sort_order ASC, id ASC LIMIT ? OFFSET ?`

	rows, err := s.sqlDB.QueryContext(ctx, query, bookID, limit, params.Skip)
	if err != nil {
		return nil, fmt.Errorf("list blocks: %w", err)
	}
	defer rows.Close()

	var blocks []block.Block
	for rows.Next() {
		blk, scanErr := scanBlock(rows.Scan)
		if scanErr != nil {
			return nil, fmt.Errorf("scan block: %w", scanErr)
		}
		blocks = append(blocks, blk)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate blocks: %w", err)
	}
	return blocks, nil
}

// DeleteBlock removes the row permanently.
func (s *Store) DeleteBlock(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("block id is required")
	}

	result, err := s.sqlDB.ExecContext(ctx, `DELETE FROM blocks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete block: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete block rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func scanBlock(scan func(dest ...any) error) (block.Block, error) {
	var blk block.Block
	var softDeletedAt sql.NullInt64
	var createdAt, updatedAt int64
	if err := scan(
		&blk.ID,
		&blk.BookID,
		&blk.Type,
		&blk.Content,
		&blk.Order,
		&blk.HeadingLevel,
		&softDeletedAt,
		&blk.DeletedPrevID,
		&blk.DeletedNextID,
		&createdAt,
		&updatedAt,
	); err != nil {
		return block.Block{}, err
	}
	blk.SoftDeletedAt = microsPtr(softDeletedAt)
	blk.CreatedAt = fromMicros(createdAt)
	blk.UpdatedAt = fromMicros(updatedAt)
	return blk, nil
}
