package api

import (
	"github.com/gofiber/fiber/v2"

	"github.com/wordloom/wordloom/internal/app"
)

type createBlockRequest struct {
	BookID       string `json:"book_id" validate:"required"`
	Type         string `json:"type" validate:"max=32"`
	Content      string `json:"content" validate:"required"`
	HeadingLevel int    `json:"heading_level" validate:"gte=0,lte=6"`
	AfterBlockID string `json:"after_block_id"`
}

func (s *Server) handleCreateBlock(c *fiber.Ctx) error {
	var req createBlockRequest
	if err := s.parseBody(c, &req); err != nil {
		return writeError(c, err)
	}
	blk, err := s.svc.CreateBlock(c.UserContext(), app.CreateBlockInput{
		BookID:       req.BookID,
		Type:         req.Type,
		Content:      req.Content,
		HeadingLevel: req.HeadingLevel,
		AfterBlockID: req.AfterBlockID,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(toBlockResponse(blk))
}

func (s *Server) handleGetBlock(c *fiber.Ctx) error {
	blk, err := s.svc.GetBlock(c.UserContext(), c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(toBlockResponse(blk))
}

func (s *Server) handleListBlocks(c *fiber.Ctx) error {
	blocks, err := s.svc.ListBlocks(c.UserContext(), c.Params("id"), listParams(c))
	if err != nil {
		return writeError(c, err)
	}
	out := make([]BlockResponse, 0, len(blocks))
	for _, blk := range blocks {
		out = append(out, toBlockResponse(blk))
	}
	return c.JSON(fiber.Map{"data": out})
}

type updateBlockRequest struct {
	Content      *string `json:"content"`
	Type         *string `json:"type" validate:"omitempty,max=32"`
	HeadingLevel int     `json:"heading_level" validate:"gte=0,lte=6"`
}

func (s *Server) handleUpdateBlock(c *fiber.Ctx) error {
	var req updateBlockRequest
	if err := s.parseBody(c, &req); err != nil {
		return writeError(c, err)
	}

	ctx := c.UserContext()
	id := c.Params("id")
	blk, err := s.svc.GetBlock(ctx, id)
	if err != nil {
		return writeError(c, err)
	}

	if req.Content != nil {
		if blk, err = s.svc.UpdateBlock(ctx, id, *req.Content); err != nil {
			return writeError(c, err)
		}
	}
	if req.Type != nil {
		if blk, err = s.svc.ChangeBlockType(ctx, id, *req.Type, req.HeadingLevel); err != nil {
			return writeError(c, err)
		}
	}
	return c.JSON(toBlockResponse(blk))
}

func (s *Server) handleSoftDeleteBlock(c *fiber.Ctx) error {
	blk, err := s.svc.SoftDeleteBlock(c.UserContext(), c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(toBlockResponse(blk))
}

func (s *Server) handleRestoreBlock(c *fiber.Ctx) error {
	blk, err := s.svc.RestoreBlock(c.UserContext(), c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(toBlockResponse(blk))
}
