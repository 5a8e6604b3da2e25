package api

import (
	"github.com/gofiber/fiber/v2"
)

type moveToBasementRequest struct {
	BasementBookshelfID string `json:"basement_bookshelf_id"`
	Reason              string `json:"reason" validate:"max=500"`
}

func (s *Server) handleMoveBookToBasement(c *fiber.Ctx) error {
	var req moveToBasementRequest
	if len(c.Body()) > 0 {
		if err := s.parseBody(c, &req); err != nil {
			return writeError(c, err)
		}
	}
	b, err := s.svc.MoveBookToBasement(c.UserContext(), c.Params("id"), req.BasementBookshelfID, req.Reason)
	if err != nil {
		return writeError(c, err)
	}
	entry, err := s.svc.ListBasementBooks(c.UserContext(), b.LibraryID, 0, 1)
	if err == nil && len(entry.Entries) > 0 && entry.Entries[0].BookID == b.ID {
		return c.JSON(toBasementBookResponse(entry.Entries[0]))
	}
	return c.JSON(toBookResponse(b))
}

type restoreFromBasementRequest struct {
	TargetBookshelfID string `json:"target_bookshelf_id"`
}

func (s *Server) handleRestoreBookFromBasement(c *fiber.Ctx) error {
	var req restoreFromBasementRequest
	if len(c.Body()) > 0 {
		if err := s.parseBody(c, &req); err != nil {
			return writeError(c, err)
		}
	}
	b, err := s.svc.RestoreBookFromBasement(c.UserContext(), c.Params("id"), req.TargetBookshelfID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(toBookResponse(b))
}

func (s *Server) handleHardDeleteBook(c *fiber.Ctx) error {
	if err := s.svc.HardDeleteBook(c.UserContext(), c.Params("id")); err != nil {
		return writeError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleListBasementBooks(c *fiber.Ctx) error {
	page, err := s.svc.ListBasementBooks(c.UserContext(), c.Params("id"), c.QueryInt("skip"), c.QueryInt("limit"))
	if err != nil {
		return writeError(c, err)
	}
	out := make([]BasementBookResponse, 0, len(page.Entries))
	for _, entry := range page.Entries {
		out = append(out, toBasementBookResponse(entry))
	}
	return c.JSON(fiber.Map{
		"data":     out,
		"has_more": page.HasMore,
	})
}
