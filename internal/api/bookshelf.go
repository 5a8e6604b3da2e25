package api

import (
	"github.com/gofiber/fiber/v2"

	"github.com/wordloom/wordloom/internal/app"
	"github.com/wordloom/wordloom/internal/domain/bookshelf"
	apperrors "github.com/wordloom/wordloom/internal/platform/errors"
	"github.com/wordloom/wordloom/internal/storage"
)

type createBookshelfRequest struct {
	LibraryID string `json:"library_id" validate:"required"`
	Name      string `json:"name" validate:"required,max=255"`
}

func (s *Server) handleCreateBookshelf(c *fiber.Ctx) error {
	var req createBookshelfRequest
	if err := s.parseBody(c, &req); err != nil {
		return writeError(c, err)
	}
	shelf, err := s.svc.CreateBookshelf(c.UserContext(), app.CreateBookshelfInput{
		LibraryID: req.LibraryID,
		Name:      req.Name,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(toBookshelfResponse(shelf))
}

func (s *Server) handleGetBookshelf(c *fiber.Ctx) error {
	shelf, err := s.svc.GetBookshelf(c.UserContext(), c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(toBookshelfResponse(shelf))
}

func (s *Server) handleListBookshelves(c *fiber.Ctx) error {
	shelves, err := s.svc.ListBookshelves(c.UserContext(), c.Params("id"), listParams(c))
	if err != nil {
		return writeError(c, err)
	}
	out := make([]BookshelfResponse, 0, len(shelves))
	for _, shelf := range shelves {
		out = append(out, toBookshelfResponse(shelf))
	}
	return c.JSON(fiber.Map{"data": out})
}

type updateBookshelfRequest struct {
	Name   *string `json:"name" validate:"omitempty,max=255"`
	Status *string `json:"status"`
}

func (s *Server) handleUpdateBookshelf(c *fiber.Ctx) error {
	var req updateBookshelfRequest
	if err := s.parseBody(c, &req); err != nil {
		return writeError(c, err)
	}

	id := c.Params("id")
	shelf, err := s.svc.GetBookshelf(c.UserContext(), id)
	if err != nil {
		return writeError(c, err)
	}

	if req.Name != nil {
		shelf, err = s.svc.RenameBookshelf(c.UserContext(), id, *req.Name)
		if err != nil {
			return writeError(c, err)
		}
	}
	if req.Status != nil {
		target, ok := bookshelf.ParseStatus(*req.Status)
		if !ok {
			return writeError(c, apperrors.New(apperrors.CodeBookshelfInvalidStatus, "unknown bookshelf status"))
		}
		shelf, err = s.svc.ChangeBookshelfStatus(c.UserContext(), id, target)
		if err != nil {
			return writeError(c, err)
		}
	}
	return c.JSON(toBookshelfResponse(shelf))
}

// handleDeleteBookshelf marks the shelf deleted. The row survives so the
// lifecycle trail of its former books stays resolvable.
func (s *Server) handleDeleteBookshelf(c *fiber.Ctx) error {
	if _, err := s.svc.ChangeBookshelfStatus(c.UserContext(), c.Params("id"), bookshelf.StatusDeleted); err != nil {
		return writeError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// listParams collects the shared pagination envelope. Both skip/limit and
// page/size spellings are accepted; page/size wins when present.
func listParams(c *fiber.Ctx) storage.ListParams {
	skip := c.QueryInt("skip")
	limit := c.QueryInt("limit")
	if page := c.QueryInt("page"); page > 0 {
		size := c.QueryInt("size")
		if size <= 0 {
			size = 20
		}
		skip = (page - 1) * size
		limit = size
	}
	return storage.ListParams{
		Sort:  c.Query("sort"),
		Skip:  skip,
		Limit: limit,
	}
}
