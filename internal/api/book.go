package api

import (
	"github.com/gofiber/fiber/v2"

	"github.com/wordloom/wordloom/internal/app"
	"github.com/wordloom/wordloom/internal/domain/book"
	apperrors "github.com/wordloom/wordloom/internal/platform/errors"
)

type createBookRequest struct {
	BookshelfID string `json:"bookshelf_id" validate:"required"`
	Title       string `json:"title" validate:"required,max=255"`
	Summary     string `json:"summary" validate:"max=5000"`
	CoverIcon   string `json:"cover_icon" validate:"max=64"`
}

func (s *Server) handleCreateBook(c *fiber.Ctx) error {
	var req createBookRequest
	if err := s.parseBody(c, &req); err != nil {
		return writeError(c, err)
	}
	b, err := s.svc.CreateBook(c.UserContext(), app.CreateBookInput{
		BookshelfID: req.BookshelfID,
		Title:       req.Title,
		Summary:     req.Summary,
		CoverIcon:   req.CoverIcon,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(toBookResponse(b))
}

func (s *Server) handleGetBook(c *fiber.Ctx) error {
	b, err := s.svc.GetBook(c.UserContext(), c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(toBookResponse(b))
}

func (s *Server) handleListBooksByBookshelf(c *fiber.Ctx) error {
	books, err := s.svc.ListBooksByBookshelf(c.UserContext(), c.Params("id"), listParams(c))
	if err != nil {
		return writeError(c, err)
	}
	out := make([]BookResponse, 0, len(books))
	for _, b := range books {
		out = append(out, toBookResponse(b))
	}
	return c.JSON(fiber.Map{"data": out})
}

func (s *Server) handleListBooksByLibrary(c *fiber.Ctx) error {
	books, err := s.svc.ListBooksByLibrary(c.UserContext(), c.Params("id"), listParams(c))
	if err != nil {
		return writeError(c, err)
	}
	out := make([]BookResponse, 0, len(books))
	for _, b := range books {
		out = append(out, toBookResponse(b))
	}
	return c.JSON(fiber.Map{"data": out})
}

// updateBookRequest is a partial update; each present field triggers its
// dedicated use case so every change keeps its own chronicle trail.
type updateBookRequest struct {
	Title        *string `json:"title" validate:"omitempty,max=255"`
	BookshelfID  *string `json:"bookshelf_id"`
	Status       *string `json:"status"`
	Maturity     *string `json:"maturity"`
	CoverMediaID *string `json:"cover_media_id"`
}

func (s *Server) handleUpdateBook(c *fiber.Ctx) error {
	var req updateBookRequest
	if err := s.parseBody(c, &req); err != nil {
		return writeError(c, err)
	}

	ctx := c.UserContext()
	id := c.Params("id")
	b, err := s.svc.GetBook(ctx, id)
	if err != nil {
		return writeError(c, err)
	}

	if req.Title != nil {
		if b, err = s.svc.RenameBook(ctx, id, *req.Title); err != nil {
			return writeError(c, err)
		}
	}
	if req.BookshelfID != nil {
		if b, err = s.svc.MoveBook(ctx, id, *req.BookshelfID); err != nil {
			return writeError(c, err)
		}
	}
	if req.Status != nil {
		target, ok := book.ParseStatus(*req.Status)
		if !ok {
			return writeError(c, apperrors.New(apperrors.CodeBookInvalidStatus, "unknown book status"))
		}
		if b, err = s.svc.ChangeBookStage(ctx, id, target); err != nil {
			return writeError(c, err)
		}
	}
	if req.Maturity != nil {
		target, ok := book.ParseMaturity(*req.Maturity)
		if !ok {
			return writeError(c, apperrors.New(apperrors.CodeBookInvalidMaturity, "unknown book maturity"))
		}
		if b, err = s.svc.ChangeBookMaturity(ctx, id, target); err != nil {
			return writeError(c, err)
		}
	}
	if req.CoverMediaID != nil {
		if b, err = s.svc.SetBookCoverMedia(ctx, id, *req.CoverMediaID); err != nil {
			return writeError(c, err)
		}
	}
	return c.JSON(toBookResponse(b))
}

func (s *Server) handleOpenBook(c *fiber.Ctx) error {
	b, err := s.svc.OpenBook(c.UserContext(), c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(toBookResponse(b))
}

type bookOpenedRequest struct {
	BookID string `json:"book_id" validate:"required"`
}

// handleBookOpened is the chronicle-facing spelling of an open: same use case,
// book id in the body instead of the path.
func (s *Server) handleBookOpened(c *fiber.Ctx) error {
	var req bookOpenedRequest
	if err := s.parseBody(c, &req); err != nil {
		return writeError(c, err)
	}
	b, err := s.svc.OpenBook(c.UserContext(), req.BookID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(toBookResponse(b))
}
