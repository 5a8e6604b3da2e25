package api

import (
	"io"

	"github.com/gofiber/fiber/v2"

	"github.com/wordloom/wordloom/internal/app"
	"github.com/wordloom/wordloom/internal/storage"
)

type createLibraryRequest struct {
	Name        string `json:"name" validate:"required,max=255"`
	Description string `json:"description" validate:"max=2000"`
}

func (s *Server) handleCreateLibrary(c *fiber.Ctx) error {
	var req createLibraryRequest
	if err := s.parseBody(c, &req); err != nil {
		return writeError(c, err)
	}
	lib, err := s.svc.CreateLibrary(c.UserContext(), app.CreateLibraryInput{
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(toLibraryResponse(lib))
}

func (s *Server) handleListLibraries(c *fiber.Ctx) error {
	libs, err := s.svc.ListLibraries(c.UserContext(), storage.ListLibrariesParams{
		Query:           c.Query("query"),
		Sort:            c.Query("sort"),
		IncludeArchived: c.QueryBool("include_archived"),
		PinnedFirst:     c.QueryBool("pinned_first"),
		Skip:            c.QueryInt("skip"),
		Limit:           c.QueryInt("limit"),
	})
	if err != nil {
		return writeError(c, err)
	}
	out := make([]LibraryResponse, 0, len(libs))
	for _, lib := range libs {
		out = append(out, toLibraryResponse(lib))
	}
	return c.JSON(fiber.Map{"data": out})
}

func (s *Server) handleGetLibrary(c *fiber.Ctx) error {
	lib, err := s.svc.GetLibrary(c.UserContext(), c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(toLibraryResponse(lib))
}

type updateLibraryRequest struct {
	Name        *string `json:"name" validate:"omitempty,max=255"`
	Description *string `json:"description" validate:"omitempty,max=2000"`
	Pinned      *bool   `json:"pinned"`
	Archived    *bool   `json:"archived"`
}

func (s *Server) handleUpdateLibrary(c *fiber.Ctx) error {
	var req updateLibraryRequest
	if err := s.parseBody(c, &req); err != nil {
		return writeError(c, err)
	}
	lib, err := s.svc.UpdateLibrary(c.UserContext(), c.Params("id"), app.UpdateLibraryInput{
		Name:        req.Name,
		Description: req.Description,
		Pinned:      req.Pinned,
		Archived:    req.Archived,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(toLibraryResponse(lib))
}

func (s *Server) handleDeleteLibrary(c *fiber.Ctx) error {
	if err := s.svc.DeleteLibrary(c.UserContext(), c.Params("id")); err != nil {
		return writeError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

type recordViewRequest struct {
	BookID string `json:"book_id"`
}

func (s *Server) handleRecordLibraryView(c *fiber.Ctx) error {
	var req recordViewRequest
	if len(c.Body()) > 0 {
		if err := s.parseBody(c, &req); err != nil {
			return writeError(c, err)
		}
	}
	lib, err := s.svc.RecordLibraryView(c.UserContext(), c.Params("id"), req.BookID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(toLibraryResponse(lib))
}

// coverOutcomeStatus maps an upload outcome to its HTTP status.
func coverOutcomeStatus(outcome app.Outcome) int {
	switch outcome {
	case app.OutcomeSuccess:
		return fiber.StatusOK
	case app.OutcomeNotFound:
		return fiber.StatusNotFound
	case app.OutcomeForbidden:
		return fiber.StatusForbidden
	case app.OutcomeRejectedEmpty:
		return fiber.StatusUnprocessableEntity
	case app.OutcomeRejectedMIME:
		return fiber.StatusUnsupportedMediaType
	case app.OutcomeRejectedTooLarge:
		return fiber.StatusRequestEntityTooLarge
	case app.OutcomeMediaValidationFailed:
		return fiber.StatusUnprocessableEntity
	case app.OutcomeQuotaExceeded:
		return fiber.StatusTooManyRequests
	default:
		return fiber.StatusInternalServerError
	}
}

func (s *Server) handleUploadLibraryCover(c *fiber.Ctx) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(ErrorResponse{
			Code:    "VALIDATION",
			Message: "multipart field 'file' is required",
		})
	}
	file, err := fileHeader.Open()
	if err != nil {
		return writeError(c, err)
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		return writeError(c, err)
	}

	result, err := s.svc.UploadLibraryCover(c.UserContext(), app.UploadCoverInput{
		LibraryID: c.Params("id"),
		Filename:  fileHeader.Filename,
		MIME:      fileHeader.Header.Get("Content-Type"),
		Data:      data,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(coverOutcomeStatus(result.Outcome)).JSON(fiber.Map{
		"outcome":  result.Outcome.String(),
		"media_id": result.MediaID,
	})
}

func (s *Server) handleGetLibraryTags(c *fiber.Ctx) error {
	tags, err := s.svc.GetLibraryTags(c.UserContext(), c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	if tags == nil {
		tags = []string{}
	}
	return c.JSON(fiber.Map{"tags": tags})
}

type setTagsRequest struct {
	Tags []string `json:"tags" validate:"required,max=100,dive,max=64"`
}

func (s *Server) handleSetLibraryTags(c *fiber.Ctx) error {
	var req setTagsRequest
	if err := s.parseBody(c, &req); err != nil {
		return writeError(c, err)
	}
	tags, err := s.svc.SetLibraryTags(c.UserContext(), c.Params("id"), req.Tags)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"tags": tags})
}
