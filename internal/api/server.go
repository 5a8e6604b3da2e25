// Package api exposes the content lifecycle engine over HTTP with Fiber.
// Handlers are thin: decode, validate, call the use case, render.
package api

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/wordloom/wordloom/internal/app"
	"github.com/wordloom/wordloom/internal/platform/requestctx"
)

// Server wires the use-case service into the Fiber router.
type Server struct {
	svc      *app.Service
	validate *validator.Validate
	ping     func(ctx context.Context) error
}

// NewServer creates the API server. ping backs /readyz.
func NewServer(svc *app.Service, ping func(ctx context.Context) error) *Server {
	return &Server{
		svc:      svc,
		validate: validator.New(),
		ping:     ping,
	}
}

// Register attaches every route under /api/v1 plus the probe endpoints.
func (s *Server) Register(router *fiber.App) {
	router.Get("/healthz", s.handleHealth)
	router.Get("/readyz", s.handleReady)

	v1 := router.Group("/api/v1", s.requestContext)

	v1.Post("/libraries", s.handleCreateLibrary)
	v1.Get("/libraries", s.handleListLibraries)
	v1.Get("/libraries/:id", s.handleGetLibrary)
	v1.Patch("/libraries/:id", s.handleUpdateLibrary)
	v1.Delete("/libraries/:id", s.handleDeleteLibrary)
	v1.Post("/libraries/:id/views", s.handleRecordLibraryView)
	v1.Post("/libraries/:id/cover", s.handleUploadLibraryCover)
	v1.Get("/libraries/:id/tags", s.handleGetLibraryTags)
	v1.Put("/libraries/:id/tags", s.handleSetLibraryTags)
	v1.Get("/libraries/:id/bookshelves", s.handleListBookshelves)
	v1.Get("/libraries/:id/books", s.handleListBooksByLibrary)

	v1.Post("/bookshelves", s.handleCreateBookshelf)
	v1.Get("/bookshelves/:id", s.handleGetBookshelf)
	v1.Patch("/bookshelves/:id", s.handleUpdateBookshelf)
	v1.Delete("/bookshelves/:id", s.handleDeleteBookshelf)
	v1.Get("/bookshelves/:id/books", s.handleListBooksByBookshelf)

	v1.Post("/books", s.handleCreateBook)
	v1.Get("/books/:id", s.handleGetBook)
	v1.Patch("/books/:id", s.handleUpdateBook)
	v1.Post("/books/:id/open", s.handleOpenBook)
	v1.Get("/books/:id/blocks", s.handleListBlocks)
	v1.Get("/books/:id/events", s.handleListBookEvents)
	v1.Get("/books/:id/recent-events", s.handleRecentBookEvents)

	v1.Post("/blocks", s.handleCreateBlock)
	v1.Get("/blocks/:id", s.handleGetBlock)
	v1.Patch("/blocks/:id", s.handleUpdateBlock)
	v1.Delete("/blocks/:id", s.handleSoftDeleteBlock)
	v1.Post("/blocks/:id/restore", s.handleRestoreBlock)

	v1.Post("/book-opened", s.handleBookOpened)

	v1.Post("/admin/books/:id/move-to-basement", s.handleMoveBookToBasement)
	v1.Post("/admin/books/:id/restore-from-basement", s.handleRestoreBookFromBasement)
	v1.Delete("/admin/books/:id", s.handleHardDeleteBook)
	v1.Get("/admin/libraries/:id/basement/books", s.handleListBasementBooks)
}

// requestContext seeds the request-scoped identity and provenance values the
// use cases and the chronicle recorder read.
func (s *Server) requestContext(c *fiber.Ctx) error {
	ctx := c.UserContext()
	ctx = requestctx.WithUserID(ctx, c.Get("X-User-ID"))
	ctx = requestctx.WithSource(ctx, "api")

	correlationID := c.Get("X-Correlation-ID")
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	ctx = requestctx.WithCorrelationID(ctx, correlationID)

	c.SetUserContext(ctx)
	c.Set("X-Correlation-ID", correlationID)
	return c.Next()
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "OK"})
}

func (s *Server) handleReady(c *fiber.Ctx) error {
	if err := s.ping(c.UserContext()); err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status":   "DOWN",
			"database": err.Error(),
		})
	}
	return c.JSON(fiber.Map{"status": "OK"})
}
