package api

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

func (s *Server) handleListBookEvents(c *fiber.Ctx) error {
	var eventTypes []string
	if raw := c.Query("event_types"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				eventTypes = append(eventTypes, part)
			}
		}
	}
	params := listParams(c)

	page, err := s.svc.ListBookEvents(c.UserContext(), c.Params("id"), eventTypes, params.Skip, params.Limit)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{
		"data":     toEventResponses(page.Events),
		"has_more": page.HasMore,
	})
}

func (s *Server) handleRecentBookEvents(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 10)
	events, err := s.svc.ListRecentBookEvents(c.UserContext(), c.Params("id"), limit)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"data": toEventResponses(events)})
}
