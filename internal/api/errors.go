package api

import (
	"errors"
	"log"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	apperrors "github.com/wordloom/wordloom/internal/platform/errors"
)

// ErrorResponse is the wire shape of every API error.
type ErrorResponse struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

// writeError renders any error through the central code → status mapping.
// Non-domain errors never leak internals to the client.
func writeError(c *fiber.Ctx, err error) error {
	var invalid validator.ValidationErrors
	if errors.As(err, &invalid) {
		details := make(map[string]string, len(invalid))
		for _, fieldErr := range invalid {
			details[fieldErr.Field()] = fieldErr.Tag()
		}
		return c.Status(fiber.StatusUnprocessableEntity).JSON(ErrorResponse{
			Code:    string(apperrors.CodeValidation),
			Message: "request validation failed",
			Details: details,
		})
	}

	if domainErr, ok := apperrors.AsError(err); ok {
		return c.Status(domainErr.Code.HTTPStatus()).JSON(ErrorResponse{
			Code:    string(domainErr.Code),
			Message: domainErr.Message,
			Details: domainErr.Metadata,
		})
	}

	log.Printf("api: unhandled error on %s %s: %v", c.Method(), c.Path(), err)
	return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
		Code:    string(apperrors.CodeUnknown),
		Message: "internal error",
	})
}

// parseBody decodes and validates a JSON request body.
func (s *Server) parseBody(c *fiber.Ctx, dst any) error {
	if err := c.BodyParser(dst); err != nil {
		return apperrors.New(apperrors.CodeValidation, "request body is not valid JSON")
	}
	return s.validate.Struct(dst)
}
