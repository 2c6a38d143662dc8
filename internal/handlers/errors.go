package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/codebuildervaibhav/call-transcription/internal/pipeline"
)

// errorBody is the only shape returned on failure; no partial result
// fields accompany it.
type errorBody struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// statusFor maps pipeline error kinds to HTTP status codes
func statusFor(kind pipeline.Kind) int {
	if kind == pipeline.KindInvalidInput {
		return fiber.StatusBadRequest
	}
	return fiber.StatusInternalServerError
}

// sendError writes err as an error body
func sendError(c *fiber.Ctx, err error) error {
	kind := pipeline.KindOf(err)
	return c.Status(statusFor(kind)).JSON(errorBody{
		Error:   string(kind),
		Details: err.Error(),
	})
}

func badRequest(c *fiber.Ctx, details string) error {
	return c.Status(fiber.StatusBadRequest).JSON(errorBody{
		Error:   string(pipeline.KindInvalidInput),
		Details: details,
	})
}

// ErrorHandler renders errors that escape handlers, e.g. fiber's own 404
// and body-limit errors, in the same shape.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	label := "internal_error"
	switch {
	case code == fiber.StatusNotFound:
		label = "not_found"
	case code < fiber.StatusInternalServerError:
		label = string(pipeline.KindInvalidInput)
	}
	return c.Status(code).JSON(errorBody{Error: label, Details: err.Error()})
}
