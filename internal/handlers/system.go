package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/codebuildervaibhav/call-transcription/internal/logging"
)

// Version is reported by the health endpoint
const Version = "1.0.0"

// Health handles GET /health
func Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "healthy",
		"version": Version,
	})
}

// Logs returns a handler serving the most recent log lines
func Logs(buf *logging.Buffer) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"logs": buf.Lines(),
		})
	}
}
