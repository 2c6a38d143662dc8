package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/codebuildervaibhav/call-transcription/internal/logging"
)

// Routes bundles everything the HTTP surface serves
type Routes struct {
	APIToken    string
	Transcribe  *TranscribeHandler
	Translate   *TranslateHandler
	Transcripts *TranscriptsHandler
	Stream      *StreamHandler
	Logs        *logging.Buffer
}

// Register mounts all endpoints on app. Everything except /health needs
// the bearer token.
func Register(app *fiber.App, r Routes) {
	app.Use(BearerAuth(r.APIToken, "/health"))

	app.Get("/health", Health)
	app.Get("/logs", Logs(r.Logs))

	app.Post("/transcribe", r.Transcribe.Handle)
	app.Post("/translate", r.Translate.Handle)

	app.Get("/transcripts", r.Transcripts.List)
	app.Get("/transcripts/:key", r.Transcripts.Get)

	// WebSocket route
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/transcribe", websocket.New(r.Stream.Handle))
}
