package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/codebuildervaibhav/call-transcription/internal/source"
	"github.com/codebuildervaibhav/call-transcription/internal/storage"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// TranscriptLister lists indexed transcripts, newest first
type TranscriptLister interface {
	ListTranscripts(ctx context.Context, limit int) ([]storage.TranscriptRecord, error)
}

// TranscriptsHandler serves the transcript index and cached results
type TranscriptsHandler struct {
	lister TranscriptLister
	cache  storage.Cache
	log    zerolog.Logger
}

// NewTranscriptsHandler creates a new transcripts handler
func NewTranscriptsHandler(lister TranscriptLister, cache storage.Cache, log zerolog.Logger) *TranscriptsHandler {
	return &TranscriptsHandler{
		lister: lister,
		cache:  cache,
		log:    log.With().Str("handler", "transcripts").Logger(),
	}
}

// List handles GET /transcripts?limit=N
func (h *TranscriptsHandler) List(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", defaultListLimit)
	if limit < 1 {
		return badRequest(c, "limit must be positive")
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	transcripts, err := h.lister.ListTranscripts(c.UserContext(), limit)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list transcripts")
		return sendError(c, err)
	}
	return c.JSON(fiber.Map{"transcripts": transcripts})
}

// Get handles GET /transcripts/:key
func (h *TranscriptsHandler) Get(c *fiber.Ctx) error {
	key := c.Params("key")
	if !source.ValidKey(key) {
		return badRequest(c, "invalid transcript key")
	}

	result, err := h.cache.Get(c.UserContext(), key)
	if err != nil {
		h.log.Error().Err(err).Str("key", key).Msg("failed to read transcript")
		return sendError(c, err)
	}
	if result == nil {
		return c.Status(fiber.StatusNotFound).JSON(errorBody{Error: "not_found", Details: "no transcript for " + key})
	}
	return c.JSON(result)
}
