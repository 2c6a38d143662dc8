package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/codebuildervaibhav/call-transcription/internal/pipeline"
	"github.com/codebuildervaibhav/call-transcription/internal/source"
	"github.com/codebuildervaibhav/call-transcription/internal/types"
)

// Runner executes the transcription pipeline
type Runner interface {
	Run(ctx context.Context, req source.Request) (*pipeline.Outcome, error)
}

// TranscribeHandler handles POST /transcribe
type TranscribeHandler struct {
	runner    Runner
	maxSizeMB int
	log       zerolog.Logger
}

// NewTranscribeHandler creates a new transcribe handler
func NewTranscribeHandler(runner Runner, maxSizeMB int, log zerolog.Logger) *TranscribeHandler {
	return &TranscribeHandler{
		runner:    runner,
		maxSizeMB: maxSizeMB,
		log:       log.With().Str("handler", "transcribe").Logger(),
	}
}

// Handle accepts a multipart "file" field or a "url" form field and
// answers with the transcript once the pipeline has finished.
func (h *TranscribeHandler) Handle(c *fiber.Ctx) error {
	var req source.Request

	if file, err := c.FormFile("file"); err == nil {
		maxSize := int64(h.maxSizeMB) * 1024 * 1024
		if h.maxSizeMB > 0 && file.Size > maxSize {
			return badRequest(c, fmt.Sprintf("file too large (max %dMB)", h.maxSizeMB))
		}
		f, err := file.Open()
		if err != nil {
			h.log.Error().Err(err).Msg("failed to open uploaded file")
			return sendError(c, err)
		}
		defer f.Close()
		req = source.Request{Filename: file.Filename, Body: f, SourceType: types.SourceUpload}
	} else if url := strings.TrimSpace(c.FormValue("url")); url != "" {
		req = source.Request{URL: url}
	} else {
		return badRequest(c, source.ErrNoSource.Error())
	}

	out, err := h.runner.Run(c.UserContext(), req)
	if err != nil {
		h.log.Warn().Err(err).Str("kind", string(pipeline.KindOf(err))).Msg("transcription failed")
		return sendError(c, err)
	}

	setOutcomeHeaders(c, out)
	return c.JSON(out.Result)
}

func setOutcomeHeaders(c *fiber.Ctx, out *pipeline.Outcome) {
	if out.CacheHit {
		c.Set("X-Cache", "HIT")
	} else {
		c.Set("X-Cache", "MISS")
	}
	if out.TranslationFallback {
		c.Set("X-Translation-Fallback", "true")
	}
}
