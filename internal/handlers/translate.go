package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/codebuildervaibhav/call-transcription/internal/language"
	"github.com/codebuildervaibhav/call-transcription/internal/translation"
)

const targetLanguage = "en"

// TranslateHandler handles POST /translate for free-form text
type TranslateHandler struct {
	detector   language.Detector
	translator translation.Translator
	log        zerolog.Logger
}

// NewTranslateHandler creates a new translate handler
func NewTranslateHandler(detector language.Detector, translator translation.Translator, log zerolog.Logger) *TranslateHandler {
	return &TranslateHandler{
		detector:   detector,
		translator: translator,
		log:        log.With().Str("handler", "translate").Logger(),
	}
}

// TranslateRequest represents the request body
type TranslateRequest struct {
	Message string `json:"message"`
}

// TranslateResponse is returned on success
type TranslateResponse struct {
	OriginalText         string `json:"original_text"`
	DetectedLanguage     string `json:"detected_language"`
	DetectedLanguageName string `json:"detected_language_name"`
	TranslatedText       string `json:"translated_text"`
	TargetLanguage       string `json:"target_language"`
}

// Handle detects the message language and translates it to English.
// Undetectable or unlisted languages are treated as English.
func (h *TranslateHandler) Handle(c *fiber.Ctx) error {
	var req TranslateRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if strings.TrimSpace(req.Message) == "" {
		return badRequest(c, "message is required")
	}

	code, _, err := h.detector.Detect(req.Message)
	if _, known := language.Names[code]; err != nil || !known {
		code = targetLanguage
	}

	translated := req.Message
	if code != targetLanguage {
		translated, err = h.translator.TranslateToEnglish(c.UserContext(), req.Message)
		if err != nil {
			h.log.Error().Err(err).Str("language", code).Msg("translation failed")
			return c.Status(fiber.StatusInternalServerError).JSON(errorBody{
				Error:   "translation_failed",
				Details: err.Error(),
			})
		}
	}

	return c.JSON(TranslateResponse{
		OriginalText:         req.Message,
		DetectedLanguage:     code,
		DetectedLanguageName: language.Name(code),
		TranslatedText:       translated,
		TargetLanguage:       targetLanguage,
	})
}
