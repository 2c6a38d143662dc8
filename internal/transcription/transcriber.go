package transcription

import (
	"context"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// Transcriber turns one audio file into plain text
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (string, error)
}

// OpenAITranscriber uses the OpenAI audio transcription endpoint
type OpenAITranscriber struct {
	client *openai.Client
	model  string
}

// NewOpenAITranscriber creates a transcriber. baseURL may be empty to use
// the public API.
func NewOpenAITranscriber(apiKey, baseURL, model string) *OpenAITranscriber {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	if model == "" {
		model = openai.Whisper1
	}
	return &OpenAITranscriber{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

// Transcribe uploads the file and returns the recognized text
func (o *OpenAITranscriber) Transcribe(ctx context.Context, audioPath string) (string, error) {
	resp, err := o.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    o.model,
		FilePath: audioPath,
		Format:   openai.AudioResponseFormatJSON,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Text), nil
}
