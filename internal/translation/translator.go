package translation

import (
	"context"
	"errors"
	"math"
	"strings"

	"github.com/sashabaranov/go-openai"
)

const systemPrompt = "You are a helpful assistant who translates text."

// ErrEmptyTranslation is returned when the model answers with no text
var ErrEmptyTranslation = errors.New("translation returned no text")

// Translator renders arbitrary text in English
type Translator interface {
	TranslateToEnglish(ctx context.Context, text string) (string, error)
}

// Options configures an OpenAITranslator
type Options struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float32
}

// OpenAITranslator translates with a chat completion model
type OpenAITranslator struct {
	client *openai.Client
	opts   Options
}

// NewOpenAITranslator creates a translator
func NewOpenAITranslator(opts Options) *OpenAITranslator {
	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	}
	if opts.Model == "" {
		opts.Model = openai.GPT4o
	}
	return &OpenAITranslator{
		client: openai.NewClientWithConfig(cfg),
		opts:   opts,
	}
}

// TranslateToEnglish returns the English rendering of text
func (o *OpenAITranslator) TranslateToEnglish(ctx context.Context, text string) (string, error) {
	// The client omits a zero temperature, which the API reads as 1.
	temperature := o.opts.Temperature
	if temperature == 0 {
		temperature = math.SmallestNonzeroFloat32
	}
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.opts.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: "Translate the following text to English:\n\n" + text},
		},
		MaxTokens:   o.opts.MaxTokens,
		Temperature: temperature,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyTranslation
	}
	out := strings.TrimSpace(resp.Choices[0].Message.Content)
	if out == "" {
		return "", ErrEmptyTranslation
	}
	return out, nil
}
