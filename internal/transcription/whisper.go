package transcription

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// WhisperTranscriber wraps Python's OpenAI Whisper CLI for local transcription
type WhisperTranscriber struct {
	modelName string
	python    string
	threads   int
	device    string
	language  string
	log       zerolog.Logger
	mu        sync.Mutex // one model instance in memory at a time
}

// NewWhisperTranscriber creates a new transcriber using Python Whisper
func NewWhisperTranscriber(modelPath string, threads int, device, language string, log zerolog.Logger) *WhisperTranscriber {
	log = log.With().Str("component", "whisper").Logger()
	modelName := whisperModelName(modelPath)
	log.Info().Str("model", modelName).Msg("using local Python Whisper; availability is checked on first segment")

	return &WhisperTranscriber{
		modelName: modelName,
		python:    "python",
		threads:   threads,
		device:    device,
		language:  language,
		log:       log,
	}
}

// whisperModelName extracts the model size from a model path or name,
// e.g. "models/ggml-small.bin" -> "small".
func whisperModelName(modelPath string) string {
	lower := strings.ToLower(modelPath)
	for _, name := range []string{"tiny", "base", "small", "medium", "large"} {
		if strings.Contains(lower, name) {
			return name
		}
	}
	return "small"
}

// Transcribe runs Whisper on one audio file and returns its text
func (wt *WhisperTranscriber) Transcribe(ctx context.Context, audioPath string) (string, error) {
	wt.mu.Lock()
	defer wt.mu.Unlock()

	absAudioPath, err := filepath.Abs(audioPath)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %v", err)
	}

	outDir, err := os.MkdirTemp(filepath.Dir(absAudioPath), "whisper_output_")
	if err != nil {
		return "", fmt.Errorf("failed to create whisper output dir: %w", err)
	}
	defer os.RemoveAll(outDir)

	args := []string{"-m", "whisper",
		absAudioPath,
		"--model", wt.modelName,
		"--output_dir", outDir,
		"--output_format", "json",
		"--fp16", "False", // Disable fp16 for CPU compatibility
	}
	if wt.language != "" {
		args = append(args, "--language", wt.language)
	}
	if wt.threads > 0 {
		args = append(args, "--threads", strconv.Itoa(wt.threads))
	}
	if wt.device != "" {
		args = append(args, "--device", wt.device)
	}

	cmd := exec.CommandContext(ctx, wt.python, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("whisper transcription failed: %v\nOutput: %s", err, string(output))
	}

	baseName := strings.TrimSuffix(filepath.Base(absAudioPath), filepath.Ext(absAudioPath))
	jsonData, err := os.ReadFile(filepath.Join(outDir, baseName+".json"))
	if err != nil {
		return "", fmt.Errorf("failed to read whisper output: %v", err)
	}

	var whisperOutput WhisperOutput
	if err := json.Unmarshal(jsonData, &whisperOutput); err != nil {
		return "", fmt.Errorf("failed to parse whisper JSON: %v", err)
	}

	wt.log.Debug().
		Str("segment", filepath.Base(audioPath)).
		Str("language", whisperOutput.Language).
		Int("whisper_segments", len(whisperOutput.Segments)).
		Msg("segment transcribed")
	return strings.TrimSpace(whisperOutput.Text), nil
}

// WhisperOutput matches Python Whisper's JSON output format
type WhisperOutput struct {
	Text     string           `json:"text"`
	Language string           `json:"language"`
	Segments []WhisperSegment `json:"segments"`
}

// WhisperSegment represents a timestamped segment from Whisper
type WhisperSegment struct {
	ID    int     `json:"id"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}
