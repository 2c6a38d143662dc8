package transcription

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"
)

// Normalizer converts an input artifact into the PCM WAV form the rest of
// the pipeline slices and uploads.
type Normalizer interface {
	Normalize(ctx context.Context, inputPath, workDir string) (string, error)
}

// FFmpegNormalizer converts any audio file to mono 16-bit PCM WAV
type FFmpegNormalizer struct {
	Binary     string
	SampleRate int
}

// NewFFmpegNormalizer creates a normalizer that shells out to ffmpeg
func NewFFmpegNormalizer(binary string, sampleRate int) *FFmpegNormalizer {
	if binary == "" {
		binary = "ffmpeg"
	}
	if sampleRate == 0 {
		sampleRate = 16000
	}
	return &FFmpegNormalizer{Binary: binary, SampleRate: sampleRate}
}

// Normalize writes the converted file into workDir and returns its path
func (n *FFmpegNormalizer) Normalize(ctx context.Context, inputPath, workDir string) (string, error) {
	outputPath := filepath.Join(workDir, fmt.Sprintf("normalized_%s.wav", uuid.New().String()))

	cmd := exec.CommandContext(ctx, n.Binary,
		"-i", inputPath,
		"-ar", strconv.Itoa(n.SampleRate),
		"-ac", "1", // Mono
		"-c:a", "pcm_s16le", // 16-bit PCM
		"-y", // Overwrite output
		outputPath,
	)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("ffmpeg failed: %v\nOutput: %s", err, string(output))
	}

	return outputPath, nil
}
