// Package diarization talks to the speaker diarization sidecar that wraps
// the pyannote model.
package diarization

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/codebuildervaibhav/call-transcription/internal/types"
)

// Diarizer partitions an audio file into speaker turns
type Diarizer interface {
	Diarize(ctx context.Context, audioPath string) ([]types.SpeakerTurn, error)
}

// Options holds configuration for the sidecar client
type Options struct {
	BaseURL     string
	Token       string
	Timeout     time.Duration
	MinSpeakers int
	MaxSpeakers int
}

// PyannoteClient implements Diarizer against the pyannote HTTP sidecar
type PyannoteClient struct {
	opts   Options
	client *http.Client
	log    zerolog.Logger
}

// NewPyannoteClient creates a new diarization client
func NewPyannoteClient(opts Options, log zerolog.Logger) *PyannoteClient {
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	return &PyannoteClient{
		opts:   opts,
		client: &http.Client{Timeout: opts.Timeout},
		log:    log.With().Str("component", "diarization").Logger(),
	}
}

// Result matches the sidecar's JSON output format
type Result struct {
	Speakers []SpeakerSegment `json:"segments"`
	Error    string           `json:"error,omitempty"`
}

// SpeakerSegment represents when a speaker is talking
type SpeakerSegment struct {
	SpeakerID string  `json:"speaker"`
	Start     float64 `json:"start"`
	End       float64 `json:"end"`
}

// Diarize uploads the audio to the sidecar and returns its speaker turns
// in the order the model produced them.
func (p *PyannoteClient) Diarize(ctx context.Context, audioPath string) ([]types.SpeakerTurn, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return nil, fmt.Errorf("open audio: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("audio", filepath.Base(audioPath))
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, fmt.Errorf("write audio data: %w", err)
	}
	if p.opts.MinSpeakers > 0 {
		_ = writer.WriteField("min_speakers", strconv.Itoa(p.opts.MinSpeakers))
	}
	if p.opts.MaxSpeakers > 0 {
		_ = writer.WriteField("max_speakers", strconv.Itoa(p.opts.MaxSpeakers))
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.opts.BaseURL+"/diarize", &buf)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if p.opts.Token != "" {
		req.Header.Set("Authorization", "Bearer "+p.opts.Token)
	}

	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("diarization request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("diarization error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode diarization response: %w", err)
	}
	if result.Error != "" {
		return nil, fmt.Errorf("diarization error: %s", result.Error)
	}

	turns := make([]types.SpeakerTurn, len(result.Speakers))
	for i, seg := range result.Speakers {
		turns[i] = types.SpeakerTurn{Start: seg.Start, End: seg.End, Tag: seg.SpeakerID}
	}

	p.log.Info().
		Str("audio", filepath.Base(audioPath)).
		Int("turns", len(turns)).
		Dur("elapsed", time.Since(start)).
		Msg("diarization completed")
	return turns, nil
}

// Available checks if the sidecar is reachable
func (p *PyannoteClient) Available(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.opts.BaseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
