package pipeline

import (
	"time"

	"github.com/rs/zerolog"
)

// RunMetrics records what one pipeline run did and how long each stage took
type RunMetrics struct {
	IdentityKey         string
	SourceType          string
	StartTime           time.Time
	EndTime             time.Time
	CacheHit            bool
	AudioBytes          int64
	Turns               int
	Segments            int
	FailedSegments      int
	Language            string
	Translated          bool
	TranslationFallback bool
	stages              map[string]time.Duration
}

// NewRunMetrics starts the clock for a run
func NewRunMetrics() *RunMetrics {
	return &RunMetrics{
		StartTime: time.Now(),
		stages:    make(map[string]time.Duration),
	}
}

// Stage starts timing a named stage; call the returned func when it ends
func (m *RunMetrics) Stage(name string) func() {
	start := time.Now()
	return func() {
		m.stages[name] += time.Since(start)
	}
}

// StageDuration returns the accumulated time spent in a stage
func (m *RunMetrics) StageDuration(name string) time.Duration {
	return m.stages[name]
}

func (m *RunMetrics) Finalize() {
	m.EndTime = time.Now()
}

// MarshalZerologObject implements zerolog.LogObjectMarshaler
func (m *RunMetrics) MarshalZerologObject(e *zerolog.Event) {
	e.Str("key", m.IdentityKey).
		Bool("cache_hit", m.CacheHit).
		Dur("total", m.EndTime.Sub(m.StartTime))
	if m.CacheHit {
		return
	}
	e.Str("source", m.SourceType).
		Int64("audio_bytes", m.AudioBytes).
		Int("turns", m.Turns).
		Int("skipped_turns", m.Turns-m.Segments).
		Int("segments", m.Segments).
		Int("failed_segments", m.FailedSegments).
		Str("language", m.Language).
		Bool("translated", m.Translated).
		Bool("translation_fallback", m.TranslationFallback)

	stages := zerolog.Dict()
	for name, d := range m.stages {
		stages.Dur(name, d)
	}
	e.Dict("stages", stages)
}
