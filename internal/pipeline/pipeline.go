package pipeline

import (
	"context"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/codebuildervaibhav/call-transcription/internal/diarization"
	"github.com/codebuildervaibhav/call-transcription/internal/language"
	"github.com/codebuildervaibhav/call-transcription/internal/source"
	"github.com/codebuildervaibhav/call-transcription/internal/storage"
	"github.com/codebuildervaibhav/call-transcription/internal/transcription"
	"github.com/codebuildervaibhav/call-transcription/internal/translation"
	"github.com/codebuildervaibhav/call-transcription/internal/types"
)

const archiveAttempts = 3

// Resolver identifies and fetches audio inputs
type Resolver interface {
	Identify(req source.Request) (string, error)
	Fetch(ctx context.Context, req source.Request, key, workDir string) (*source.Artifact, error)
}

// Coordinator transcribes segments concurrently and returns one line per
// segment in the order given, plus the number of segments that failed.
type Coordinator interface {
	TranscribeAll(ctx context.Context, segments []transcription.Segment, labels transcription.SpeakerLabels, workDir string) ([]types.TranscriptLine, int)
}

// Classifier tags the dominant language of a text
type Classifier interface {
	Classify(text string) string
}

// Indexer records processed calls
type Indexer interface {
	SaveTranscript(ctx context.Context, rec storage.TranscriptRecord) error
}

// Archiver copies fresh results to long-term storage
type Archiver interface {
	Upload(ctx context.Context, key string, result *types.TranscriptResult) (string, error)
}

// Deps are the collaborators of a Pipeline. Indexer and Archiver are
// optional.
type Deps struct {
	Resolver    Resolver
	Cache       storage.Cache
	Normalizer  transcription.Normalizer
	Diarizer    diarization.Diarizer
	Coordinator Coordinator
	Classifier  Classifier
	Translator  translation.Translator
	Indexer     Indexer
	Archiver    Archiver
	TempDir     string
}

// Outcome is the result of one Run
type Outcome struct {
	Result              *types.TranscriptResult
	IdentityKey         string
	CacheHit            bool
	TranslationFallback bool
	FailedSegments      int
}

// Pipeline turns a call recording into a speaker-attributed, English
// transcript. It is safe for concurrent use.
type Pipeline struct {
	deps         Deps
	log          zerolog.Logger
	archiveDelay func(attempt int) time.Duration
	background   sync.WaitGroup
}

// New creates a pipeline
func New(deps Deps, log zerolog.Logger) *Pipeline {
	return &Pipeline{
		deps: deps,
		log:  log.With().Str("component", "pipeline").Logger(),
		archiveDelay: func(attempt int) time.Duration {
			return time.Duration(attempt*attempt) * time.Second
		},
	}
}

// Run processes one request. The cache is consulted before any audio is
// fetched; a hit returns the stored result unchanged.
func (p *Pipeline) Run(ctx context.Context, req source.Request) (*Outcome, error) {
	m := NewRunMetrics()
	defer func() {
		m.Finalize()
		p.log.Info().EmbedObject(m).Msg("pipeline run finished")
	}()

	key, err := p.deps.Resolver.Identify(req)
	if err != nil {
		return nil, sourceError("identify", err)
	}
	m.IdentityKey = key
	log := p.log.With().Str("key", key).Logger()

	if cached := p.lookup(ctx, key, log); cached != nil {
		m.CacheHit = true
		return &Outcome{Result: cached, IdentityKey: key, CacheHit: true}, nil
	}

	workDir, err := os.MkdirTemp(p.deps.TempDir, key+"-*")
	if err != nil {
		return nil, &Error{Kind: KindInternal, Op: "workdir", Err: err}
	}
	defer func() {
		if err := os.RemoveAll(workDir); err != nil {
			log.Warn().Err(err).Str("dir", workDir).Msg("failed to remove work dir")
		}
	}()

	done := m.Stage("fetch")
	artifact, err := p.deps.Resolver.Fetch(ctx, req, key, workDir)
	done()
	if err != nil {
		return nil, sourceError("fetch", err)
	}
	m.SourceType = artifact.SourceType
	m.AudioBytes = artifact.Size

	done = m.Stage("normalize")
	wavPath, err := p.deps.Normalizer.Normalize(ctx, artifact.Path, workDir)
	done()
	if err != nil {
		return nil, &Error{Kind: KindAudioProcessing, Op: "normalize", Err: err}
	}

	done = m.Stage("diarize")
	turns, err := p.deps.Diarizer.Diarize(ctx, wavPath)
	done()
	if err != nil {
		return nil, &Error{Kind: KindDiarizationFailed, Op: "diarize", Err: err}
	}
	if len(turns) == 0 {
		return nil, &Error{Kind: KindDiarizationFailed, Op: "diarize", Err: ErrNoSpeech}
	}
	m.Turns = len(turns)

	labels := transcription.MapSpeakers(turns)
	segments, err := transcription.ExtractSegments(wavPath, turns, log)
	if err != nil {
		return nil, &Error{Kind: KindAudioProcessing, Op: "segment", Err: err}
	}
	m.Segments = len(segments)

	done = m.Stage("transcribe")
	lines, failed := p.deps.Coordinator.TranscribeAll(ctx, segments, labels, workDir)
	done()
	m.FailedSegments = failed

	original := joinLines(lines)
	spoken := spokenText(lines)

	done = m.Stage("classify")
	lang := p.deps.Classifier.Classify(spoken)
	done()
	m.Language = lang

	result := &types.TranscriptResult{
		ConvertedTranscription: original,
		OriginalLanguage:       lang,
		OriginalTranscription:  original,
		ConvertedLanguage:      types.ConvertedLanguage,
		Transcription:          original,
	}

	fallback := false
	if !language.IsEnglish(lang) && strings.TrimSpace(spoken) != "" {
		done = m.Stage("translate")
		translated, err := p.deps.Translator.TranslateToEnglish(ctx, original)
		done()
		if err != nil {
			log.Warn().Err(err).Str("language", lang).Msg("translation failed, returning original transcript")
			fallback = true
		} else {
			result.Transcription = translated
			m.Translated = true
		}
	}
	m.TranslationFallback = fallback

	if err := p.deps.Cache.Put(ctx, key, result); err != nil {
		log.Error().Err(err).Msg("failed to cache transcript")
	}

	rec := storage.TranscriptRecord{
		IdentityKey:      key,
		SourceType:       artifact.SourceType,
		OriginalLanguage: lang,
		LineCount:        len(lines),
		WordCount:        len(strings.Fields(spoken)),
		FailedSegments:   failed,
		Result:           result,
	}
	p.index(ctx, log, rec)
	p.archive(log, key, result)

	return &Outcome{
		Result:              result,
		IdentityKey:         key,
		TranslationFallback: fallback,
		FailedSegments:      failed,
	}, nil
}

// lookup returns the cached result for key. Cache errors count as misses.
func (p *Pipeline) lookup(ctx context.Context, key string, log zerolog.Logger) *types.TranscriptResult {
	cached, err := p.deps.Cache.Get(ctx, key)
	if err != nil {
		log.Warn().Err(err).Msg("cache lookup failed, recomputing")
		return nil
	}
	if cached != nil {
		log.Info().Msg("cache hit")
	}
	return cached
}

func (p *Pipeline) index(ctx context.Context, log zerolog.Logger, rec storage.TranscriptRecord) {
	if p.deps.Indexer == nil {
		return
	}
	if err := p.deps.Indexer.SaveTranscript(ctx, rec); err != nil {
		log.Warn().Err(err).Msg("failed to index transcript")
	}
}

// archive uploads the result in the background, retrying with quadratic
// backoff. Failures are logged only.
func (p *Pipeline) archive(log zerolog.Logger, key string, result *types.TranscriptResult) {
	if p.deps.Archiver == nil {
		return
	}
	p.background.Add(1)
	go func() {
		defer p.background.Done()
		ctx := context.Background()

		var err error
		for attempt := 1; attempt <= archiveAttempts; attempt++ {
			var link string
			link, err = p.deps.Archiver.Upload(ctx, key, result)
			if err == nil {
				log.Info().Str("link", link).Msg("transcript archived")
				return
			}
			log.Warn().Err(err).Int("attempt", attempt).Int("of", archiveAttempts).Msg("archive upload failed")
			if attempt < archiveAttempts {
				time.Sleep(p.archiveDelay(attempt))
			}
		}
		log.Error().Err(err).Msg("archive upload gave up, transcript kept locally only")
	}()
}

// Wait blocks until background archive uploads have finished
func (p *Pipeline) Wait() {
	p.background.Wait()
}

func joinLines(lines []types.TranscriptLine) string {
	rendered := make([]string, len(lines))
	for i, line := range lines {
		rendered[i] = line.String()
	}
	return strings.Join(rendered, "\n")
}

// spokenText is the transcript without timestamps or speaker labels, which
// would otherwise skew language detection.
func spokenText(lines []types.TranscriptLine) string {
	parts := make([]string, 0, len(lines))
	for _, line := range lines {
		if line.Text != "" {
			parts = append(parts, line.Text)
		}
	}
	return strings.Join(parts, "\n")
}
