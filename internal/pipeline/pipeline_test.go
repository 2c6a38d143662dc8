package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/rs/zerolog"

	"github.com/codebuildervaibhav/call-transcription/internal/language"
	"github.com/codebuildervaibhav/call-transcription/internal/queue"
	"github.com/codebuildervaibhav/call-transcription/internal/source"
	"github.com/codebuildervaibhav/call-transcription/internal/storage"
	"github.com/codebuildervaibhav/call-transcription/internal/transcription"
	"github.com/codebuildervaibhav/call-transcription/internal/types"
)

const rate = 8000

// callWAV renders a recording in which every sample holds the second it
// belongs to, so a transcriber can tell segments apart by content.
func callWAV(t *testing.T, seconds int) []byte {
	t.Helper()
	data := make([]int, seconds*rate)
	for i := range data {
		data[i] = i / rate
	}
	path := filepath.Join(t.TempDir(), "fixture.wav")
	err := transcription.WriteWAV(path, transcription.Segment{
		BitDepth: 16,
		Audio: &audio.IntBuffer{
			Format:         &audio.Format{NumChannels: 1, SampleRate: rate},
			Data:           data,
			SourceBitDepth: 16,
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return raw
}

type passthroughNormalizer struct{ calls atomic.Int32 }

func (n *passthroughNormalizer) Normalize(_ context.Context, inputPath, _ string) (string, error) {
	n.calls.Add(1)
	return inputPath, nil
}

type fakeDiarizer struct {
	turns []types.SpeakerTurn
	err   error
	calls atomic.Int32
}

func (d *fakeDiarizer) Diarize(context.Context, string) ([]types.SpeakerTurn, error) {
	d.calls.Add(1)
	return d.turns, d.err
}

// secondTranscriber answers by the second a segment starts at
type secondTranscriber struct {
	texts map[int]string
	calls atomic.Int32
}

func (s *secondTranscriber) Transcribe(_ context.Context, path string) (string, error) {
	s.calls.Add(1)
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	buf, err := wav.NewDecoder(f).FullPCMBuffer()
	if err != nil {
		return "", err
	}
	second := buf.Data[0]
	// later segments finish first
	time.Sleep(time.Duration(12-second) * 2 * time.Millisecond)
	text, ok := s.texts[second]
	if !ok {
		return "", fmt.Errorf("no transcript for second %d", second)
	}
	return text, nil
}

type fixedDetector struct {
	code  string
	calls atomic.Int32
	last  string
}

func (d *fixedDetector) Detect(text string) (string, float64, error) {
	d.calls.Add(1)
	d.last = text
	return d.code, 1, nil
}

type fakeTranslator struct {
	out   string
	err   error
	calls atomic.Int32
	input string
}

func (f *fakeTranslator) TranslateToEnglish(_ context.Context, text string) (string, error) {
	f.calls.Add(1)
	f.input = text
	return f.out, f.err
}

type fakeIndexer struct {
	mu      sync.Mutex
	records []storage.TranscriptRecord
}

func (f *fakeIndexer) SaveTranscript(_ context.Context, rec storage.TranscriptRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, rec)
	return nil
}

type flakyArchiver struct {
	failures int
	calls    atomic.Int32
}

func (f *flakyArchiver) Upload(context.Context, string, *types.TranscriptResult) (string, error) {
	n := int(f.calls.Add(1))
	if n <= f.failures {
		return "", errors.New("drive unavailable")
	}
	return "https://drive.example/doc", nil
}

// failingCache errors on every call
type failingCache struct{ puts atomic.Int32 }

func (f *failingCache) Get(context.Context, string) (*types.TranscriptResult, error) {
	return nil, errors.New("disk on fire")
}

func (f *failingCache) Put(context.Context, string, *types.TranscriptResult) error {
	f.puts.Add(1)
	return errors.New("disk on fire")
}

type harness struct {
	pipeline    *Pipeline
	cache       storage.Cache
	normalizer  *passthroughNormalizer
	diarizer    *fakeDiarizer
	transcriber *secondTranscriber
	detector    *fixedDetector
	translator  *fakeTranslator
	indexer     *fakeIndexer
	archiver    *flakyArchiver
	tempDir     string
	wav         []byte
}

var threeTurns = []types.SpeakerTurn{
	{Start: 9.0, End: 12.0, Tag: "SPEAKER_A"},
	{Start: 0.0, End: 5.0, Tag: "SPEAKER_A"},
	{Start: 5.0, End: 9.0, Tag: "SPEAKER_B"},
}

func newHarness(t *testing.T, code string, texts map[int]string) *harness {
	t.Helper()
	cache, err := storage.NewLocalStorage(filepath.Join(t.TempDir(), "outputs"))
	if err != nil {
		t.Fatal(err)
	}

	h := &harness{
		cache:       cache,
		normalizer:  &passthroughNormalizer{},
		diarizer:    &fakeDiarizer{turns: threeTurns},
		transcriber: &secondTranscriber{texts: texts},
		detector:    &fixedDetector{code: code},
		translator:  &fakeTranslator{out: "00:00 Caller 1: hello\n00:05 Caller 2: hi there\n00:09 Caller 1: bye"},
		indexer:     &fakeIndexer{},
		archiver:    &flakyArchiver{},
		tempDir:     t.TempDir(),
		wav:         callWAV(t, 12),
	}

	pool := queue.NewWorkerPool(3, h.transcriber, zerolog.Nop())
	pool.Start()
	t.Cleanup(pool.Stop)

	h.pipeline = New(Deps{
		Resolver:    source.NewResolver(time.Second, zerolog.Nop()),
		Cache:       cache,
		Normalizer:  h.normalizer,
		Diarizer:    h.diarizer,
		Coordinator: pool,
		Classifier:  language.NewClassifier(h.detector),
		Translator:  h.translator,
		Indexer:     h.indexer,
		Archiver:    h.archiver,
		TempDir:     h.tempDir,
	}, zerolog.Nop())
	h.pipeline.archiveDelay = func(int) time.Duration { return 0 }
	t.Cleanup(h.pipeline.Wait)
	return h
}

func (h *harness) upload(name string) source.Request {
	return source.Request{Filename: name, Body: bytes.NewReader(h.wav)}
}

var englishTexts = map[int]string{0: "hello", 5: "hi there", 9: "bye"}

func TestRunEnglishCall(t *testing.T) {
	h := newHarness(t, "en", englishTexts)

	out, err := h.pipeline.Run(context.Background(), h.upload("Support Call #1.wav"))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	want := "00:00 Caller 1: hello\n00:05 Caller 2: hi there\n00:09 Caller 1: bye"
	res := out.Result
	if res.OriginalTranscription != want {
		t.Errorf("Expected original %q, got %q", want, res.OriginalTranscription)
	}
	if res.Transcription != res.OriginalTranscription {
		t.Errorf("English call must not be translated, got %q", res.Transcription)
	}
	if res.ConvertedTranscription != want {
		t.Errorf("Unexpected converted transcription %q", res.ConvertedTranscription)
	}
	if res.OriginalLanguage != "English (en)" || res.ConvertedLanguage != "English (en)" {
		t.Errorf("Unexpected languages %q / %q", res.OriginalLanguage, res.ConvertedLanguage)
	}
	if out.IdentityKey != "Support_Call_1" || out.CacheHit || out.FailedSegments != 0 {
		t.Errorf("Unexpected outcome %+v", out)
	}
	if h.translator.calls.Load() != 0 {
		t.Error("Translator must not be called for English")
	}
	if h.detector.last != "hello hi there bye" {
		t.Errorf("Expected classification on spoken text, got %q", h.detector.last)
	}

	h.pipeline.Wait()
	if len(h.indexer.records) != 1 || h.indexer.records[0].WordCount != 4 || h.indexer.records[0].SourceType != types.SourceUpload {
		t.Errorf("Unexpected index records %+v", h.indexer.records)
	}
	if h.archiver.calls.Load() != 1 {
		t.Errorf("Expected one archive upload, got %d", h.archiver.calls.Load())
	}
}

func TestRunFrenchCallIsTranslated(t *testing.T) {
	h := newHarness(t, "fr", map[int]string{0: "bonjour", 5: "salut", 9: "au revoir"})

	out, err := h.pipeline.Run(context.Background(), h.upload("appel.wav"))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	french := "00:00 Caller 1: bonjour\n00:05 Caller 2: salut\n00:09 Caller 1: au revoir"
	res := out.Result
	if res.OriginalTranscription != french {
		t.Errorf("Unexpected original %q", res.OriginalTranscription)
	}
	if res.OriginalLanguage != "French (fr)" {
		t.Errorf("Unexpected language %q", res.OriginalLanguage)
	}
	if res.ConvertedLanguage != "English (en)" {
		t.Errorf("Unexpected converted language %q", res.ConvertedLanguage)
	}
	if res.Transcription != h.translator.out {
		t.Errorf("Expected translator output, got %q", res.Transcription)
	}
	if h.translator.input != french {
		t.Errorf("Expected joined original to be translated, got %q", h.translator.input)
	}
	if out.TranslationFallback {
		t.Error("Unexpected fallback")
	}
}

func TestRunTranslationFailureFallsBack(t *testing.T) {
	h := newHarness(t, "fr", map[int]string{0: "bonjour", 5: "salut", 9: "au revoir"})
	h.translator.err = errors.New("rate limited")

	out, err := h.pipeline.Run(context.Background(), h.upload("appel.wav"))
	if err != nil {
		t.Fatalf("Translation failure must not fail the run: %v", err)
	}
	if !out.TranslationFallback {
		t.Error("Expected fallback to be reported")
	}
	if out.Result.Transcription != out.Result.OriginalTranscription {
		t.Errorf("Expected original text as transcription, got %q", out.Result.Transcription)
	}
	if out.Result.OriginalLanguage != "French (fr)" {
		t.Errorf("Detection must still be reported, got %q", out.Result.OriginalLanguage)
	}

	cached, err := h.cache.Get(context.Background(), "appel")
	if err != nil || cached == nil {
		t.Fatalf("Expected fallback result to be cached, got %v (%v)", cached, err)
	}
	if cached.Transcription != cached.OriginalTranscription {
		t.Errorf("Cached result must carry the original text, got %q", cached.Transcription)
	}
	if recs := h.indexer.records; len(recs) != 1 || recs[0].Result == nil {
		t.Errorf("Expected index entry with the result, got %+v", recs)
	}

	h.translator.err = nil
	out, err = h.pipeline.Run(context.Background(), h.upload("appel.wav"))
	if err != nil {
		t.Fatal(err)
	}
	if !out.CacheHit || out.Result.Transcription != out.Result.OriginalTranscription {
		t.Errorf("Expected cached fallback result, got %+v", out)
	}
	if got := h.diarizer.calls.Load(); got != 1 {
		t.Errorf("Expected diarization to run once, got %d", got)
	}
	if got := h.translator.calls.Load(); got != 1 {
		t.Errorf("Expected translation to be attempted once, got %d", got)
	}
	if got := h.transcriber.calls.Load(); got != 3 {
		t.Errorf("Expected 3 segment transcriptions, got %d", got)
	}
}

func TestRunIsIdempotent(t *testing.T) {
	h := newHarness(t, "en", englishTexts)
	ctx := context.Background()

	first, err := h.pipeline.Run(ctx, h.upload("call.wav"))
	if err != nil {
		t.Fatal(err)
	}
	transcribed := h.transcriber.calls.Load()

	second, err := h.pipeline.Run(ctx, h.upload("call.wav"))
	if err != nil {
		t.Fatal(err)
	}

	if !second.CacheHit {
		t.Error("Expected cache hit")
	}
	if *second.Result != *first.Result {
		t.Errorf("Expected identical result, got %+v vs %+v", second.Result, first.Result)
	}
	if h.diarizer.calls.Load() != 1 || h.normalizer.calls.Load() != 1 {
		t.Errorf("Expected no audio processing on hit, diarizer=%d normalizer=%d",
			h.diarizer.calls.Load(), h.normalizer.calls.Load())
	}
	if h.transcriber.calls.Load() != transcribed || h.detector.calls.Load() != 1 {
		t.Error("Expected no transcription or classification on hit")
	}
}

func TestRunPartialSegmentFailure(t *testing.T) {
	h := newHarness(t, "en", map[int]string{0: "hello", 9: "bye"})

	out, err := h.pipeline.Run(context.Background(), h.upload("call.wav"))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	want := "00:00 Caller 1: hello\n00:05 Caller 2: \n00:09 Caller 1: bye"
	if out.Result.OriginalTranscription != want {
		t.Errorf("Expected %q, got %q", want, out.Result.OriginalTranscription)
	}
	if out.FailedSegments != 1 {
		t.Errorf("Expected 1 failed segment, got %d", out.FailedSegments)
	}
	if cached, _ := h.cache.Get(context.Background(), "call"); cached == nil {
		t.Error("Partial results are cached")
	}
}

func TestRunSilentCallSkipsTranslation(t *testing.T) {
	h := newHarness(t, "fr", map[int]string{0: "", 5: "", 9: ""})

	out, err := h.pipeline.Run(context.Background(), h.upload("silence.wav"))
	if err != nil {
		t.Fatal(err)
	}
	if out.Result.OriginalLanguage != language.EmptyText {
		t.Errorf("Expected empty-text sentinel, got %q", out.Result.OriginalLanguage)
	}
	if h.translator.calls.Load() != 0 || h.detector.calls.Load() != 0 {
		t.Error("Expected neither detection nor translation for an empty transcript")
	}
}

func TestRunFailures(t *testing.T) {
	testCases := []struct {
		name    string
		setup   func(h *harness)
		req     func(h *harness) source.Request
		want    Kind
		diarize int32
	}{
		{
			name: "no source",
			req:  func(*harness) source.Request { return source.Request{} },
			want: KindInvalidInput,
		},
		{
			name: "unsupported upload",
			req:  func(h *harness) source.Request { return source.Request{Filename: "notes.txt", Body: strings.NewReader("x")} },
			want: KindInvalidInput,
		},
		{
			name: "invalid url",
			req:  func(*harness) source.Request { return source.Request{URL: "ftp://example.com/a.wav"} },
			want: KindInvalidInput,
		},
		{
			name: "unreachable url",
			req:  func(*harness) source.Request { return source.Request{URL: "http://127.0.0.1:1/call.wav"} },
			want: KindFetchFailed,
		},
		{
			name:    "diarization error",
			setup:   func(h *harness) { h.diarizer.err = errors.New("sidecar exploded") },
			req:     func(h *harness) source.Request { return h.upload("call.wav") },
			want:    KindDiarizationFailed,
			diarize: 1,
		},
		{
			name:    "no speech",
			setup:   func(h *harness) { h.diarizer.turns = nil },
			req:     func(h *harness) source.Request { return h.upload("call.wav") },
			want:    KindDiarizationFailed,
			diarize: 1,
		},
		{
			name:    "not audio",
			req:     func(h *harness) source.Request { return source.Request{Filename: "call.wav", Body: strings.NewReader("garbage")} },
			want:    KindAudioProcessing,
			diarize: 1,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, "en", englishTexts)
			if tc.setup != nil {
				tc.setup(h)
			}

			out, err := h.pipeline.Run(context.Background(), tc.req(h))
			if err == nil {
				t.Fatalf("Expected error, got %+v", out)
			}
			if got := KindOf(err); got != tc.want {
				t.Errorf("Expected kind %s, got %s (%v)", tc.want, got, err)
			}
			if out != nil {
				t.Error("No outcome may accompany an error")
			}
			if got := h.diarizer.calls.Load(); got != tc.diarize {
				t.Errorf("Expected %d diarizer calls, got %d", tc.diarize, got)
			}

			entries, _ := os.ReadDir(h.tempDir)
			if len(entries) != 0 {
				t.Errorf("Expected work dir cleanup, found %d entries", len(entries))
			}
		})
	}
}

func TestRunCleansWorkDir(t *testing.T) {
	h := newHarness(t, "en", englishTexts)
	if _, err := h.pipeline.Run(context.Background(), h.upload("call.wav")); err != nil {
		t.Fatal(err)
	}
	entries, _ := os.ReadDir(h.tempDir)
	if len(entries) != 0 {
		t.Errorf("Expected empty temp dir, found %d entries", len(entries))
	}
}

func TestRunCacheErrorsDegrade(t *testing.T) {
	h := newHarness(t, "en", englishTexts)
	broken := &failingCache{}
	h.pipeline.deps.Cache = broken

	out, err := h.pipeline.Run(context.Background(), h.upload("call.wav"))
	if err != nil {
		t.Fatalf("Cache errors must not fail the run: %v", err)
	}
	if out.CacheHit || out.Result == nil {
		t.Errorf("Unexpected outcome %+v", out)
	}
	if broken.puts.Load() != 1 {
		t.Errorf("Expected one write attempt, got %d", broken.puts.Load())
	}
}

func TestArchiveRetries(t *testing.T) {
	testCases := []struct {
		failures int
		calls    int32
	}{
		{0, 1},
		{2, 3},
		{5, 3},
	}

	for _, tc := range testCases {
		t.Run(fmt.Sprintf("%d failures", tc.failures), func(t *testing.T) {
			h := newHarness(t, "en", englishTexts)
			h.archiver.failures = tc.failures

			if _, err := h.pipeline.Run(context.Background(), h.upload("call.wav")); err != nil {
				t.Fatalf("Archive failures must not fail the run: %v", err)
			}
			h.pipeline.Wait()
			if got := h.archiver.calls.Load(); got != tc.calls {
				t.Errorf("Expected %d upload attempts, got %d", tc.calls, got)
			}
		})
	}
}

func TestErrorMessages(t *testing.T) {
	err := &Error{Kind: KindFetchFailed, Op: "fetch", Err: &source.FetchError{URL: "http://x/a.wav", StatusCode: 404}}
	if !strings.Contains(err.Error(), "404") {
		t.Errorf("Expected status in message, got %q", err.Error())
	}
	var fe *source.FetchError
	if !errors.As(err, &fe) {
		t.Error("Expected FetchError to unwrap")
	}
	if KindOf(errors.New("plain")) != KindInternal {
		t.Error("Foreign errors are internal")
	}
}
