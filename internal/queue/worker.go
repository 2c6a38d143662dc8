package queue

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/codebuildervaibhav/call-transcription/internal/transcription"
	"github.com/codebuildervaibhav/call-transcription/internal/types"
)

// ErrPoolStopped is returned when work is submitted after Stop
var ErrPoolStopped = errors.New("worker pool stopped")

// WorkerPool manages a pool of workers transcribing audio segments. It is
// shared by all pipeline runs in the process.
type WorkerPool struct {
	jobQueue    chan *SegmentJob
	workerCount int
	transcriber transcription.Transcriber
	log         zerolog.Logger

	quit     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	// mu orders Enqueue against Stop's final drain
	mu      sync.RWMutex
	stopped bool
}

// NewWorkerPool creates a new worker pool
func NewWorkerPool(workerCount int, transcriber transcription.Transcriber, log zerolog.Logger) *WorkerPool {
	if workerCount < 1 {
		workerCount = 1
	}
	return &WorkerPool{
		jobQueue:    make(chan *SegmentJob, 100), // Buffer of 100 jobs
		workerCount: workerCount,
		transcriber: transcriber,
		log:         log.With().Str("component", "worker_pool").Logger(),
		quit:        make(chan struct{}),
	}
}

// Start initializes all workers
func (wp *WorkerPool) Start() {
	wp.log.Info().Int("workers", wp.workerCount).Msg("starting worker pool")
	for i := 0; i < wp.workerCount; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
}

// Stop signals the workers to exit and waits for in-flight jobs to finish.
// Jobs still queued are answered with ErrPoolStopped.
func (wp *WorkerPool) Stop() {
	wp.stopOnce.Do(func() {
		close(wp.quit)
	})

	// Wait out in-flight Enqueue calls so no job lands after the drain.
	wp.mu.Lock()
	wp.stopped = true
	wp.mu.Unlock()

	wp.wg.Wait()

	for {
		select {
		case job := <-wp.jobQueue:
			job.Results <- SegmentResult{Index: job.Index, Err: ErrPoolStopped}
		default:
			wp.log.Info().Msg("worker pool stopped")
			return
		}
	}
}

// Enqueue adds a job to the queue, blocking while the queue is full
func (wp *WorkerPool) Enqueue(ctx context.Context, job *SegmentJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	job.EnqueuedAt = time.Now()

	wp.mu.RLock()
	defer wp.mu.RUnlock()
	if wp.stopped {
		return ErrPoolStopped
	}

	select {
	case wp.jobQueue <- job:
		return nil
	case <-wp.quit:
		return ErrPoolStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// worker processes jobs from the queue
func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()
	log := wp.log.With().Int("worker", id).Logger()
	log.Debug().Msg("worker started")

	for {
		select {
		case <-wp.quit:
			return
		case job := <-wp.jobQueue:
			job.Results <- wp.runJob(log, job)
		}
	}
}

// runJob wraps processJob with panic recovery so one bad segment cannot
// take down a worker.
func (wp *WorkerPool) runJob(log zerolog.Logger, job *SegmentJob) (res SegmentResult) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("job", job.ID).
				Int("segment", job.Index).
				Str("stack", string(debug.Stack())).
				Msgf("panic processing segment: %v", r)
			res = SegmentResult{Index: job.Index, Err: fmt.Errorf("worker panic: %v", r)}
		}
	}()

	text, err := wp.processJob(job)
	if err != nil {
		log.Warn().
			Err(err).
			Str("job", job.ID).
			Int("segment", job.Index).
			Str("speaker", job.Segment.Tag).
			Msg("segment transcription failed")
		return SegmentResult{Index: job.Index, Err: err}
	}
	log.Debug().
		Str("job", job.ID).
		Int("segment", job.Index).
		Dur("waited", time.Since(job.EnqueuedAt)).
		Msg("segment transcribed")
	return SegmentResult{Index: job.Index, Text: text}
}

// processJob exports the segment to a temporary WAV and transcribes it
func (wp *WorkerPool) processJob(job *SegmentJob) (string, error) {
	ctx := job.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if job.Segment.Empty() {
		return "", nil
	}

	segPath := filepath.Join(job.WorkDir, fmt.Sprintf("segment_%s.wav", uuid.NewString()))
	defer wp.cleanupTempFile(segPath)

	if err := transcription.WriteWAV(segPath, job.Segment); err != nil {
		return "", fmt.Errorf("export segment: %w", err)
	}

	text, err := wp.transcriber.Transcribe(ctx, segPath)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// cleanupTempFile removes a temporary file
func (wp *WorkerPool) cleanupTempFile(filePath string) {
	if filePath == "" {
		return
	}
	if err := os.Remove(filePath); err != nil && !os.IsNotExist(err) {
		wp.log.Warn().Err(err).Str("path", filePath).Msg("failed to cleanup temp file")
	}
}

// TranscribeAll fans the segments out over the pool and reassembles one
// line per segment in the order given, regardless of completion order.
// A segment that fails keeps its position with empty text; failed reports
// how many did.
func (wp *WorkerPool) TranscribeAll(
	ctx context.Context,
	segments []transcription.Segment,
	labels transcription.SpeakerLabels,
	workDir string,
) ([]types.TranscriptLine, int) {
	lines := make([]types.TranscriptLine, len(segments))
	for i, seg := range segments {
		lines[i] = types.TranscriptLine{
			Timestamp: transcription.FormatTimestamp(seg.Start),
			Speaker:   labels.Label(seg.Tag),
			Start:     seg.Start,
		}
	}

	results := make(chan SegmentResult, len(segments))
	failed := 0
	pending := 0
	for i, seg := range segments {
		job := NewSegmentJob(ctx, i, seg, workDir, results)
		if err := wp.Enqueue(ctx, job); err != nil {
			wp.log.Warn().Err(err).Int("segment", i).Msg("segment not dispatched")
			failed++
			continue
		}
		pending++
	}

	for ; pending > 0; pending-- {
		res := <-results
		if res.Err != nil {
			failed++
			continue
		}
		lines[res.Index].Text = res.Text
	}

	return lines, failed
}
