package queue

import (
	"context"
	"time"

	"github.com/codebuildervaibhav/call-transcription/internal/transcription"
)

// SegmentJob is one unit of transcription work. Index is the segment's
// position in the start-sorted sequence and travels back on the result.
type SegmentJob struct {
	ID         string
	Ctx        context.Context
	Index      int
	Segment    transcription.Segment
	WorkDir    string
	Results    chan<- SegmentResult
	EnqueuedAt time.Time
}

// SegmentResult carries the outcome of one SegmentJob. Err is set when the
// segment could not be transcribed; Text is then empty.
type SegmentResult struct {
	Index int
	Text  string
	Err   error
}

// NewSegmentJob creates a job with default values
func NewSegmentJob(ctx context.Context, index int, seg transcription.Segment, workDir string, results chan<- SegmentResult) *SegmentJob {
	return &SegmentJob{
		Ctx:     ctx,
		Index:   index,
		Segment: seg,
		WorkDir: workDir,
		Results: results,
	}
}
