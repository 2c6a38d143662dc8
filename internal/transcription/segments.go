package transcription

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/rs/zerolog"

	"github.com/codebuildervaibhav/call-transcription/internal/types"
)

// ErrInvalidWAV is returned when the normalized artifact is not a readable WAV file
var ErrInvalidWAV = errors.New("not a valid WAV file")

// Segment is the slice of audio belonging to one speaker turn
type Segment struct {
	Tag      string
	Start    float64
	End      float64
	BitDepth int
	Audio    *audio.IntBuffer
}

// Empty reports whether the segment holds no samples, e.g. when the turn
// lies past the end of the recording.
func (s Segment) Empty() bool {
	return s.Audio == nil || len(s.Audio.Data) == 0
}

// ExtractSegments decodes the WAV at wavPath and cuts one segment per
// turn, in start order. Boundaries are truncated to whole milliseconds.
// Zero-length and inverted turns are skipped with a warning.
func ExtractSegments(wavPath string, turns []types.SpeakerTurn, log zerolog.Logger) ([]Segment, error) {
	f, err := os.Open(wavPath)
	if err != nil {
		return nil, fmt.Errorf("open audio: %w", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, ErrInvalidWAV
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decode audio: %w", err)
	}

	rate := int64(dec.SampleRate)
	channels := int64(dec.NumChans)
	if rate == 0 || channels == 0 {
		return nil, ErrInvalidWAV
	}
	frames := int64(len(buf.Data)) / channels

	segments := make([]Segment, 0, len(turns))
	for _, turn := range SortTurns(turns) {
		if turn.Duration() <= 0 {
			log.Warn().
				Str("speaker", turn.Tag).
				Float64("start", turn.Start).
				Float64("end", turn.End).
				Msg("skipping zero-length or inverted turn")
			continue
		}
		startMs := int64(turn.Start * 1000)
		endMs := int64(turn.End * 1000)
		if endMs <= startMs {
			log.Warn().
				Str("speaker", turn.Tag).
				Float64("duration", turn.Duration()).
				Msg("skipping turn shorter than a millisecond")
			continue
		}

		first := clamp(startMs*rate/1000, 0, frames)
		last := clamp(endMs*rate/1000, first, frames)

		data := make([]int, (last-first)*channels)
		copy(data, buf.Data[first*channels:last*channels])

		segments = append(segments, Segment{
			Tag:      turn.Tag,
			Start:    turn.Start,
			End:      turn.End,
			BitDepth: int(dec.BitDepth),
			Audio: &audio.IntBuffer{
				Format:         &audio.Format{NumChannels: int(channels), SampleRate: int(rate)},
				Data:           data,
				SourceBitDepth: int(dec.BitDepth),
			},
		})
	}

	return segments, nil
}

// WriteWAV exports a segment as a standalone PCM WAV file
func WriteWAV(path string, seg Segment) error {
	if seg.Audio == nil || seg.Audio.Format == nil {
		return errors.New("segment has no audio")
	}
	bitDepth := seg.BitDepth
	if bitDepth == 0 {
		bitDepth = 16
	}

	out, err := os.Create(path)
	if err != nil {
		return err
	}
	defer out.Close()

	enc := wav.NewEncoder(out, seg.Audio.Format.SampleRate, bitDepth, seg.Audio.Format.NumChannels, 1)
	if err := enc.Write(seg.Audio); err != nil {
		return fmt.Errorf("encode segment: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("finalize segment: %w", err)
	}
	return nil
}

func clamp(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
