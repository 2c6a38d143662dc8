package pipeline

import (
	"errors"
	"fmt"

	"github.com/codebuildervaibhav/call-transcription/internal/source"
)

// Kind classifies pipeline failures. Its value is the machine-readable
// code returned to clients.
type Kind string

const (
	KindInvalidInput      Kind = "invalid_input"
	KindFetchFailed       Kind = "fetch_failed"
	KindDiarizationFailed Kind = "diarization_failed"
	KindAudioProcessing   Kind = "audio_processing_failed"
	KindInternal          Kind = "internal_error"
)

// ErrNoSpeech is reported when diarization finds no speaker turns
var ErrNoSpeech = errors.New("diarization returned no speaker turns")

// Error is a terminal pipeline failure
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of err, or KindInternal for foreign errors
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindInternal
}

// sourceError classifies resolver failures
func sourceError(op string, err error) *Error {
	var fe *source.FetchError
	switch {
	case errors.As(err, &fe):
		return &Error{Kind: KindFetchFailed, Op: op, Err: err}
	case errors.Is(err, source.ErrNoSource),
		errors.Is(err, source.ErrInvalidURL),
		errors.Is(err, source.ErrUnsupportedFormat),
		errors.Is(err, source.ErrEmptyKey):
		return &Error{Kind: KindInvalidInput, Op: op, Err: err}
	default:
		return &Error{Kind: KindInternal, Op: op, Err: err}
	}
}
