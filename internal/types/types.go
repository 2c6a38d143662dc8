package types

import "fmt"

// Source type constants
const (
	SourceUpload = "upload"
	SourceURL    = "url"
	SourceGDrive = "gdrive"
	SourceStream = "stream"
)

// ConvertedLanguage is the only translation target.
const ConvertedLanguage = "English (en)"

// SpeakerTurn is one contiguous interval attributed to one speaker by the diarizer
type SpeakerTurn struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Tag   string  `json:"speaker"`
}

// Duration returns the length of the turn in seconds (negative for inverted turns)
func (t SpeakerTurn) Duration() float64 {
	return t.End - t.Start
}

// TranscriptLine is the transcription of a single speaker turn
type TranscriptLine struct {
	Timestamp string  `json:"timestamp"`
	Speaker   string  `json:"speaker"`
	Text      string  `json:"text"`
	Start     float64 `json:"-"`
}

// String renders the line as "MM:SS Caller N: text"
func (l TranscriptLine) String() string {
	return fmt.Sprintf("%s %s: %s", l.Timestamp, l.Speaker, l.Text)
}

// TranscriptResult is the persisted and returned output of a pipeline run.
// Field order mirrors the response document and is kept for readability.
type TranscriptResult struct {
	ConvertedTranscription string `json:"converted_transcription"`
	OriginalLanguage       string `json:"original_language"`
	OriginalTranscription  string `json:"original_transcription"`
	ConvertedLanguage      string `json:"converted_language"`
	Transcription          string `json:"transcription"`
}
