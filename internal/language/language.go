package language

import (
	"errors"
	"fmt"
	"strings"

	"github.com/abadojack/whatlanggo"
)

// EmptyText is reported for blank input; no detection is attempted.
const EmptyText = "Unknown Language (empty text)"

// Undetermined is the code used when the detector cannot name a language
const Undetermined = "und"

// ErrUndetermined is returned by a Detector that cannot identify the text
var ErrUndetermined = errors.New("language could not be determined")

// Names maps ISO 639-1 codes to display names
var Names = map[string]string{
	"en": "English", "fr": "French", "hi": "Hindi", "es": "Spanish", "de": "German",
	"it": "Italian", "pt": "Portuguese", "ru": "Russian", "zh": "Chinese", "zh-cn": "Chinese",
	"ja": "Japanese", "ko": "Korean", "ar": "Arabic", "tr": "Turkish", "nl": "Dutch",
	"el": "Greek", "sv": "Swedish", "pl": "Polish", "he": "Hebrew", "iw": "Hebrew",
	"bn": "Bengali", "th": "Thai", "id": "Indonesian", "vi": "Vietnamese", "ro": "Romanian",
	"fa": "Persian", "uk": "Ukrainian", "ur": "Urdu", "ta": "Tamil", "te": "Telugu",
	"ms": "Malay", "hu": "Hungarian",
}

// Detector identifies the language of a piece of text
type Detector interface {
	Detect(text string) (code string, confidence float64, err error)
}

// WhatlangDetector detects languages with trigram statistics, offline
type WhatlangDetector struct{}

// Detect returns the ISO 639-1 code of the most likely language
func (WhatlangDetector) Detect(text string) (string, float64, error) {
	info := whatlanggo.Detect(text)
	code := info.Lang.Iso6391()
	if info.Script == nil || code == "" {
		return "", 0, ErrUndetermined
	}
	return code, info.Confidence, nil
}

// Classifier turns detector output into "{Name} ({code})" tags
type Classifier struct {
	detector Detector
}

// NewClassifier creates a classifier over d
func NewClassifier(d Detector) *Classifier {
	return &Classifier{detector: d}
}

// Classify tags the dominant language of text. Line breaks are folded so
// the whole transcript is judged as one document.
func (c *Classifier) Classify(text string) string {
	cleaned := strings.TrimSpace(strings.ReplaceAll(text, "\n", " "))
	if cleaned == "" {
		return EmptyText
	}
	code, _, err := c.detector.Detect(cleaned)
	if err != nil || code == "" {
		code = Undetermined
	}
	return Tag(code)
}

// Tag formats a code as "{Name} ({code})"
func Tag(code string) string {
	return fmt.Sprintf("%s (%s)", Name(code), code)
}

// Name returns the display name for code, or "Unknown Language"
func Name(code string) string {
	if name, ok := Names[strings.ToLower(code)]; ok {
		return name
	}
	return "Unknown Language"
}

// CodeOf extracts the code token from a "{Name} ({code})" tag
func CodeOf(tag string) string {
	open := strings.LastIndex(tag, "(")
	if open < 0 || !strings.HasSuffix(tag, ")") {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(tag[open+1 : len(tag)-1]))
}

// IsEnglish reports whether tag names English. Only the exact code counts,
// so "French (fr)" or "Bengali (bn)" never pass.
func IsEnglish(tag string) bool {
	code := CodeOf(tag)
	return code == "en" || strings.HasPrefix(code, "en-")
}
