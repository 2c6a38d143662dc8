package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/codebuildervaibhav/call-transcription/internal/types"
)

var (
	// ErrNoSource is returned when a request carries neither an upload nor a URL
	ErrNoSource = errors.New("no file or URL provided")
	// ErrInvalidURL is returned for URLs that are not absolute http(s) URLs
	ErrInvalidURL = errors.New("invalid URL")
	// ErrUnsupportedFormat is returned for uploads with an unknown audio extension
	ErrUnsupportedFormat = errors.New("unsupported audio format")
	// ErrEmptyKey is returned when no identity can be derived from the input
	ErrEmptyKey = errors.New("cannot derive an identity from the input name")
)

var (
	nonWord   = regexp.MustCompile(`\W+`)
	validKey  = regexp.MustCompile(`^\w+$`)
	gdriveIDs = []*regexp.Regexp{
		regexp.MustCompile(`/file/d/([a-zA-Z0-9_-]+)`), // https://drive.google.com/file/d/{ID}/view
		regexp.MustCompile(`[?&]id=([a-zA-Z0-9_-]+)`),  // https://drive.google.com/open?id={ID}
	}
)

// Request describes one audio input: either an uploaded payload with its
// client-supplied filename, or a remote URL.
type Request struct {
	Filename   string
	Body       io.Reader
	URL        string
	SourceType string
}

// HasUpload reports whether the request carries an uploaded payload
func (r Request) HasUpload() bool {
	return r.Body != nil
}

// Artifact is the local copy of the audio owned by one pipeline invocation
type Artifact struct {
	Path        string
	IdentityKey string
	SourceType  string
	Size        int64
}

// FetchError wraps failures retrieving remote audio
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("download %s: unexpected status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("download %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Resolver turns requests into local audio artifacts
type Resolver struct {
	client *http.Client
	log    zerolog.Logger
}

// NewResolver creates a resolver whose downloads time out after timeout
func NewResolver(timeout time.Duration, log zerolog.Logger) *Resolver {
	return &Resolver{
		client: &http.Client{Timeout: timeout},
		log:    log.With().Str("component", "resolver").Logger(),
	}
}

// Identify derives the identity key of a request without doing any I/O, so
// the cache can be consulted before the audio is fetched.
func (r *Resolver) Identify(req Request) (string, error) {
	switch {
	case req.HasUpload():
		if !ValidateAudioFormat(req.Filename) {
			return "", ErrUnsupportedFormat
		}
		return keyFromName(req.Filename)
	case req.URL != "":
		u, err := parseURL(req.URL)
		if err != nil {
			return "", err
		}
		if id := extractGDriveFileID(u); id != "" {
			return "gdrive_" + sanitize(id), nil
		}
		name := path.Base(u.Path)
		if name == "." || name == "/" {
			if key := sanitize(u.Host); key != "" {
				return key, nil
			}
			return "", ErrEmptyKey
		}
		return keyFromName(name)
	default:
		return "", ErrNoSource
	}
}

// Fetch writes the request's audio into workDir, named after key
func (r *Resolver) Fetch(ctx context.Context, req Request, key, workDir string) (*Artifact, error) {
	if req.HasUpload() {
		dst := filepath.Join(workDir, key+strings.ToLower(filepath.Ext(req.Filename)))
		size, err := writeFile(dst, req.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to save upload: %w", err)
		}
		sourceType := req.SourceType
		if sourceType == "" {
			sourceType = types.SourceUpload
		}
		r.log.Debug().Str("key", key).Int64("bytes", size).Msg("upload saved")
		return &Artifact{Path: dst, IdentityKey: key, SourceType: sourceType, Size: size}, nil
	}

	if req.URL == "" {
		return nil, ErrNoSource
	}
	u, err := parseURL(req.URL)
	if err != nil {
		return nil, err
	}

	sourceType := types.SourceURL
	downloadURL := u.String()
	if id := extractGDriveFileID(u); id != "" {
		sourceType = types.SourceGDrive
		downloadURL = fmt.Sprintf("https://drive.google.com/uc?export=download&id=%s", id)
	}

	ext := strings.ToLower(path.Ext(u.Path))
	if !ValidateAudioFormat("x" + ext) {
		ext = ".audio"
	}
	dst := filepath.Join(workDir, key+ext)

	size, err := r.download(ctx, downloadURL, dst)
	if err != nil {
		return nil, err
	}
	r.log.Info().Str("key", key).Str("source", sourceType).Int64("bytes", size).Msg("audio downloaded")
	return &Artifact{Path: dst, IdentityKey: key, SourceType: sourceType, Size: size}, nil
}

func (r *Resolver) download(ctx context.Context, rawURL, dst string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, &FetchError{URL: rawURL, Err: err}
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return 0, &FetchError{URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, &FetchError{URL: rawURL, StatusCode: resp.StatusCode}
	}

	size, err := writeFile(dst, resp.Body)
	if err != nil {
		return 0, &FetchError{URL: rawURL, Err: err}
	}
	return size, nil
}

// ValidKey reports whether key has the shape of a derived identity key
func ValidKey(key string) bool {
	return validKey.MatchString(key) && strings.Trim(key, "_") == key
}

// ValidateAudioFormat checks if the file format is supported
func ValidateAudioFormat(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	supportedFormats := []string{".mp3", ".wav", ".m4a", ".ogg", ".flac", ".webm", ".aac", ".wma", ".opus"}

	for _, format := range supportedFormats {
		if ext == format {
			return true
		}
	}
	return false
}

func keyFromName(name string) (string, error) {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if ext := filepath.Ext(base); ext != "" && ext != base {
		base = strings.TrimSuffix(base, ext)
	}
	key := sanitize(base)
	if key == "" {
		return "", ErrEmptyKey
	}
	return key, nil
}

// sanitize collapses runs of non-word characters to single underscores
// and trims underscores from both ends.
func sanitize(s string) string {
	return strings.Trim(nonWord.ReplaceAllString(s, "_"), "_")
}

func parseURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, ErrInvalidURL
	}
	return u, nil
}

// extractGDriveFileID extracts the file ID from Google Drive share links
func extractGDriveFileID(u *url.URL) string {
	if u.Host != "drive.google.com" {
		return ""
	}
	for _, re := range gdriveIDs {
		if matches := re.FindStringSubmatch(u.RequestURI()); len(matches) > 1 {
			return matches[1]
		}
	}
	return ""
}

func writeFile(dst string, r io.Reader) (int64, error) {
	out, err := os.Create(dst)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(out, r)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(dst)
		return 0, err
	}
	return n, nil
}
