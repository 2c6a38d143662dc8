package source

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/codebuildervaibhav/call-transcription/internal/types"
)

func newTestResolver() *Resolver {
	return NewResolver(5*time.Second, zerolog.Nop())
}

func TestIdentify(t *testing.T) {
	r := newTestResolver()

	testCases := []struct {
		description string
		req         Request
		want        string
		wantErr     error
	}{
		{"Upload name", Request{Filename: "call recording (1).wav", Body: strings.NewReader("x")}, "call_recording_1", nil},
		{"Upload keeps inner dots as separators", Request{Filename: "2024.01.05-call.mp3", Body: strings.NewReader("x")}, "2024_01_05_call", nil},
		{"Upload with path", Request{Filename: `C:\calls\agent-7.wav`, Body: strings.NewReader("x")}, "agent_7", nil},
		{"Upload unsupported", Request{Filename: "notes.txt", Body: strings.NewReader("x")}, "", ErrUnsupportedFormat},
		{"Upload name of symbols", Request{Filename: "---.wav", Body: strings.NewReader("x")}, "", ErrEmptyKey},
		{"URL basename", Request{URL: "https://cdn.example.com/calls/call-01.wav?sig=abc"}, "call_01", nil},
		{"URL without path", Request{URL: "https://example.com/"}, "example_com", nil},
		{"Google Drive link", Request{URL: "https://drive.google.com/file/d/1AbC-xyz_9/view?usp=sharing"}, "gdrive_1AbC_xyz_9", nil},
		{"Google Drive open link", Request{URL: "https://drive.google.com/open?id=XYZ123"}, "gdrive_XYZ123", nil},
		{"Non-http URL", Request{URL: "ftp://example.com/a.wav"}, "", ErrInvalidURL},
		{"Relative URL", Request{URL: "calls/a.wav"}, "", ErrInvalidURL},
		{"Nothing", Request{}, "", ErrNoSource},
	}

	for _, tc := range testCases {
		t.Run(tc.description, func(t *testing.T) {
			got, err := r.Identify(tc.req)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("Expected error %v, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if got != tc.want {
				t.Errorf("Expected key %q, got %q", tc.want, got)
			}
			if !ValidKey(got) {
				t.Errorf("Derived key %q is not a valid key", got)
			}
		})
	}
}

func TestValidKey(t *testing.T) {
	for key, want := range map[string]bool{
		"call_01":      true,
		"_call":        false,
		"call_":        false,
		"../etc":       false,
		"a/b":          false,
		"":             false,
		"gdrive_XYZ12": true,
	} {
		if got := ValidKey(key); got != want {
			t.Errorf("ValidKey(%q) = %v, want %v", key, got, want)
		}
	}
}

func TestFetchUpload(t *testing.T) {
	r := newTestResolver()
	dir := t.TempDir()

	req := Request{Filename: "Call.WAV", Body: strings.NewReader("RIFFdata")}
	artifact, err := r.Fetch(context.Background(), req, "Call", dir)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	if artifact.SourceType != types.SourceUpload {
		t.Errorf("Expected upload source, got %s", artifact.SourceType)
	}
	if !strings.HasSuffix(artifact.Path, "Call.wav") {
		t.Errorf("Unexpected artifact path %s", artifact.Path)
	}
	data, err := os.ReadFile(artifact.Path)
	if err != nil || string(data) != "RIFFdata" {
		t.Errorf("Artifact content mismatch: %q, %v", data, err)
	}
	if artifact.Size != int64(len("RIFFdata")) {
		t.Errorf("Expected size 8, got %d", artifact.Size)
	}
}

func TestFetchURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/calls/ok.wav":
			w.Write([]byte("audio-bytes"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	r := newTestResolver()
	dir := t.TempDir()

	artifact, err := r.Fetch(context.Background(), Request{URL: srv.URL + "/calls/ok.wav"}, "ok", dir)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if artifact.SourceType != types.SourceURL {
		t.Errorf("Expected url source, got %s", artifact.SourceType)
	}
	data, _ := os.ReadFile(artifact.Path)
	if string(data) != "audio-bytes" {
		t.Errorf("Unexpected downloaded content %q", data)
	}

	_, err = r.Fetch(context.Background(), Request{URL: srv.URL + "/calls/missing.wav"}, "missing", dir)
	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("Expected FetchError, got %v", err)
	}
	if fetchErr.StatusCode != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", fetchErr.StatusCode)
	}
	if entries, _ := os.ReadDir(dir); len(entries) != 1 {
		t.Errorf("Expected failed download to leave no file, found %d entries", len(entries))
	}
}

func TestFetchNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL + "/gone.wav"
	srv.Close()

	_, err := newTestResolver().Fetch(context.Background(), Request{URL: url}, "gone", t.TempDir())
	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("Expected FetchError, got %v", err)
	}
	if fetchErr.Err == nil {
		t.Error("Expected underlying network error")
	}
}
