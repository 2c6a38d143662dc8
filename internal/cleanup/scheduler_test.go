package cleanup

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func touch(t *testing.T, path string, size int, age time.Duration) {
	t.Helper()
	if err := os.WriteFile(path, make([]byte, size), 0644); err != nil {
		t.Fatal(err)
	}
	old := time.Now().Add(-age)
	if err := os.Chtimes(path, old, old); err != nil {
		t.Fatal(err)
	}
}

func TestSweep(t *testing.T) {
	dir := t.TempDir()

	touch(t, filepath.Join(dir, "fresh.wav"), 10, time.Minute)
	touch(t, filepath.Join(dir, "stale.wav"), 100, 7*time.Hour)

	staleRun := filepath.Join(dir, "call_1-123")
	if err := os.Mkdir(staleRun, 0755); err != nil {
		t.Fatal(err)
	}
	touch(t, filepath.Join(staleRun, "normalized.wav"), 50, 8*time.Hour)
	old := time.Now().Add(-8 * time.Hour)
	os.Chtimes(staleRun, old, old)

	liveRun := filepath.Join(dir, "call_2-456")
	if err := os.Mkdir(liveRun, 0755); err != nil {
		t.Fatal(err)
	}
	touch(t, filepath.Join(liveRun, "segment.wav"), 50, 8*time.Hour)

	s := NewScheduler(dir, 30, 6, zerolog.Nop())
	count, size := s.Sweep()

	if count != 2 {
		t.Errorf("Expected 2 entries removed, got %d", count)
	}
	if size != 150 {
		t.Errorf("Expected 150 bytes freed, got %d", size)
	}

	for name, want := range map[string]bool{
		"fresh.wav":  true,
		"stale.wav":  false,
		"call_1-123": false,
		"call_2-456": true,
	} {
		_, err := os.Stat(filepath.Join(dir, name))
		if exists := err == nil; exists != want {
			t.Errorf("%s: expected exists=%v", name, want)
		}
	}
}

func TestSweepMissingDir(t *testing.T) {
	s := NewScheduler(filepath.Join(t.TempDir(), "missing"), 30, 6, zerolog.Nop())
	if count, _ := s.Sweep(); count != 0 {
		t.Errorf("Expected nothing removed, got %d", count)
	}
}

func TestStartStop(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "stale.wav"), 1, 48*time.Hour)

	s := NewScheduler(dir, 1, 1, zerolog.Nop())
	s.Start()
	s.Stop()
	s.Stop()

	if _, err := os.Stat(filepath.Join(dir, "stale.wav")); !os.IsNotExist(err) {
		t.Error("Expected initial sweep on start")
	}
}
