package cleanup

import (
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Scheduler removes stale entries from the temp directory. Pipeline runs
// clean up after themselves; this catches what a crash left behind.
type Scheduler struct {
	tempDir  string
	interval time.Duration
	maxAge   time.Duration
	log      zerolog.Logger
	now      func() time.Time

	stopChan chan struct{}
	stopOnce sync.Once
}

// NewScheduler creates a new cleanup scheduler
func NewScheduler(tempDir string, intervalMinutes, maxAgeHours int, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		tempDir:  tempDir,
		interval: time.Duration(intervalMinutes) * time.Minute,
		maxAge:   time.Duration(maxAgeHours) * time.Hour,
		log:      log.With().Str("component", "cleanup").Logger(),
		now:      time.Now,
		stopChan: make(chan struct{}),
	}
}

// Start runs one sweep immediately, then one per interval
func (s *Scheduler) Start() {
	s.log.Info().Msg("running initial temp cleanup")
	s.Sweep()

	ticker := time.NewTicker(s.interval)

	go func() {
		for {
			select {
			case <-ticker.C:
				s.Sweep()
			case <-s.stopChan:
				ticker.Stop()
				return
			}
		}
	}()

	s.log.Info().
		Dur("interval", s.interval).
		Dur("max_age", s.maxAge).
		Msg("cleanup scheduler started")
}

// Stop stops the cleanup scheduler
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
		s.log.Info().Msg("cleanup scheduler stopped")
	})
}

// Sweep deletes top-level files and work directories older than the max
// age and reports how many entries and bytes were removed.
func (s *Scheduler) Sweep() (int, int64) {
	entries, err := os.ReadDir(s.tempDir)
	if err != nil {
		s.log.Warn().Err(err).Str("dir", s.tempDir).Msg("cannot read temp dir")
		return 0, 0
	}

	now := s.now()
	var deletedCount int
	var deletedSize int64

	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			continue // Skip entries we can't access
		}

		age := now.Sub(info.ModTime())
		if age <= s.maxAge {
			continue
		}

		path := filepath.Join(s.tempDir, entry.Name())
		size := diskUsage(path, info)
		if err := os.RemoveAll(path); err != nil {
			s.log.Warn().Err(err).Str("path", path).Msg("failed to delete stale temp entry")
			continue
		}
		deletedCount++
		deletedSize += size
		s.log.Debug().
			Str("name", entry.Name()).
			Dur("age", age.Round(time.Minute)).
			Int64("size_kb", size/1024).
			Msg("deleted stale temp entry")
	}

	if deletedCount > 0 {
		s.log.Info().
			Int("entries", deletedCount).
			Float64("freed_mb", float64(deletedSize)/(1024*1024)).
			Msg("cleanup complete")
	}
	return deletedCount, deletedSize
}

func diskUsage(path string, info fs.FileInfo) int64 {
	if !info.IsDir() {
		return info.Size()
	}
	var total int64
	filepath.WalkDir(path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if fi, err := d.Info(); err == nil {
			total += fi.Size()
		}
		return nil
	})
	return total
}

// EnsureTempDirExists creates the temp directory if it doesn't exist
func EnsureTempDirExists(tempDir string) error {
	return os.MkdirAll(tempDir, 0755)
}
