package logging

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const maxBufferedLines = 1000

// New builds the root logger. Every line is also captured in buf so the
// most recent output can be served over HTTP.
func New(level, format string, buf *Buffer) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	var out io.Writer = os.Stdout
	if format == "console" {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}
	if buf != nil {
		out = zerolog.MultiLevelWriter(out, buf)
	}

	return zerolog.New(out).Level(lvl).With().Timestamp().Logger()
}

// Buffer captures logs in memory
type Buffer struct {
	lines []string
	mu    sync.Mutex
}

// NewBuffer creates an empty log buffer
func NewBuffer() *Buffer {
	return &Buffer{lines: make([]string, 0, maxBufferedLines)}
}

func (b *Buffer) Write(p []byte) (n int, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lines = append(b.lines, strings.TrimRight(string(p), "\n"))

	// Keep last 1000 lines
	if len(b.lines) > maxBufferedLines {
		b.lines = b.lines[len(b.lines)-maxBufferedLines:]
	}

	return len(p), nil
}

// Lines returns a copy of the buffered lines, oldest first
func (b *Buffer) Lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	logs := make([]string, len(b.lines))
	copy(logs, b.lines)
	return logs
}
