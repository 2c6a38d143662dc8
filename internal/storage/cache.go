package storage

import (
	"context"
	"errors"
	"path/filepath"
	"strings"

	"github.com/codebuildervaibhav/call-transcription/internal/types"
)

// ErrInvalidKey is returned for keys that cannot address a cache entry
var ErrInvalidKey = errors.New("invalid cache key")

// Cache persists transcript results by identity key. Get returns
// (nil, nil) on a miss. Put overwrites any existing entry.
type Cache interface {
	Get(ctx context.Context, key string) (*types.TranscriptResult, error)
	Put(ctx context.Context, key string, result *types.TranscriptResult) error
}

// checkKey rejects keys that would escape the storage namespace
func checkKey(key string) error {
	if key == "" || key == "." || key == ".." ||
		strings.ContainsAny(key, `/\:`) || filepath.Base(key) != key {
		return ErrInvalidKey
	}
	return nil
}
