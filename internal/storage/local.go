package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/codebuildervaibhav/call-transcription/internal/types"
)

// LocalStorage keeps one JSON document per identity key on the local
// filesystem, plus a plain-text copy of the transcription for reading.
type LocalStorage struct {
	outputDir string
}

// NewLocalStorage creates a new local storage handler
func NewLocalStorage(outputDir string) (*LocalStorage, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %v", err)
	}
	return &LocalStorage{
		outputDir: outputDir,
	}, nil
}

func (ls *LocalStorage) jsonPath(key string) string {
	return filepath.Join(ls.outputDir, key+".json")
}

// Get loads the cached result for key
func (ls *LocalStorage) Get(_ context.Context, key string) (*types.TranscriptResult, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(ls.jsonPath(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cache entry: %v", err)
	}

	var result types.TranscriptResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to parse cache entry %s: %w", key, err)
	}
	return &result, nil
}

// Put saves the result for key. Both files are written to a temporary
// name first and renamed into place, so readers never see a partial entry.
func (ls *LocalStorage) Put(_ context.Context, key string, result *types.TranscriptResult) error {
	if err := checkKey(key); err != nil {
		return err
	}

	data, err := json.MarshalIndent(result, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to marshal result: %v", err)
	}

	txtPath := filepath.Join(ls.outputDir, key+".txt")
	if err := writeAtomic(txtPath, []byte(result.Transcription)); err != nil {
		return fmt.Errorf("failed to save transcript: %v", err)
	}
	if err := writeAtomic(ls.jsonPath(key), data); err != nil {
		return fmt.Errorf("failed to save cache entry: %v", err)
	}
	return nil
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
