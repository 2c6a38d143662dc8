package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/codebuildervaibhav/call-transcription/internal/types"
)

// TranscriptRecord is one row of the transcript index
type TranscriptRecord struct {
	IdentityKey      string                  `json:"identity_key"`
	SourceType       string                  `json:"source_type"`
	OriginalLanguage string                  `json:"original_language"`
	LineCount        int                     `json:"line_count"`
	WordCount        int                     `json:"word_count"`
	FailedSegments   int                     `json:"failed_segments"`
	CreatedAt        time.Time               `json:"created_at"`
	Result           *types.TranscriptResult `json:"result,omitempty"`
}

// MetadataDB handles SQLite database operations. It indexes processed
// calls and can also serve as the result cache.
type MetadataDB struct {
	db *sql.DB
}

// NewMetadataDB creates a new metadata database
func NewMetadataDB(dbPath string) (*MetadataDB, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %v", err)
	}
	// SQLite allows one writer; a single connection avoids SQLITE_BUSY
	db.SetMaxOpenConns(1)

	// Create table if not exists
	createTableSQL := `
	CREATE TABLE IF NOT EXISTS transcripts (
		identity_key TEXT PRIMARY KEY,
		source_type TEXT NOT NULL DEFAULT '',
		original_language TEXT NOT NULL DEFAULT '',
		line_count INTEGER NOT NULL DEFAULT 0,
		word_count INTEGER NOT NULL DEFAULT 0,
		failed_segments INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		result_json TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_created_at ON transcripts(created_at);
	`

	if _, err := db.Exec(createTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %v", err)
	}

	return &MetadataDB{db: db}, nil
}

// Get returns the cached result for key, or (nil, nil) when absent
func (mdb *MetadataDB) Get(ctx context.Context, key string) (*types.TranscriptResult, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}
	var raw string
	err := mdb.db.QueryRowContext(ctx,
		`SELECT result_json FROM transcripts WHERE identity_key = ?`, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && raw == "") {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transcript: %v", err)
	}

	var result types.TranscriptResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return nil, fmt.Errorf("failed to parse transcript %s: %w", key, err)
	}
	return &result, nil
}

// Put stores the result for key, keeping any index columns already set
func (mdb *MetadataDB) Put(ctx context.Context, key string, result *types.TranscriptResult) error {
	if err := checkKey(key); err != nil {
		return err
	}
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal transcript: %v", err)
	}

	query := `
	INSERT INTO transcripts (identity_key, created_at, result_json)
	VALUES (?, ?, ?)
	ON CONFLICT(identity_key) DO UPDATE SET result_json = excluded.result_json
	`
	if _, err := mdb.db.ExecContext(ctx, query, key, time.Now().UnixMilli(), string(data)); err != nil {
		return fmt.Errorf("failed to save transcript: %v", err)
	}
	return nil
}

// SaveTranscript records index metadata for a processed call. A zero
// CreatedAt is set to now.
func (mdb *MetadataDB) SaveTranscript(ctx context.Context, rec TranscriptRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	var resultJSON string
	if rec.Result != nil {
		data, err := json.Marshal(rec.Result)
		if err != nil {
			return fmt.Errorf("failed to marshal transcript: %v", err)
		}
		resultJSON = string(data)
	}

	query := `
	INSERT INTO transcripts (identity_key, source_type, original_language, line_count, word_count, failed_segments, created_at, result_json)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(identity_key) DO UPDATE SET
		source_type = excluded.source_type,
		original_language = excluded.original_language,
		line_count = excluded.line_count,
		word_count = excluded.word_count,
		failed_segments = excluded.failed_segments,
		created_at = excluded.created_at,
		result_json = CASE WHEN excluded.result_json = '' THEN transcripts.result_json ELSE excluded.result_json END
	`

	_, err := mdb.db.ExecContext(ctx, query, rec.IdentityKey, rec.SourceType, rec.OriginalLanguage,
		rec.LineCount, rec.WordCount, rec.FailedSegments, rec.CreatedAt.UnixMilli(), resultJSON)
	if err != nil {
		return fmt.Errorf("failed to save transcript metadata: %v", err)
	}

	return nil
}

// ListTranscripts returns the newest index entries first, without results
func (mdb *MetadataDB) ListTranscripts(ctx context.Context, limit int) ([]TranscriptRecord, error) {
	query := `
	SELECT identity_key, source_type, original_language, line_count, word_count, failed_segments, created_at
	FROM transcripts ORDER BY created_at DESC, identity_key LIMIT ?
	`

	rows, err := mdb.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list transcripts: %v", err)
	}
	defer rows.Close()

	transcripts := []TranscriptRecord{}

	for rows.Next() {
		var (
			rec       TranscriptRecord
			createdAt int64
		)
		if err := rows.Scan(&rec.IdentityKey, &rec.SourceType, &rec.OriginalLanguage,
			&rec.LineCount, &rec.WordCount, &rec.FailedSegments, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan transcript: %v", err)
		}
		rec.CreatedAt = time.UnixMilli(createdAt).UTC()
		transcripts = append(transcripts, rec)
	}

	return transcripts, rows.Err()
}

// Close closes the database connection
func (mdb *MetadataDB) Close() error {
	return mdb.db.Close()
}
