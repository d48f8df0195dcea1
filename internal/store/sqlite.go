package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/neuralstark/kbindex/internal/models"
)

// ChunkStore persists chunk text and metadata in SQLite. The primary key is
// (source, ordinal), so re-indexing the same document overwrites its rows
// instead of duplicating them.
type ChunkStore struct {
	db *sql.DB
}

// OpenChunkStore opens or creates the chunk database at dbPath and initializes
// the schema. Parent directories are created if they do not exist.
func OpenChunkStore(dbPath string) (*ChunkStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &ChunkStore{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS chunks (
		source TEXT NOT NULL,
		ordinal INTEGER NOT NULL,
		text TEXT NOT NULL,
		file_name TEXT NOT NULL,
		source_type TEXT NOT NULL,
		event_type TEXT NOT NULL,
		mod_time TIMESTAMP,
		extra TEXT,
		PRIMARY KEY (source, ordinal)
	);

	CREATE INDEX IF NOT EXISTS idx_chunks_source ON chunks(source);
	CREATE INDEX IF NOT EXISTS idx_chunks_file_name ON chunks(file_name);
	`
	_, err := db.Exec(schema)
	return err
}

// UpsertChunks writes chunks in a single transaction, replacing any existing
// row with the same (source, ordinal).
func (s *ChunkStore) UpsertChunks(ctx context.Context, chunks []*models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return transient("begin upsert", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO chunks (source, ordinal, text, file_name, source_type, event_type, mod_time, extra)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return transient("prepare upsert", err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		extraJSON := ""
		if len(c.Extra) > 0 {
			b, err := json.Marshal(c.Extra)
			if err != nil {
				return fmt.Errorf("failed to marshal chunk extra: %w", err)
			}
			extraJSON = string(b)
		}
		if _, err := stmt.ExecContext(ctx,
			c.Source, c.Ordinal, c.Text, c.FileName,
			string(c.SourceType), string(c.EventType), c.ModTime, extraJSON,
		); err != nil {
			return transient("upsert chunk", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return transient("commit upsert", err)
	}
	return nil
}

// DeleteWhere removes every chunk matching the filter and returns the keys of
// the deleted chunks so the caller can drop their vectors too.
func (s *ChunkStore) DeleteWhere(ctx context.Context, f Filter) ([]string, error) {
	where, args, err := f.whereClause()
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, transient("begin delete", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, "SELECT source, ordinal FROM chunks WHERE "+where, args...)
	if err != nil {
		return nil, transient("select for delete", err)
	}
	var keys []string
	for rows.Next() {
		var source string
		var ordinal int
		if err := rows.Scan(&source, &ordinal); err != nil {
			rows.Close()
			return nil, transient("scan for delete", err)
		}
		keys = append(keys, fmt.Sprintf("%s#%d", source, ordinal))
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, transient("iterate for delete", err)
	}
	rows.Close()

	if _, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE "+where, args...); err != nil {
		return nil, transient("delete chunks", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, transient("commit delete", err)
	}
	return keys, nil
}

// KeysWhere returns the keys of every chunk matching the filter.
func (s *ChunkStore) KeysWhere(ctx context.Context, f Filter) ([]string, error) {
	where, args, err := f.whereClause()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, "SELECT source, ordinal FROM chunks WHERE "+where, args...)
	if err != nil {
		return nil, transient("select keys", err)
	}
	defer rows.Close()
	var keys []string
	for rows.Next() {
		var source string
		var ordinal int
		if err := rows.Scan(&source, &ordinal); err != nil {
			return nil, transient("scan key", err)
		}
		keys = append(keys, fmt.Sprintf("%s#%d", source, ordinal))
	}
	return keys, rows.Err()
}

// GetByKeys loads chunks for the given "source#ordinal" keys. Keys with no
// matching row are silently absent from the result.
func (s *ChunkStore) GetByKeys(ctx context.Context, keys []string) (map[string]*models.Chunk, error) {
	out := make(map[string]*models.Chunk, len(keys))
	for _, key := range keys {
		source, ordinal, err := models.ParseKey(key)
		if err != nil {
			return nil, err
		}
		c, err := s.getChunk(ctx, source, ordinal)
		if err != nil {
			return nil, err
		}
		if c != nil {
			out[key] = c
		}
	}
	return out, nil
}

func (s *ChunkStore) getChunk(ctx context.Context, source string, ordinal int) (*models.Chunk, error) {
	var c models.Chunk
	var sourceType, eventType, extraJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT source, ordinal, text, file_name, source_type, event_type, mod_time, extra
		 FROM chunks WHERE source = ? AND ordinal = ?`, source, ordinal,
	).Scan(&c.Source, &c.Ordinal, &c.Text, &c.FileName, &sourceType, &eventType, &c.ModTime, &extraJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, transient("get chunk", err)
	}
	c.SourceType = models.SourceType(sourceType)
	c.EventType = models.EventType(eventType)
	if extraJSON != "" {
		if err := json.Unmarshal([]byte(extraJSON), &c.Extra); err != nil {
			return nil, fmt.Errorf("failed to unmarshal chunk extra: %w", err)
		}
	}
	return &c, nil
}

// CountChunks returns the number of stored chunks.
func (s *ChunkStore) CountChunks(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks").Scan(&n); err != nil {
		return 0, transient("count chunks", err)
	}
	return n, nil
}

// Sources returns the distinct source paths currently indexed, sorted.
func (s *ChunkStore) Sources(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT source FROM chunks ORDER BY source")
	if err != nil {
		return nil, transient("list sources", err)
	}
	defer rows.Close()
	var sources []string
	for rows.Next() {
		var src string
		if err := rows.Scan(&src); err != nil {
			return nil, transient("scan source", err)
		}
		sources = append(sources, src)
	}
	return sources, rows.Err()
}

// Ping verifies the database responds to a trivial query.
func (s *ChunkStore) Ping(ctx context.Context) error {
	var one int
	if err := s.db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Close closes the database.
func (s *ChunkStore) Close() error {
	return s.db.Close()
}
