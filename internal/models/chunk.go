// Package models defines core data structures for chunks, ingestion jobs, and query results.
package models

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// SourceType says which watched root a document came from.
type SourceType string

const (
	SourceInternal SourceType = "internal"
	SourceExternal SourceType = "external"
	SourceUnknown  SourceType = "unknown"
)

// EventType is the filesystem change that triggered an ingestion job.
type EventType string

const (
	EventCreated  EventType = "created"
	EventModified EventType = "modified"
	EventDeleted  EventType = "deleted"
)

// Chunk is a bounded text segment derived from a source document. It is the
// atomic stored and retrieved unit. All chunks of one document share the
// document's normalized absolute path as Source.
type Chunk struct {
	Text       string            `json:"text"`
	Source     string            `json:"source"`
	FileName   string            `json:"file_name"`
	SourceType SourceType        `json:"source_type"`
	EventType  EventType         `json:"event_type"`
	Ordinal    int               `json:"chunk_index"`
	ModTime    time.Time         `json:"timestamp"`
	// Extra carries optional forward-compatible metadata fields.
	Extra map[string]string `json:"extra,omitempty"`
}

// Key returns the stable identity of the chunk: (source path, ordinal index).
// Re-ingesting the same document overwrites entries under the same keys, so
// duplicate or replayed events are naturally absorbed.
func (c *Chunk) Key() string {
	return fmt.Sprintf("%s#%d", c.Source, c.Ordinal)
}

// ParseKey splits a chunk key back into source path and ordinal. The ordinal
// follows the last '#', since source paths may themselves contain one.
func ParseKey(key string) (source string, ordinal int, err error) {
	i := strings.LastIndex(key, "#")
	if i < 0 {
		return "", 0, fmt.Errorf("malformed chunk key %q", key)
	}
	ordinal, err = strconv.Atoi(key[i+1:])
	if err != nil {
		return "", 0, fmt.Errorf("malformed chunk key %q: %w", key, err)
	}
	return key[:i], ordinal, nil
}

// NormalizePath returns the cleaned absolute form of path, the identity key
// for a source document. Relative paths are resolved against the working
// directory.
func NormalizePath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	return filepath.Clean(abs)
}

// SourceTypeFor classifies path by the watched root that contains it.
func SourceTypeFor(path, internalRoot, externalRoot string) SourceType {
	p := NormalizePath(path)
	if internalRoot != "" && underDir(NormalizePath(internalRoot), p) {
		return SourceInternal
	}
	if externalRoot != "" && underDir(NormalizePath(externalRoot), p) {
		return SourceExternal
	}
	return SourceUnknown
}

func underDir(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
