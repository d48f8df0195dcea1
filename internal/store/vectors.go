package store

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// VectorHit is one nearest-neighbor match: the chunk key and its cosine
// similarity to the query (vectors are stored normalized).
type VectorHit struct {
	Key   string
	Score float64
}

// VectorIndex holds normalized embeddings in memory, keyed by chunk key, with
// brute-force inner product search. Persisted as a flat binary file.
type VectorIndex struct {
	dimensions int
	keys       []string
	vectors    [][]float32
	pos        map[string]int
	mu         sync.RWMutex
}

// NewVectorIndex creates an empty index with the given dimension.
func NewVectorIndex(dimensions int) (*VectorIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	return &VectorIndex{
		dimensions: dimensions,
		pos:        make(map[string]int),
	}, nil
}

// Upsert stores vectors under their keys, replacing any existing vector with
// the same key so replayed ingestion is idempotent.
func (v *VectorIndex) Upsert(ctx context.Context, keys []string, vectors [][]float32) error {
	if len(keys) != len(vectors) {
		return fmt.Errorf("keys and vectors length mismatch: %d vs %d", len(keys), len(vectors))
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	for i, key := range keys {
		if len(vectors[i]) != v.dimensions {
			return fmt.Errorf("vector dimension mismatch: got %d, expected %d", len(vectors[i]), v.dimensions)
		}
		vec := make([]float32, v.dimensions)
		copy(vec, vectors[i])
		if j, ok := v.pos[key]; ok {
			v.vectors[j] = vec
			continue
		}
		v.pos[key] = len(v.keys)
		v.keys = append(v.keys, key)
		v.vectors = append(v.vectors, vec)
	}
	return nil
}

// Search returns the top-k keys by inner product against the query vector.
// A non-nil allow set restricts the search to those keys.
func (v *VectorIndex) Search(ctx context.Context, query []float32, k int, allow map[string]bool) ([]VectorHit, error) {
	if len(query) != v.dimensions {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(query), v.dimensions)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v.mu.RLock()
	defer v.mu.RUnlock()
	if k <= 0 || len(v.keys) == 0 {
		return nil, nil
	}
	hits := make([]VectorHit, 0, len(v.keys))
	for i, vec := range v.vectors {
		if allow != nil && !allow[v.keys[i]] {
			continue
		}
		var dot float64
		for j := 0; j < v.dimensions; j++ {
			dot += float64(query[j] * vec[j])
		}
		hits = append(hits, VectorHit{Key: v.keys[i], Score: dot})
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if k > len(hits) {
		k = len(hits)
	}
	return hits[:k], nil
}

// Remove drops vectors by key. Unknown keys are ignored.
func (v *VectorIndex) Remove(ctx context.Context, keys []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	removeSet := make(map[string]bool, len(keys))
	for _, key := range keys {
		removeSet[key] = true
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	newKeys := make([]string, 0, len(v.keys))
	newVectors := make([][]float32, 0, len(v.vectors))
	newPos := make(map[string]int, len(v.pos))
	for i, key := range v.keys {
		if removeSet[key] {
			continue
		}
		newPos[key] = len(newKeys)
		newKeys = append(newKeys, key)
		newVectors = append(newVectors, v.vectors[i])
	}
	v.keys = newKeys
	v.vectors = newVectors
	v.pos = newPos
	return nil
}

// Size returns the number of stored vectors.
func (v *VectorIndex) Size() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.keys)
}

// Save persists the index to path. Format: dimension (4), n (4), then per
// vector: keyLen (4), key bytes, vector (dimension*4 bytes), little endian.
func (v *VectorIndex) Save(path string) error {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}
	defer f.Close()
	if err := binary.Write(f, binary.LittleEndian, uint32(v.dimensions)); err != nil {
		return fmt.Errorf("write dimensions: %w", err)
	}
	if err := binary.Write(f, binary.LittleEndian, uint32(len(v.keys))); err != nil {
		return fmt.Errorf("write count: %w", err)
	}
	for i, key := range v.keys {
		keyBytes := []byte(key)
		if err := binary.Write(f, binary.LittleEndian, uint32(len(keyBytes))); err != nil {
			return fmt.Errorf("write key len: %w", err)
		}
		if _, err := f.Write(keyBytes); err != nil {
			return fmt.Errorf("write key: %w", err)
		}
		if _, err := f.Write(float32SliceToBytes(v.vectors[i])); err != nil {
			return fmt.Errorf("write vector: %w", err)
		}
	}
	return nil
}

// Load reads the index from path and replaces the in-memory contents.
// Dimensions must match. A missing file leaves the index empty without error.
func (v *VectorIndex) Load(path string) error {
	if path == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open index file: %w", err)
	}
	defer f.Close()
	var dim, n uint32
	if err := binary.Read(f, binary.LittleEndian, &dim); err != nil {
		return fmt.Errorf("read dimensions: %w", err)
	}
	if int(dim) != v.dimensions {
		return fmt.Errorf("dimension mismatch: file has %d, index expects %d", dim, v.dimensions)
	}
	if err := binary.Read(f, binary.LittleEndian, &n); err != nil {
		return fmt.Errorf("read count: %w", err)
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.keys = make([]string, 0, n)
	v.vectors = make([][]float32, 0, n)
	v.pos = make(map[string]int, n)
	buf := make([]byte, v.dimensions*4)
	for i := uint32(0); i < n; i++ {
		var keyLen uint32
		if err := binary.Read(f, binary.LittleEndian, &keyLen); err != nil {
			return fmt.Errorf("read key len: %w", err)
		}
		keyBytes := make([]byte, keyLen)
		if _, err := io.ReadFull(f, keyBytes); err != nil {
			return fmt.Errorf("read key: %w", err)
		}
		if _, err := io.ReadFull(f, buf); err != nil {
			return fmt.Errorf("read vector: %w", err)
		}
		key := string(keyBytes)
		v.pos[key] = len(v.keys)
		v.keys = append(v.keys, key)
		v.vectors = append(v.vectors, bytesToFloat32Slice(buf))
	}
	return nil
}

func float32SliceToBytes(s []float32) []byte {
	const size = 4
	out := make([]byte, len(s)*size)
	for i, val := range s {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(val))
	}
	return out
}

func bytesToFloat32Slice(b []byte) []float32 {
	const size = 4
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out
}
