package knowledge

import (
	"container/heap"
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"sync"
)

// scoredID pairs a chunk id with a similarity score.
type scoredID struct {
	ID    string
	Score float64
}

// vectorIndex is the similarity engine behind the store. The in-process
// implementation is the default; a Milvus-backed one can be swapped in.
type vectorIndex interface {
	Upsert(ctx context.Context, id, owner string, vec []float32) error
	Delete(ctx context.Context, id string) error
	Search(ctx context.Context, vec []float32, limit int, ownerPrefixes []string) ([]scoredID, error)
	Count() int
}

// memoryIndex is a brute-force cosine index persisted as SQLite BLOBs.
// Vectors are normalized on insert so dot product equals cosine similarity.
// Exact results, sub-millisecond at the corpus sizes a single user reaches.
type memoryIndex struct {
	db *sql.DB

	mu      sync.RWMutex
	vectors map[string][]float32
	owners  map[string]string
}

func newMemoryIndex(db *sql.DB) (*memoryIndex, error) {
	idx := &memoryIndex{
		db:      db,
		vectors: make(map[string][]float32),
		owners:  make(map[string]string),
	}
	if err := idx.migrate(); err != nil {
		return nil, fmt.Errorf("vector index migrate: %w", err)
	}
	if err := idx.loadAll(); err != nil {
		return nil, fmt.Errorf("vector index load: %w", err)
	}
	return idx, nil
}

func (idx *memoryIndex) migrate() error {
	_, err := idx.db.Exec(`
		CREATE TABLE IF NOT EXISTS chunk_vectors (
			chunk_id  TEXT PRIMARY KEY,
			owner     TEXT NOT NULL,
			embedding BLOB NOT NULL,
			dims      INTEGER NOT NULL
		)
	`)
	return err
}

func (idx *memoryIndex) loadAll() error {
	rows, err := idx.db.Query("SELECT chunk_id, owner, embedding, dims FROM chunk_vectors")
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var id, owner string
		var blob []byte
		var dims int
		if err := rows.Scan(&id, &owner, &blob, &dims); err != nil {
			return err
		}
		idx.vectors[id] = blobToFloat32(blob, dims)
		idx.owners[id] = owner
	}
	return rows.Err()
}

func (idx *memoryIndex) Upsert(ctx context.Context, id, owner string, vec []float32) error {
	normalized := normalize(vec)
	blob := float32ToBlob(normalized)

	idx.mu.Lock()
	defer idx.mu.Unlock()

	_, err := idx.db.ExecContext(ctx, `
		INSERT INTO chunk_vectors (chunk_id, owner, embedding, dims)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(chunk_id) DO UPDATE SET
			owner=excluded.owner, embedding=excluded.embedding, dims=excluded.dims
	`, id, owner, blob, len(normalized))
	if err != nil {
		return err
	}

	idx.vectors[id] = normalized
	idx.owners[id] = owner
	return nil
}

func (idx *memoryIndex) Delete(ctx context.Context, id string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if _, err := idx.db.ExecContext(ctx, "DELETE FROM chunk_vectors WHERE chunk_id = ?", id); err != nil {
		return err
	}
	delete(idx.vectors, id)
	delete(idx.owners, id)
	return nil
}

func (idx *memoryIndex) Search(ctx context.Context, vec []float32, limit int, ownerPrefixes []string) ([]scoredID, error) {
	if limit <= 0 {
		limit = 10
	}
	query := normalize(vec)

	idx.mu.RLock()
	h := &minHeap{}
	heap.Init(h)
	for id, stored := range idx.vectors {
		if len(stored) != len(query) {
			continue
		}
		if !ownerAllowed(idx.owners[id], ownerPrefixes) {
			continue
		}
		score := dotProduct(query, stored)
		if h.Len() < limit {
			heap.Push(h, scoredID{ID: id, Score: score})
		} else if score > (*h)[0].Score {
			(*h)[0] = scoredID{ID: id, Score: score}
			heap.Fix(h, 0)
		}
	}
	idx.mu.RUnlock()

	results := make([]scoredID, h.Len())
	for i := len(results) - 1; i >= 0; i-- {
		results[i] = heap.Pop(h).(scoredID)
	}
	return results, nil
}

func (idx *memoryIndex) Count() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.vectors)
}

func ownerAllowed(owner string, prefixes []string) bool {
	if len(prefixes) == 0 {
		return true
	}
	for _, p := range prefixes {
		if strings.HasPrefix(owner, p) {
			return true
		}
	}
	return false
}

type minHeap []scoredID

func (h minHeap) Len() int           { return len(h) }
func (h minHeap) Less(i, j int) bool { return h[i].Score < h[j].Score }
func (h minHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *minHeap) Push(x any)        { *h = append(*h, x.(scoredID)) }
func (h *minHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

func normalize(v []float32) []float32 {
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	norm = math.Sqrt(norm)
	out := make([]float32, len(v))
	if norm == 0 {
		return out
	}
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

func dotProduct(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func float32ToBlob(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func blobToFloat32(b []byte, dims int) []float32 {
	v := make([]float32, dims)
	for i := 0; i < dims && i*4+4 <= len(b); i++ {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
