package knowledge

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/plume-ai/backend/pkg/logger"
	"github.com/plume-ai/backend/pkg/retry"
)

// Embedder is the slice of the backend registry the store needs.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Chunk is the unit of retrieval: a bounded span of a document with its
// owner tag. Text and embedding come together or not at all; a chunk with
// no embedding is only reachable through the keyword fallback.
type Chunk struct {
	ID           string
	Owner        string // "builtin:<domain>" or "user:<uid>:<doc-id>"
	Domain       string
	Title        string
	Text         string
	Tags         []string
	HasEmbedding bool
}

// Result is one retrieval hit.
type Result struct {
	ChunkID    string
	Text       string
	Score      float64 // [0,1]
	SourceKind string  // "builtin" or "user"
	Title      string
}

// SearchOptions scope a similarity query.
type SearchOptions struct {
	// UserID, when set, adds that user's pool next to the builtin pool.
	UserID string
	// Domain restricts the builtin pool to one domain. Empty or "general"
	// leaves all builtin domains in scope.
	Domain string
	TopK   int
}

// Store persists the builtin knowledge base and per-user document chunks,
// and answers similarity queries over both pools. One writer at a time;
// readers share the lock.
type Store struct {
	db       *sql.DB
	embedder Embedder
	index    vectorIndex

	mu     sync.RWMutex
	chunks map[string]*Chunk
}

// NewStore opens the chunk tables and loads chunk metadata and vectors.
func NewStore(db *sql.DB, embedder Embedder) (*Store, error) {
	idx, err := newMemoryIndex(db)
	if err != nil {
		return nil, err
	}
	return newStoreWithIndex(db, embedder, idx)
}

// NewStoreWithRemoteIndex uses an external vector index (Milvus) instead of
// the in-process one. Chunk metadata still lives in SQLite.
func NewStoreWithRemoteIndex(db *sql.DB, embedder Embedder, idx RemoteIndex) (*Store, error) {
	return newStoreWithIndex(db, embedder, remoteAdapter{remote: idx})
}

func newStoreWithIndex(db *sql.DB, embedder Embedder, idx vectorIndex) (*Store, error) {
	s := &Store{
		db:       db,
		embedder: embedder,
		index:    idx,
		chunks:   make(map[string]*Chunk),
	}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("knowledge store migrate: %w", err)
	}
	if err := s.loadAll(); err != nil {
		return nil, fmt.Errorf("knowledge store load: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS chunks (
			id            TEXT PRIMARY KEY,
			owner         TEXT NOT NULL,
			domain        TEXT NOT NULL DEFAULT '',
			title         TEXT NOT NULL DEFAULT '',
			text          TEXT NOT NULL,
			tags          TEXT NOT NULL DEFAULT '[]',
			has_embedding INTEGER NOT NULL DEFAULT 0,
			created_at    INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_chunks_owner ON chunks(owner);
	`)
	return err
}

func (s *Store) loadAll() error {
	rows, err := s.db.Query("SELECT id, owner, domain, title, text, tags, has_embedding FROM chunks")
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var c Chunk
		var tagsJSON string
		var hasEmb int
		if err := rows.Scan(&c.ID, &c.Owner, &c.Domain, &c.Title, &c.Text, &tagsJSON, &hasEmb); err != nil {
			return err
		}
		json.Unmarshal([]byte(tagsJSON), &c.Tags)
		c.HasEmbedding = hasEmb == 1
		s.chunks[c.ID] = &c
	}
	return rows.Err()
}

// AddUserDocument chunks and indexes one document for a user. Embedding
// failures degrade to keyword-only chunks instead of failing ingestion.
func (s *Store) AddUserDocument(ctx context.Context, userID, docID, text, title string, tags []string) (int, error) {
	if strings.TrimSpace(text) == "" {
		return 0, fmt.Errorf("empty document")
	}

	owner := fmt.Sprintf("user:%s:%s", userID, docID)
	pieces := ChunkText(text)

	embeddings := s.embedAll(ctx, pieces)

	for i, piece := range pieces {
		chunk := &Chunk{
			ID:           fmt.Sprintf("%s#%d", owner, i),
			Owner:        owner,
			Title:        title,
			Text:         piece,
			Tags:         tags,
			HasEmbedding: embeddings != nil,
		}
		var vec []float32
		if embeddings != nil {
			vec = embeddings[i]
		}
		if err := s.insert(ctx, chunk, vec); err != nil {
			return i, err
		}
	}

	logger.Info("document ingested",
		zap.String("owner", owner),
		zap.Int("chunks", len(pieces)),
		zap.Bool("embedded", embeddings != nil))

	return len(pieces), nil
}

// embedAll returns one vector per text, or nil when the embedding backend is
// unavailable (warning, not fatal).
func (s *Store) embedAll(ctx context.Context, texts []string) [][]float32 {
	if s.embedder == nil || len(texts) == 0 {
		return nil
	}

	cfg := retry.DefaultConfig()
	cfg.Attempts = 2
	cfg.Logger = logger.GetLogger()

	vecs, err := retry.DoWithResult(ctx, cfg, func() ([][]float32, error) {
		return s.embedder.EmbedBatch(ctx, texts)
	})
	if err != nil {
		logger.Warn("embedding unavailable, chunks fall back to keyword matching", zap.Error(err))
		return nil
	}
	if len(vecs) != len(texts) {
		logger.Warn("embedding count mismatch",
			zap.Int("got", len(vecs)), zap.Int("want", len(texts)))
		return nil
	}
	return vecs
}

func (s *Store) insert(ctx context.Context, chunk *Chunk, vec []float32) error {
	tagsJSON, _ := json.Marshal(chunk.Tags)
	hasEmb := 0
	if vec != nil {
		hasEmb = 1
		chunk.HasEmbedding = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chunks (id, owner, domain, title, text, tags, has_embedding, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			text = excluded.text,
			tags = excluded.tags,
			has_embedding = excluded.has_embedding
	`, chunk.ID, chunk.Owner, chunk.Domain, chunk.Title, chunk.Text, string(tagsJSON), hasEmb, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to insert chunk: %w", err)
	}

	s.chunks[chunk.ID] = chunk

	if vec != nil {
		if err := s.index.Upsert(ctx, chunk.ID, chunk.Owner, vec); err != nil {
			return fmt.Errorf("failed to index chunk: %w", err)
		}
	}
	return nil
}

// RemoveUserDocument drops every chunk of one document. Removing an unknown
// document is a no-op.
func (s *Store) RemoveUserDocument(ctx context.Context, userID, docID string) error {
	owner := fmt.Sprintf("user:%s:%s", userID, docID)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, "DELETE FROM chunks WHERE owner = ?", owner); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}

	for id, c := range s.chunks {
		if c.Owner != owner {
			continue
		}
		delete(s.chunks, id)
		if err := s.index.Delete(ctx, id); err != nil {
			logger.Warn("failed to drop vector", zap.String("chunk", id), zap.Error(err))
		}
	}
	return nil
}

// UserHasDocuments reports whether any chunk belongs to the user.
func (s *Store) UserHasDocuments(userID string) bool {
	prefix := fmt.Sprintf("user:%s:", userID)

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.chunks {
		if strings.HasPrefix(c.Owner, prefix) {
			return true
		}
	}
	return false
}

// Search ranks chunks against the query. Cosine similarity over embeddings
// when the encoder answers; bag-of-words Jaccard otherwise. Results are
// deduplicated by chunk id and scored in [0,1].
func (s *Store) Search(ctx context.Context, query string, opts SearchOptions) ([]Result, error) {
	if opts.TopK <= 0 {
		opts.TopK = 5
	}
	prefixes := s.ownerPrefixes(opts)

	if s.embedder != nil {
		vec, err := s.embedder.Embed(ctx, query)
		if err == nil {
			return s.searchVector(ctx, vec, opts.TopK, prefixes)
		}
		logger.Warn("query embedding unavailable, using keyword fallback", zap.Error(err))
	}

	return s.searchKeyword(query, opts.TopK, prefixes), nil
}

func (s *Store) ownerPrefixes(opts SearchOptions) []string {
	builtin := "builtin:"
	if opts.Domain != "" && opts.Domain != "general" {
		builtin = "builtin:" + opts.Domain
	}

	prefixes := []string{builtin}
	if opts.UserID != "" {
		prefixes = append(prefixes, fmt.Sprintf("user:%s:", opts.UserID))
	}
	return prefixes
}

func (s *Store) searchVector(ctx context.Context, vec []float32, topK int, prefixes []string) ([]Result, error) {
	hits, err := s.index.Search(ctx, vec, topK, prefixes)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{}, len(hits))
	results := make([]Result, 0, len(hits))
	for _, hit := range hits {
		if _, dup := seen[hit.ID]; dup {
			continue
		}
		seen[hit.ID] = struct{}{}

		chunk, ok := s.chunks[hit.ID]
		if !ok {
			continue
		}
		score := hit.Score
		if score < 0 {
			score = 0
		}
		if score > 1 {
			score = 1
		}
		results = append(results, Result{
			ChunkID:    chunk.ID,
			Text:       chunk.Text,
			Score:      score,
			SourceKind: sourceKind(chunk.Owner),
			Title:      chunk.Title,
		})
	}
	return results, nil
}

func (s *Store) searchKeyword(query string, topK int, prefixes []string) []Result {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]Result, 0)
	for _, chunk := range s.chunks {
		if !ownerAllowed(chunk.Owner, prefixes) {
			continue
		}
		score := Jaccard(query, chunk.Text)
		if score <= 0 {
			continue
		}
		results = append(results, Result{
			ChunkID:    chunk.ID,
			Text:       chunk.Text,
			Score:      score,
			SourceKind: sourceKind(chunk.Owner),
			Title:      chunk.Title,
		})
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > topK {
		results = results[:topK]
	}
	return results
}

func sourceKind(owner string) string {
	if strings.HasPrefix(owner, "builtin:") {
		return "builtin"
	}
	return "user"
}
