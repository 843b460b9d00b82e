package knowledge

import "context"

// RemoteHit is one similarity hit from an external vector index.
type RemoteHit struct {
	ID    string
	Score float64
}

// RemoteIndex is implemented by external vector databases (see
// internal/vector/milvus). Scores must already be cosine similarities.
type RemoteIndex interface {
	Upsert(ctx context.Context, id, owner string, vec []float32) error
	Delete(ctx context.Context, id string) error
	Search(ctx context.Context, vec []float32, limit int, ownerPrefixes []string) ([]RemoteHit, error)
	Count() int
}

// remoteAdapter lets a RemoteIndex stand in for the in-process index.
type remoteAdapter struct {
	remote RemoteIndex
}

func (a remoteAdapter) Upsert(ctx context.Context, id, owner string, vec []float32) error {
	return a.remote.Upsert(ctx, id, owner, normalize(vec))
}

func (a remoteAdapter) Delete(ctx context.Context, id string) error {
	return a.remote.Delete(ctx, id)
}

func (a remoteAdapter) Search(ctx context.Context, vec []float32, limit int, ownerPrefixes []string) ([]scoredID, error) {
	hits, err := a.remote.Search(ctx, normalize(vec), limit, ownerPrefixes)
	if err != nil {
		return nil, err
	}
	out := make([]scoredID, len(hits))
	for i, h := range hits {
		out[i] = scoredID{ID: h.ID, Score: h.Score}
	}
	return out, nil
}

func (a remoteAdapter) Count() int {
	return a.remote.Count()
}
