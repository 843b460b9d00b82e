package milvus

import (
	"context"
	"fmt"
	"strings"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.uber.org/zap"

	"github.com/plume-ai/backend/internal/knowledge"
	"github.com/plume-ai/backend/pkg/logger"
)

// Client is the Milvus-backed vector index for the knowledge store. Vectors
// arrive pre-normalized, so inner product equals cosine similarity.
type Client struct {
	client         client.Client
	collectionName string
	dim            int
}

var _ knowledge.RemoteIndex = (*Client)(nil)

func NewClient(endpoint, apiKey, collectionName string, dim int) (*Client, error) {
	var c client.Client
	var err error
	if apiKey != "" {
		c, err = client.NewClient(context.Background(), client.Config{
			Address: endpoint,
			APIKey:  apiKey,
		})
	} else {
		c, err = client.NewGrpcClient(context.Background(), endpoint)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create milvus client: %w", err)
	}

	logger.Info("milvus client initialized",
		zap.String("endpoint", endpoint),
		zap.String("collection", collectionName))

	return &Client{
		client:         c,
		collectionName: collectionName,
		dim:            dim,
	}, nil
}

func (m *Client) Close() error {
	return m.client.Close()
}

// EnsureCollection creates and loads the chunk collection if missing.
func (m *Client) EnsureCollection(ctx context.Context) error {
	has, err := m.client.HasCollection(ctx, m.collectionName)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if has {
		return m.client.LoadCollection(ctx, m.collectionName, false)
	}

	schema := &entity.Schema{
		CollectionName: m.collectionName,
		Description:    "Chunk embeddings for the writing assistant",
		Fields: []*entity.Field{
			{
				Name:       "chunk_id",
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				TypeParams: map[string]string{"max_length": "256"},
			},
			{
				Name:       "owner",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "256"},
			},
			{
				Name:       "embedding",
				DataType:   entity.FieldTypeFloatVector,
				TypeParams: map[string]string{"dim": fmt.Sprintf("%d", m.dim)},
			},
		},
	}

	if err := m.client.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	idx, err := entity.NewIndexIvfFlat(entity.IP, 128)
	if err != nil {
		return fmt.Errorf("failed to build index spec: %w", err)
	}
	if err := m.client.CreateIndex(ctx, m.collectionName, "embedding", idx, false); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	if err := m.client.LoadCollection(ctx, m.collectionName, false); err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}

	logger.Info("milvus collection ready", zap.String("collection", m.collectionName))
	return nil
}

func (m *Client) Upsert(ctx context.Context, id, owner string, vec []float32) error {
	// Milvus has no per-row upsert on varchar keys here; delete then insert.
	if err := m.Delete(ctx, id); err != nil {
		return err
	}

	_, err := m.client.Insert(
		ctx,
		m.collectionName,
		"",
		entity.NewColumnVarChar("chunk_id", []string{id}),
		entity.NewColumnVarChar("owner", []string{owner}),
		entity.NewColumnFloatVector("embedding", m.dim, [][]float32{vec}),
	)
	if err != nil {
		return fmt.Errorf("failed to insert vector: %w", err)
	}
	return nil
}

func (m *Client) Delete(ctx context.Context, id string) error {
	expr := fmt.Sprintf(`chunk_id == "%s"`, escape(id))
	if err := m.client.Delete(ctx, m.collectionName, "", expr); err != nil {
		return fmt.Errorf("failed to delete vector: %w", err)
	}
	return nil
}

func (m *Client) Search(ctx context.Context, vec []float32, limit int, ownerPrefixes []string) ([]knowledge.RemoteHit, error) {
	sp, err := entity.NewIndexIvfFlatSearchParam(16)
	if err != nil {
		return nil, err
	}

	results, err := m.client.Search(
		ctx,
		m.collectionName,
		nil,
		ownerExpr(ownerPrefixes),
		[]string{"chunk_id"},
		[]entity.Vector{entity.FloatVector(vec)},
		"embedding",
		entity.IP,
		limit,
		sp,
	)
	if err != nil {
		return nil, fmt.Errorf("milvus search failed: %w", err)
	}

	var hits []knowledge.RemoteHit
	for _, result := range results {
		idCol, ok := result.IDs.(*entity.ColumnVarChar)
		if !ok {
			continue
		}
		for i := 0; i < result.ResultCount; i++ {
			id, err := idCol.ValueByIdx(i)
			if err != nil {
				continue
			}
			hits = append(hits, knowledge.RemoteHit{
				ID:    id,
				Score: float64(result.Scores[i]),
			})
		}
	}
	return hits, nil
}

func (m *Client) Count() int {
	stats, err := m.client.GetCollectionStatistics(context.Background(), m.collectionName)
	if err != nil {
		return 0
	}
	var n int
	fmt.Sscanf(stats["row_count"], "%d", &n)
	return n
}

func ownerExpr(prefixes []string) string {
	if len(prefixes) == 0 {
		return ""
	}
	parts := make([]string, 0, len(prefixes))
	for _, p := range prefixes {
		parts = append(parts, fmt.Sprintf(`owner like "%s%%"`, escape(p)))
	}
	return strings.Join(parts, " or ")
}

func escape(s string) string {
	return strings.ReplaceAll(s, `"`, `\"`)
}
