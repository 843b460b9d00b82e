package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// EmbedderClient produces embeddings through the Ollama embeddings endpoint.
// It shares the endpoint resolution of the generative client so both follow
// the same server.
type EmbedderClient struct {
	ollama *OllamaClient
	model  string
	dim    int
	client *http.Client
}

func NewEmbedderClient(ollama *OllamaClient, model string, dim int, timeout time.Duration) *EmbedderClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &EmbedderClient{
		ollama: ollama,
		model:  model,
		dim:    dim,
		client: &http.Client{Timeout: timeout},
	}
}

func (c *EmbedderClient) Probe(ctx context.Context) error {
	_, err := c.Embed(ctx, "ping")
	return err
}

func (c *EmbedderClient) Dim() int {
	return c.dim
}

// Embed encodes one text.
func (c *EmbedderClient) Embed(ctx context.Context, text string) ([]float32, error) {
	base, err := c.ollama.endpoint(ctx)
	if err != nil {
		return nil, err
	}

	payload, _ := json.Marshal(map[string]any{
		"model":  c.model,
		"prompt": text,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/api/embeddings", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, unavailable(IDEmbedder, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		return nil, unavailable(IDEmbedder, fmt.Errorf("embeddings returned %d: %s", resp.StatusCode, string(body)))
	}

	var parsed struct {
		Embedding []float32 `json:"embedding"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode embedding response: %w", err)
	}
	if len(parsed.Embedding) == 0 {
		return nil, fmt.Errorf("empty embedding returned")
	}
	return matchDimension(parsed.Embedding, c.dim), nil
}

// EmbedBatch encodes several texts. The server batches internally, so calls
// stay sequential.
func (c *EmbedderClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, text := range texts {
		vec, err := c.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out = append(out, vec)
	}
	return out, nil
}

func matchDimension(v []float32, target int) []float32 {
	if target <= 0 || len(v) == target {
		return v
	}
	if len(v) > target {
		return v[:target]
	}
	out := make([]float32, target)
	copy(out, v)
	return out
}
