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

// QAClient drives a hosted extractive question-answering pipeline that
// speaks the HF pipeline JSON: {question, context} in, {answer, score} out.
type QAClient struct {
	url    string
	client *http.Client
}

func NewQAClient(url string, timeout time.Duration) *QAClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &QAClient{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

func (c *QAClient) Probe(ctx context.Context) error {
	probeCtx, cancel := context.WithTimeout(ctx, endpointProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, c.url, nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return unavailable(IDQA, err)
	}
	resp.Body.Close()
	if resp.StatusCode >= 500 {
		return unavailable(IDQA, fmt.Errorf("probe returned %d", resp.StatusCode))
	}
	return nil
}

type qaRequest struct {
	Inputs struct {
		Question string `json:"question"`
		Context  string `json:"context"`
	} `json:"inputs"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

type qaResponse struct {
	Answer string  `json:"answer"`
	Score  float64 `json:"score"`
	Start  int     `json:"start"`
	End    int     `json:"end"`
}

// Answer extracts the best span from context for the question.
func (c *QAClient) Answer(ctx context.Context, question, contextText string, params Params) (*QAResult, error) {
	var reqBody qaRequest
	reqBody.Inputs.Question = question
	reqBody.Inputs.Context = contextText
	if topK := params.Int("top_k", 0); topK > 1 {
		reqBody.Parameters = map[string]any{"top_k": topK}
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal qa request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, unavailable(IDQA, err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, unavailable(IDQA, fmt.Errorf("qa returned %d: %s", resp.StatusCode, string(data)))
	}

	// Single answer comes back as an object, top_k > 1 as an array.
	var single qaResponse
	if err := json.Unmarshal(data, &single); err == nil && single.Answer != "" {
		return &QAResult{Answer: single.Answer, Score: single.Score}, nil
	}
	var many []qaResponse
	if err := json.Unmarshal(data, &many); err == nil && len(many) > 0 {
		best := many[0]
		for _, cand := range many[1:] {
			if cand.Score > best.Score {
				best = cand
			}
		}
		return &QAResult{Answer: best.Answer, Score: best.Score}, nil
	}

	return &QAResult{}, nil
}
