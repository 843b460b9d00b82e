package backend

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/plume-ai/backend/pkg/logger"
)

const endpointProbeTimeout = 10 * time.Second

// OllamaClient talks to a local Ollama server. The endpoint is resolved once
// on first use by probing the candidate list in order.
type OllamaClient struct {
	candidates  []string
	model       string
	callTimeout time.Duration
	pullTimeout time.Duration
	httpClient  *http.Client

	mu       sync.Mutex
	baseURL  string
	models   []string
	resolved map[string]string
	pulled   map[string]bool
}

func NewOllamaClient(candidates []string, model string, callTimeout, pullTimeout time.Duration) *OllamaClient {
	if callTimeout <= 0 {
		callTimeout = 60 * time.Second
	}
	if pullTimeout <= 0 {
		pullTimeout = 10 * time.Minute
	}
	return &OllamaClient{
		candidates:  candidates,
		model:       model,
		callTimeout: callTimeout,
		pullTimeout: pullTimeout,
		httpClient:  &http.Client{},
		resolved:    make(map[string]string),
		pulled:      make(map[string]bool),
	}
}

type ollamaGenerateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type ollamaGenerateChunk struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Probe confirms some candidate endpoint answers, caching the winner.
func (c *OllamaClient) Probe(ctx context.Context) error {
	_, err := c.endpoint(ctx)
	return err
}

func (c *OllamaClient) endpoint(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.baseURL != "" {
		return c.baseURL, nil
	}

	for _, candidate := range c.candidates {
		probeCtx, cancel := context.WithTimeout(ctx, endpointProbeTimeout)
		ok := c.probeOne(probeCtx, candidate)
		cancel()
		if ok {
			c.baseURL = strings.TrimRight(candidate, "/")
			logger.Info("ollama endpoint selected", zap.String("url", c.baseURL))
			return c.baseURL, nil
		}
	}

	return "", unavailable(IDOllama, fmt.Errorf("no endpoint answered among %v", c.candidates))
}

func (c *OllamaClient) probeOne(ctx context.Context, base string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(base, "/")+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false
	}

	var tags struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tags); err == nil {
		c.models = c.models[:0]
		for _, m := range tags.Models {
			c.models = append(c.models, m.Name)
		}
	}
	return true
}

// Models returns the cached list of installed model variants.
func (c *OllamaClient) Models() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.models))
	copy(out, c.models)
	return out
}

// ResolveModel maps a requested name to the closest installed variant:
// exact match first, then prefix before the colon ("mistral" matches
// "mistral:7b-instruct-q4_0"). Unresolved names trigger a one-time pull.
func (c *OllamaClient) ResolveModel(ctx context.Context, name string) (string, error) {
	if name == "" {
		name = c.model
	}

	c.mu.Lock()
	if hit, ok := c.resolved[name]; ok {
		c.mu.Unlock()
		return hit, nil
	}
	installed := make([]string, len(c.models))
	copy(installed, c.models)
	alreadyPulled := c.pulled[name]
	c.mu.Unlock()

	if match := matchModel(name, installed); match != "" {
		c.mu.Lock()
		c.resolved[name] = match
		c.mu.Unlock()
		return match, nil
	}

	if alreadyPulled {
		return "", fmt.Errorf("%w: %s", ErrModelNotAvailable, name)
	}

	c.mu.Lock()
	c.pulled[name] = true
	c.mu.Unlock()

	if err := c.pull(ctx, name); err != nil {
		logger.Warn("model pull failed", zap.String("model", name), zap.Error(err))
		return "", fmt.Errorf("%w: %s", ErrModelNotAvailable, name)
	}

	c.mu.Lock()
	c.resolved[name] = name
	c.models = append(c.models, name)
	c.mu.Unlock()
	return name, nil
}

func matchModel(name string, installed []string) string {
	for _, m := range installed {
		if m == name {
			return m
		}
	}
	for _, m := range installed {
		if strings.HasPrefix(m, name+":") || strings.HasPrefix(m, name) {
			return m
		}
	}
	// Requested with a tag the server lacks, e.g. "mistral:latest".
	if base, _, ok := strings.Cut(name, ":"); ok {
		for _, m := range installed {
			if m == base || strings.HasPrefix(m, base+":") {
				return m
			}
		}
	}
	return ""
}

func (c *OllamaClient) pull(ctx context.Context, model string) error {
	base, err := c.endpoint(ctx)
	if err != nil {
		return err
	}

	pullCtx, cancel := context.WithTimeout(ctx, c.pullTimeout)
	defer cancel()

	body, _ := json.Marshal(map[string]any{"name": model, "stream": false})
	req, err := http.NewRequestWithContext(pullCtx, http.MethodPost, base+"/api/pull", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	logger.Info("pulling model", zap.String("model", model))
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("pull returned %d: %s", resp.StatusCode, string(data))
	}
	return nil
}

// Generate runs a non-interactive completion and returns the full text.
func (c *OllamaClient) Generate(ctx context.Context, prompt string, params Params) (string, error) {
	var out strings.Builder
	err := c.GenerateStream(ctx, prompt, params, func(delta string) {
		out.WriteString(delta)
	})
	return out.String(), err
}

// GenerateStream runs a streaming completion, invoking onDelta for each
// response fragment. The stream is line-delimited JSON objects ending with
// one whose done field is true.
func (c *OllamaClient) GenerateStream(ctx context.Context, prompt string, params Params, onDelta func(string)) error {
	base, err := c.endpoint(ctx)
	if err != nil {
		return err
	}

	model, err := c.ResolveModel(ctx, params.String("model", c.model))
	if err != nil {
		return err
	}

	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	reqBody := ollamaGenerateRequest{
		Model:  model,
		Prompt: prompt,
		Stream: true,
		Options: map[string]any{
			"temperature": params.Float("temperature", 0.7),
			"num_predict": params.Int("num_predict", 512),
			"top_p":       params.Float("top_p", 0.9),
		},
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("failed to marshal generate request: %w", err)
	}

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, base+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return unavailable(IDOllama, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return unavailable(IDOllama, fmt.Errorf("generate returned %d: %s", resp.StatusCode, string(data)))
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var chunk ollamaGenerateChunk
		if err := json.Unmarshal(line, &chunk); err != nil {
			return fmt.Errorf("failed to decode stream chunk: %w", err)
		}
		if chunk.Response != "" {
			onDelta(chunk.Response)
		}
		if chunk.Done {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return unavailable(IDOllama, err)
	}
	return nil
}
