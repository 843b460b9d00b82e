package backend

import (
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/plume-ai/backend/pkg/logger"
)

// Seq2SeqClient drives a hosted transformer served behind an
// OpenAI-compatible endpoint (text-generation-inference, vLLM and friends).
type Seq2SeqClient struct {
	client *openai.Client
	model  string
}

func NewSeq2SeqClient(baseURL, apiKey, model string, timeout time.Duration) *Seq2SeqClient {
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = baseURL
	if timeout > 0 {
		cfg.HTTPClient.Timeout = timeout
	}
	return &Seq2SeqClient{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

func (c *Seq2SeqClient) Probe(ctx context.Context) error {
	probeCtx, cancel := context.WithTimeout(ctx, endpointProbeTimeout)
	defer cancel()
	_, err := c.client.ListModels(probeCtx)
	if err != nil {
		return unavailable(IDSeq2Seq, err)
	}
	return nil
}

func (c *Seq2SeqClient) Generate(ctx context.Context, prompt string, params Params) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: params.String("model", c.model),
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: float32(params.Float("temperature", 0.7)),
		TopP:        float32(params.Float("top_p", 0.9)),
		MaxTokens:   params.Int("num_predict", 512),
	})
	if err != nil {
		return "", unavailable(IDSeq2Seq, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("seq2seq returned no choices")
	}

	logger.Debug("seq2seq completion",
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens))

	return resp.Choices[0].Message.Content, nil
}
