package llm

import (
	"context"
	"strings"

	"lectern/internal/services"
)

// Embedding is one embedding vector and the model that produced it.
type Embedding struct {
	Vector []float64
	Model  string
}

type embeddingRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embeddingResponse struct {
	Model string `json:"model"`
	Data  []struct {
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

// Embed returns the embedding vector for input.
func (c *Client) Embed(ctx context.Context, input string) (Embedding, error) {
	if err := c.requireKey("embed"); err != nil {
		return Embedding{}, err
	}
	input = strings.TrimSpace(input)
	if input == "" {
		return Embedding{}, services.Wrap(services.ErrValidation, "llm", "embed", "input required", nil)
	}
	payload := embeddingRequest{Model: c.cfg.EmbeddingModel, Input: input}
	var resp embeddingResponse
	if err := c.retry(ctx, func() error {
		return c.post(ctx, "embed", c.cfg.EmbeddingURL, payload, &resp)
	}); err != nil {
		return Embedding{}, err
	}
	for _, item := range resp.Data {
		if len(item.Embedding) == 0 {
			continue
		}
		model := strings.TrimSpace(resp.Model)
		if model == "" {
			model = payload.Model
		}
		return Embedding{Vector: item.Embedding, Model: model}, nil
	}
	return Embedding{}, services.Wrap(services.ErrProvider, "llm", "embed", "response carried no embedding", nil)
}
