package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"lectern/internal/services"
)

// Summary is the model's summary of a book. Raw keeps the unparsed content.
type Summary struct {
	Summary string `json:"summary"`
	Raw     string `json:"-"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	ResponseFormat map[string]string `json:"response_format"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// Summarize asks the model for a short summary of a book. text is cut to
// MaxInputChars runes.
func (c *Client) Summarize(ctx context.Context, title, author, text string) (Summary, error) {
	if err := c.requireKey("summarize"); err != nil {
		return Summary{}, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return Summary{}, services.Wrap(services.ErrValidation, "llm", "summarize", "text required", nil)
	}
	if runes := []rune(text); len(runes) > c.cfg.MaxInputChars {
		text = string(runes[:c.cfg.MaxInputChars])
	}
	var prompt strings.Builder
	if title = strings.TrimSpace(title); title != "" {
		fmt.Fprintf(&prompt, "Title: %s\n", title)
	}
	if author = strings.TrimSpace(author); author != "" {
		fmt.Fprintf(&prompt, "Author: %s\n", author)
	}
	prompt.WriteString("\n")
	prompt.WriteString(text)

	content, err := c.completeJSON(ctx, "summarize", BookSummaryPrompt, prompt.String())
	if err != nil {
		return Summary{}, err
	}
	var parsed Summary
	if err := decodeJSON(content, &parsed); err != nil {
		return Summary{}, services.Wrap(services.ErrProvider, "llm", "summarize", "parse summary", err)
	}
	parsed.Raw = content
	parsed.Summary = strings.TrimSpace(parsed.Summary)
	if parsed.Summary == "" {
		return Summary{}, services.Wrap(services.ErrProvider, "llm", "summarize", "empty summary", nil)
	}
	return parsed, nil
}

// HealthCheck sends a minimal JSON completion to confirm the key and model.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := c.requireKey("health"); err != nil {
		return err
	}
	content, err := c.completeJSON(ctx, "health", "Respond with JSON only.", `Respond with {"ok":true}`)
	if err != nil {
		return err
	}
	var parsed struct {
		OK bool `json:"ok"`
	}
	if err := decodeJSON(content, &parsed); err != nil || !parsed.OK {
		return services.Wrap(services.ErrProvider, "llm", "health", "unexpected response: "+content, err)
	}
	return nil
}

// completeJSON runs a JSON-mode chat completion. An empty completion counts
// as transient and is retried.
func (c *Client) completeJSON(ctx context.Context, op, system, user string) (string, error) {
	payload := chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		ResponseFormat: map[string]string{"type": "json_object"},
	}
	var content string
	err := c.retry(ctx, func() error {
		var resp chatResponse
		if err := c.post(ctx, op, c.cfg.BaseURL, payload, &resp); err != nil {
			return err
		}
		if len(resp.Choices) == 0 {
			return services.Wrap(services.ErrTransient, "llm", op, "no choices returned", nil)
		}
		content = strings.TrimSpace(resp.Choices[0].Message.Content)
		if content == "" {
			return services.Wrap(services.ErrTransient, "llm", op,
				fmt.Sprintf("empty content (finish_reason=%q)", resp.Choices[0].FinishReason), nil)
		}
		return nil
	})
	return content, err
}

// decodeJSON unmarshals model output, tolerating a surrounding ```json fence.
func decodeJSON(content string, target any) error {
	trimmed := strings.TrimSpace(content)
	if rest, ok := strings.CutPrefix(trimmed, "```"); ok {
		rest = strings.TrimPrefix(rest, "json")
		rest, _ = strings.CutSuffix(strings.TrimSpace(rest), "```")
		trimmed = strings.TrimSpace(rest)
	}
	return json.Unmarshal([]byte(trimmed), target)
}
