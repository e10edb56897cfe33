package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"lectern/internal/services"
)

const (
	defaultHTTPTimeout  = 30 * time.Second
	defaultAttempts     = 3
	defaultBackoff      = time.Second
	defaultChatURL      = "https://api.openai.com/v1/chat/completions"
	defaultEmbeddingURL = "https://api.openai.com/v1/embeddings"
	defaultMaxInput     = 24000
)

// Config holds the endpoints and credentials of an OpenAI-compatible API.
// BaseURL is the full chat completions URL and EmbeddingURL the full
// embeddings URL.
type Config struct {
	APIKey         string
	BaseURL        string
	Model          string
	EmbeddingURL   string
	EmbeddingModel string
	MaxInputChars  int
	TimeoutSeconds int
}

// Client issues summary and embedding requests.
type Client struct {
	cfg        Config
	httpClient *http.Client
	attempts   int
	backoff    time.Duration
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithRetry sets the attempt budget for transient failures and the first
// backoff delay, which doubles on each retry.
func WithRetry(attempts int, backoff time.Duration) Option {
	return func(c *Client) {
		c.attempts = attempts
		c.backoff = backoff
	}
}

// NewClient constructs a client from cfg.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	c := &Client{
		cfg: Config{
			APIKey:         strings.TrimSpace(cfg.APIKey),
			BaseURL:        strings.TrimSpace(cfg.BaseURL),
			Model:          strings.TrimSpace(cfg.Model),
			EmbeddingURL:   strings.TrimSpace(cfg.EmbeddingURL),
			EmbeddingModel: strings.TrimSpace(cfg.EmbeddingModel),
			MaxInputChars:  cfg.MaxInputChars,
			TimeoutSeconds: cfg.TimeoutSeconds,
		},
		httpClient: &http.Client{Timeout: timeout},
		attempts:   defaultAttempts,
		backoff:    defaultBackoff,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.cfg.BaseURL == "" {
		c.cfg.BaseURL = defaultChatURL
	}
	if c.cfg.EmbeddingURL == "" {
		c.cfg.EmbeddingURL = defaultEmbeddingURL
	}
	if c.cfg.MaxInputChars <= 0 {
		c.cfg.MaxInputChars = defaultMaxInput
	}
	if c.attempts <= 0 {
		c.attempts = 1
	}
	return c
}

type apiError struct {
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) requireKey(op string) error {
	if c.cfg.APIKey == "" {
		return services.Wrap(services.ErrConfiguration, "llm", op, "api key required", nil)
	}
	return nil
}

// post sends one JSON request and decodes the response into out. Rate
// limits, request timeouts, 5xx responses and transport failures are
// marked ErrTransient; every other rejection is ErrProvider.
func (c *Client) post(ctx context.Context, op, endpoint string, payload, out any) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("llm %s: encode body: %w", op, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "llm", op, "build request", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return services.Wrap(services.ErrTransient, "llm", op, "request failed", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return services.Wrap(services.ErrTransient, "llm", op, "read response", err)
	}

	var failure apiError
	_ = json.Unmarshal(body, &failure)
	if resp.StatusCode >= http.StatusMultipleChoices {
		message := strings.TrimSpace(string(body))
		if failure.Error != nil {
			message = strings.TrimSpace(failure.Error.Message)
		}
		marker := services.ErrProvider
		if resp.StatusCode == http.StatusTooManyRequests ||
			resp.StatusCode == http.StatusRequestTimeout ||
			resp.StatusCode >= http.StatusInternalServerError {
			marker = services.ErrTransient
		}
		return services.Wrap(marker, "llm", op, fmt.Sprintf("http %d: %s", resp.StatusCode, message), nil)
	}
	if failure.Error != nil {
		return services.Wrap(services.ErrProvider, "llm", op, "api error: "+strings.TrimSpace(failure.Error.Message), nil)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return services.Wrap(services.ErrProvider, "llm", op, "decode response", err)
	}
	return nil
}

// retry runs fn until it succeeds, fails with anything but ErrTransient, or
// the attempt budget is spent.
func (c *Client) retry(ctx context.Context, fn func() error) error {
	delay := c.backoff
	var err error
	for attempt := 1; ; attempt++ {
		err = fn()
		if err == nil || attempt >= c.attempts || !errors.Is(err, services.ErrTransient) {
			return err
		}
		if delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
			delay *= 2
		}
	}
}
