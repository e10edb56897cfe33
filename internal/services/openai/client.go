package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"lectern/internal/speech"
)

const (
	// Name is the provider identifier used in configuration and job payloads.
	Name = "openai"

	defaultBaseURL     = "https://api.openai.com/v1"
	defaultModel       = "tts-1"
	defaultMaxChars    = 4096
	defaultHTTPTimeout = 120 * time.Second
	responseFormat     = "mp3"
)

// Config captures the runtime settings required to talk to the speech API.
type Config struct {
	APIKey         string
	BaseURL        string
	Model          string
	MaxChars       int
	TimeoutSeconds int
}

// Client implements speech.Provider.
type Client struct {
	cfg        Config
	httpClient *http.Client
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

// NewClient constructs a speech client using the supplied configuration.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	client := &Client{
		cfg: Config{
			APIKey:         strings.TrimSpace(cfg.APIKey),
			BaseURL:        strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
			Model:          strings.TrimSpace(cfg.Model),
			MaxChars:       cfg.MaxChars,
			TimeoutSeconds: cfg.TimeoutSeconds,
		},
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.cfg.BaseURL == "" {
		client.cfg.BaseURL = defaultBaseURL
	}
	if client.cfg.Model == "" {
		client.cfg.Model = defaultModel
	}
	if client.cfg.MaxChars <= 0 {
		client.cfg.MaxChars = defaultMaxChars
	}
	return client
}

func (c *Client) Name() string  { return Name }
func (c *Client) MaxChars() int { return c.cfg.MaxChars }

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	Message    string
	Body       string
}

func (e *StatusError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Body
	}
	return fmt.Sprintf("openai speech request: http %d: %s", e.StatusCode, strings.TrimSpace(msg))
}

type speechRequest struct {
	Model          string `json:"model"`
	Input          string `json:"input"`
	Voice          string `json:"voice"`
	ResponseFormat string `json:"response_format"`
}

// Synthesize converts req.Text in a single API call. Context fields of req
// are ignored.
func (c *Client) Synthesize(ctx context.Context, req speech.Request) (speech.Response, error) {
	var empty speech.Response
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return empty, errors.New("openai synthesize: text required")
	}
	voice := strings.TrimSpace(req.VoiceID)
	if voice == "" {
		return empty, errors.New("openai synthesize: voice required")
	}
	if c.cfg.APIKey == "" {
		return empty, errors.New("openai synthesize: api key required")
	}
	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = c.cfg.Model
	}

	endpoint, err := url.JoinPath(c.cfg.BaseURL, "audio", "speech")
	if err != nil {
		return empty, fmt.Errorf("openai speech request: build url: %w", err)
	}
	encoded, err := json.Marshal(speechRequest{
		Model:          model,
		Input:          text,
		Voice:          voice,
		ResponseFormat: responseFormat,
	})
	if err != nil {
		return empty, fmt.Errorf("openai speech request: encode body: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return empty, fmt.Errorf("openai speech request: new request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return empty, fmt.Errorf("openai speech request: http error (timeout=%s): %w", c.httpClient.Timeout, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return empty, fmt.Errorf("openai speech request: read body: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return empty, &StatusError{
			StatusCode: resp.StatusCode,
			Message:    errorMessage(body),
			Body:       strings.TrimSpace(string(body)),
		}
	}
	return speech.Response{
		Audio:     body,
		RequestID: strings.TrimSpace(resp.Header.Get("x-request-id")),
	}, nil
}

func errorMessage(body []byte) string {
	var parsed struct {
		Error *struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil || parsed.Error == nil {
		return ""
	}
	return strings.TrimSpace(parsed.Error.Message)
}
