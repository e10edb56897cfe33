package elevenlabs

import (
	"bytes"
	"context"
	"encoding/base64"
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
	Name = "elevenlabs"

	defaultBaseURL      = "https://api.elevenlabs.io/v1"
	defaultModel        = "eleven_multilingual_v2"
	defaultOutputFormat = "mp3_44100_128"
	defaultMaxChars     = 5000
	defaultHTTPTimeout  = 120 * time.Second
	maxPreviousRequests = 3
)

// Config captures the runtime settings required to talk to ElevenLabs.
type Config struct {
	APIKey         string
	BaseURL        string
	ModelID        string
	MaxChars       int
	TimeoutSeconds int
}

// Client implements speech.Provider and speech.Stitcher.
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

// NewClient constructs an ElevenLabs client using the supplied configuration.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	client := &Client{
		cfg: Config{
			APIKey:         strings.TrimSpace(cfg.APIKey),
			BaseURL:        strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
			ModelID:        strings.TrimSpace(cfg.ModelID),
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
	if client.cfg.ModelID == "" {
		client.cfg.ModelID = defaultModel
	}
	if client.cfg.MaxChars <= 0 {
		client.cfg.MaxChars = defaultMaxChars
	}
	return client
}

func (c *Client) Name() string            { return Name }
func (c *Client) MaxChars() int           { return c.cfg.MaxChars }
func (c *Client) SupportsStitching() bool { return true }

// StatusError is returned for non-2xx responses. Message carries the API's
// detail text when the body has one.
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
	return fmt.Sprintf("elevenlabs request: http %d: %s", e.StatusCode, strings.TrimSpace(msg))
}

type synthesisRequest struct {
	Text               string   `json:"text"`
	ModelID            string   `json:"model_id"`
	PreviousText       string   `json:"previous_text,omitempty"`
	NextText           string   `json:"next_text,omitempty"`
	PreviousRequestIDs []string `json:"previous_request_ids,omitempty"`
}

type synthesisResponse struct {
	AudioBase64 string            `json:"audio_base64"`
	Alignment   *speech.Alignment `json:"alignment"`
}

type errorResponse struct {
	Detail json.RawMessage `json:"detail"`
}

// Synthesize converts req.Text in a single API call.
func (c *Client) Synthesize(ctx context.Context, req speech.Request) (speech.Response, error) {
	var empty speech.Response
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return empty, errors.New("elevenlabs synthesize: text required")
	}
	voice := strings.TrimSpace(req.VoiceID)
	if voice == "" {
		return empty, errors.New("elevenlabs synthesize: voice id required")
	}
	if c.cfg.APIKey == "" {
		return empty, errors.New("elevenlabs synthesize: api key required")
	}
	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = c.cfg.ModelID
	}
	ids := req.PreviousRequestIDs
	if len(ids) > maxPreviousRequests {
		ids = ids[len(ids)-maxPreviousRequests:]
	}
	payload := synthesisRequest{
		Text:               text,
		ModelID:            model,
		PreviousText:       req.PreviousText,
		NextText:           req.NextText,
		PreviousRequestIDs: ids,
	}

	endpoint, err := url.JoinPath(c.cfg.BaseURL, "text-to-speech", voice, "with-timestamps")
	if err != nil {
		return empty, fmt.Errorf("elevenlabs request: build url: %w", err)
	}
	endpoint += "?output_format=" + url.QueryEscape(defaultOutputFormat)
	encoded, err := json.Marshal(payload)
	if err != nil {
		return empty, fmt.Errorf("elevenlabs request: encode body: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return empty, fmt.Errorf("elevenlabs request: new request: %w", err)
	}
	httpReq.Header.Set("xi-api-key", c.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return empty, fmt.Errorf("elevenlabs request: http error (timeout=%s): %w", c.httpClient.Timeout, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return empty, fmt.Errorf("elevenlabs request: read body: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return empty, &StatusError{
			StatusCode: resp.StatusCode,
			Message:    detailMessage(body),
			Body:       strings.TrimSpace(string(body)),
		}
	}

	var decoded synthesisResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return empty, fmt.Errorf("elevenlabs request: decode response: %w", err)
	}
	audio, err := base64.StdEncoding.DecodeString(decoded.AudioBase64)
	if err != nil {
		return empty, fmt.Errorf("elevenlabs request: decode audio: %w", err)
	}
	out := speech.Response{
		Audio:     audio,
		RequestID: strings.TrimSpace(resp.Header.Get("request-id")),
	}
	if !decoded.Alignment.Empty() {
		out.Alignment = decoded.Alignment
	}
	return out, nil
}

// detailMessage pulls the human-readable message out of an error body. The
// API reports detail either as a string or as {status, message}.
func detailMessage(body []byte) string {
	var parsed errorResponse
	if err := json.Unmarshal(body, &parsed); err != nil || len(parsed.Detail) == 0 {
		return ""
	}
	var text string
	if err := json.Unmarshal(parsed.Detail, &text); err == nil {
		return strings.TrimSpace(text)
	}
	var structured struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(parsed.Detail, &structured); err == nil {
		switch {
		case structured.Status != "" && structured.Message != "":
			return structured.Status + ": " + structured.Message
		case structured.Message != "":
			return structured.Message
		default:
			return structured.Status
		}
	}
	return ""
}
