package content

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"lectern/internal/chunker"
	"lectern/internal/services"
)

const defaultHTTPTimeout = 30 * time.Second

// Config captures the settings required to reach the content service.
type Config struct {
	BaseURL        string
	Token          string
	TimeoutSeconds int
}

// Client is the HTTP adapter for the content service.
//
//	GET {base}/books/{id}                          -> Book
//	GET {base}/books/{id}/sections/{order}/blocks  -> {"blocks": [Node]}
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

// NewClient constructs a content client.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	client := &Client{
		cfg: Config{
			BaseURL:        strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
			Token:          strings.TrimSpace(cfg.Token),
			TimeoutSeconds: cfg.TimeoutSeconds,
		},
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

type sectionResponse struct {
	Blocks []Node `json:"blocks"`
}

// GetBook fetches a book's table of contents.
func (c *Client) GetBook(ctx context.Context, bookID string) (Book, error) {
	var book Book
	bookID = strings.TrimSpace(bookID)
	if bookID == "" {
		return book, services.Wrap(services.ErrValidation, "content", "get book", "book id required", nil)
	}
	if err := c.getJSON(ctx, "get book", &book, "books", bookID); err != nil {
		return Book{}, err
	}
	if book.ID == "" {
		book.ID = bookID
	}
	return book, nil
}

// GetSectionBlocks fetches a section's block tree and flattens it. Block text
// is whitespace- and NFC-normalised.
func (c *Client) GetSectionBlocks(ctx context.Context, bookID string, order int) ([]Block, error) {
	bookID = strings.TrimSpace(bookID)
	if bookID == "" {
		return nil, services.Wrap(services.ErrValidation, "content", "get section blocks", "book id required", nil)
	}
	var resp sectionResponse
	if err := c.getJSON(ctx, "get section blocks", &resp, "books", bookID, "sections", strconv.Itoa(order), "blocks"); err != nil {
		return nil, err
	}
	blocks := Flatten(resp.Blocks)
	for i := range blocks {
		blocks[i].Text = chunker.Normalize(blocks[i].Text)
	}
	return blocks, nil
}

func (c *Client) getJSON(ctx context.Context, op string, target any, segments ...string) error {
	if c.cfg.BaseURL == "" {
		return services.Wrap(services.ErrConfiguration, "content", op, "content base_url not configured", nil)
	}
	escaped := make([]string, len(segments))
	for i, segment := range segments {
		escaped[i] = url.PathEscape(segment)
	}
	endpoint, err := url.JoinPath(c.cfg.BaseURL, escaped...)
	if err != nil {
		return fmt.Errorf("content %s: build url: %w", op, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("content %s: new request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return services.Wrap(services.ErrTransient, "content", op, "request failed", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return services.Wrap(services.ErrTransient, "content", op, "read body", err)
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return services.Wrap(services.ErrNotFound, "content", op, strings.Join(segments, "/"), nil)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return services.Wrap(services.ErrConfiguration, "content", op,
			fmt.Sprintf("http %d: check content token", resp.StatusCode), nil)
	case resp.StatusCode >= http.StatusMultipleChoices:
		return services.Wrap(services.ErrTransient, "content", op,
			fmt.Sprintf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(body))), nil)
	}
	if err := json.Unmarshal(body, target); err != nil {
		return services.Wrap(services.ErrValidation, "content", op, "decode response", err)
	}
	return nil
}
