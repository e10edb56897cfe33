package api

import (
	"bytes"
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

	"lectern/internal/ingestion"
	"lectern/internal/queue"
	"lectern/internal/services"
)

// ErrUnavailable marks requests that never reached the daemon.
var ErrUnavailable = errors.New("daemon unavailable")

// StatusError is a non-2xx API response.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("api: %s (%d)", e.Message, e.Code)
}

// Is maps response codes back onto the domain sentinels so callers can use
// errors.Is the same way against the API and the store.
func (e *StatusError) Is(target error) bool {
	switch e.Code {
	case http.StatusBadRequest:
		return target == services.ErrValidation
	case http.StatusNotFound:
		return target == services.ErrNotFound || target == queue.ErrIngestionNotFound || target == queue.ErrJobNotFound
	case http.StatusConflict:
		return target == ingestion.ErrAlreadyIngesting
	case http.StatusUnprocessableEntity:
		return target == services.ErrConfiguration
	default:
		return false
	}
}

// Client talks to a running daemon over the control API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient builds a client for the daemon listening on bind (host:port or
// a full URL).
func NewClient(bind, token string) *Client {
	base := strings.TrimRight(strings.TrimSpace(bind), "/")
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	return &Client{
		baseURL:    base,
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// StartIngestion queues the job graph for a book.
func (c *Client) StartIngestion(ctx context.Context, bookID string, req StartIngestionRequest) (StartIngestionResponse, error) {
	var resp StartIngestionResponse
	err := c.do(ctx, http.MethodPost, bookPath(bookID, "ingestion"), req, &resp)
	return resp, err
}

// IngestionStatus fetches a book's ingestion status.
func (c *Client) IngestionStatus(ctx context.Context, bookID string) (IngestionStatus, error) {
	var resp IngestionStatus
	err := c.do(ctx, http.MethodGet, bookPath(bookID, "ingestion"), nil, &resp)
	return resp, err
}

// ResetIngestion deletes a book's ingestion state, optionally purging audio.
func (c *Client) ResetIngestion(ctx context.Context, bookID string, purgeAudio bool) (ResetResponse, error) {
	var resp ResetResponse
	path := bookPath(bookID, "ingestion") + "?purgeAudio=" + strconv.FormatBool(purgeAudio)
	err := c.do(ctx, http.MethodDelete, path, nil, &resp)
	return resp, err
}

// CancelIngestion stops a live ingestion.
func (c *Client) CancelIngestion(ctx context.Context, bookID string) (IngestionStatus, error) {
	var resp IngestionStatus
	err := c.do(ctx, http.MethodPost, bookPath(bookID, "ingestion", "cancel"), nil, &resp)
	return resp, err
}

// Jobs lists a book's jobs.
func (c *Client) Jobs(ctx context.Context, bookID string) ([]Job, error) {
	var resp JobListResponse
	if err := c.do(ctx, http.MethodGet, bookPath(bookID, "jobs"), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Jobs, nil
}

// ResetJob requeues a failed job.
func (c *Client) ResetJob(ctx context.Context, jobID string) (int64, error) {
	var resp JobResetResponse
	err := c.do(ctx, http.MethodPost, "/api/v1/jobs/"+url.PathEscape(jobID)+"/reset", nil, &resp)
	return resp.Reset, err
}

// Health returns preflight and workflow status. An unhealthy daemon still
// yields a response and a nil error.
func (c *Client) Health(ctx context.Context) (HealthResponse, error) {
	var resp HealthResponse
	err := c.do(ctx, http.MethodGet, "/health", nil, &resp)
	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.Code == http.StatusServiceUnavailable && len(resp.Checks) > 0 {
		return resp, nil
	}
	return resp, err
}

func bookPath(bookID string, segments ...string) string {
	path := "/api/v1/books/" + url.PathEscape(bookID)
	for _, segment := range segments {
		path += "/" + segment
	}
	return path
}

func (c *Client) do(ctx context.Context, method, path string, body, target any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		var apiErr ErrorResponse
		message := strings.TrimSpace(string(data))
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			message = apiErr.Error
		}
		if target != nil && resp.StatusCode == http.StatusServiceUnavailable {
			_ = json.Unmarshal(data, target)
		}
		return &StatusError{Code: resp.StatusCode, Message: message}
	}
	if target == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
