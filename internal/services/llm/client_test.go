package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"lectern/internal/services"
)

// chatServer answers each call with handler's payload; a nil payload
// answers 429.
func chatServer(t *testing.T, handler func(call int) map[string]any) (*httptest.Server, *int) {
	t.Helper()
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if got := r.Header.Get("Authorization"); got != "Bearer test" {
			t.Errorf("authorization = %q", got)
		}
		payload := handler(calls)
		if payload == nil {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":{"message":"rate limited"}}`))
			return
		}
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			t.Errorf("encode response: %v", err)
		}
	}))
	t.Cleanup(server.Close)
	return server, &calls
}

func messageChoice(content string) map[string]any {
	return map[string]any{
		"choices": []any{
			map[string]any{
				"finish_reason": "stop",
				"message":       map[string]any{"content": content},
			},
		},
	}
}

func testClient(url string) *Client {
	return NewClient(Config{APIKey: "test", BaseURL: url, Model: "demo-model", EmbeddingURL: url}, WithRetry(3, 0))
}

func TestHealthCheck(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr bool
	}{
		{name: "plain", content: `{"ok":true}`},
		{name: "fenced", content: "```json\n{\"ok\":true}\n```"},
		{name: "not ok", content: `{"ok":false}`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, _ := chatServer(t, func(int) map[string]any { return messageChoice(tt.content) })
			err := testClient(server.URL).HealthCheck(context.Background())
			if (err != nil) != tt.wantErr {
				t.Fatalf("HealthCheck error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestHealthCheckUnauthorizedIsNotRetried(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"invalid key"}}`))
	}))
	defer server.Close()

	err := testClient(server.URL).HealthCheck(context.Background())
	if !errors.Is(err, services.ErrProvider) || !strings.Contains(err.Error(), "invalid key") {
		t.Fatalf("expected provider error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestMissingKeyIsConfigurationError(t *testing.T) {
	client := NewClient(Config{})
	if _, err := client.Summarize(context.Background(), "", "", "Text."); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("Summarize: expected configuration error, got %v", err)
	}
	if _, err := client.Embed(context.Background(), "Text."); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("Embed: expected configuration error, got %v", err)
	}
}

func TestSummarize(t *testing.T) {
	var prompt string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if len(req.Messages) != 2 || req.Messages[0].Content != BookSummaryPrompt || req.ResponseFormat["type"] != "json_object" {
			t.Errorf("unexpected request %+v", req)
		}
		prompt = req.Messages[1].Content
		_ = json.NewEncoder(w).Encode(messageChoice("```json\n{\"summary\":\"  A quiet story.  \"}\n```"))
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model", MaxInputChars: 5})
	summary, err := client.Summarize(context.Background(), "Example Book", "Jane Doe", "Once upon a time")
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if summary.Summary != "A quiet story." || !strings.Contains(summary.Raw, "```") {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if !strings.Contains(prompt, "Title: Example Book\nAuthor: Jane Doe\n") || !strings.HasSuffix(prompt, "\nOnce") {
		t.Fatalf("unexpected prompt %q", prompt)
	}
}

func TestSummarizeRetriesTransientFailures(t *testing.T) {
	server, calls := chatServer(t, func(call int) map[string]any {
		switch call {
		case 1:
			return nil
		case 2:
			return messageChoice("")
		default:
			return messageChoice(`{"summary":"Third time."}`)
		}
	})
	summary, err := testClient(server.URL).Summarize(context.Background(), "Book", "", "Text.")
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if summary.Summary != "Third time." || *calls != 3 {
		t.Fatalf("unexpected result %q after %d calls", summary.Summary, *calls)
	}
}

func TestSummarizeGivesUpAfterAttempts(t *testing.T) {
	server, calls := chatServer(t, func(int) map[string]any { return messageChoice("") })
	_, err := testClient(server.URL).Summarize(context.Background(), "Book", "", "Text.")
	if !errors.Is(err, services.ErrTransient) || !strings.Contains(err.Error(), "empty content") {
		t.Fatalf("expected transient empty-content error, got %v", err)
	}
	if *calls != 3 {
		t.Fatalf("expected 3 calls, got %d", *calls)
	}
}

func TestSummarizeRejectsUnparseableContent(t *testing.T) {
	server, _ := chatServer(t, func(int) map[string]any { return messageChoice("not json") })
	if _, err := testClient(server.URL).Summarize(context.Background(), "Book", "", "Text."); !errors.Is(err, services.ErrProvider) {
		t.Fatalf("expected provider error, got %v", err)
	}
}

func TestEmbed(t *testing.T) {
	var got embeddingRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"model": "text-embedding-3-small",
			"data":  []any{map[string]any{"index": 0, "embedding": []float64{0.1, -0.2, 0.3}}},
		})
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "test", EmbeddingURL: server.URL + "/embeddings", EmbeddingModel: "text-embedding-3-small"})
	embedding, err := client.Embed(context.Background(), "A quiet story.")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(embedding.Vector) != 3 || embedding.Vector[1] != -0.2 || embedding.Model != "text-embedding-3-small" {
		t.Fatalf("unexpected embedding %+v", embedding)
	}
	if got.Input != "A quiet story." || got.Model != "text-embedding-3-small" {
		t.Fatalf("unexpected request %+v", got)
	}
}

func TestEmbedStatusClassification(t *testing.T) {
	tests := []struct {
		status    int
		wantCalls int
		marker    error
	}{
		{status: http.StatusBadRequest, wantCalls: 1, marker: services.ErrProvider},
		{status: http.StatusServiceUnavailable, wantCalls: 3, marker: services.ErrTransient},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			calls := 0
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls++
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"error":{"message":"bad input"}}`))
			}))
			defer server.Close()

			_, err := testClient(server.URL).Embed(context.Background(), "text")
			if !errors.Is(err, tt.marker) || !strings.Contains(err.Error(), "bad input") {
				t.Fatalf("unexpected error %v", err)
			}
			if calls != tt.wantCalls {
				t.Fatalf("expected %d calls, got %d", tt.wantCalls, calls)
			}
		})
	}
}
