package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"lectern/internal/speech"
)

func TestClientSynthesize(t *testing.T) {
	var got speechRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/speech" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer secret" {
			t.Fatalf("missing bearer token")
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Header().Set("x-request-id", "req_1")
		_, _ = w.Write([]byte("mp3"))
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "secret", BaseURL: server.URL})
	resp, err := client.Synthesize(context.Background(), speech.Request{
		Text:         "Hello there.",
		VoiceID:      "alloy",
		PreviousText: "ignored",
	})
	if err != nil {
		t.Fatalf("Synthesize returned error: %v", err)
	}
	if string(resp.Audio) != "mp3" || resp.RequestID != "req_1" {
		t.Fatalf("unexpected response %+v", resp)
	}
	if resp.Alignment != nil || resp.DurationMs != 0 {
		t.Fatalf("expected no timing data, got %+v", resp)
	}
	want := speechRequest{Model: defaultModel, Input: "Hello there.", Voice: "alloy", ResponseFormat: "mp3"}
	if got != want {
		t.Fatalf("request body = %+v, want %+v", got, want)
	}
}

func TestClientSynthesizeErrorKeepsMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"You exceeded your current quota","type":"insufficient_quota"}}`))
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "secret", BaseURL: server.URL})
	_, err := client.Synthesize(context.Background(), speech.Request{Text: "Hi", VoiceID: "alloy", Model: "tts-1-hd"})
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected status error, got %v", err)
	}
	if !strings.Contains(err.Error(), "You exceeded your current quota") {
		t.Fatalf("error lost provider message: %v", err)
	}
}

func TestClientIsNotStitcher(t *testing.T) {
	var provider speech.Provider = NewClient(Config{APIKey: "k", MaxChars: 1000})
	if speech.SupportsStitching(provider) {
		t.Fatal("openai must not report stitching support")
	}
	if provider.MaxChars() != 1000 {
		t.Fatalf("MaxChars = %d", provider.MaxChars())
	}
}
