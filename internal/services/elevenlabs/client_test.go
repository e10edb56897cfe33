package elevenlabs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	"lectern/internal/speech"
)

func TestClientSynthesizeWithTimestamps(t *testing.T) {
	var got synthesisRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("unexpected method %s", r.Method)
		}
		if r.URL.Path != "/text-to-speech/voice-1/with-timestamps" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("output_format") != defaultOutputFormat {
			t.Fatalf("unexpected output format %q", r.URL.RawQuery)
		}
		if r.Header.Get("xi-api-key") != "secret" {
			t.Fatalf("missing api key header")
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		w.Header().Set("request-id", "req-42")
		payload := map[string]any{
			"audio_base64": base64.StdEncoding.EncodeToString([]byte("mp3-bytes")),
			"alignment": map[string]any{
				"characters":                    []string{"H", "i"},
				"character_start_times_seconds": []float64{0, 0.1},
				"character_end_times_seconds":   []float64{0.1, 0.25},
			},
		}
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			t.Fatalf("encode response: %v", err)
		}
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "secret", BaseURL: server.URL + "/"})
	resp, err := client.Synthesize(context.Background(), speech.Request{
		Text:               "Hi",
		VoiceID:            "voice-1",
		PreviousText:       "Before.",
		NextText:           "After.",
		PreviousRequestIDs: []string{"a", "b", "c", "d"},
	})
	if err != nil {
		t.Fatalf("Synthesize returned error: %v", err)
	}
	if string(resp.Audio) != "mp3-bytes" {
		t.Fatalf("unexpected audio %q", resp.Audio)
	}
	if resp.RequestID != "req-42" {
		t.Fatalf("unexpected request id %q", resp.RequestID)
	}
	if resp.DurationMs != 0 {
		t.Fatalf("expected no native duration, got %d", resp.DurationMs)
	}
	if resp.Alignment == nil || resp.Alignment.Len() != 2 || resp.Alignment.EndSeconds() != 0.25 {
		t.Fatalf("unexpected alignment %+v", resp.Alignment)
	}
	if got.ModelID != defaultModel || got.Text != "Hi" || got.PreviousText != "Before." || got.NextText != "After." {
		t.Fatalf("unexpected request body %+v", got)
	}
	if !reflect.DeepEqual(got.PreviousRequestIDs, []string{"b", "c", "d"}) {
		t.Fatalf("previous request ids = %v", got.PreviousRequestIDs)
	}
}

func TestClientSynthesizeErrorDetail(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"structured", `{"detail":{"status":"quota_exceeded","message":"This request exceeds your quota."}}`, "quota_exceeded: This request exceeds your quota."},
		{"string", `{"detail":"Invalid API key"}`, "Invalid API key"},
		{"raw", `upstream exploded`, "upstream exploded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls++
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client := NewClient(Config{APIKey: "secret", BaseURL: server.URL})
			_, err := client.Synthesize(context.Background(), speech.Request{Text: "Hi", VoiceID: "v"})
			var statusErr *StatusError
			if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusUnauthorized {
				t.Fatalf("expected status error, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error %q missing %q", err, tt.want)
			}
			if calls != 1 {
				t.Fatalf("expected a single attempt, got %d", calls)
			}
		})
	}
}

func TestClientSynthesizeValidatesInput(t *testing.T) {
	client := NewClient(Config{APIKey: "secret"})
	if _, err := client.Synthesize(context.Background(), speech.Request{VoiceID: "v"}); err == nil {
		t.Fatal("expected error for empty text")
	}
	if _, err := client.Synthesize(context.Background(), speech.Request{Text: "hi"}); err == nil {
		t.Fatal("expected error for missing voice")
	}
	if _, err := NewClient(Config{}).Synthesize(context.Background(), speech.Request{Text: "hi", VoiceID: "v"}); err == nil {
		t.Fatal("expected error for missing api key")
	}
}

func TestClientIsStitcher(t *testing.T) {
	var provider speech.Provider = NewClient(Config{APIKey: "k"})
	if !speech.SupportsStitching(provider) {
		t.Fatal("elevenlabs must report stitching support")
	}
	if provider.MaxChars() != defaultMaxChars || provider.Name() != Name {
		t.Fatalf("unexpected defaults %d %s", provider.MaxChars(), provider.Name())
	}
}
