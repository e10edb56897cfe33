package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"testing"

	"github.com/minio/minio-go/v7"

	"lectern/internal/services"
)

type flakyStore struct {
	objects  map[string][]byte
	failures int
	calls    int
	deleted  []string
}

func (s *flakyStore) Upload(_ context.Context, key string, data []byte, _ string) error {
	s.objects[key] = data
	return nil
}

func (s *flakyStore) Exists(_ context.Context, key string) (bool, error) {
	_, ok := s.objects[key]
	return ok, nil
}

func (s *flakyStore) Download(_ context.Context, key string) ([]byte, error) {
	s.calls++
	if s.calls <= s.failures {
		return nil, errors.New("connection reset")
	}
	data, ok := s.objects[key]
	if !ok {
		return nil, ErrNotFound
	}
	return data, nil
}

func (s *flakyStore) ListByPrefix(_ context.Context, prefix string) ([]string, error) {
	var keys []string
	for key := range s.objects {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *flakyStore) Delete(_ context.Context, key string) error {
	delete(s.objects, key)
	s.deleted = append(s.deleted, key)
	return nil
}

func TestPaths(t *testing.T) {
	if got := SectionPath("book1", "voiceA", 3); got != "book1/voiceA/section-3.mp3" {
		t.Fatalf("SectionPath = %q", got)
	}
	if got := BlockPath("book1", "voiceA", "blk-7"); got != "book1/voiceA/blocks/blk-7.mp3" {
		t.Fatalf("BlockPath = %q", got)
	}
	if got := BlockAlignmentPath("book1", "voiceA", "blk-7"); got != "book1/voiceA/blocks/blk-7.json" {
		t.Fatalf("BlockAlignmentPath = %q", got)
	}
	if got := BookPrefix("book1"); got != "book1/" {
		t.Fatalf("BookPrefix = %q", got)
	}
}

func TestDownloadWithRetry(t *testing.T) {
	tests := []struct {
		name      string
		failures  int
		wantErr   bool
		wantCalls int
	}{
		{"first attempt", 0, false, 1},
		{"recovers on third", 2, false, 3},
		{"exhausts attempts", 3, true, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &flakyStore{objects: map[string][]byte{"k": []byte("audio")}, failures: tt.failures}
			data, err := DownloadWithRetry(context.Background(), store, "k", DefaultDownloadAttempts)
			if tt.wantErr {
				if !errors.Is(err, services.ErrTransient) {
					t.Fatalf("expected transient error, got %v", err)
				}
			} else if err != nil || string(data) != "audio" {
				t.Fatalf("unexpected result %q, %v", data, err)
			}
			if store.calls != tt.wantCalls {
				t.Fatalf("calls = %d, want %d", store.calls, tt.wantCalls)
			}
		})
	}
}

func TestDownloadWithRetryDoesNotRetryMissing(t *testing.T) {
	store := &flakyStore{objects: map[string][]byte{}}
	if _, err := DownloadWithRetry(context.Background(), store, "missing", 3); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if store.calls != 1 {
		t.Fatalf("expected a single call, got %d", store.calls)
	}
}

func TestDeletePrefix(t *testing.T) {
	store := &flakyStore{objects: map[string][]byte{
		"b1/v/section-0.mp3":  nil,
		"b1/v/blocks/x.mp3":   nil,
		"b10/v/section-0.mp3": nil,
	}}
	n, err := DeletePrefix(context.Background(), store, BookPrefix("b1"))
	if err != nil || n != 2 {
		t.Fatalf("DeletePrefix = %d, %v", n, err)
	}
	if _, ok := store.objects["b10/v/section-0.mp3"]; !ok {
		t.Fatal("prefix delete must not touch other books")
	}
}

func TestIsNoSuchKey(t *testing.T) {
	if !isNoSuchKey(minio.ErrorResponse{Code: "NoSuchKey"}) {
		t.Fatal("NoSuchKey should be detected")
	}
	if !isNoSuchKey(fmt.Errorf("wrapped: %w", minio.ErrorResponse{StatusCode: http.StatusNotFound})) {
		t.Fatal("wrapped 404 should be detected")
	}
	if isNoSuchKey(minio.ErrorResponse{Code: "AccessDenied", StatusCode: http.StatusForbidden}) {
		t.Fatal("access denied is not a missing key")
	}
	if isNoSuchKey(nil) {
		t.Fatal("nil is not a missing key")
	}
}

func TestNewS3RequiresEndpointAndBucket(t *testing.T) {
	if _, err := NewS3(S3Config{Bucket: "b"}); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	store, err := NewS3(S3Config{Endpoint: "localhost:9000", Bucket: "lectern-audio", AccessKey: "a", SecretKey: "s"})
	if err != nil {
		t.Fatalf("NewS3: %v", err)
	}
	if store.Bucket() != "lectern-audio" {
		t.Fatalf("Bucket = %q", store.Bucket())
	}
}
