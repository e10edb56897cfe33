package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"lectern/internal/services"
)

// Content types used for uploads.
const (
	ContentTypeMPEG = "audio/mpeg"
	ContentTypeJSON = "application/json"
)

// DefaultDownloadAttempts bounds DownloadWithRetry.
const DefaultDownloadAttempts = 3

// ErrNotFound is returned by Download when the object does not exist.
var ErrNotFound = errors.New("object not found")

// Store is the object storage contract.
type Store interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) error
	Exists(ctx context.Context, key string) (bool, error)
	Download(ctx context.Context, key string) ([]byte, error)
	ListByPrefix(ctx context.Context, prefix string) ([]string, error)
	Delete(ctx context.Context, key string) error
}

// SectionPath is the key of a section's assembled audio.
func SectionPath(bookID, voiceID string, order int) string {
	return path.Join(bookID, voiceID, fmt.Sprintf("section-%d.mp3", order))
}

// BlockPath is the key of a block's staged audio.
func BlockPath(bookID, voiceID, blockID string) string {
	return path.Join(bookID, voiceID, "blocks", blockID+".mp3")
}

// BlockAlignmentPath is the key of a block's staged alignment sidecar.
func BlockAlignmentPath(bookID, voiceID, blockID string) string {
	return path.Join(bookID, voiceID, "blocks", blockID+".json")
}

// BookPrefix is the key prefix covering every object of a book.
func BookPrefix(bookID string) string {
	return strings.TrimSuffix(bookID, "/") + "/"
}

// DownloadWithRetry fetches key, retrying failed attempts immediately up to
// attempts times. A missing object is not retried.
func DownloadWithRetry(ctx context.Context, store Store, key string, attempts int) ([]byte, error) {
	if attempts <= 0 {
		attempts = DefaultDownloadAttempts
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := store.Download(ctx, key)
		if err == nil {
			return data, nil
		}
		if errors.Is(err, ErrNotFound) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		lastErr = err
	}
	return nil, services.Wrap(services.ErrTransient, "storage", "download",
		fmt.Sprintf("%s failed after %d attempts", key, attempts), lastErr)
}

// DeletePrefix removes every object under prefix and returns how many were
// deleted.
func DeletePrefix(ctx context.Context, store Store, prefix string) (int, error) {
	keys, err := store.ListByPrefix(ctx, prefix)
	if err != nil {
		return 0, err
	}
	deleted := 0
	for _, key := range keys {
		if err := store.Delete(ctx, key); err != nil {
			return deleted, fmt.Errorf("delete %s: %w", key, err)
		}
		deleted++
	}
	return deleted, nil
}
