package testsupport

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"lectern/internal/storage"
)

// ObjectStore is an in-memory storage.Store that records uploads.
type ObjectStore struct {
	mu             sync.Mutex
	objects        map[string][]byte
	contentTypes   map[string]string
	uploads        []string
	downloadErrors map[string]int
	uploadErr      error
}

// NewObjectStore returns an empty fake object store.
func NewObjectStore() *ObjectStore {
	return &ObjectStore{
		objects:        make(map[string][]byte),
		contentTypes:   make(map[string]string),
		downloadErrors: make(map[string]int),
	}
}

// Put seeds an object without recording an upload.
func (s *ObjectStore) Put(key string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = append([]byte(nil), data...)
}

// Get returns a stored object.
func (s *ObjectStore) Get(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	return data, ok
}

// ContentType returns the content type recorded at upload.
func (s *ObjectStore) ContentType(key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.contentTypes[key]
}

// Uploads lists uploaded keys in upload order.
func (s *ObjectStore) Uploads() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.uploads...)
}

// FailDownloads makes the next n downloads of key fail.
func (s *ObjectStore) FailDownloads(key string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.downloadErrors[key] = n
}

// FailUploads makes every upload fail with err.
func (s *ObjectStore) FailUploads(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploadErr = err
}

func (s *ObjectStore) Upload(_ context.Context, key string, data []byte, contentType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.uploadErr != nil {
		return s.uploadErr
	}
	s.objects[key] = append([]byte(nil), data...)
	s.contentTypes[key] = contentType
	s.uploads = append(s.uploads, key)
	return nil
}

func (s *ObjectStore) Exists(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[key]
	return ok, nil
}

func (s *ObjectStore) Download(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n := s.downloadErrors[key]; n > 0 {
		s.downloadErrors[key] = n - 1
		return nil, errors.New("simulated download failure")
	}
	data, ok := s.objects[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

func (s *ObjectStore) ListByPrefix(_ context.Context, prefix string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var keys []string
	for key := range s.objects {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *ObjectStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	delete(s.contentTypes, key)
	return nil
}
