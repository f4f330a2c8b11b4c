package objectstore

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/socportal/jumuiya/core/resource"
)

// MemoryStore is used in development and tests: its URLs point at a local
// base URL and it records the keys it has signed.
type MemoryStore struct {
	baseURL string
	expiry  time.Duration

	mu   sync.Mutex
	keys map[string]bool
}

var _ resource.ObjectStore = (*MemoryStore)(nil)

func NewMemoryStore(baseURL string, expiry time.Duration) *MemoryStore {
	return &MemoryStore{baseURL: baseURL, expiry: expiry, keys: make(map[string]bool)}
}

func (s *MemoryStore) signed(key, method string, extra url.Values) string {
	q := url.Values{}
	for k, v := range extra {
		q[k] = v
	}
	q.Set("method", method)
	q.Set("expires", time.Now().Add(s.expiry).UTC().Format(time.RFC3339))
	return s.baseURL + "/" + key + "?" + q.Encode()
}

func (s *MemoryStore) SignedUploadURL(_ context.Context, key, contentType string) (string, error) {
	s.mu.Lock()
	s.keys[key] = true
	s.mu.Unlock()
	return s.signed(key, "PUT", url.Values{"content-type": {contentType}}), nil
}

func (s *MemoryStore) SignedDownloadURL(_ context.Context, key, fileName string) (string, error) {
	return s.signed(key, "GET", url.Values{"filename": {fileName}}), nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.keys, key)
	s.mu.Unlock()
	return nil
}

// Has reports whether key was signed for upload and not deleted since.
func (s *MemoryStore) Has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.keys[key]
}
