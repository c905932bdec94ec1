package storage

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/erp/shipping/internal/domain/shipping"
)

var _ shipping.LabelStorage = (*StubLabelStorage)(nil)

// StubLabelStorage keeps labels in memory. It backs local development
// when no object storage is configured.
type StubLabelStorage struct {
	// BaseURL prefixes generated download URLs
	BaseURL string

	mu      sync.RWMutex
	objects map[string][]byte
}

// NewStubLabelStorage creates an empty in-memory label storage
func NewStubLabelStorage() *StubLabelStorage {
	return &StubLabelStorage{
		BaseURL: "https://storage.example.com",
		objects: make(map[string][]byte),
	}
}

// Upload keeps a copy of the document
func (s *StubLabelStorage) Upload(ctx context.Context, storageKey string, data []byte, contentType string) error {
	if storageKey == "" {
		return ErrStorageKeyRequired
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[storageKey] = append([]byte(nil), data...)
	return nil
}

// GenerateDownloadURL returns a fake URL carrying the expiry
func (s *StubLabelStorage) GenerateDownloadURL(ctx context.Context, storageKey string, expiresIn time.Duration) (string, time.Time, error) {
	if storageKey == "" {
		return "", time.Time{}, ErrStorageKeyRequired
	}
	if expiresIn <= 0 {
		expiresIn = defaultPresignExpiration
	}
	expiresAt := time.Now().Add(expiresIn)
	return s.BaseURL + "/download/" + storageKey + "?expires=" + url.QueryEscape(expiresAt.Format(time.RFC3339)), expiresAt, nil
}

// Object returns a stored document
func (s *StubLabelStorage) Object(storageKey string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.objects[storageKey]
	return data, ok
}
