package storage

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	listingapp "github.com/openground/backend/internal/application/listing"
)

var _ listingapp.ObjectStorage = (*MemoryObjectStorage)(nil)

// MemoryObjectStorage stands in for S3 when storage is disabled (local
// development and tests). A key counts as uploaded once an upload URL was
// issued for it, or after Upload.
type MemoryObjectStorage struct {
	BaseURL string

	mu      sync.RWMutex
	objects map[string]string
}

// NewMemoryObjectStorage creates an empty store
func NewMemoryObjectStorage(baseURL string) *MemoryObjectStorage {
	if baseURL == "" {
		baseURL = "http://localhost:8080/_storage"
	}
	return &MemoryObjectStorage{
		BaseURL: strings.TrimRight(baseURL, "/"),
		objects: make(map[string]string),
	}
}

// GenerateUploadURL marks the key as uploaded and returns a fake URL
func (m *MemoryObjectStorage) GenerateUploadURL(_ context.Context, storageKey, contentType string, expiresIn time.Duration) (string, time.Time, error) {
	if storageKey == "" {
		return "", time.Time{}, ErrEmptyKey
	}
	m.mu.Lock()
	m.objects[storageKey] = contentType
	m.mu.Unlock()

	expiresAt := time.Now().Add(expiresIn)
	return m.url("upload", storageKey, expiresAt), expiresAt, nil
}

// GenerateDownloadURL returns a fake download URL
func (m *MemoryObjectStorage) GenerateDownloadURL(_ context.Context, storageKey string, expiresIn time.Duration) (string, time.Time, error) {
	if storageKey == "" {
		return "", time.Time{}, ErrEmptyKey
	}
	expiresAt := time.Now().Add(expiresIn)
	return m.url("download", storageKey, expiresAt), expiresAt, nil
}

// DeleteObject forgets the key
func (m *MemoryObjectStorage) DeleteObject(_ context.Context, storageKey string) error {
	if storageKey == "" {
		return ErrEmptyKey
	}
	m.mu.Lock()
	delete(m.objects, storageKey)
	m.mu.Unlock()
	return nil
}

// ObjectExists reports whether the key was uploaded and not deleted
func (m *MemoryObjectStorage) ObjectExists(_ context.Context, storageKey string) (bool, error) {
	if storageKey == "" {
		return false, ErrEmptyKey
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.objects[storageKey]
	return ok, nil
}

// Upload stores the key
func (m *MemoryObjectStorage) Upload(_ context.Context, storageKey string, _ []byte, contentType string) error {
	if storageKey == "" {
		return ErrEmptyKey
	}
	m.mu.Lock()
	m.objects[storageKey] = contentType
	m.mu.Unlock()
	return nil
}

// Len returns the number of stored objects
func (m *MemoryObjectStorage) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}

func (m *MemoryObjectStorage) url(op, key string, expiresAt time.Time) string {
	q := url.Values{"expires": {expiresAt.UTC().Format(time.RFC3339)}}
	return m.BaseURL + "/" + op + "/" + key + "?" + q.Encode()
}
