package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/maneesh/musicbox/internal/models"
)

// MemoryBlobStore keeps blobs in a map. Used for local development and tests.
type MemoryBlobStore struct {
	mu     sync.RWMutex
	blobs  map[string][]byte
	prefix string
}

// NewMemoryBlobStore creates an empty store
func NewMemoryBlobStore(prefix string) *MemoryBlobStore {
	return &MemoryBlobStore{
		blobs:  make(map[string][]byte),
		prefix: prefix,
	}
}

// Put implements BlobStore.
func (ms *MemoryBlobStore) Put(_ context.Context, key string, data []byte, _ string) (string, error) {
	if err := ValidateKey(key); err != nil {
		return "", err
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.blobs[key] = append([]byte(nil), data...)
	return ms.URL(key), nil
}

// Get implements BlobStore.
func (ms *MemoryBlobStore) Get(_ context.Context, key string) ([]byte, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	data, ok := ms.blobs[key]
	if !ok {
		return nil, fmt.Errorf("blob %q: %w", key, ErrNotFound)
	}
	return append([]byte(nil), data...), nil
}

// Delete implements BlobStore.
func (ms *MemoryBlobStore) Delete(_ context.Context, key string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if _, ok := ms.blobs[key]; !ok {
		return fmt.Errorf("blob %q: %w", key, ErrNotFound)
	}
	delete(ms.blobs, key)
	return nil
}

// URL implements BlobStore.
func (ms *MemoryBlobStore) URL(key string) string {
	return JoinURL(ms.prefix, key)
}

// Keys returns the stored keys in sorted order.
func (ms *MemoryBlobStore) Keys() []string {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	keys := make([]string, 0, len(ms.blobs))
	for k := range ms.blobs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of stored blobs.
func (ms *MemoryBlobStore) Len() int {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	return len(ms.blobs)
}

// MemoryDocStore is an in-process DocumentStore. Every value crossing its
// boundary is copied, so it behaves like a real store for read-modify-write.
type MemoryDocStore struct {
	mu      sync.RWMutex
	uploads map[string]*models.UploadRecord
	order   []string
	users   map[string]*models.User
}

// NewMemoryDocStore creates an empty store
func NewMemoryDocStore() *MemoryDocStore {
	return &MemoryDocStore{
		uploads: make(map[string]*models.UploadRecord),
		users:   make(map[string]*models.User),
	}
}

// CreateUpload implements DocumentStore.
func (md *MemoryDocStore) CreateUpload(_ context.Context, rec *models.UploadRecord) error {
	md.mu.Lock()
	defer md.mu.Unlock()

	rec.ID = uuid.New().String()
	c := *rec
	md.uploads[rec.ID] = &c
	md.order = append(md.order, rec.ID)
	return nil
}

// ListRecentUploads implements DocumentStore. Ties on UploadedAt keep
// the later insert first.
func (md *MemoryDocStore) ListRecentUploads(_ context.Context, limit int) ([]*models.UploadRecord, error) {
	md.mu.RLock()
	defer md.mu.RUnlock()

	out := make([]*models.UploadRecord, 0, len(md.order))
	for i := len(md.order) - 1; i >= 0; i-- {
		c := *md.uploads[md.order[i]]
		out = append(out, &c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].UploadedAt.After(out[j].UploadedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// GetUpload returns a copy of the record with the given id.
func (md *MemoryDocStore) GetUpload(id string) (*models.UploadRecord, bool) {
	md.mu.RLock()
	defer md.mu.RUnlock()
	rec, ok := md.uploads[id]
	if !ok {
		return nil, false
	}
	c := *rec
	return &c, true
}

// UploadCount returns the number of stored upload records.
func (md *MemoryDocStore) UploadCount() int {
	md.mu.RLock()
	defer md.mu.RUnlock()
	return len(md.uploads)
}

// IncrementPlayCount implements DocumentStore.
func (md *MemoryDocStore) IncrementPlayCount(_ context.Context, uploadID string) error {
	md.mu.Lock()
	defer md.mu.Unlock()
	rec, ok := md.uploads[uploadID]
	if !ok {
		return fmt.Errorf("upload %q: %w", uploadID, ErrNotFound)
	}
	rec.PlayCount++
	return nil
}

// CreateUser implements DocumentStore.
func (md *MemoryDocStore) CreateUser(_ context.Context, user *models.User) error {
	md.mu.Lock()
	defer md.mu.Unlock()
	if _, ok := md.users[user.Username]; ok {
		return fmt.Errorf("user %q: %w", user.Username, ErrDuplicate)
	}
	md.users[user.Username] = user.Clone()
	return nil
}

// FindUser implements DocumentStore.
func (md *MemoryDocStore) FindUser(_ context.Context, username string) (*models.User, error) {
	md.mu.RLock()
	defer md.mu.RUnlock()
	u, ok := md.users[username]
	if !ok {
		return nil, fmt.Errorf("user %q: %w", username, ErrNotFound)
	}
	return u.Clone(), nil
}

// SaveUser implements DocumentStore.
func (md *MemoryDocStore) SaveUser(_ context.Context, user *models.User) error {
	md.mu.Lock()
	defer md.mu.Unlock()
	if _, ok := md.users[user.Username]; !ok {
		return fmt.Errorf("user %q: %w", user.Username, ErrNotFound)
	}
	md.users[user.Username] = user.Clone()
	return nil
}
