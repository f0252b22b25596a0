// Package storage holds the blob and document stores the upload pipeline
// writes to, plus the Redis event publisher.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/maneesh/musicbox/internal/models"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("musicbox-storage")

var (
	// ErrNotFound is returned when a document or blob does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when a unique key is already taken.
	ErrDuplicate = errors.New("duplicate key")
	// ErrInvalidKey is returned for blob keys that could escape the store.
	ErrInvalidKey = errors.New("invalid blob key")
)

// BlobStore stores binary objects under generated keys
type BlobStore interface {
	// Put writes data at key and returns the public URL it is reachable at.
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	// URL maps a key to its public URL without touching the store.
	URL(key string) string
}

// DocumentStore persists upload records and user aggregates
type DocumentStore interface {
	// CreateUpload inserts the record and sets its ID.
	CreateUpload(ctx context.Context, rec *models.UploadRecord) error
	// ListRecentUploads returns up to limit records, newest first.
	ListRecentUploads(ctx context.Context, limit int) ([]*models.UploadRecord, error)
	IncrementPlayCount(ctx context.Context, uploadID string) error

	CreateUser(ctx context.Context, user *models.User) error
	// FindUser returns the full current aggregate or ErrNotFound.
	FindUser(ctx context.Context, username string) (*models.User, error)
	// SaveUser overwrites the stored aggregate with user.
	SaveUser(ctx context.Context, user *models.User) error
}

// EventPublisher emits upload events to interested consumers
type EventPublisher interface {
	PublishUploadEvent(ctx context.Context, event *models.UploadEvent) error
}

// NopPublisher drops every event
type NopPublisher struct{}

// PublishUploadEvent implements EventPublisher.
func (NopPublisher) PublishUploadEvent(context.Context, *models.UploadEvent) error { return nil }

// ValidateKey accepts slash-separated keys made of [A-Za-z0-9._-] segments,
// with no empty, "." or ".." segment.
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: empty key", ErrInvalidKey)
	}
	for i, r := range key {
		if !isValidKeyChar(r) {
			return fmt.Errorf("%w: character %q at position %d", ErrInvalidKey, r, i)
		}
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return fmt.Errorf("%w: %q", ErrInvalidKey, key)
		}
	}
	return nil
}

func isValidKeyChar(r rune) bool {
	return (r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9') ||
		r == '-' || r == '_' || r == '.' || r == '/'
}

// JoinURL joins the public prefix and a blob key.
func JoinURL(prefix, key string) string {
	return strings.TrimRight(prefix, "/") + "/" + key
}
