package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// LocalBlobStore keeps blobs as plain files under a root directory, so the
// upload dir can also be served directly by a static file server.
type LocalBlobStore struct {
	root   string
	prefix string
}

// NewLocalBlobStore creates the root directory if needed. prefix is the
// public URL prefix blobs are served under.
func NewLocalBlobStore(root, prefix string) (*LocalBlobStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload dir: %w", err)
	}
	return &LocalBlobStore{root: root, prefix: prefix}, nil
}

// EnsureDirs creates the given sub-directories below the root.
func (ls *LocalBlobStore) EnsureDirs(dirs ...string) error {
	for _, d := range dirs {
		if err := os.MkdirAll(filepath.Join(ls.root, filepath.FromSlash(d)), 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", d, err)
		}
	}
	return nil
}

// Put writes to a temp file in the destination directory and renames it
// into place, so a blob is either complete or absent.
func (ls *LocalBlobStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	_, span := tracer.Start(ctx, "local.put",
		trace.WithAttributes(
			attribute.String("key", key),
			attribute.Int("size_bytes", len(data)),
		),
	)
	defer span.End()

	if err := ValidateKey(key); err != nil {
		return "", err
	}

	dst := ls.path(key)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to create blob dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".tmp-*")
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		span.RecordError(err)
		return "", fmt.Errorf("failed to write blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		span.RecordError(err)
		return "", fmt.Errorf("failed to close blob: %w", err)
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		os.Remove(tmpPath)
		span.RecordError(err)
		return "", fmt.Errorf("failed to commit blob: %w", err)
	}

	return ls.URL(key), nil
}

// Get reads the whole blob
func (ls *LocalBlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	_, span := tracer.Start(ctx, "local.get",
		trace.WithAttributes(attribute.String("key", key)),
	)
	defer span.End()

	if err := ValidateKey(key); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(ls.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("blob %q: %w", key, ErrNotFound)
	} else if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to read blob: %w", err)
	}
	return data, nil
}

// Delete removes the blob; a missing blob reports ErrNotFound
func (ls *LocalBlobStore) Delete(ctx context.Context, key string) error {
	_, span := tracer.Start(ctx, "local.delete",
		trace.WithAttributes(attribute.String("key", key)),
	)
	defer span.End()

	if err := ValidateKey(key); err != nil {
		return err
	}

	err := os.Remove(ls.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("blob %q: %w", key, ErrNotFound)
	} else if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete blob: %w", err)
	}
	return nil
}

// URL implements BlobStore.
func (ls *LocalBlobStore) URL(key string) string {
	return JoinURL(ls.prefix, key)
}

func (ls *LocalBlobStore) path(key string) string {
	return filepath.Join(ls.root, filepath.FromSlash(key))
}
