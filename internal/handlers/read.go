package handlers

import (
	"bytes"
	"errors"
	"mime"
	"net/http"
	"path"
	"time"

	"github.com/gorilla/mux"
	"github.com/maneesh/musicbox/internal/storage"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// BlobHandler serves stored songs, covers and thumbnails
type BlobHandler struct {
	blobs  storage.BlobStore
	logger logrus.FieldLogger
}

// NewBlobHandler creates a new blob handler
func NewBlobHandler(blobs storage.BlobStore, logger logrus.FieldLogger) *BlobHandler {
	return &BlobHandler{
		blobs:  blobs,
		logger: logger,
	}
}

// ServeHTTP handles GET /uploads/{key}. Range requests are honoured so
// players can seek.
func (bh *BlobHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "read_blob",
		trace.WithSpanKind(trace.SpanKindServer),
	)
	defer span.End()

	key := mux.Vars(r)["key"]
	if key == "" {
		http.Error(w, "missing key in path", http.StatusBadRequest)
		return
	}
	span.SetAttributes(attribute.String("key", key))

	data, err := bh.blobs.Get(ctx, key)
	if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrInvalidKey) {
		http.NotFound(w, r)
		return
	} else if err != nil {
		span.RecordError(err)
		bh.logger.WithError(err).WithField("key", key).Error("failed to read blob")
		http.Error(w, "failed to read file", http.StatusInternalServerError)
		return
	}

	if ct := mime.TypeByExtension(path.Ext(key)); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	span.SetAttributes(attribute.Int("size_bytes", len(data)))

	http.ServeContent(w, r, path.Base(key), time.Time{}, bytes.NewReader(data))
}
