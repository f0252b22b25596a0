package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/maneesh/musicbox/internal/models"
	"github.com/maneesh/musicbox/internal/upload"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("musicbox-handlers")

// UploadHandler handles song upload requests
type UploadHandler struct {
	coordinator *upload.Coordinator
	logger      logrus.FieldLogger
}

// NewUploadHandler creates a new upload handler
func NewUploadHandler(coordinator *upload.Coordinator, logger logrus.FieldLogger) *UploadHandler {
	return &UploadHandler{
		coordinator: coordinator,
		logger:      logger,
	}
}

// UploadResponse represents the response for an upload
type UploadResponse struct {
	Success  bool                 `json:"success"`
	Message  string               `json:"message"`
	UploadID string               `json:"uploadId,omitempty"`
	Mirror   models.MirrorOutcome `json:"mirror,omitempty"`
	Error    string               `json:"error,omitempty"`
}

// ServeHTTP handles POST /upload-song with a multipart/form-data body
func (uh *UploadHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "upload_song",
		trace.WithSpanKind(trace.SpanKindServer),
	)
	defer span.End()

	validator := uh.coordinator.Validator()
	r.Body = http.MaxBytesReader(w, r.Body, validator.MaxBodySize())

	// Step 1: Parse and validate the multipart stream
	sub, err := uh.parse(ctx, r, validator)
	if err != nil {
		span.RecordError(err)
		uh.fail(w, err)
		return
	}

	span.SetAttributes(
		attribute.String("title", sub.Title),
		attribute.String("username", sub.Username),
	)

	// Step 2: Store blobs, record and mirror
	res, err := uh.coordinator.Ingest(ctx, sub)
	if err != nil {
		span.RecordError(err)
		uh.fail(w, err)
		return
	}

	writeJSON(w, http.StatusOK, UploadResponse{
		Success:  true,
		Message:  "Upload successful!",
		UploadID: res.UploadID,
		Mirror:   res.Mirror,
	})
}

func (uh *UploadHandler) parse(ctx context.Context, r *http.Request, v *upload.Validator) (*upload.Submission, error) {
	_, span := tracer.Start(ctx, "parse_submission")
	defer span.End()

	mr, err := r.MultipartReader()
	if err != nil {
		return nil, &upload.Error{Kind: upload.MalformedSubmission, Err: err}
	}
	return v.ParseSubmission(mr)
}

func (uh *UploadHandler) fail(w http.ResponseWriter, err error) {
	var ue *upload.Error
	if !errors.As(err, &ue) {
		uh.logger.WithError(err).Error("upload failed")
		writeJSON(w, http.StatusInternalServerError, UploadResponse{Message: "Upload failed", Error: err.Error()})
		return
	}

	status := statusForKind(ue.Kind)
	resp := UploadResponse{Message: ue.Message()}
	if ue.Kind.IsClientError() {
		uh.logger.WithError(err).WithField("kind", ue.Kind).Info("upload rejected")
	} else {
		resp.Error = ue.Error()
	}
	writeJSON(w, status, resp)
}

func statusForKind(kind upload.Kind) int {
	switch kind {
	case upload.UnsupportedMediaType:
		return http.StatusUnsupportedMediaType
	case upload.PayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case upload.UnexpectedField, upload.MissingField, upload.MalformedSubmission:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
