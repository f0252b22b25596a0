package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/textproto"
	"strings"
	"sync"
	"testing"

	"github.com/maneesh/musicbox/internal/models"
	"github.com/maneesh/musicbox/internal/storage"
)

type filePart struct {
	field       string
	filename    string
	contentType string
	data        []byte
}

// buildMultipart encodes text fields and file parts the way a browser form
// would and returns the raw body and its boundary.
func buildMultipart(t *testing.T, fields map[string]string, files ...filePart) ([]byte, string) {
	t.Helper()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for name, value := range fields {
		if err := w.WriteField(name, value); err != nil {
			t.Fatalf("write field %s: %v", name, err)
		}
	}
	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, f.field, f.filename))
		h.Set("Content-Type", f.contentType)
		pw, err := w.CreatePart(h)
		if err != nil {
			t.Fatalf("create part %s: %v", f.field, err)
		}
		if _, err := pw.Write(f.data); err != nil {
			t.Fatalf("write part %s: %v", f.field, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return buf.Bytes(), w.Boundary()
}

func multipartReader(t *testing.T, fields map[string]string, files ...filePart) *multipart.Reader {
	t.Helper()
	body, boundary := buildMultipart(t, fields, files...)
	return multipartReaderFrom(body, boundary)
}

func multipartReaderFrom(body []byte, boundary string) *multipart.Reader {
	return multipart.NewReader(bytes.NewReader(body), boundary)
}

func songPart(data []byte) filePart {
	return filePart{field: FieldSong, filename: "Track.MP3", contentType: "audio/mpeg", data: data}
}

func coverPart(data []byte) filePart {
	return filePart{field: FieldCover, filename: "cover.png", contentType: "image/png", data: data}
}

func validFields() map[string]string {
	return map[string]string{
		FieldTitle:    "Test",
		FieldUsername: "alice",
	}
}

func newSubmission(title, username string, audio, cover []byte) *Submission {
	return &Submission{
		Title:    title,
		Username: username,
		Audio:    &Part{Field: FieldSong, Filename: "song.mp3", ContentType: "audio/mpeg", Data: audio},
		Cover:    &Part{Field: FieldCover, Filename: "cover.jpg", ContentType: "image/jpeg", Data: cover},
	}
}

func assertKind(t *testing.T, err error, want Kind) *Error {
	t.Helper()
	var ue *Error
	if !errors.As(err, &ue) {
		t.Fatalf("expected *upload.Error of kind %s, got %v", want, err)
	}
	if ue.Kind != want {
		t.Fatalf("expected kind %s, got %s (%v)", want, ue.Kind, err)
	}
	return ue
}

func keyFromURL(url string) string {
	return strings.TrimPrefix(url, "/uploads/")
}

// faultyBlobStore fails Put for keys starting with failPrefix.
type faultyBlobStore struct {
	*storage.MemoryBlobStore
	failPrefix string
}

func (fb *faultyBlobStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if fb.failPrefix != "" && strings.HasPrefix(key, fb.failPrefix) {
		return "", errors.New("disk full")
	}
	return fb.MemoryBlobStore.Put(ctx, key, data, contentType)
}

// ctxBlobStore refuses writes on a cancelled context, like a network store.
type ctxBlobStore struct {
	*storage.MemoryBlobStore
}

func (cb *ctxBlobStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return cb.MemoryBlobStore.Put(ctx, key, data, contentType)
}

// faultyDocStore injects failures into selected document operations.
type faultyDocStore struct {
	*storage.MemoryDocStore
	createErr error
	findErr   error
	saveErr   error
}

func (fd *faultyDocStore) CreateUpload(ctx context.Context, rec *models.UploadRecord) error {
	if fd.createErr != nil {
		return fd.createErr
	}
	return fd.MemoryDocStore.CreateUpload(ctx, rec)
}

func (fd *faultyDocStore) FindUser(ctx context.Context, username string) (*models.User, error) {
	if fd.findErr != nil {
		return nil, fd.findErr
	}
	return fd.MemoryDocStore.FindUser(ctx, username)
}

func (fd *faultyDocStore) SaveUser(ctx context.Context, user *models.User) error {
	if fd.saveErr != nil {
		return fd.saveErr
	}
	return fd.MemoryDocStore.SaveUser(ctx, user)
}

// recordingPublisher keeps every published event.
type recordingPublisher struct {
	mu     sync.Mutex
	events []*models.UploadEvent
	err    error
}

func (rp *recordingPublisher) PublishUploadEvent(_ context.Context, event *models.UploadEvent) error {
	rp.mu.Lock()
	defer rp.mu.Unlock()
	rp.events = append(rp.events, event)
	return rp.err
}

func (rp *recordingPublisher) Events() []*models.UploadEvent {
	rp.mu.Lock()
	defer rp.mu.Unlock()
	return append([]*models.UploadEvent(nil), rp.events...)
}
