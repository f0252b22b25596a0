// Package upload validates song submissions and ingests them into the blob
// and document stores.
package upload

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/maneesh/musicbox/internal/chunker"
	"github.com/maneesh/musicbox/internal/models"
	"github.com/maneesh/musicbox/internal/storage"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("musicbox-upload")

// DefaultThumbnailWidth is used when thumbnails are enabled without a width.
const DefaultThumbnailWidth = 300

// Options tunes optional coordinator steps.
type Options struct {
	Thumbnails     bool
	ThumbnailWidth int
	// Now defaults to time.Now.
	Now func() time.Time
}

// Coordinator turns an accepted submission into stored blobs, one
// UploadRecord and a saved-song entry for the uploader.
type Coordinator struct {
	validator *Validator
	blobs     storage.BlobStore
	docs      storage.DocumentStore
	events    storage.EventPublisher
	logger    logrus.FieldLogger
	opts      Options
}

// NewCoordinator wires a coordinator. A nil events publisher drops events.
func NewCoordinator(
	validator *Validator,
	blobs storage.BlobStore,
	docs storage.DocumentStore,
	events storage.EventPublisher,
	logger logrus.FieldLogger,
	opts Options,
) *Coordinator {
	if events == nil {
		events = storage.NopPublisher{}
	}
	if opts.ThumbnailWidth <= 0 {
		opts.ThumbnailWidth = DefaultThumbnailWidth
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Coordinator{
		validator: validator,
		blobs:     blobs,
		docs:      docs,
		events:    events,
		logger:    logger,
		opts:      opts,
	}
}

// Validator returns the validator the coordinator checks submissions with.
func (c *Coordinator) Validator() *Validator {
	return c.validator
}

// Result describes a successful ingestion. Mirror reports what happened to
// the uploader's saved-song list; MirrorErr is set unless it was appended.
type Result struct {
	UploadID  string
	Record    *models.UploadRecord
	Mirror    models.MirrorOutcome
	MirrorErr error
}

// blobWrite is one pending blob of the current request.
type blobWrite struct {
	key         string
	data        []byte
	contentType string
	url         string
	written     bool
}

// Ingest stores an upload. The returned error is always an *Error.
func (c *Coordinator) Ingest(ctx context.Context, sub *Submission) (*Result, error) {
	ctx, span := tracer.Start(ctx, "ingest_upload")
	defer span.End()

	if err := c.validator.Validate(sub); err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(
		attribute.String("title", sub.Title),
		attribute.String("username", sub.Username),
		attribute.Int64("audio_size", sub.Audio.Size()),
		attribute.Int64("cover_size", sub.Cover.Size()),
	)

	// Accepted: a client going away must not interrupt the writes below.
	ctx = context.WithoutCancel(ctx)

	log := c.logger.WithFields(logrus.Fields{
		"title":    sub.Title,
		"username": sub.Username,
	})

	coverName := randomName()
	audio := &blobWrite{
		key:         blobKey(SongsPrefix, randomName(), sub.Audio),
		data:        sub.Audio.Data,
		contentType: sub.Audio.ContentType,
	}
	cover := &blobWrite{
		key:         blobKey(CoversPrefix, coverName, sub.Cover),
		data:        sub.Cover.Data,
		contentType: sub.Cover.ContentType,
	}
	writes := []*blobWrite{audio, cover}

	// Step 1: Write audio and cover in parallel
	if err := c.writeBlobsParallel(ctx, writes); err != nil {
		span.RecordError(err)
		log.WithError(err).Error("blob write failed")
		c.reclaim(ctx, writes, log)
		return nil, newError(StorageWriteFailed, "", err)
	}

	// Step 2: Optional thumbnail, never fatal
	var thumbURL string
	if c.opts.Thumbnails {
		thumb, err := c.writeThumbnail(ctx, ThumbsPrefix+coverName+".jpg", sub.Cover.Data)
		if err != nil {
			log.WithError(err).Warn("thumbnail skipped")
		} else {
			writes = append(writes, thumb)
			thumbURL = thumb.url
		}
	}

	// Step 3: Create the upload record
	rec := c.buildRecord(sub, audio.url, cover.url, thumbURL)
	if err := c.createRecord(ctx, rec); err != nil {
		span.RecordError(err)
		log.WithError(err).Error("upload record creation failed, reclaiming blobs")
		c.reclaim(ctx, writes, log)
		return nil, newError(RecordCreationFailed, "", err)
	}
	span.SetAttributes(attribute.String("upload_id", rec.ID))

	// Step 4: Mirror into the uploader's saved songs
	outcome, mirrorErr := c.mirror(ctx, rec)
	if mirrorErr != nil {
		log.WithError(mirrorErr).WithFields(logrus.Fields{
			"upload_id": rec.ID,
			"mirror":    outcome,
		}).Warn("upload stored but not added to saved songs")
	}

	// Step 5: Announce the upload
	c.publish(ctx, rec, outcome, mirrorErr, log)

	log.WithFields(logrus.Fields{
		"upload_id": rec.ID,
		"mirror":    outcome,
	}).Info("upload completed")

	return &Result{
		UploadID:  rec.ID,
		Record:    rec,
		Mirror:    outcome,
		MirrorErr: mirrorErr,
	}, nil
}

// writeBlobsParallel puts every blob in its own goroutine and waits for all
// of them. Each write records whether it landed so a failure can be undone.
func (c *Coordinator) writeBlobsParallel(ctx context.Context, writes []*blobWrite) error {
	ctx, span := tracer.Start(ctx, "write_blobs_parallel",
		trace.WithAttributes(attribute.Int("blob_count", len(writes))),
	)
	defer span.End()

	var wg sync.WaitGroup
	errChan := make(chan error, len(writes))

	for i, w := range writes {
		wg.Add(1)
		go func(idx int, bw *blobWrite) {
			defer wg.Done()

			ctx, blobSpan := tracer.Start(ctx, fmt.Sprintf("put_blob_%d", idx),
				trace.WithAttributes(
					attribute.String("key", bw.key),
					attribute.Int("size_bytes", len(bw.data)),
				),
			)
			defer blobSpan.End()

			url, err := c.blobs.Put(ctx, bw.key, bw.data, bw.contentType)
			if err != nil {
				blobSpan.RecordError(err)
				errChan <- fmt.Errorf("failed to store %s: %w", bw.key, err)
				return
			}

			bw.url = url
			bw.written = true
		}(i, w)
	}

	wg.Wait()
	close(errChan)

	if len(errChan) > 0 {
		err := <-errChan
		span.RecordError(err)
		return err
	}

	span.SetAttributes(attribute.Bool("all_blobs_written", true))
	return nil
}

func (c *Coordinator) writeThumbnail(ctx context.Context, key string, cover []byte) (*blobWrite, error) {
	ctx, span := tracer.Start(ctx, "write_thumbnail",
		trace.WithAttributes(attribute.Int("width", c.opts.ThumbnailWidth)),
	)
	defer span.End()

	data, err := makeThumbnail(cover, c.opts.ThumbnailWidth)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	bw := &blobWrite{key: key, data: data, contentType: "image/jpeg"}
	url, err := c.blobs.Put(ctx, key, data, bw.contentType)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	bw.url = url
	bw.written = true
	return bw, nil
}

// reclaim deletes the blobs written for this request. Failures are logged
// and otherwise ignored.
func (c *Coordinator) reclaim(ctx context.Context, writes []*blobWrite, log logrus.FieldLogger) {
	ctx, span := tracer.Start(ctx, "reclaim_blobs")
	defer span.End()

	for _, w := range writes {
		if !w.written {
			continue
		}
		if err := c.blobs.Delete(ctx, w.key); err != nil {
			span.RecordError(err)
			log.WithError(err).WithField("key", w.key).Error("failed to delete orphaned blob")
			continue
		}
		w.written = false
	}
}

func (c *Coordinator) buildRecord(sub *Submission, audioURL, coverURL, thumbURL string) *models.UploadRecord {
	artist, album := sub.Artist, sub.Album
	if artist == "" || album == "" {
		if tags, err := readAudioTags(sub.Audio.Data); err == nil {
			if artist == "" {
				artist = strings.TrimSpace(tags.Artist)
			}
			if album == "" {
				album = strings.TrimSpace(tags.Album)
			}
		}
	}
	if artist == "" {
		artist = models.DefaultArtist
	}
	if album == "" {
		album = models.DefaultAlbum
	}

	sum := sub.Audio.SHA256
	if sum == "" {
		sum = chunker.ComputeHash(sub.Audio.Data)
	}

	return &models.UploadRecord{
		Title:           sub.Title,
		Artist:          artist,
		Album:           album,
		AudioURL:        audioURL,
		CoverURL:        coverURL,
		ThumbnailURL:    thumbURL,
		UploadedBy:      sub.Username,
		DurationSeconds: sub.Duration,
		AudioSHA256:     sum,
		UploadedAt:      c.opts.Now().UTC(),
	}
}

func (c *Coordinator) createRecord(ctx context.Context, rec *models.UploadRecord) error {
	ctx, span := tracer.Start(ctx, "create_upload_record")
	defer span.End()

	if err := c.docs.CreateUpload(ctx, rec); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

// mirror appends the upload to the uploader's saved songs. It is a plain
// read-modify-write: concurrent uploads by one user can lose an append.
func (c *Coordinator) mirror(ctx context.Context, rec *models.UploadRecord) (models.MirrorOutcome, error) {
	ctx, span := tracer.Start(ctx, "mirror_to_user",
		trace.WithAttributes(attribute.String("username", rec.UploadedBy)),
	)
	defer span.End()

	user, err := c.docs.FindUser(ctx, rec.UploadedBy)
	if errors.Is(err, storage.ErrNotFound) {
		span.SetAttributes(attribute.String("mirror", string(models.MirrorUserNotFound)))
		return models.MirrorUserNotFound, err
	} else if err != nil {
		span.RecordError(err)
		return models.MirrorFailed, err
	}

	user.SavedSongs = append(user.SavedSongs, SavedEntryFor(rec, c.opts.Now().UTC()))
	if err := c.docs.SaveUser(ctx, user); err != nil {
		span.RecordError(err)
		return models.MirrorFailed, err
	}

	span.SetAttributes(attribute.String("mirror", string(models.MirrorAppended)))
	return models.MirrorAppended, nil
}

// SavedEntryFor builds the saved-song entry mirroring rec.
func SavedEntryFor(rec *models.UploadRecord, addedAt time.Time) models.SavedSongEntry {
	thumb := rec.ThumbnailURL
	if thumb == "" {
		thumb = rec.CoverURL
	}
	return models.SavedSongEntry{
		Title:     rec.Title,
		Artist:    rec.Artist,
		Album:     rec.Album,
		URL:       rec.AudioURL,
		Thumbnail: thumb,
		CoverURL:  rec.CoverURL,
		AddedAt:   addedAt,
	}
}

func (c *Coordinator) publish(ctx context.Context, rec *models.UploadRecord, outcome models.MirrorOutcome, mirrorErr error, log logrus.FieldLogger) {
	event := &models.UploadEvent{
		Type:     models.EventUploadCreated,
		UploadID: rec.ID,
		Username: rec.UploadedBy,
		Title:    rec.Title,
		AudioURL: rec.AudioURL,
		CoverURL: rec.CoverURL,
		Mirror:   outcome,
		At:       c.opts.Now().UTC(),
	}
	if mirrorErr != nil {
		event.MirrorError = mirrorErr.Error()
	}

	if err := c.events.PublishUploadEvent(ctx, event); err != nil {
		// Log error but don't fail the request
		log.WithError(err).WithField("upload_id", rec.ID).Warn("failed to publish upload event")
	}
}
