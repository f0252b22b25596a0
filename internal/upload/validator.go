package upload

import (
	"errors"
	"fmt"
	"io"
	"math"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/maneesh/musicbox/internal/chunker"
	"github.com/maneesh/musicbox/internal/models"
)

// Multipart field names
const (
	FieldSong     = "songFile"
	FieldCover    = "albumImage"
	FieldTitle    = "title"
	FieldArtist   = "artist"
	FieldAlbum    = "album"
	FieldUsername = "username"
	FieldDuration = "duration"
)

// DefaultMaxFileSize caps each binary part.
const DefaultMaxFileSize = 10 << 20

// maxTextFieldSize caps a single text part.
const maxTextFieldSize = 64 << 10

var (
	audioTypes = map[string]bool{
		"audio/mpeg":  true,
		"audio/mp3":   true,
		"audio/wav":   true,
		"audio/x-wav": true,
		"audio/wave":  true,
	}
	imageTypes = map[string]bool{
		"image/jpeg": true,
		"image/jpg":  true,
		"image/png":  true,
	}
)

// Part is one buffered binary part of a submission.
type Part struct {
	Field       string
	Filename    string
	ContentType string
	Data        []byte
	SHA256      string
}

// Size returns the part length in bytes.
func (p *Part) Size() int64 {
	return int64(len(p.Data))
}

// Submission is a parsed upload request. Nothing in it has been persisted.
type Submission struct {
	Title    string
	Artist   string
	Album    string
	Username string
	Duration *float64

	Audio *Part
	Cover *Part
}

// Validator classifies multipart parts and checks submissions before any
// store is touched.
type Validator struct {
	maxFileSize int64
}

// NewValidator returns a validator capping each file part at maxFileSize
// bytes. A non-positive value selects DefaultMaxFileSize.
func NewValidator(maxFileSize int64) *Validator {
	if maxFileSize <= 0 {
		maxFileSize = DefaultMaxFileSize
	}
	return &Validator{maxFileSize: maxFileSize}
}

// MaxFileSize returns the per-part cap in bytes.
func (v *Validator) MaxFileSize() int64 {
	return v.maxFileSize
}

// MaxBodySize is the cap for a whole request body: both files plus
// headroom for the text fields and multipart framing.
func (v *Validator) MaxBodySize() int64 {
	return 2*v.maxFileSize + 1<<20
}

// CheckPart decides whether a file part with the given field name and
// declared content type may be accepted.
func (v *Validator) CheckPart(field, contentType string) error {
	switch field {
	case FieldSong:
		if !audioTypes[mediaType(contentType)] {
			return newError(UnsupportedMediaType, field, fmt.Errorf("content type %q", contentType))
		}
	case FieldCover:
		if !imageTypes[mediaType(contentType)] {
			return newError(UnsupportedMediaType, field, fmt.Errorf("content type %q", contentType))
		}
	default:
		return newError(UnexpectedField, field, nil)
	}
	return nil
}

// ParseSubmission reads the whole multipart stream. File parts are checked
// before their bodies are read and buffered in memory, so a rejected
// submission never reaches a store.
func (v *Validator) ParseSubmission(mr *multipart.Reader) (*Submission, error) {
	sub := &Submission{}
	c := chunker.NewChunker(chunker.DefaultChunkSize, v.maxFileSize)

	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, readError(err)
		}

		field := p.FormName()
		if p.FileName() == "" {
			err = v.readTextPart(sub, field, p)
			p.Close()
			if err != nil {
				return nil, err
			}
			continue
		}

		part, err := v.readFilePart(c, sub, field, p)
		p.Close()
		if err != nil {
			return nil, err
		}
		if field == FieldSong {
			sub.Audio = part
		} else {
			sub.Cover = part
		}
	}

	if err := v.Validate(sub); err != nil {
		return nil, err
	}
	return sub, nil
}

func (v *Validator) readFilePart(c *chunker.Chunker, sub *Submission, field string, p *multipart.Part) (*Part, error) {
	if (field == FieldSong && sub.Audio != nil) || (field == FieldCover && sub.Cover != nil) {
		return nil, newError(UnexpectedField, field, errors.New("duplicate file part"))
	}

	contentType := p.Header.Get("Content-Type")
	if err := v.CheckPart(field, contentType); err != nil {
		return nil, err
	}

	payload, err := c.ReadAll(p)
	if errors.Is(err, chunker.ErrTooLarge) {
		return nil, newError(PayloadTooLarge, field, fmt.Errorf("limit is %d bytes", v.maxFileSize))
	} else if err != nil {
		return nil, readError(err)
	}

	return &Part{
		Field:       field,
		Filename:    p.FileName(),
		ContentType: mediaType(contentType),
		Data:        payload.Data,
		SHA256:      payload.SHA256,
	}, nil
}

func (v *Validator) readTextPart(sub *Submission, field string, p *multipart.Part) error {
	data, err := io.ReadAll(io.LimitReader(p, maxTextFieldSize+1))
	if err != nil {
		return readError(err)
	}
	if len(data) > maxTextFieldSize {
		return newError(PayloadTooLarge, field, errors.New("text field too long"))
	}
	value := string(data)

	switch field {
	case FieldTitle:
		sub.Title = value
	case FieldArtist:
		sub.Artist = value
	case FieldAlbum:
		sub.Album = value
	case FieldUsername:
		sub.Username = value
	case FieldDuration:
		// An unparsable duration is dropped, the field is optional.
		if d, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil && validDuration(d) {
			sub.Duration = &d
		}
	}
	return nil
}

// Validate normalizes the text fields and runs the part-level and
// required-field checks. It is safe to call more than once.
func (v *Validator) Validate(sub *Submission) error {
	if sub == nil {
		return newError(MalformedSubmission, "", errors.New("nil submission"))
	}

	if sub.Audio != nil {
		if err := v.checkSlot(FieldSong, sub.Audio); err != nil {
			return err
		}
	}
	if sub.Cover != nil {
		if err := v.checkSlot(FieldCover, sub.Cover); err != nil {
			return err
		}
	}

	if sub.Duration != nil && !validDuration(*sub.Duration) {
		sub.Duration = nil
	}

	sub.Title = strings.TrimSpace(sub.Title)
	sub.Artist = strings.TrimSpace(sub.Artist)
	sub.Album = strings.TrimSpace(sub.Album)
	sub.Username = models.NormalizeUsername(sub.Username)

	switch {
	case sub.Audio == nil:
		return newError(MissingField, FieldSong, nil)
	case sub.Cover == nil:
		return newError(MissingField, FieldCover, nil)
	case sub.Title == "":
		return newError(MissingField, FieldTitle, nil)
	case sub.Username == "":
		return newError(MissingField, FieldUsername, nil)
	}
	return nil
}

// validDuration reports whether d can be stored and later encoded as JSON.
func validDuration(d float64) bool {
	return !math.IsNaN(d) && !math.IsInf(d, 0) && d >= 0
}

// checkSlot validates a part held in the audio or cover slot. An empty
// Field takes the slot's name.
func (v *Validator) checkSlot(field string, p *Part) error {
	if p.Field == "" {
		p.Field = field
	}
	if p.Field != field {
		return newError(UnexpectedField, p.Field, nil)
	}
	if err := v.CheckPart(field, p.ContentType); err != nil {
		return err
	}
	if p.Size() > v.maxFileSize {
		return newError(PayloadTooLarge, field, fmt.Errorf("limit is %d bytes", v.maxFileSize))
	}
	// A digest travels into the upload record, it has to describe Data.
	if p.SHA256 != "" && !chunker.VerifyHash(p.Data, p.SHA256) {
		return newError(MalformedSubmission, field, errors.New("sha256 does not match part data"))
	}
	return nil
}

// mediaType strips parameters and lower-cases a declared content type.
func mediaType(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return mt
}

func readError(err error) error {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return newError(PayloadTooLarge, "", err)
	}
	return newError(MalformedSubmission, "", err)
}
