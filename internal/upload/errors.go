package upload

import (
	"errors"
	"fmt"
)

// Kind classifies why an upload was refused or failed.
type Kind string

const (
	UnsupportedMediaType Kind = "unsupported_media_type"
	UnexpectedField      Kind = "unexpected_field"
	PayloadTooLarge      Kind = "payload_too_large"
	MissingField         Kind = "missing_field"
	MalformedSubmission  Kind = "malformed_submission"
	StorageWriteFailed   Kind = "storage_write_failed"
	RecordCreationFailed Kind = "record_creation_failed"
)

// IsClientError reports whether the kind is caused by the submission
// itself. Those are never retried and leave the stores untouched.
func (k Kind) IsClientError() bool {
	switch k {
	case StorageWriteFailed, RecordCreationFailed:
		return false
	}
	return true
}

// Error is returned by the validator and the coordinator.
type Error struct {
	Kind  Kind
	Field string
	Err   error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Field != "" {
		msg += " (" + e.Field + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Message is the human readable text sent back to clients.
func (e *Error) Message() string {
	switch e.Kind {
	case UnsupportedMediaType:
		if e.Field == FieldCover {
			return "Only JPEG and PNG images are allowed"
		}
		return "Only MP3 and WAV audio files are allowed"
	case UnexpectedField:
		return fmt.Sprintf("Unexpected field %q", e.Field)
	case PayloadTooLarge:
		return "File too large"
	case MissingField:
		return fmt.Sprintf("Missing field %q", e.Field)
	case MalformedSubmission:
		return "Malformed multipart submission"
	default:
		return "Upload failed"
	}
}

// KindOf extracts the Kind of an upload error anywhere in err's chain.
func KindOf(err error) (Kind, bool) {
	var ue *Error
	if errors.As(err, &ue) {
		return ue.Kind, true
	}
	return "", false
}

func newError(kind Kind, field string, err error) *Error {
	return &Error{Kind: kind, Field: field, Err: err}
}
