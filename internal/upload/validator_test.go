package upload

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"github.com/maneesh/musicbox/internal/chunker"
)

func TestParseSubmissionAccepts(t *testing.T) {
	v := NewValidator(0)
	audio := []byte("ID3 fake mp3 payload")
	cover := []byte("fake png payload")

	fields := map[string]string{
		FieldTitle:    "  Test  ",
		FieldUsername: " Alice ",
		FieldArtist:   "Someone",
		FieldDuration: "183.5",
		"unknown":     "ignored",
	}
	sub, err := v.ParseSubmission(multipartReader(t, fields, songPart(audio), coverPart(cover)))
	if err != nil {
		t.Fatalf("ParseSubmission failed: %v", err)
	}

	if sub.Title != "Test" {
		t.Errorf("expected trimmed title, got %q", sub.Title)
	}
	if sub.Username != "alice" {
		t.Errorf("expected normalized username, got %q", sub.Username)
	}
	if sub.Artist != "Someone" {
		t.Errorf("expected artist, got %q", sub.Artist)
	}
	if sub.Duration == nil || *sub.Duration != 183.5 {
		t.Errorf("expected duration 183.5, got %v", sub.Duration)
	}
	if !bytes.Equal(sub.Audio.Data, audio) {
		t.Error("audio bytes differ")
	}
	if !bytes.Equal(sub.Cover.Data, cover) {
		t.Error("cover bytes differ")
	}
	if sub.Audio.SHA256 == "" {
		t.Error("expected audio digest")
	}
	if sub.Audio.Filename != "Track.MP3" {
		t.Errorf("expected filename kept, got %q", sub.Audio.Filename)
	}
}

func TestParseSubmissionMissingFields(t *testing.T) {
	audio := songPart([]byte("audio"))
	cover := coverPart([]byte("cover"))

	tests := []struct {
		name   string
		fields map[string]string
		files  []filePart
		field  string
	}{
		{"no audio", validFields(), []filePart{cover}, FieldSong},
		{"no cover", validFields(), []filePart{audio}, FieldCover},
		{"no title", map[string]string{FieldUsername: "alice"}, []filePart{audio, cover}, FieldTitle},
		{"blank title", map[string]string{FieldTitle: "   ", FieldUsername: "alice"}, []filePart{audio, cover}, FieldTitle},
		{"blank username", map[string]string{FieldTitle: "Test", FieldUsername: " \t"}, []filePart{audio, cover}, FieldUsername},
		{"misspelled audio text field", map[string]string{FieldTitle: "Test", FieldUsername: "alice", "songfile": "x"}, []filePart{cover}, FieldSong},
	}

	v := NewValidator(0)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.ParseSubmission(multipartReader(t, tt.fields, tt.files...))
			ue := assertKind(t, err, MissingField)
			if ue.Field != tt.field {
				t.Errorf("expected field %s, got %s", tt.field, ue.Field)
			}
		})
	}
}

func TestParseSubmissionUnsupportedMediaType(t *testing.T) {
	tests := []struct {
		name  string
		part  filePart
		field string
	}{
		{"ogg audio", filePart{FieldSong, "a.ogg", "audio/ogg", []byte("x")}, FieldSong},
		{"text as audio", filePart{FieldSong, "a.mp3", "text/plain", []byte("x")}, FieldSong},
		{"gif cover", filePart{FieldCover, "c.gif", "image/gif", []byte("x")}, FieldCover},
		{"audio as cover", filePart{FieldCover, "c.png", "audio/mpeg", []byte("x")}, FieldCover},
	}

	v := NewValidator(0)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.ParseSubmission(multipartReader(t, validFields(), tt.part))
			ue := assertKind(t, err, UnsupportedMediaType)
			if ue.Field != tt.field {
				t.Errorf("expected field %s, got %s", tt.field, ue.Field)
			}
		})
	}
}

func TestParseSubmissionMediaTypeParameters(t *testing.T) {
	v := NewValidator(0)
	audio := filePart{FieldSong, "a.wav", "Audio/X-WAV; codecs=1", []byte("RIFF")}
	sub, err := v.ParseSubmission(multipartReader(t, validFields(), audio, coverPart([]byte("c"))))
	if err != nil {
		t.Fatalf("ParseSubmission failed: %v", err)
	}
	if sub.Audio.ContentType != "audio/x-wav" {
		t.Errorf("expected normalized media type, got %q", sub.Audio.ContentType)
	}
}

func TestParseSubmissionUnexpectedField(t *testing.T) {
	v := NewValidator(0)

	misspelled := filePart{field: "songfile", filename: "a.mp3", contentType: "audio/mpeg", data: []byte("x")}
	_, err := v.ParseSubmission(multipartReader(t, validFields(), misspelled, coverPart([]byte("c"))))
	ue := assertKind(t, err, UnexpectedField)
	if ue.Field != "songfile" {
		t.Errorf("expected field songfile, got %s", ue.Field)
	}

	audio := songPart([]byte("a"))
	_, err = v.ParseSubmission(multipartReader(t, validFields(), audio, audio, coverPart([]byte("c"))))
	assertKind(t, err, UnexpectedField)
}

func TestParseSubmissionPayloadTooLarge(t *testing.T) {
	v := NewValidator(0)
	big := bytes.Repeat([]byte{0xAB}, 11<<20)

	_, err := v.ParseSubmission(multipartReader(t, validFields(), songPart(big), coverPart([]byte("c"))))
	ue := assertKind(t, err, PayloadTooLarge)
	if ue.Field != FieldSong {
		t.Errorf("expected field %s, got %s", FieldSong, ue.Field)
	}
}

func TestParseSubmissionExactLimit(t *testing.T) {
	v := NewValidator(1024)
	exact := bytes.Repeat([]byte{1}, 1024)
	if _, err := v.ParseSubmission(multipartReader(t, validFields(), songPart(exact), coverPart([]byte("c")))); err != nil {
		t.Fatalf("a part of exactly the limit should pass: %v", err)
	}

	over := bytes.Repeat([]byte{1}, 1025)
	_, err := v.ParseSubmission(multipartReader(t, validFields(), songPart([]byte("a")), coverPart(over)))
	assertKind(t, err, PayloadTooLarge)
}

func TestParseSubmissionMalformed(t *testing.T) {
	v := NewValidator(0)
	body, boundary := buildMultipart(t, validFields(), songPart([]byte("a")))
	truncated := body[:len(body)/2]

	_, err := v.ParseSubmission(multipartReaderFrom(truncated, boundary))
	assertKind(t, err, MalformedSubmission)
}

func TestParseSubmissionBadDurationIgnored(t *testing.T) {
	for _, value := range []string{"three minutes", "-4", "Inf", "+Inf", "-Inf", "NaN", "1e400"} {
		t.Run(value, func(t *testing.T) {
			v := NewValidator(0)
			fields := validFields()
			fields[FieldDuration] = value

			sub, err := v.ParseSubmission(multipartReader(t, fields, songPart([]byte("a")), coverPart([]byte("c"))))
			if err != nil {
				t.Fatalf("ParseSubmission failed: %v", err)
			}
			if sub.Duration != nil {
				t.Errorf("expected no duration for %q, got %v", value, *sub.Duration)
			}
		})
	}
}

func TestValidateDropsNonFiniteDuration(t *testing.T) {
	v := NewValidator(0)
	sub := newSubmission("Test", "alice", []byte("a"), []byte("c"))
	d := math.Inf(1)
	sub.Duration = &d

	if err := v.Validate(sub); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if sub.Duration != nil {
		t.Errorf("expected duration dropped, got %v", *sub.Duration)
	}

	ok := 187.5
	sub.Duration = &ok
	if err := v.Validate(sub); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if sub.Duration == nil || *sub.Duration != 187.5 {
		t.Errorf("expected duration kept, got %v", sub.Duration)
	}
}

func TestValidateDirectSubmission(t *testing.T) {
	v := NewValidator(16)

	sub := newSubmission("Test", "Bob", []byte("a"), []byte("c"))
	sub.Audio.Field = ""
	if err := v.Validate(sub); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if sub.Audio.Field != FieldSong {
		t.Errorf("expected slot name to be filled in, got %q", sub.Audio.Field)
	}
	if sub.Username != "bob" {
		t.Errorf("expected bob, got %q", sub.Username)
	}

	sub = newSubmission("Test", "bob", bytes.Repeat([]byte{1}, 17), []byte("c"))
	assertKind(t, v.Validate(sub), PayloadTooLarge)

	sub = newSubmission("Test", "bob", []byte("a"), []byte("c"))
	sub.Cover.Field = FieldSong
	assertKind(t, v.Validate(sub), UnexpectedField)

	assertKind(t, v.Validate(nil), MalformedSubmission)
}

func TestBlobExt(t *testing.T) {
	tests := []struct {
		filename    string
		contentType string
		want        string
	}{
		{"song.MP3", "audio/mpeg", ".mp3"},
		{"cover.Png", "image/png", ".png"},
		{"noext", "audio/wav", ".wav"},
		{"weird.m p3", "audio/mpeg", ".mp3"},
		{`C:\music\track.wav`, "audio/x-wav", ".wav"},
		{"", "image/jpeg", ".jpg"},
		{"a.verylongextension", "image/jpg", ".jpg"},
	}

	for _, tt := range tests {
		if got := blobExt(tt.filename, tt.contentType); got != tt.want {
			t.Errorf("blobExt(%q, %q) = %q, want %q", tt.filename, tt.contentType, got, tt.want)
		}
	}
}

func TestRandomName(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		name := randomName()
		if len(name) != 32 {
			t.Fatalf("expected 32 hex chars, got %q", name)
		}
		if strings.Trim(name, "0123456789abcdef") != "" {
			t.Fatalf("expected lowercase hex, got %q", name)
		}
		if seen[name] {
			t.Fatalf("duplicate name %q", name)
		}
		seen[name] = true
	}
}

func TestErrorMessage(t *testing.T) {
	err := newError(UnsupportedMediaType, FieldCover, nil)
	if !strings.Contains(err.Message(), "images") {
		t.Errorf("unexpected cover message %q", err.Message())
	}
	if kind, ok := KindOf(err); !ok || kind != UnsupportedMediaType {
		t.Errorf("KindOf = %v, %v", kind, ok)
	}
	if !UnexpectedField.IsClientError() || StorageWriteFailed.IsClientError() {
		t.Error("IsClientError misclassifies kinds")
	}
}

func TestValidateChecksPartDigest(t *testing.T) {
	v := NewValidator(0)

	sub := newSubmission("Test", "alice", []byte("audio"), []byte("c"))
	sub.Audio.SHA256 = chunker.ComputeHash([]byte("different audio"))
	ue := assertKind(t, v.Validate(sub), MalformedSubmission)
	if ue.Field != FieldSong {
		t.Errorf("expected field %s, got %s", FieldSong, ue.Field)
	}

	sub.Audio.SHA256 = chunker.ComputeHash([]byte("audio"))
	if err := v.Validate(sub); err != nil {
		t.Errorf("matching digest rejected: %v", err)
	}
}
