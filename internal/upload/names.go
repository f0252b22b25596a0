package upload

import (
	"encoding/hex"
	"path"
	"strings"

	"github.com/google/uuid"
)

// Blob key prefixes
const (
	SongsPrefix  = "songs/"
	CoversPrefix = "covers/"
	ThumbsPrefix = "covers/thumbs/"
)

var mediaTypeExt = map[string]string{
	"audio/mpeg":  ".mp3",
	"audio/mp3":   ".mp3",
	"audio/wav":   ".wav",
	"audio/x-wav": ".wav",
	"audio/wave":  ".wav",
	"image/jpeg":  ".jpg",
	"image/jpg":   ".jpg",
	"image/png":   ".png",
}

// randomName returns 32 hex characters from a random (v4) uuid.
func randomName() string {
	u := uuid.New()
	return hex.EncodeToString(u[:])
}

// blobExt returns the lower-cased extension of the client filename, or one
// derived from the media type when the filename has none usable.
func blobExt(filename, contentType string) string {
	ext := strings.ToLower(path.Ext(strings.ReplaceAll(filename, `\`, "/")))
	if validExt(ext) {
		return ext
	}
	return mediaTypeExt[mediaType(contentType)]
}

func validExt(ext string) bool {
	if len(ext) < 2 || len(ext) > 9 || ext[0] != '.' {
		return false
	}
	for _, r := range ext[1:] {
		if !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9') {
			return false
		}
	}
	return true
}

// blobKey builds a fresh key below prefix for a part.
func blobKey(prefix, name string, p *Part) string {
	return prefix + name + blobExt(p.Filename, p.ContentType)
}
