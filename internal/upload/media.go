package upload

import (
	"bytes"
	"errors"
	"fmt"
	"image"

	"github.com/dhowden/tag"
	"github.com/disintegration/imaging"
)

// MaxThumbnailPixels bounds the decoded size of a cover. A small compressed
// file can declare enormous dimensions, so the header is checked first.
const MaxThumbnailPixels = 50_000_000

// ErrImageTooLarge is returned for covers whose pixel count exceeds
// MaxThumbnailPixels.
var ErrImageTooLarge = errors.New("image dimensions too large")

// makeThumbnail decodes a cover image and scales it down to width pixels,
// keeping the aspect ratio. Images already narrower are re-encoded as is.
func makeThumbnail(data []byte, width int) ([]byte, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to read image header: %w", err)
	}
	if int64(cfg.Width)*int64(cfg.Height) > MaxThumbnailPixels {
		return nil, fmt.Errorf("%w: %dx%d", ErrImageTooLarge, cfg.Width, cfg.Height)
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	if img.Bounds().Dx() > width {
		img = imaging.Resize(img, width, 0, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		return nil, fmt.Errorf("failed to encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}

// audioTags holds the embedded metadata used to fill blank fields.
type audioTags struct {
	Artist string
	Album  string
}

// readAudioTags reads ID3/RIFF tags from the audio bytes. Files without
// tags return an error, which callers treat as "nothing to fill".
func readAudioTags(data []byte) (*audioTags, error) {
	m, err := tag.ReadFrom(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return &audioTags{
		Artist: m.Artist(),
		Album:  m.Album(),
	}, nil
}
