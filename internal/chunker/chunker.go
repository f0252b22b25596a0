package chunker

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
)

// ErrTooLarge is returned when a stream exceeds the chunker's limit.
var ErrTooLarge = errors.New("payload exceeds size limit")

// DefaultChunkSize is the read granularity used when none is given.
const DefaultChunkSize = 32 * 1024

// Payload is a fully buffered stream together with its digest
type Payload struct {
	Data   []byte
	Size   int64
	SHA256 string
}

// Chunker buffers streams in fixed-size chunks up to a byte limit
type Chunker struct {
	chunkSize int64
	limit     int64
}

// NewChunker creates a chunker that refuses streams larger than limit bytes.
// A non-positive chunkSize selects DefaultChunkSize.
func NewChunker(chunkSize, limit int64) *Chunker {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Chunker{
		chunkSize: chunkSize,
		limit:     limit,
	}
}

// ReadAll reads the stream chunk by chunk, hashing as it goes. It stops with
// ErrTooLarge as soon as more than limit bytes have been seen, so an
// oversized stream is never fully buffered.
func (c *Chunker) ReadAll(reader io.Reader) (*Payload, error) {
	var buf bytes.Buffer
	h := sha256.New()
	chunk := make([]byte, c.chunkSize)

	for {
		n, err := io.ReadFull(reader, chunk)
		if n > 0 {
			if int64(buf.Len()+n) > c.limit {
				return nil, ErrTooLarge
			}
			buf.Write(chunk[:n])
			h.Write(chunk[:n])
		}

		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		} else if err != nil {
			return nil, fmt.Errorf("error reading chunk: %w", err)
		}
	}

	return &Payload{
		Data:   buf.Bytes(),
		Size:   int64(buf.Len()),
		SHA256: digest(h),
	}, nil
}

// ComputeHash computes SHA256 hash of data
func ComputeHash(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// VerifyHash verifies that data matches the expected hash
func VerifyHash(data []byte, expectedHash string) bool {
	return ComputeHash(data) == expectedHash
}

func digest(h hash.Hash) string {
	return hex.EncodeToString(h.Sum(nil))
}
