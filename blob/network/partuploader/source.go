package partuploader

import (
	"errors"
	"fmt"
	"io"
)

const (
	// MinPartSize is the smallest part size the service accepts for any
	// part except the last one.
	MinPartSize = 5 * 1024 * 1024

	// DefaultPartSize is used when the caller does not configure one.
	DefaultPartSize = 8 * 1024 * 1024
)

// ErrPartSizeTooSmall is returned when a part size below MinPartSize is
// configured. This is a configuration error, not a runtime one.
var ErrPartSizeTooSmall = fmt.Errorf("part size must be at least %d bytes", MinPartSize)

// ChunkSource turns a byte stream into an ordered, one-pass sequence of
// chunks of exactly partSize bytes, except the final chunk which may be
// shorter. Chunking only depends on the stream contents and the part size,
// not on the read granularity of the underlying reader.
//
// ChunkSource is not safe for concurrent use; the Uploader pulls chunks
// from a single goroutine.
type ChunkSource struct {
	reader   io.Reader
	partSize int64
	done     bool
}

// NewChunkSource creates a ChunkSource that re-slices reader into chunks of
// partSize bytes.
func NewChunkSource(reader io.Reader, partSize int64) (*ChunkSource, error) {
	if partSize < MinPartSize {
		return nil, ErrPartSizeTooSmall
	}
	return newChunkSource(reader, partSize), nil
}

func newChunkSource(reader io.Reader, partSize int64) *ChunkSource {
	return &ChunkSource{reader: reader, partSize: partSize}
}

// Next returns the next chunk, or io.EOF after the final chunk. The
// returned slice is owned by the caller.
func (s *ChunkSource) Next() ([]byte, error) {
	if s.done {
		return nil, io.EOF
	}

	chunk := make([]byte, s.partSize)
	n, err := io.ReadFull(s.reader, chunk)
	switch {
	case err == io.EOF:
		s.done = true
		return nil, io.EOF
	case errors.Is(err, io.ErrUnexpectedEOF):
		s.done = true
		return chunk[:n], nil
	case err != nil:
		s.done = true
		return nil, fmt.Errorf("read chunk: %w", err)
	}
	return chunk, nil
}
