package blob

import (
	"bytes"
	"io"
	"strings"
)

// Body is an upload body. The input shape (buffer, text, stream or chunk
// sequence) is resolved here, once, into a plain byte stream with an
// optional known length; nothing downstream inspects the input type again.
type Body struct {
	reader io.Reader
	// size is the body length in bytes, or -1 when it cannot be determined
	// without consuming the stream.
	size int64
}

// BytesBody uploads a fixed buffer.
func BytesBody(b []byte) Body {
	return Body{reader: bytes.NewReader(b), size: int64(len(b))}
}

// StringBody uploads text as UTF-8 bytes.
func StringBody(s string) Body {
	return Body{reader: strings.NewReader(s), size: int64(len(s))}
}

// ReaderBody uploads a stream. When the reader is seekable the remaining
// length is measured upfront (and the read position restored); otherwise
// the size is unknown and the upload is always multipart.
func ReaderBody(r io.Reader) Body {
	return Body{reader: r, size: readerLength(r)}
}

// ChunkBody uploads a sequence of byte chunks. The chunk boundaries of the
// input have no influence on how the body is split into parts.
func ChunkBody(chunks <-chan []byte) Body {
	return Body{reader: &chunkReader{chunks: chunks}, size: -1}
}

func readerLength(r io.Reader) int64 {
	seeker, ok := r.(io.Seeker)
	if !ok {
		return -1
	}
	current, err := seeker.Seek(0, io.SeekCurrent)
	if err != nil {
		return -1
	}
	end, err := seeker.Seek(0, io.SeekEnd)
	if err != nil {
		return -1
	}
	if _, err := seeker.Seek(current, io.SeekStart); err != nil {
		return -1
	}
	return end - current
}

// chunkReader adapts a channel of chunks into an io.Reader.
type chunkReader struct {
	chunks  <-chan []byte
	current []byte
}

func (r *chunkReader) Read(b []byte) (int, error) {
	for len(r.current) == 0 {
		chunk, ok := <-r.chunks
		if !ok {
			return 0, io.EOF
		}
		r.current = chunk
	}
	n := copy(b, r.current)
	r.current = r.current[n:]
	return n, nil
}
