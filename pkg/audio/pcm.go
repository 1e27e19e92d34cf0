// Package audio reads raw 16-bit little-endian PCM (from a file, a pipe from
// arecord/ffmpeg, or stdin) and converts it to the format speech-to-text
// providers expect.
package audio

import (
	"errors"
	"fmt"
	"io"
	"time"
)

// Chunk is one block of PCM read from a stream.
type Chunk struct {
	// Data holds whole frames in the reader's format.
	Data []byte

	// Offset is the stream position of the first frame.
	Offset time.Duration
}

// Reader slices a PCM stream into chunks of a fixed number of frames.
type Reader struct {
	r      io.Reader
	format Format
	buf    []byte
	frames int64
}

// NewReader returns a Reader producing chunks of chunkFrames frames.
func NewReader(r io.Reader, format Format, chunkFrames int) (*Reader, error) {
	if !format.Valid() {
		return nil, fmt.Errorf("audio: invalid format %s", format)
	}
	if chunkFrames <= 0 {
		return nil, fmt.Errorf("audio: chunk size %d must be positive", chunkFrames)
	}
	return &Reader{
		r:      r,
		format: format,
		buf:    make([]byte, chunkFrames*format.FrameBytes()),
	}, nil
}

// Format returns the stream format.
func (r *Reader) Format() Format { return r.format }

// Next reads the next chunk. The final chunk may be shorter than the chunk
// size; a trailing partial frame is discarded. Next returns io.EOF once the
// stream is exhausted. The returned Data is only valid until the next call.
func (r *Reader) Next() (Chunk, error) {
	n, err := io.ReadFull(r.r, r.buf)
	switch {
	case errors.Is(err, io.ErrUnexpectedEOF):
		// Short final chunk.
	case errors.Is(err, io.EOF):
		return Chunk{}, io.EOF
	case err != nil:
		return Chunk{}, fmt.Errorf("audio: read pcm: %w", err)
	}

	fb := r.format.FrameBytes()
	n -= n % fb
	if n == 0 {
		return Chunk{}, io.EOF
	}
	c := Chunk{
		Data:   r.buf[:n],
		Offset: time.Duration(r.frames) * time.Second / time.Duration(r.format.SampleRate),
	}
	r.frames += int64(n / fb)
	return c, nil
}
