package audio_test

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/MrWong99/lectern/pkg/audio"
)

func TestReader_Chunks(t *testing.T) {
	t.Parallel()

	// 10 mono samples plus one stray byte, read 4 frames at a time.
	data := append(samplesToBytes(0, 1, 2, 3, 4, 5, 6, 7, 8, 9), 0xff)
	r, err := audio.NewReader(bytes.NewReader(data), audio.Format{SampleRate: 4, Channels: 1}, 4)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}

	var sizes []int
	var offsets []time.Duration
	for {
		c, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		sizes = append(sizes, len(c.Data))
		offsets = append(offsets, c.Offset)
	}

	if want := []int{8, 8, 4}; len(sizes) != len(want) || sizes[0] != 8 || sizes[1] != 8 || sizes[2] != 4 {
		t.Errorf("chunk sizes: got=%v, want %v", sizes, want)
	}
	if want := []time.Duration{0, time.Second, 2 * time.Second}; len(offsets) != 3 || offsets[1] != want[1] || offsets[2] != want[2] {
		t.Errorf("offsets: got=%v, want %v", offsets, want)
	}
}

func TestReader_Empty(t *testing.T) {
	t.Parallel()
	r, err := audio.NewReader(bytes.NewReader(nil), audio.STT, 4000)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	if _, err := r.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("Next on empty input: got=%v, want io.EOF", err)
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("device unplugged") }

func TestReader_Errors(t *testing.T) {
	t.Parallel()

	if _, err := audio.NewReader(bytes.NewReader(nil), audio.Format{}, 4000); err == nil {
		t.Error("NewReader should reject an invalid format")
	}
	if _, err := audio.NewReader(bytes.NewReader(nil), audio.STT, 0); err == nil {
		t.Error("NewReader should reject a zero chunk size")
	}

	r, _ := audio.NewReader(failingReader{}, audio.STT, 10)
	if _, err := r.Next(); err == nil || errors.Is(err, io.EOF) {
		t.Errorf("Next: got=%v, want read error", err)
	}
}
