// Package stt defines the Provider interface for Speech-to-Text backends.
//
// An STT provider wraps a streaming transcription service (a local Vosk
// server, Deepgram) behind a uniform interface. Once opened, a SessionHandle
// accepts raw PCM audio frames and emits two streams of Transcript values:
// low-latency partials and authoritative finals. The reference recognizer
// consumes both.
package stt

import (
	"context"
	"errors"
)

// ErrClosed is returned by SendAudio after the session has been closed.
var ErrClosed = errors.New("stt: session is closed")

// ErrNotSupported is returned by SetKeywords when the provider cannot update
// keyword hints mid-session.
var ErrNotSupported = errors.New("stt: operation not supported")

// StreamConfig describes the audio format and recognition hints for a new STT
// session.
type StreamConfig struct {
	// SampleRate is the audio sample rate in Hz. 16000 suits every bundled
	// provider.
	SampleRate int

	// Channels is the number of audio channels. 1 = mono.
	Channels int

	// Language is the BCP-47 language tag for recognition (e.g., "en-US").
	// An empty string keeps the provider's default.
	Language string

	// Keywords are vocabulary hints, typically the book names of the active
	// canon, that raise the recognition probability of uncommon words.
	Keywords []KeywordBoost
}

// SessionHandle represents an open STT streaming session.
//
// Callers must call Close when the session is no longer needed. All methods
// must be safe for concurrent use.
type SessionHandle interface {
	// SendAudio delivers a chunk of raw 16-bit PCM to the provider. Calling
	// SendAudio after Close returns ErrClosed.
	SendAudio(chunk []byte) error

	// Partials returns the channel of interim transcripts. It is closed when
	// the session ends.
	Partials() <-chan Transcript

	// Finals returns the channel of committed transcripts. It is closed when
	// the session ends.
	Finals() <-chan Transcript

	// SetKeywords replaces the active keyword hints without restarting the
	// session, or returns ErrNotSupported.
	SetKeywords(keywords []KeywordBoost) error

	// Close stops accepting audio, lets the provider flush its last results and
	// releases the connection. Calling Close more than once is safe.
	Close() error
}

// Provider is the abstraction over any STT backend. Implementations must be
// safe for concurrent use.
type Provider interface {
	// StartStream opens a new streaming transcription session. The caller owns
	// the returned SessionHandle and must call Close when done.
	StartStream(ctx context.Context, cfg StreamConfig) (SessionHandle, error)
}
