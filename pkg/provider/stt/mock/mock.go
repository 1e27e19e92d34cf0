// Package mock provides scriptable stt doubles for ingest and fallback tests.
//
//	sess := mock.NewSession()
//	p := &mock.Provider{Session: sess}
//	sess.Final("john three sixteen")
//	sess.End()
package mock

import (
	"context"
	"slices"
	"sync"

	"github.com/MrWong99/lectern/pkg/provider/stt"
)

// Call is one recorded StartStream.
type Call struct {
	Cfg stt.StreamConfig
}

// Provider hands out Session, or a fresh one when Session is nil.
type Provider struct {
	Session        stt.SessionHandle
	StartStreamErr error

	mu    sync.Mutex
	calls []Call
}

var _ stt.Provider = (*Provider)(nil)

func (p *Provider) StartStream(_ context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, Call{Cfg: cfg})
	switch {
	case p.StartStreamErr != nil:
		return nil, p.StartStreamErr
	case p.Session != nil:
		return p.Session, nil
	default:
		return NewSession(), nil
	}
}

// Calls returns the StartStream calls so far, oldest first.
func (p *Provider) Calls() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.calls)
}

// Session replays transcripts queued with Partial and Final. End closes both
// channels, as a real session does when its stream finishes.
type Session struct {
	SendAudioErr error
	CloseErr     error

	// EndOnClose ends the session from Close, like a provider flushing its
	// last results.
	EndOnClose bool

	partials chan stt.Transcript
	finals   chan stt.Transcript
	endOnce  sync.Once

	mu     sync.Mutex
	audio  [][]byte
	closes int
}

var _ stt.SessionHandle = (*Session)(nil)

// NewSession returns a Session that buffers up to 16 transcripts of each kind.
func NewSession() *Session {
	return &Session{
		partials: make(chan stt.Transcript, 16),
		finals:   make(chan stt.Transcript, 16),
	}
}

func (s *Session) Partial(text string) { s.partials <- stt.Transcript{Text: text} }

func (s *Session) Final(text string) { s.finals <- stt.Transcript{Text: text, IsFinal: true} }

// End may be called more than once.
func (s *Session) End() {
	s.endOnce.Do(func() {
		close(s.partials)
		close(s.finals)
	})
}

func (s *Session) SendAudio(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audio = append(s.audio, slices.Clone(chunk))
	return s.SendAudioErr
}

func (s *Session) Partials() <-chan stt.Transcript { return s.partials }
func (s *Session) Finals() <-chan stt.Transcript   { return s.finals }

func (s *Session) SetKeywords([]stt.KeywordBoost) error { return nil }

func (s *Session) Close() error {
	s.mu.Lock()
	s.closes++
	end := s.EndOnClose
	s.mu.Unlock()
	if end {
		s.End()
	}
	return s.CloseErr
}

// Audio returns every chunk sent so far.
func (s *Session) Audio() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.audio)
}

func (s *Session) CloseCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}
