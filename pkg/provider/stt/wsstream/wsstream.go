// Package wsstream implements the websocket plumbing shared by streaming STT
// providers: binary PCM frames go up, JSON transcript events come down.
//
// A provider dials the connection, performs its own handshake and hands the
// connection to [Start] together with a [Decoder] for its event format.
package wsstream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/lectern/pkg/provider/stt"
)

const (
	defaultBuffer       = 64
	defaultFlushTimeout = 5 * time.Second
)

// Decoder turns one text frame into a transcript. It returns false for frames
// that carry no transcript (metadata, keep-alives, empty results).
type Decoder func(msg []byte) (stt.Transcript, bool)

// Config describes a provider's wire behaviour.
type Config struct {
	// Name prefixes error messages (e.g. "vosk").
	Name string

	// Decode parses server events. Required.
	Decode Decoder

	// CloseMessage is sent as a text frame after the last audio chunk so the
	// server flushes its pending results. Nil sends nothing.
	CloseMessage []byte

	// FlushTimeout bounds how long Close waits for the server to deliver the
	// remaining results. Defaults to 5s.
	FlushTimeout time.Duration

	// Buffer sizes the transcript and audio channels. Defaults to 64.
	Buffer int
}

// Session is a live streaming session. It implements stt.SessionHandle.
type Session struct {
	conn *websocket.Conn
	cfg  Config

	ctx    context.Context
	cancel context.CancelFunc

	partials chan stt.Transcript
	finals   chan stt.Transcript
	audio    chan []byte

	done       chan struct{}
	writerDone chan struct{}
	readerDone chan struct{}
	closeOnce  sync.Once
}

var _ stt.SessionHandle = (*Session)(nil)

// Start begins pumping audio to conn and transcripts from it. The session
// owns conn from here on.
func Start(ctx context.Context, conn *websocket.Conn, cfg Config) (*Session, error) {
	if cfg.Decode == nil {
		return nil, errors.New("wsstream: Decode must not be nil")
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = defaultBuffer
	}
	if cfg.FlushTimeout <= 0 {
		cfg.FlushTimeout = defaultFlushTimeout
	}

	// The session outlives the dial context: only Close or the parent's
	// cancellation ends it.
	sctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stop := context.AfterFunc(ctx, cancel)

	s := &Session{
		conn:       conn,
		cfg:        cfg,
		ctx:        sctx,
		cancel:     func() { stop(); cancel() },
		partials:   make(chan stt.Transcript, cfg.Buffer),
		finals:     make(chan stt.Transcript, cfg.Buffer),
		audio:      make(chan []byte, cfg.Buffer*4),
		done:       make(chan struct{}),
		writerDone: make(chan struct{}),
		readerDone: make(chan struct{}),
	}
	go s.writeLoop()
	go s.readLoop()
	return s, nil
}

// SendAudio queues a PCM chunk for delivery.
func (s *Session) SendAudio(chunk []byte) error {
	select {
	case <-s.done:
		return fmt.Errorf("%s: %w", s.cfg.Name, stt.ErrClosed)
	default:
	}
	select {
	case s.audio <- chunk:
		return nil
	case <-s.done:
		return fmt.Errorf("%s: %w", s.cfg.Name, stt.ErrClosed)
	case <-s.ctx.Done():
		return fmt.Errorf("%s: %w", s.cfg.Name, s.ctx.Err())
	}
}

// Partials returns the channel of interim transcripts.
func (s *Session) Partials() <-chan stt.Transcript { return s.partials }

// Finals returns the channel of final transcripts.
func (s *Session) Finals() <-chan stt.Transcript { return s.finals }

// SetKeywords is not supported over an open websocket stream.
func (s *Session) SetKeywords([]stt.KeywordBoost) error {
	return fmt.Errorf("%s: mid-session keyword updates: %w", s.cfg.Name, stt.ErrNotSupported)
}

// Close stops accepting audio, sends the close message after the queued audio
// and waits up to FlushTimeout for the server to finish.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		<-s.writerDone
		select {
		case <-s.readerDone:
		case <-time.After(s.cfg.FlushTimeout):
		}
		s.cancel()
		_ = s.conn.Close(websocket.StatusNormalClosure, "session closed")
		<-s.readerDone
	})
	return nil
}

func (s *Session) writeLoop() {
	defer close(s.writerDone)
	for {
		select {
		case chunk := <-s.audio:
			if err := s.conn.Write(s.ctx, websocket.MessageBinary, chunk); err != nil {
				return
			}
		case <-s.done:
			s.flush()
			return
		case <-s.ctx.Done():
			return
		}
	}
}

// flush writes whatever audio is still queued, then the close message.
func (s *Session) flush() {
	for {
		select {
		case chunk := <-s.audio:
			if err := s.conn.Write(s.ctx, websocket.MessageBinary, chunk); err != nil {
				return
			}
		default:
			if s.cfg.CloseMessage != nil {
				_ = s.conn.Write(s.ctx, websocket.MessageText, s.cfg.CloseMessage)
			}
			return
		}
	}
}

func (s *Session) readLoop() {
	defer close(s.readerDone)
	defer close(s.partials)
	defer close(s.finals)

	for {
		typ, msg, err := s.conn.Read(s.ctx)
		if err != nil {
			return
		}
		if typ != websocket.MessageText {
			continue
		}
		t, ok := s.cfg.Decode(msg)
		if !ok {
			continue
		}
		out := s.partials
		if t.IsFinal {
			out = s.finals
		}
		select {
		case out <- t:
		case <-s.ctx.Done():
			return
		}
	}
}
