// Package vosk provides an STT provider backed by a Vosk server
// (alphacep/vosk-server) speaking its websocket protocol:
//
//	→ {"config": {"sample_rate": 16000}}
//	→ binary PCM frames
//	← {"partial": "john chapter three"}
//	← {"text": "john chapter three verse sixteen", "result": [...]}
//	→ {"eof": 1}
//
// Vosk runs fully offline, which makes it the default provider.
package vosk

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/lectern/pkg/provider/stt"
	"github.com/MrWong99/lectern/pkg/provider/stt/wsstream"
)

const (
	defaultURL        = "ws://localhost:2700"
	defaultSampleRate = 16000
)

// Option is a functional option for configuring the Vosk Provider.
type Option func(*Provider)

// WithSampleRate sets the sample rate announced when the stream config does
// not carry one.
func WithSampleRate(rate int) Option {
	return func(p *Provider) {
		if rate > 0 {
			p.sampleRate = rate
		}
	}
}

// WithWords asks the server for per-word timing and confidence.
func WithWords(enabled bool) Option {
	return func(p *Provider) {
		p.words = enabled
	}
}

// Provider implements stt.Provider against a Vosk websocket server.
type Provider struct {
	url        string
	sampleRate int
	words      bool
}

var _ stt.Provider = (*Provider)(nil)

// New creates a Vosk Provider for the server at url. An empty url selects
// ws://localhost:2700.
func New(url string, opts ...Option) *Provider {
	if url == "" {
		url = defaultURL
	}
	p := &Provider{url: url, sampleRate: defaultSampleRate}
	for _, o := range opts {
		o(p)
	}
	return p
}

// configMessage is the session handshake. Vosk only needs the sample rate;
// keyword hints are not part of its protocol.
type configMessage struct {
	Config struct {
		SampleRate int  `json:"sample_rate"`
		Words      bool `json:"words,omitempty"`
	} `json:"config"`
}

// StartStream dials the server, sends the config handshake and starts the
// session. Keyword hints in cfg are ignored.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	conn, _, err := websocket.Dial(ctx, p.url, nil)
	if err != nil {
		return nil, fmt.Errorf("vosk: dial %s: %w", p.url, err)
	}

	var hello configMessage
	hello.Config.SampleRate = cfg.SampleRate
	if hello.Config.SampleRate == 0 {
		hello.Config.SampleRate = p.sampleRate
	}
	hello.Config.Words = p.words
	data, err := json.Marshal(hello)
	if err != nil {
		conn.Close(websocket.StatusInternalError, "setup failed")
		return nil, fmt.Errorf("vosk: encode config: %w", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		conn.Close(websocket.StatusInternalError, "setup failed")
		return nil, fmt.Errorf("vosk: send config: %w", err)
	}

	sess, err := wsstream.Start(ctx, conn, wsstream.Config{
		Name:         "vosk",
		Decode:       parseResult,
		CloseMessage: []byte(`{"eof":1}`),
	})
	if err != nil {
		conn.Close(websocket.StatusInternalError, "setup failed")
		return nil, fmt.Errorf("vosk: %w", err)
	}
	return sess, nil
}

// result covers both the partial and the final event shapes.
type result struct {
	Partial *string `json:"partial"`
	Text    *string `json:"text"`
	Result  []struct {
		Conf  float64 `json:"conf"`
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Word  string  `json:"word"`
	} `json:"result"`
}

// parseResult decodes one Vosk event. Empty partials and finals, which the
// server emits during silence, are skipped.
func parseResult(data []byte) (stt.Transcript, bool) {
	var r result
	if err := json.Unmarshal(data, &r); err != nil {
		return stt.Transcript{}, false
	}

	switch {
	case r.Text != nil:
		if strings.TrimSpace(*r.Text) == "" {
			return stt.Transcript{}, false
		}
		t := stt.Transcript{Text: *r.Text, IsFinal: true}
		var conf float64
		for _, w := range r.Result {
			t.Words = append(t.Words, stt.WordDetail{
				Word:       w.Word,
				Start:      seconds(w.Start),
				End:        seconds(w.End),
				Confidence: w.Conf,
			})
			conf += w.Conf
		}
		if n := len(r.Result); n > 0 {
			t.Confidence = conf / float64(n)
			t.Timestamp = t.Words[0].Start
			t.Duration = t.Words[n-1].End - t.Words[0].Start
		}
		return t, true
	case r.Partial != nil:
		if strings.TrimSpace(*r.Partial) == "" {
			return stt.Transcript{}, false
		}
		return stt.Transcript{Text: *r.Partial}, true
	}
	return stt.Transcript{}, false
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
