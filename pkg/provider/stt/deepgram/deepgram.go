// Package deepgram streams audio to Deepgram's live transcription API.
//
// Numbers are left spelled out ("numerals=false") so that chapter and verse
// words reach the recognizer the way a preacher said them, and the book
// names passed as [stt.StreamConfig.Keywords] become key terms (Nova-3) or
// boosted keywords (older models).
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/lectern/pkg/provider/stt"
	"github.com/MrWong99/lectern/pkg/provider/stt/wsstream"
)

const (
	defaultEndpoint = "wss://api.deepgram.com/v1/listen"
	defaultModel    = "nova-3"
	defaultLanguage = "en"
	defaultRate     = 16000
)

// Option configures a [Provider].
type Option func(*Provider)

// WithModel selects the model, e.g. "nova-3" or "nova-2".
func WithModel(model string) Option {
	return func(p *Provider) {
		if model != "" {
			p.model = model
		}
	}
}

// WithLanguage sets the default BCP-47 language. A language in
// [stt.StreamConfig] takes precedence.
func WithLanguage(language string) Option {
	return func(p *Provider) {
		if language != "" {
			p.language = language
		}
	}
}

// WithSampleRate sets the rate assumed when [stt.StreamConfig] has none.
func WithSampleRate(rate int) Option {
	return func(p *Provider) {
		if rate > 0 {
			p.rate = rate
		}
	}
}

// WithEndpoint points the provider at another server, such as a self-hosted
// deployment.
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) {
		if endpoint != "" {
			p.endpoint = endpoint
		}
	}
}

// WithEndpointing sets how much trailing silence finalises an utterance.
// Zero keeps Deepgram's default.
func WithEndpointing(d time.Duration) Option {
	return func(p *Provider) {
		if d > 0 {
			p.endpointing = d
		}
	}
}

// Provider opens Deepgram streaming sessions.
type Provider struct {
	apiKey      string
	endpoint    string
	model       string
	language    string
	rate        int
	endpointing time.Duration
}

var _ stt.Provider = (*Provider)(nil)

// New returns a Provider authenticating with apiKey.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: api key must not be empty")
	}
	p := &Provider{
		apiKey:   apiKey,
		endpoint: defaultEndpoint,
		model:    defaultModel,
		language: defaultLanguage,
		rate:     defaultRate,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// StartStream dials Deepgram and returns the running session.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	target, err := p.streamURL(cfg)
	if err != nil {
		return nil, fmt.Errorf("deepgram: endpoint: %w", err)
	}
	conn, _, err := websocket.Dial(ctx, target, &websocket.DialOptions{
		HTTPHeader: http.Header{"Authorization": {"Token " + p.apiKey}},
	})
	if err != nil {
		return nil, fmt.Errorf("deepgram: dial: %w", err)
	}

	sess, err := wsstream.Start(ctx, conn, wsstream.Config{
		Name:         "deepgram",
		Decode:       decodeResult,
		CloseMessage: []byte(`{"type":"CloseStream"}`),
	})
	if err != nil {
		conn.Close(websocket.StatusInternalError, "setup failed")
		return nil, fmt.Errorf("deepgram: %w", err)
	}
	return sess, nil
}

func (p *Provider) streamURL(cfg stt.StreamConfig) (string, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return "", err
	}

	q := u.Query()
	q.Set("model", p.model)
	q.Set("language", cmp(cfg.Language, p.language))
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(cmpInt(cfg.SampleRate, p.rate)))
	q.Set("interim_results", "true")
	q.Set("numerals", "false")
	if cfg.Channels > 0 {
		q.Set("channels", strconv.Itoa(cfg.Channels))
	}
	if p.endpointing > 0 {
		q.Set("endpointing", strconv.FormatInt(p.endpointing.Milliseconds(), 10))
	}

	// Nova-3 replaced boosted keywords with plain key terms.
	nova3 := strings.HasPrefix(p.model, "nova-3")
	for _, kw := range cfg.Keywords {
		if nova3 {
			q.Add("keyterm", kw.Keyword)
		} else {
			q.Add("keywords", kw.Keyword+":"+strconv.FormatFloat(kw.Boost, 'g', -1, 64))
		}
	}

	u.RawQuery = q.Encode()
	return u.String(), nil
}

func cmp(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}

func cmpInt(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

// result is a "Results" event. Other event types (Metadata, SpeechStarted,
// UtteranceEnd) decode into it too and are dropped by type.
type result struct {
	Type     string  `json:"type"`
	IsFinal  bool    `json:"is_final"`
	Start    float64 `json:"start"`
	Duration float64 `json:"duration"`
	Channel  struct {
		Alternatives []alternative `json:"alternatives"`
	} `json:"channel"`
}

type alternative struct {
	Transcript string  `json:"transcript"`
	Confidence float64 `json:"confidence"`
	Words      []struct {
		Word       string  `json:"word"`
		Start      float64 `json:"start"`
		End        float64 `json:"end"`
		Confidence float64 `json:"confidence"`
	} `json:"words"`
}

// decodeResult turns the top alternative of a Results event into a
// transcript. Silence produces empty alternatives, which are skipped.
func decodeResult(data []byte) (stt.Transcript, bool) {
	var r result
	if err := json.Unmarshal(data, &r); err != nil || r.Type != "Results" || len(r.Channel.Alternatives) == 0 {
		return stt.Transcript{}, false
	}
	alt := r.Channel.Alternatives[0]
	if strings.TrimSpace(alt.Transcript) == "" {
		return stt.Transcript{}, false
	}

	tr := stt.Transcript{
		Text:       alt.Transcript,
		IsFinal:    r.IsFinal,
		Confidence: alt.Confidence,
		Timestamp:  seconds(r.Start),
		Duration:   seconds(r.Duration),
		Words:      make([]stt.WordDetail, len(alt.Words)),
	}
	for i, w := range alt.Words {
		tr.Words[i] = stt.WordDetail{Word: w.Word, Start: seconds(w.Start), End: seconds(w.End), Confidence: w.Confidence}
	}
	return tr, true
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
