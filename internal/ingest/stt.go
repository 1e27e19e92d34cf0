package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/lectern/internal/observe"
	"github.com/MrWong99/lectern/pkg/audio"
	"github.com/MrWong99/lectern/pkg/canon"
	"github.com/MrWong99/lectern/pkg/provider/stt"
)

// bookBoost is the keyword boost given to book names.
const bookBoost = 2.0

// BookKeywords returns one keyword per distinct book name of table, for
// providers that support vocabulary biasing.
func BookKeywords(table *canon.Table) []stt.KeywordBoost {
	books := table.Books()
	out := make([]stt.KeywordBoost, 0, len(books))
	seen := make(map[string]bool, len(books))
	for _, b := range books {
		name, _ := canon.SplitOrdinal(b.Name)
		if seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, stt.KeywordBoost{Keyword: name, Boost: bookBoost})
	}
	return out
}

// STTConfig configures an [STTSource].
type STTConfig struct {
	// Provider streams the audio. Required.
	Provider stt.Provider

	// ProviderName labels the provider in logs and metrics.
	ProviderName string

	// PCM is raw signed 16-bit little-endian audio. Required.
	PCM io.Reader

	// Format describes PCM. It is converted to [audio.STT] before sending.
	Format audio.Format

	// ChunkFrames is the number of input frames sent per chunk.
	// Default: 4000.
	ChunkFrames int

	// Language is the BCP-47 recognition language; empty uses the provider
	// default.
	Language string

	// Keywords biases recognition, usually [BookKeywords].
	Keywords []stt.KeywordBoost

	// IncludePartials emits interim hypotheses as well as finals.
	IncludePartials bool

	Metrics *observe.Metrics
}

// STTSource streams PCM to a speech-to-text provider and emits its
// transcripts.
type STTSource struct {
	cfg STTConfig
}

var _ Source = (*STTSource)(nil)

// NewSTTSource validates cfg and returns an STTSource.
func NewSTTSource(cfg STTConfig) (*STTSource, error) {
	if cfg.Provider == nil {
		return nil, errors.New("ingest: stt provider is required")
	}
	if cfg.PCM == nil {
		return nil, errors.New("ingest: pcm input is required")
	}
	if !cfg.Format.Valid() {
		return nil, fmt.Errorf("ingest: invalid pcm format %s", cfg.Format)
	}
	if cfg.ChunkFrames <= 0 {
		cfg.ChunkFrames = 4000
	}
	if cfg.ProviderName == "" {
		cfg.ProviderName = "stt"
	}
	return &STTSource{cfg: cfg}, nil
}

// Name implements [Source].
func (s *STTSource) Name() string { return "stt:" + s.cfg.ProviderName }

// Run implements [Source]. When the PCM input ends the session is closed,
// which makes the provider flush its last results; Run returns once both
// transcript channels are closed.
func (s *STTSource) Run(ctx context.Context, emit func(context.Context, Fragment)) error {
	reader, err := audio.NewReader(s.cfg.PCM, s.cfg.Format, s.cfg.ChunkFrames)
	if err != nil {
		return fmt.Errorf("ingest: %w", err)
	}

	sessionID := uuid.NewString()
	log := slog.With("session_id", sessionID, "provider", s.cfg.ProviderName)

	sess, err := s.cfg.Provider.StartStream(ctx, stt.StreamConfig{
		SampleRate: audio.STT.SampleRate,
		Channels:   audio.STT.Channels,
		Language:   s.cfg.Language,
		Keywords:   s.cfg.Keywords,
	})
	if err != nil {
		s.providerError(ctx, "start")
		return fmt.Errorf("ingest: start stt stream: %w", err)
	}
	log.Info("stt session started", "input", s.cfg.Format.String())
	if m := s.cfg.Metrics; m != nil {
		m.ActiveSTTSessions.Add(ctx, 1)
		defer m.ActiveSTTSessions.Add(context.WithoutCancel(ctx), -1)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer sess.Close()
		return s.pump(gctx, reader, sess)
	})
	g.Go(func() error {
		s.receive(gctx, sess, emit)
		return nil
	})
	err = g.Wait()
	log.Info("stt session ended")
	return err
}

// pump converts and sends audio until the input is exhausted.
func (s *STTSource) pump(ctx context.Context, r *audio.Reader, sess stt.SessionHandle) error {
	conv := &audio.Converter{From: s.cfg.Format, To: audio.STT}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		chunk, err := r.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("ingest: %w", err)
		}
		if err := sess.SendAudio(conv.Convert(chunk.Data)); err != nil {
			s.providerError(ctx, "send")
			return fmt.Errorf("ingest: send audio at %s: %w", chunk.Offset, err)
		}
	}
}

// receive forwards transcripts until both channels are closed.
func (s *STTSource) receive(ctx context.Context, sess stt.SessionHandle, emit func(context.Context, Fragment)) {
	partials, finals := sess.Partials(), sess.Finals()
	for partials != nil || finals != nil {
		var (
			t  stt.Transcript
			ok bool
		)
		select {
		case <-ctx.Done():
			return
		case t, ok = <-partials:
			if !ok {
				partials = nil
				continue
			}
			if !s.cfg.IncludePartials {
				continue
			}
		case t, ok = <-finals:
			if !ok {
				finals = nil
				continue
			}
		}
		if t.Text == "" {
			continue
		}
		emit(ctx, Fragment{Text: t.Text, Final: t.IsFinal, Source: s.Name(), At: time.Now()})
	}
}

func (s *STTSource) providerError(ctx context.Context, kind string) {
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.RecordProviderError(ctx, s.cfg.ProviderName, kind)
	}
}
