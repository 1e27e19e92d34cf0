// Package app wires all lectern subsystems into a running application.
//
// The App struct owns the full lifecycle: New builds the recognizer, verse
// store, publishing sinks, transcript source and HTTP surface from a config,
// Run drives them until the source ends or the context is cancelled, and
// Shutdown releases everything in order. Reload applies hot-reloadable config
// changes while Run is in progress.
//
// For testing, inject doubles via functional options (WithSource, WithSinks,
// WithStdin, etc.). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/lectern/internal/api"
	"github.com/MrWong99/lectern/internal/config"
	"github.com/MrWong99/lectern/internal/health"
	"github.com/MrWong99/lectern/internal/ingest"
	"github.com/MrWong99/lectern/internal/mcp"
	"github.com/MrWong99/lectern/internal/observe"
	"github.com/MrWong99/lectern/internal/publish"
	"github.com/MrWong99/lectern/internal/publish/broadcast"
	"github.com/MrWong99/lectern/internal/publish/propresenter"
	"github.com/MrWong99/lectern/internal/recency"
	"github.com/MrWong99/lectern/internal/resilience"
	"github.com/MrWong99/lectern/internal/scripture"
	"github.com/MrWong99/lectern/internal/scripture/fuzzy"
	"github.com/MrWong99/lectern/internal/versetext"
	"github.com/MrWong99/lectern/pkg/audio"
	"github.com/MrWong99/lectern/pkg/canon"
	"github.com/MrWong99/lectern/pkg/provider/stt"
)

// shutdownTimeout bounds the graceful HTTP shutdown in Run.
const shutdownTimeout = 10 * time.Second

// App owns all subsystem lifetimes and orchestrates the recognition pipeline.
type App struct {
	cfg     *config.Config
	reg     *config.Registry
	metrics *observe.Metrics
	scrape  http.Handler
	level   *slog.LevelVar
	version string
	stdin   io.Reader

	// Subsystems, initialised in New and torn down in Shutdown.
	recognizer *scripture.Recognizer
	verses     versetext.Store
	hub        *broadcast.Hub
	sinks      []publish.Sink
	fanout     *publish.Fanout
	runner     *ingest.Runner
	source     ingest.Source
	mcp        *mcp.Server
	health     *health.Handler
	handler    http.Handler

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithRegistry supplies the STT provider registry used when input.source is
// stt.
func WithRegistry(r *config.Registry) Option {
	return func(a *App) { a.reg = r }
}

// WithMetrics records telemetry on m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithMetricsHandler serves h on /metrics instead of the default Prometheus
// registry.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.scrape = h }
}

// WithLevel lets Reload change the log level through lv.
func WithLevel(lv *slog.LevelVar) Option {
	return func(a *App) { a.level = lv }
}

// WithVersion sets the version reported to MCP clients.
func WithVersion(v string) Option {
	return func(a *App) { a.version = v }
}

// WithStdin replaces os.Stdin for the stdin source and for "-" PCM input.
func WithStdin(r io.Reader) Option {
	return func(a *App) { a.stdin = r }
}

// WithSource injects a transcript source instead of creating one from config.
func WithSource(src ingest.Source) Option {
	return func(a *App) { a.source = src }
}

// WithSinks adds publishing sinks next to the configured ones.
func WithSinks(sinks ...publish.Sink) Option {
	return func(a *App) { a.sinks = append(a.sinks, sinks...) }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. It performs all
// initialisation synchronously: recognizer construction, verse store opening,
// sink and source creation, and HTTP routing.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg, version: "dev", stdin: os.Stdin}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.scrape == nil {
		a.scrape = promhttp.Handler()
	}

	// ── 1. Recognizer ────────────────────────────────────────────────────
	if err := a.initRecognizer(); err != nil {
		return nil, fmt.Errorf("app: init recognizer: %w", err)
	}

	// ── 2. Verse text ────────────────────────────────────────────────────
	if err := a.initVerses(); err != nil {
		return nil, fmt.Errorf("app: init bible: %w", err)
	}

	// ── 3. Sinks + fan-out ───────────────────────────────────────────────
	if err := a.initSinks(); err != nil {
		a.close()
		return nil, fmt.Errorf("app: init sinks: %w", err)
	}

	// ── 4. Ingest ────────────────────────────────────────────────────────
	a.runner = ingest.NewRunner(a.recognizer, a.fanout,
		ingest.WithNoiseWords(cfg.Recognizer.NoiseWords...),
		ingest.WithMetrics(a.metrics),
	)
	if err := a.initSource(ctx); err != nil {
		a.close()
		return nil, fmt.Errorf("app: init source: %w", err)
	}

	// ── 5. HTTP surface ──────────────────────────────────────────────────
	if err := a.initHTTP(); err != nil {
		a.close()
		return nil, fmt.Errorf("app: init http: %w", err)
	}

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// RecognizerOptions translates rc into recognizer options, including the
// canon table.
func RecognizerOptions(rc config.RecognizerConfig) ([]scripture.Option, error) {
	table, err := canon.ByName(rc.Canon)
	if err != nil {
		return nil, err
	}
	scorer, err := fuzzy.ByName(rc.Scorer)
	if err != nil {
		return nil, err
	}
	policy, err := scripture.ParseRangePolicy(rc.RangePolicy)
	if err != nil {
		return nil, err
	}
	return []scripture.Option{
		scripture.WithCanon(table),
		scripture.WithScorer(scorer),
		scripture.WithThreshold(rc.Threshold),
		scripture.WithRangePolicy(policy),
	}, nil
}

// initRecognizer builds the recognizer and its recency buffer.
func (a *App) initRecognizer() error {
	opts, err := RecognizerOptions(a.cfg.Recognizer)
	if err != nil {
		return err
	}
	buf := recency.New(recency.WithCapacity(a.cfg.Recency.Capacity))
	// The table is set by the WithCanon option.
	a.recognizer = scripture.NewRecognizer(nil, buf, append(opts, scripture.WithMetrics(a.metrics))...)
	slog.Info("recognizer ready",
		"canon", a.recognizer.Table().Name(),
		"books", a.recognizer.Table().Len(),
		"scorer", a.cfg.Recognizer.Scorer,
		"threshold", a.recognizer.Threshold(),
		"range_policy", a.recognizer.RangePolicy(),
		"recency_capacity", buf.Capacity(),
	)
	return nil
}

// initVerses opens the offline bible, if configured.
func (a *App) initVerses() error {
	bc := a.cfg.Bible
	if bc.Path == "" {
		return nil
	}
	store, err := versetext.Open(bc.Path, versetext.Format(bc.Format))
	if err != nil {
		return err
	}
	a.verses = store
	a.closers = append(a.closers, store.Close)
	slog.Info("bible opened", "path", bc.Path, "format", bc.Format)
	return nil
}

// initSinks creates the configured sinks and the fan-out delivering to them.
func (a *App) initSinks() error {
	dc := a.cfg.Display
	sinks := make([]publish.Sink, 0, len(a.sinks)+2)

	if dc.ProPresenter.Mode != config.StageOff {
		s, err := propresenter.New(propresenter.Mode(dc.ProPresenter.Mode), dc.ProPresenter.Address,
			propresenter.WithTimeout(dc.ProPresenter.Timeout))
		if err != nil {
			return err
		}
		sinks = append(sinks, s)
	}
	if dc.Broadcast {
		a.hub = broadcast.New(broadcast.WithMetrics(a.metrics))
		a.closers = append(a.closers, func() error { a.hub.Close(); return nil })
		sinks = append(sinks, a.hub)
	}
	sinks = append(sinks, a.sinks...)
	a.sinks = sinks

	opts := []publish.Option{
		publish.WithMetrics(a.metrics),
		publish.WithBreaker(resilience.BreakerConfig{
			MaxFailures:   3,
			ResetTimeout:  15 * time.Second,
			OnStateChange: logStateChange,
		}),
	}
	if dc.RenderText && a.verses != nil {
		opts = append(opts, publish.WithRenderer(func(ctx context.Context, ref string) string {
			return versetext.Render(ctx, a.verses, ref)
		}))
	}
	a.fanout = publish.NewFanout(sinks, opts...)
	slog.Info("publishing configured", "sinks", a.fanout.Sinks(), "render_text", dc.RenderText && a.verses != nil)
	return nil
}

// initSource creates the transcript source named by input.source unless one
// was injected.
func (a *App) initSource(ctx context.Context) error {
	if a.source != nil {
		return nil
	}
	in := a.cfg.Input
	switch in.Source {
	case config.SourceNone:
		return nil
	case config.SourceStdin:
		a.source = ingest.NewLineSource("stdin", a.stdin)
		return nil
	case config.SourceSTT:
	default:
		return fmt.Errorf("unknown input source %q", in.Source)
	}

	provider, err := a.sttProvider(ctx)
	if err != nil {
		return err
	}
	pcm := a.stdin
	if in.PCM.Path != "" && in.PCM.Path != "-" {
		f, err := os.Open(in.PCM.Path)
		if err != nil {
			return fmt.Errorf("open pcm: %w", err)
		}
		a.closers = append(a.closers, f.Close)
		pcm = f
	}
	src, err := ingest.NewSTTSource(ingest.STTConfig{
		Provider:        provider,
		ProviderName:    in.STT.Name,
		PCM:             pcm,
		Format:          audio.Format{SampleRate: in.PCM.SampleRate, Channels: in.PCM.Channels},
		ChunkFrames:     in.PCM.ChunkSamples,
		Language:        in.STT.Language,
		Keywords:        ingest.BookKeywords(a.recognizer.Table()),
		IncludePartials: in.IncludePartials,
		Metrics:         a.metrics,
	})
	if err != nil {
		return err
	}
	a.source = src
	return nil
}

// sttProvider creates the primary STT provider and wraps it in a fallback
// group when input.stt_fallback names a second provider.
func (a *App) sttProvider(_ context.Context) (stt.Provider, error) {
	if a.reg == nil {
		return nil, errors.New("no stt provider registry")
	}
	in := a.cfg.Input
	primary, err := a.reg.CreateSTT(in.STT)
	if err != nil {
		return nil, fmt.Errorf("create stt provider %q: %w", in.STT.Name, err)
	}
	slog.Info("provider created", "kind", "stt", "name", in.STT.Name)
	if in.STTFallback.Name == "" {
		return primary, nil
	}

	secondary, err := a.reg.CreateSTT(in.STTFallback)
	if err != nil {
		return nil, fmt.Errorf("create stt fallback %q: %w", in.STTFallback.Name, err)
	}
	slog.Info("provider created", "kind", "stt-fallback", "name", in.STTFallback.Name)
	fb := resilience.NewSTTFallback(in.STT.Name, primary, resilience.BreakerConfig{OnStateChange: logStateChange})
	fb.AddFallback(in.STTFallback.Name, secondary)
	return fb, nil
}

// initHTTP builds the MCP server, health checks and routed HTTP handler.
func (a *App) initHTTP() error {
	a.health = health.New(health.Checker{
		Name: "canon",
		Check: func(context.Context) error {
			if a.recognizer.Table().Len() == 0 {
				return errors.New("canon table is empty")
			}
			return nil
		},
	})
	if a.source != nil {
		a.health.Add(health.Checker{Name: "ingest", Check: a.runner.Check})
	}
	if p, ok := a.verses.(interface{ Ping(context.Context) error }); ok {
		a.health.Add(health.Checker{Name: "bible", Check: p.Ping})
	}
	a.health.Add(a.fanout.Checkers()...)

	cfg := api.Config{
		Runner:  a.runner,
		Verses:  a.verses,
		Metrics: a.scrape,
		Health:  a.health,
		Observe: a.metrics,
	}
	if a.hub != nil {
		cfg.Broadcast = a.hub
	}
	if a.cfg.MCP.Enabled {
		opts := []mcp.Option{mcp.WithMetrics(a.metrics), mcp.WithVersion(a.version)}
		if a.verses != nil {
			opts = append(opts, mcp.WithVerses(a.verses))
		}
		a.mcp = mcp.NewServer(a.runner, opts...)
		cfg.MCP = a.mcp.Handler()
	}
	srv, err := api.New(cfg)
	if err != nil {
		return err
	}
	a.handler = srv.Handler()
	return nil
}

func logStateChange(name string, from, to resilience.State) {
	level := slog.LevelInfo
	if to == resilience.StateOpen {
		level = slog.LevelWarn
	}
	slog.Log(context.Background(), level, "circuit breaker state changed", "name", name, "from", from, "to", to)
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Handler returns the routed HTTP handler.
func (a *App) Handler() http.Handler { return a.handler }

// Recognizer returns the shared recognizer.
func (a *App) Recognizer() *scripture.Recognizer { return a.recognizer }

// Runner returns the ingest runner.
func (a *App) Runner() *ingest.Runner { return a.runner }

// Sinks returns the names of the sinks references are published to.
func (a *App) Sinks() []string { return a.fanout.Sinks() }

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run starts publishing, the transcript source and the HTTP server, and
// blocks until ctx is cancelled. Without an HTTP listener Run also returns
// once the source is exhausted, after every queued reference was delivered.
// A source error is returned when nothing else keeps the process alive;
// otherwise it is logged and reported through /readyz.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	serving := a.cfg.Server.ListenAddr != ""

	pubCtx, stopPublishing := context.WithCancel(context.WithoutCancel(ctx))
	defer stopPublishing()
	pubDone := make(chan error, 1)
	go func() { pubDone <- a.fanout.Run(pubCtx) }()

	g, gctx := errgroup.WithContext(ctx)

	if a.source != nil {
		g.Go(func() error {
			err := a.runner.Run(gctx, a.source)
			switch {
			case err != nil && serving:
				slog.Error("ingest stopped", "source", a.source.Name(), "err", err)
				return nil
			case err != nil:
				return err
			case !serving:
				cancel()
			}
			return nil
		})
	}

	if serving {
		g.Go(func() error {
			srv := &http.Server{
				Addr:              a.cfg.Server.ListenAddr,
				Handler:           a.handler,
				ReadHeaderTimeout: 10 * time.Second,
			}
			var cert, key string
			if tls := a.cfg.Server.TLS; tls != nil {
				cert, key = tls.CertFile, tls.KeyFile
			}
			return api.Serve(gctx, srv, cert, key, shutdownTimeout)
		})
	}

	err := g.Wait()

	// Stop publishing only after every producer has finished so queued
	// references still reach the sinks.
	stopPublishing()
	if perr := <-pubDone; perr != nil {
		err = errors.Join(err, perr)
	}
	return err
}

// ─── Reload ──────────────────────────────────────────────────────────────────

// Reload applies the hot-reloadable differences between old and new. It is
// the callback for [config.NewWatcher].
func (a *App) Reload(old, new *config.Config) {
	d := config.Diff(old, new)

	if d.LogLevelChanged && a.level != nil {
		a.level.Set(SlogLevel(d.NewLogLevel))
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.RecognizerChanged {
		opts, err := RecognizerOptions(d.Recognizer)
		if err != nil {
			slog.Warn("recognizer config rejected", "err", err)
		} else {
			a.recognizer.Reconfigure(opts...)
			slog.Info("recognizer reconfigured",
				"canon", d.Recognizer.Canon,
				"scorer", d.Recognizer.Scorer,
				"threshold", d.Recognizer.Threshold,
				"range_policy", d.Recognizer.RangePolicy,
			)
		}
	}
	if d.NoiseWordsChanged {
		a.runner.SetNoiseWords(d.NewNoiseWords)
		slog.Info("noise words changed", "count", len(d.NewNoiseWords))
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config changes need a restart to take effect", "sections", d.RestartRequired)
	}
}

// SlogLevel converts a configured log level to a [slog.Level]. Unknown and
// empty levels map to info.
func SlogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown releases all subsystems in init order. It respects the context
// deadline: if ctx expires before all closers finish, remaining closers are
// skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))
		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}
		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// close runs the closers registered so far after a failed New.
func (a *App) close() {
	for _, c := range a.closers {
		_ = c()
	}
}
