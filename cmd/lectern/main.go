// Command lectern listens to a sermon transcript and puts every scripture
// reference it hears on the display.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/MrWong99/lectern/internal/app"
	"github.com/MrWong99/lectern/internal/config"
	"github.com/MrWong99/lectern/internal/observe"
	"github.com/MrWong99/lectern/pkg/provider/stt"
	"github.com/MrWong99/lectern/pkg/provider/stt/deepgram"
	"github.com/MrWong99/lectern/pkg/provider/stt/vosk"
)

var version = "0.1.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "lectern:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var envFile string
	root := &cobra.Command{
		Use:   "lectern",
		Short: "Live scripture reference recognition",
		Long: `Lectern turns spoken scripture references in a transcript
("first corinthians thirteen verse four") into canonical references
("1 Corinthians 13:4") and publishes each new one to a stage display,
websocket clients and an HTTP/MCP API.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return loadEnv(envFile, cmd.Flags().Changed("env-file"))
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file with secrets referenced as ${VAR} in the config")

	root.AddCommand(serveCmd())
	root.AddCommand(recognizeCmd())
	root.AddCommand(booksCmd())
	root.AddCommand(importBibleCmd())
	return root
}

// loadEnv loads path into the environment. A missing default file is not an
// error; a missing file the user asked for is.
func loadEnv(path string, explicit bool) error {
	if path == "" {
		return nil
	}
	err := godotenv.Load(path)
	if errors.Is(err, fs.ErrNotExist) && !explicit {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// ── serve ─────────────────────────────────────────────────────────────────────

func serveCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the recognizer with the configured source, sinks and HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), configPath, cmd.ErrOrStderr())
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "path to the YAML configuration file")
	return cmd
}

func serve(parent context.Context, configPath string, out io.Writer) error {
	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(configPath)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("config file %q not found; copy configs/example.yaml to get started", configPath)
	}
	if err != nil {
		return err
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(app.SlogLevel(cfg.Server.LogLevel))
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	slog.Info("lectern starting",
		"version", version,
		"config", configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	telemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "lectern",
		ServiceVersion: version,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		if err := telemetry.Shutdown(context.Background()); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	printStartupSummary(out, cfg)

	application, err := app.New(ctx, cfg,
		app.WithRegistry(reg),
		app.WithMetricsHandler(telemetry.Handler()),
		app.WithLevel(level),
		app.WithVersion(version),
	)
	if err != nil {
		return err
	}

	// ── Hot reload ────────────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(configPath, application.Reload)
	if err != nil {
		slog.Warn("config hot reload disabled", "err", err)
	} else {
		defer watcher.Stop()
	}

	slog.Info("lectern ready; press Ctrl+C to shut down")
	runErr := application.Run(ctx)
	if runErr != nil && errors.Is(runErr, context.Canceled) {
		runErr = nil
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		return errors.Join(runErr, fmt.Errorf("shutdown: %w", err))
	}
	if runErr != nil {
		return runErr
	}
	slog.Info("goodbye")
	return nil
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires the STT provider factories that ship with
// lectern into reg.
func registerBuiltinProviders(reg *config.Registry) {
	reg.RegisterSTT("vosk", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []vosk.Option
		if rate := optInt(entry.Options, "sample_rate"); rate > 0 {
			opts = append(opts, vosk.WithSampleRate(rate))
		}
		if optBool(entry.Options, "words") {
			opts = append(opts, vosk.WithWords(true))
		}
		return vosk.New(entry.BaseURL, opts...), nil
	})

	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if entry.Language != "" {
			opts = append(opts, deepgram.WithLanguage(entry.Language))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithEndpoint(entry.BaseURL))
		}
		if ms := optInt(entry.Options, "endpointing_ms"); ms > 0 {
			opts = append(opts, deepgram.WithEndpointing(time.Duration(ms)*time.Millisecond))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	for _, name := range reg.STTNames() {
		slog.Debug("registered provider", "kind", "stt", "name", name)
	}
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(w io.Writer, cfg *config.Config) {
	fmt.Fprintln(w, "╔═══════════════════════════════════════╗")
	fmt.Fprintln(w, "║         Lectern — startup summary     ║")
	fmt.Fprintln(w, "╠═══════════════════════════════════════╣")
	printRow(w, "Canon", cfg.Recognizer.Canon)
	printRow(w, "Scorer", fmt.Sprintf("%s @ %.0f", cfg.Recognizer.Scorer, cfg.Recognizer.Threshold))
	source := string(cfg.Input.Source)
	if cfg.Input.Source == config.SourceSTT {
		source += " / " + cfg.Input.STT.Name
		if cfg.Input.STTFallback.Name != "" {
			source += " → " + cfg.Input.STTFallback.Name
		}
	}
	printRow(w, "Source", source)
	stage := "(disabled)"
	if m := cfg.Display.ProPresenter.Mode; m != config.StageOff {
		stage = string(m) + " " + cfg.Display.ProPresenter.Address
	}
	printRow(w, "ProPresenter", stage)
	printRow(w, "Broadcast", enabled(cfg.Display.Broadcast && cfg.Server.ListenAddr != ""))
	bible := "(none)"
	if cfg.Bible.Path != "" {
		bible = string(cfg.Bible.Format) + " " + cfg.Bible.Path
	}
	printRow(w, "Bible", bible)
	printRow(w, "MCP", enabled(cfg.MCP.Enabled && cfg.Server.ListenAddr != ""))
	if cfg.Server.ListenAddr != "" {
		printRow(w, "Listen addr", cfg.Server.ListenAddr)
	}
	fmt.Fprintln(w, "╚═══════════════════════════════════════╝")
}

func printRow(w io.Writer, label, value string) {
	if r := []rune(value); len(r) > 19 {
		value = string(r[:18]) + "…"
	}
	fmt.Fprintf(w, "║  %-12s    : %-19s ║\n", label, value)
}

func enabled(b bool) string {
	if b {
		return "enabled"
	}
	return "(disabled)"
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optInt extracts an integer from a provider Options map. YAML decodes
// integers as int; anything else yields 0.
func optInt(opts map[string]any, key string) int {
	v, _ := opts[key].(int)
	return v
}

// optBool extracts a boolean from a provider Options map.
func optBool(opts map[string]any, key string) bool {
	v, _ := opts[key].(bool)
	return v
}
