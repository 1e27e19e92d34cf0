package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/lectern/internal/scripture"
	"github.com/MrWong99/lectern/internal/scripture/fuzzy"
	"github.com/MrWong99/lectern/pkg/canon"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"stt": {"vosk", "deepgram"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r on top of [Default] and
// validates the result. ${VAR} references are expanded from the environment
// before decoding, so secrets such as API keys can stay out of the file.
func LoadFromReader(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	expanded := os.ExpandEnv(string(raw))

	cfg := Default()
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Recognizer
	rc := cfg.Recognizer
	if _, err := canon.ByName(rc.Canon); err != nil {
		errs = append(errs, fmt.Errorf("recognizer.canon %q is invalid; valid values: %s, %s", rc.Canon, canon.NameProtestant, canon.NameCatholic))
	}
	if _, err := fuzzy.ByName(rc.Scorer); err != nil {
		errs = append(errs, fmt.Errorf("recognizer.scorer %q is invalid; valid values: phonetic, edit, jaro-winkler", rc.Scorer))
	}
	if rc.Threshold < 0 || rc.Threshold > 100 {
		errs = append(errs, fmt.Errorf("recognizer.threshold %.1f is out of range [0, 100]", rc.Threshold))
	}
	if _, err := scripture.ParseRangePolicy(rc.RangePolicy); err != nil {
		errs = append(errs, fmt.Errorf("recognizer.range_policy %q is invalid; valid values: degrade, drop", rc.RangePolicy))
	}

	// Recency
	if cfg.Recency.Capacity < 0 {
		errs = append(errs, fmt.Errorf("recency.capacity %d must not be negative", cfg.Recency.Capacity))
	}

	// Input
	in := cfg.Input
	if !in.Source.IsValid() {
		errs = append(errs, fmt.Errorf("input.source %q is invalid; valid values: stdin, stt, none", in.Source))
	}
	validateProviderName("stt", in.STT.Name)
	validateProviderName("stt", in.STTFallback.Name)
	if in.Source == SourceSTT {
		if in.STT.Name == "" {
			errs = append(errs, errors.New("input.stt.name is required when input.source is stt"))
		}
		if in.PCM.SampleRate <= 0 {
			errs = append(errs, fmt.Errorf("input.pcm.sample_rate %d must be positive", in.PCM.SampleRate))
		}
		if in.PCM.Channels < 1 || in.PCM.Channels > 2 {
			errs = append(errs, fmt.Errorf("input.pcm.channels %d is out of range [1, 2]", in.PCM.Channels))
		}
		if in.PCM.ChunkSamples <= 0 {
			errs = append(errs, fmt.Errorf("input.pcm.chunk_samples %d must be positive", in.PCM.ChunkSamples))
		}
	}
	if in.STTFallback.Name != "" && in.STTFallback.Name == in.STT.Name {
		slog.Warn("input.stt_fallback names the same provider as input.stt", "name", in.STT.Name)
	}

	// Display
	pp := cfg.Display.ProPresenter
	if !pp.Mode.IsValid() {
		errs = append(errs, fmt.Errorf("display.propresenter.mode %q is invalid; valid values: tcp, http or empty", pp.Mode))
	}
	if pp.Mode != StageOff && pp.Address == "" {
		errs = append(errs, fmt.Errorf("display.propresenter.address is required when mode is %s", pp.Mode))
	}
	if pp.Timeout < 0 {
		errs = append(errs, fmt.Errorf("display.propresenter.timeout %s must not be negative", pp.Timeout))
	}
	if cfg.Display.RenderText && cfg.Bible.Path == "" {
		slog.Warn("display.render_text is set but bible.path is empty; references will be published without text")
	}

	// Bible
	if cfg.Bible.Path != "" && !cfg.Bible.Format.IsValid() {
		errs = append(errs, fmt.Errorf("bible.format %q is invalid; valid values: json, sqlite", cfg.Bible.Format))
	}

	if cfg.Server.ListenAddr == "" {
		if cfg.MCP.Enabled {
			slog.Warn("mcp.enabled has no effect without server.listen_addr")
		}
		if cfg.Display.Broadcast {
			slog.Warn("display.broadcast has no effect without server.listen_addr")
		}
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
