// Package config provides the configuration schema, loader, and STT provider
// registry for the lectern reference recognizer.
package config

import "time"

// LogLevel controls log verbosity for the lectern server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Source selects where transcripts come from.
type Source string

const (
	// SourceStdin reads one transcript per line from standard input.
	SourceStdin Source = "stdin"

	// SourceSTT streams raw PCM through a speech-to-text provider.
	SourceSTT Source = "stt"

	// SourceNone disables ingestion; references arrive only through the API.
	SourceNone Source = "none"
)

// IsValid reports whether s is a recognised transcript source.
func (s Source) IsValid() bool {
	switch s {
	case SourceStdin, SourceSTT, SourceNone:
		return true
	}
	return false
}

// StageMode selects how references reach the ProPresenter stage display.
type StageMode string

const (
	StageOff  StageMode = ""
	StageTCP  StageMode = "tcp"
	StageHTTP StageMode = "http"
)

// IsValid reports whether m is a recognised stage display mode.
func (m StageMode) IsValid() bool {
	switch m {
	case StageOff, StageTCP, StageHTTP:
		return true
	}
	return false
}

// BibleFormat selects the on-disk layout of the verse text store.
type BibleFormat string

const (
	BibleJSON   BibleFormat = "json"
	BibleSQLite BibleFormat = "sqlite"
)

// IsValid reports whether f is a recognised bible format.
func (f BibleFormat) IsValid() bool {
	return f == BibleJSON || f == BibleSQLite
}

// Config is the root configuration structure for lectern.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Recognizer RecognizerConfig `yaml:"recognizer"`
	Recency    RecencyConfig    `yaml:"recency"`
	Input      InputConfig      `yaml:"input"`
	Display    DisplayConfig    `yaml:"display"`
	Bible      BibleConfig      `yaml:"bible"`
	MCP        MCPConfig        `yaml:"mcp"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the HTTP server listens on (e.g., ":8080").
	// An empty value disables the HTTP surface.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// RecognizerConfig tunes reference recognition. Every field is hot-reloadable.
type RecognizerConfig struct {
	// Canon names the book table: "protestant" or "catholic".
	Canon string `yaml:"canon"`

	// Scorer names the fuzzy similarity function: "phonetic", "edit" or
	// "jaro-winkler".
	Scorer string `yaml:"scorer"`

	// Threshold is the minimum book-name similarity on a 0-100 scale.
	Threshold float64 `yaml:"threshold"`

	// RangePolicy decides what happens to an unusable range end:
	// "degrade" keeps the start verse, "drop" rejects the reference.
	RangePolicy string `yaml:"range_policy"`

	// NoiseWords are whole transcripts that are discarded before recognition.
	NoiseWords []string `yaml:"noise_words"`
}

// RecencyConfig sizes the recent-references buffer.
type RecencyConfig struct {
	// Capacity bounds the buffer; zero keeps every distinct reference.
	Capacity int `yaml:"capacity"`
}

// InputConfig selects and configures the transcript source.
type InputConfig struct {
	Source Source `yaml:"source"`

	// PCM describes the raw audio fed to the STT provider.
	PCM PCMConfig `yaml:"pcm"`

	// STT is the primary speech-to-text provider.
	STT ProviderEntry `yaml:"stt"`

	// STTFallback is tried when the primary provider cannot open a session.
	STTFallback ProviderEntry `yaml:"stt_fallback"`

	// IncludePartials processes interim STT results as well as finals.
	IncludePartials bool `yaml:"include_partials"`
}

// PCMConfig describes a raw signed 16-bit little-endian PCM stream.
type PCMConfig struct {
	// Path is the file to read; "-" reads standard input.
	Path         string `yaml:"path"`
	SampleRate   int    `yaml:"sample_rate"`
	Channels     int    `yaml:"channels"`
	ChunkSamples int    `yaml:"chunk_samples"`
}

// ProviderEntry is the configuration block for an STT provider.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "vosk", "deepgram").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "nova-3").
	Model string `yaml:"model"`

	// Language is a BCP-47 tag passed to the provider.
	Language string `yaml:"language"`

	// Options holds provider-specific configuration values not covered by the
	// standard fields above.
	Options map[string]any `yaml:"options"`
}

// DisplayConfig configures where recognised references are published.
type DisplayConfig struct {
	ProPresenter ProPresenterConfig `yaml:"propresenter"`

	// Broadcast pushes every new reference to websocket clients on /ws.
	Broadcast bool `yaml:"broadcast"`

	// RenderText publishes the verse text instead of the bare reference.
	RenderText bool `yaml:"render_text"`
}

// ProPresenterConfig addresses a ProPresenter stage display.
type ProPresenterConfig struct {
	Mode    StageMode     `yaml:"mode"`
	Address string        `yaml:"address"`
	Timeout time.Duration `yaml:"timeout"`
}

// BibleConfig points at an offline verse text store.
type BibleConfig struct {
	// Path is the store location; empty disables verse text.
	Path   string      `yaml:"path"`
	Format BibleFormat `yaml:"format"`
}

// MCPConfig controls the Model Context Protocol endpoint.
type MCPConfig struct {
	// Enabled mounts the MCP streamable HTTP handler at /mcp.
	Enabled bool `yaml:"enabled"`
}

// Default returns a configuration with every field at its documented default.
// [LoadFromReader] decodes on top of it, so omitted keys keep these values.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr: ":8080",
			LogLevel:   LogInfo,
		},
		Recognizer: RecognizerConfig{
			Canon:       "protestant",
			Scorer:      "phonetic",
			Threshold:   80,
			RangePolicy: "degrade",
			NoiseWords:  []string{"the"},
		},
		Input: InputConfig{
			Source: SourceStdin,
			PCM: PCMConfig{
				Path:         "-",
				SampleRate:   16000,
				Channels:     1,
				ChunkSamples: 4000,
			},
			IncludePartials: true,
		},
		Display: DisplayConfig{
			ProPresenter: ProPresenterConfig{
				Address: "localhost:54346",
				Timeout: 3 * time.Second,
			},
			Broadcast: true,
		},
		Bible: BibleConfig{Format: BibleJSON},
		MCP:   MCPConfig{Enabled: true},
	}
}
