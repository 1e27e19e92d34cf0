package config

import "slices"

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; everything else
// (listen address, input source, sinks, recency capacity) needs a restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// RecognizerChanged is true when canon, scorer, threshold or range policy
	// differ. The recognizer is rebuilt from the new values.
	RecognizerChanged bool
	Recognizer        RecognizerConfig

	NoiseWordsChanged bool
	NewNoiseWords     []string

	// RestartRequired lists the top-level sections whose changes are ignored
	// until the process restarts.
	RestartRequired []string
}

// Changed reports whether d carries any hot-reloadable change.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.RecognizerChanged || d.NoiseWordsChanged
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	// Log level
	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	o, n := old.Recognizer, new.Recognizer
	if o.Canon != n.Canon || o.Scorer != n.Scorer || o.Threshold != n.Threshold || o.RangePolicy != n.RangePolicy {
		d.RecognizerChanged = true
		d.Recognizer = n
	}
	if !slices.Equal(o.NoiseWords, n.NoiseWords) {
		d.NoiseWordsChanged = true
		d.NewNoiseWords = slices.Clone(n.NoiseWords)
	}

	if old.Server.ListenAddr != new.Server.ListenAddr || !tlsEqual(old.Server.TLS, new.Server.TLS) {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	if old.Recency != new.Recency {
		d.RestartRequired = append(d.RestartRequired, "recency")
	}
	if !inputEqual(old.Input, new.Input) {
		d.RestartRequired = append(d.RestartRequired, "input")
	}
	if old.Display != new.Display {
		d.RestartRequired = append(d.RestartRequired, "display")
	}
	if old.Bible != new.Bible {
		d.RestartRequired = append(d.RestartRequired, "bible")
	}
	if old.MCP != new.MCP {
		d.RestartRequired = append(d.RestartRequired, "mcp")
	}

	return d
}

func tlsEqual(a, b *TLSConfig) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// inputEqual compares input sections ignoring provider Options maps, which
// are not comparable.
func inputEqual(a, b InputConfig) bool {
	return a.Source == b.Source &&
		a.PCM == b.PCM &&
		a.IncludePartials == b.IncludePartials &&
		providerEqual(a.STT, b.STT) &&
		providerEqual(a.STTFallback, b.STTFallback)
}

func providerEqual(a, b ProviderEntry) bool {
	return a.Name == b.Name &&
		a.APIKey == b.APIKey &&
		a.BaseURL == b.BaseURL &&
		a.Model == b.Model &&
		a.Language == b.Language &&
		len(a.Options) == len(b.Options)
}
