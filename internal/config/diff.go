package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked: the analysis
// tuning block and the log level. Provider and history changes require a
// restart and are reported via RestartRequired.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	AnalysisChanged bool
	NewAnalysis     AnalysisConfig

	// RestartRequired is true when providers, history, or server wiring
	// changed — settings that cannot be applied to a running service.
	RestartRequired bool
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Analysis != new.Analysis {
		d.AnalysisChanged = true
		d.NewAnalysis = new.Analysis
	}

	if !providersEqual(&old.Providers, &new.Providers) ||
		old.History != new.History ||
		old.Server.ListenAddr != new.Server.ListenAddr ||
		!tlsEqual(old.Server.TLS, new.Server.TLS) {
		d.RestartRequired = true
	}

	return d
}

// providersEqual compares provider blocks field by field. ProviderEntry
// contains a map, so it is not directly comparable.
func providersEqual(a, b *ProvidersConfig) bool {
	if !entryEqual(&a.LLM, &b.LLM) || !entryEqual(&a.STT, &b.STT) || !entryEqual(&a.Embeddings, &b.Embeddings) {
		return false
	}
	switch {
	case a.STTFallback == nil && b.STTFallback == nil:
		return true
	case a.STTFallback == nil || b.STTFallback == nil:
		return false
	default:
		return entryEqual(a.STTFallback, b.STTFallback)
	}
}

// entryEqual compares the scalar fields of two provider entries. The
// free-form Options map is compared by length and shallow value equality.
func entryEqual(a, b *ProviderEntry) bool {
	if a.Name != b.Name || a.APIKey != b.APIKey || a.BaseURL != b.BaseURL || a.Model != b.Model {
		return false
	}
	if len(a.Options) != len(b.Options) {
		return false
	}
	for k, v := range a.Options {
		if b.Options[k] != v {
			return false
		}
	}
	return true
}

func tlsEqual(a, b *TLSConfig) bool {
	switch {
	case a == nil && b == nil:
		return true
	case a == nil || b == nil:
		return false
	default:
		return *a == *b
	}
}
