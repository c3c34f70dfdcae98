package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm":        {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"stt":        {"whisper", "whisper-native", "deepgram"},
	"embeddings": {"openai", "ollama"},
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

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
// Suspicious-but-workable values produce slog warnings instead.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil {
		if tls.CertFile == "" || tls.KeyFile == "" {
			errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
		}
	}

	// Provider name validation — warn for unknown provider names.
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("stt", cfg.Providers.STT.Name)
	if cfg.Providers.STTFallback != nil {
		validateProviderName("stt", cfg.Providers.STTFallback.Name)
	}
	validateProviderName("embeddings", cfg.Providers.Embeddings.Name)

	// Provider availability warnings
	if cfg.Providers.STT.Name == "" {
		slog.Warn("no STT provider configured; transcripts will be empty and scoring falls back to acoustic features only")
	}
	if cfg.Providers.LLM.Name == "" {
		slog.Warn("no LLM provider configured; emotion classification will use the lexicon analyzer only")
	}
	if cfg.Providers.STTFallback != nil && cfg.Providers.STTFallback.Name == cfg.Providers.STT.Name {
		slog.Warn("providers.stt_fallback names the same provider as providers.stt; the fallback adds nothing")
	}

	// Embeddings ↔ history dimensions
	if cfg.Providers.Embeddings.Name != "" && cfg.History.EmbeddingDimensions <= 0 {
		slog.Warn("providers.embeddings is configured but history.embedding_dimensions is not set; defaulting to 1536")
	}
	if cfg.Providers.Embeddings.Name == "" && cfg.History.PostgresDSN != "" {
		slog.Warn("history is configured without an embeddings provider; similar-session search will be unavailable")
	}

	// History availability
	if cfg.History.PostgresDSN == "" {
		slog.Warn("history.postgres_dsn is empty; analysis sessions will not be persisted")
	}

	// Analysis tuning
	if cfg.Analysis.MaxConcurrent < 0 {
		errs = append(errs, fmt.Errorf("analysis.max_concurrent %d must not be negative", cfg.Analysis.MaxConcurrent))
	}
	if cfg.Analysis.MaxUploadMB < 0 {
		errs = append(errs, fmt.Errorf("analysis.max_upload_mb %d must not be negative", cfg.Analysis.MaxUploadMB))
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
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
