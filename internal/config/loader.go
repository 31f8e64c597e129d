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

// knownProviders lists recognised provider names per provider kind. Unknown
// names are allowed (third-party backends exist) but draw a warning.
var knownProviders = map[string][]string{
	"llm":        {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"embeddings": {"openai", "ollama"},
}

// Load reads and validates the YAML configuration file at path.
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
// Unknown YAML fields are rejected so that typos fail loudly at startup.
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

// Validate checks that cfg contains a coherent set of values and returns a
// joined error listing every failure found. Missing optional subsystems
// (providers, database) only warn; the server degrades rather than refusing
// to start.
func Validate(cfg *Config) error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}
	nonNegative := func(field string, v int) {
		if v < 0 {
			bad("%s %d must not be negative", field, v)
		}
	}

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		bad("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel)
	}
	if tls := cfg.Server.TLS; tls != nil {
		if tls.CertFile == "" {
			bad("server.tls.cert_file is required when tls is set")
		}
		if tls.KeyFile == "" {
			bad("server.tls.key_file is required when tls is set")
		}
	}

	warnUnknownProvider("llm", cfg.Providers.LLM.Name)
	warnUnknownProvider("embeddings", cfg.Providers.Embeddings.Name)
	if cfg.Providers.LLM.Name == "" {
		slog.Warn("no LLM provider configured; trigger analysis, coaching, and protocol summaries will be unavailable")
	}
	if cfg.Providers.Embeddings.Name == "" {
		slog.Warn("no embeddings provider configured; transcript search will be unavailable")
	}
	if cfg.Providers.Embeddings.Name != "" && cfg.Database.EmbeddingDimensions <= 0 {
		slog.Warn("providers.embeddings is configured but database.embedding_dimensions is not set; defaulting to 1536")
	}
	if cfg.Database.PostgresDSN == "" {
		slog.Warn("database.postgres_dsn is empty; meetings are held in memory and lost on restart")
	}

	if cfg.Transcriber.ModelPath == "" {
		bad("transcriber.model_path is required")
	}
	nonNegative("transcriber.pool_size", cfg.Transcriber.PoolSize)
	nonNegative("transcriber.timeout_seconds", cfg.Transcriber.TimeoutSeconds)

	nonNegative("analysis.window_size", cfg.Analysis.WindowSize)
	if c := cfg.Analysis.MinConfidence; c < 0 || c > 1 {
		bad("analysis.min_confidence %.2f is out of range [0, 1]", c)
	}
	nonNegative("analysis.cooldown_seconds", cfg.Analysis.CooldownSeconds)
	nonNegative("analysis.timeout_seconds", cfg.Analysis.TimeoutSeconds)

	if s := cfg.Recording.SegmentSeconds; s < 0 {
		bad("recording.segment_seconds %.1f must not be negative", s)
	}

	return errors.Join(errs...)
}

func warnUnknownProvider(kind, name string) {
	known := knownProviders[kind]
	if name == "" || len(known) == 0 || slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
