package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stageleft/convoke/internal/config"
)

const fullYAML = `
server:
  listen_addr: ":9090"
  log_level: debug
database:
  postgres_dsn: "postgres://localhost/convoke"
  embedding_dimensions: 1536
providers:
  llm:
    name: openai
    api_key: sk-test
    model: gpt-4o
  embeddings:
    name: openai
    model: text-embedding-3-small
transcriber:
  model_path: /models/ggml-base.bin
  language: sv
  pool_size: 2
  timeout_seconds: 45
analysis:
  window_size: 3
  min_confidence: 0.7
  cooldown_seconds: 120
recording:
  segment_seconds: 30
  ffmpeg_path: /usr/local/bin/ffmpeg
`

func TestLoadFromReader_FullConfig(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(fullYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.ListenAddr != ":9090" {
		t.Errorf("listen_addr: got %q, want %q", cfg.Server.ListenAddr, ":9090")
	}
	if cfg.Server.LogLevel != config.LogDebug {
		t.Errorf("log_level: got %q, want %q", cfg.Server.LogLevel, config.LogDebug)
	}
	if cfg.Database.EmbeddingDimensions != 1536 {
		t.Errorf("embedding_dimensions: got %d, want 1536", cfg.Database.EmbeddingDimensions)
	}
	if cfg.Providers.LLM.Model != "gpt-4o" {
		t.Errorf("llm model: got %q, want %q", cfg.Providers.LLM.Model, "gpt-4o")
	}
	if cfg.Transcriber.ModelPath != "/models/ggml-base.bin" {
		t.Errorf("model_path: got %q, want %q", cfg.Transcriber.ModelPath, "/models/ggml-base.bin")
	}
	if cfg.Transcriber.Language != "sv" {
		t.Errorf("language: got %q, want %q", cfg.Transcriber.Language, "sv")
	}
	if cfg.Analysis.MinConfidence != 0.7 {
		t.Errorf("min_confidence: got %v, want 0.7", cfg.Analysis.MinConfidence)
	}
	if cfg.Analysis.CooldownSeconds != 120 {
		t.Errorf("cooldown_seconds: got %d, want 120", cfg.Analysis.CooldownSeconds)
	}
	if cfg.Recording.SegmentSeconds != 30 {
		t.Errorf("segment_seconds: got %v, want 30", cfg.Recording.SegmentSeconds)
	}
}

func TestLoadFromReader_UnknownFieldRejected(t *testing.T) {
	t.Parallel()
	yaml := `
transcriber:
  model_path: /models/ggml-base.bin
  languge: sv
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for unknown field, got nil")
	}
	if !strings.Contains(err.Error(), "languge") {
		t.Errorf("error should name the unknown field, got: %v", err)
	}
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  log_level: bananas
transcriber:
  model_path: /models/ggml-base.bin
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for invalid log level, got nil")
	}
	if !strings.Contains(err.Error(), "log_level") {
		t.Errorf("error should mention log_level, got: %v", err)
	}
}

func TestValidate_ModelPathRequired(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  log_level: info
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for missing model path, got nil")
	}
	if !strings.Contains(err.Error(), "model_path") {
		t.Errorf("error should mention model_path, got: %v", err)
	}
}

func TestValidate_TLSRequiresBothFiles(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  tls:
    cert_file: /etc/convoke/cert.pem
transcriber:
  model_path: /models/ggml-base.bin
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for TLS without key file, got nil")
	}
	if !strings.Contains(err.Error(), "key_file") {
		t.Errorf("error should mention key_file, got: %v", err)
	}
}

func TestValidate_OutOfRangeValues(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "min confidence above one",
			yaml: "analysis:\n  min_confidence: 1.5\n",
			want: "min_confidence",
		},
		{
			name: "negative window size",
			yaml: "analysis:\n  window_size: -1\n",
			want: "window_size",
		},
		{
			name: "negative cooldown",
			yaml: "analysis:\n  cooldown_seconds: -5\n",
			want: "cooldown_seconds",
		},
		{
			name: "negative pool size",
			yaml: "transcriber:\n  model_path: /m.bin\n  pool_size: -2\n",
			want: "pool_size",
		},
		{
			name: "negative segment seconds",
			yaml: "recording:\n  segment_seconds: -10\n",
			want: "segment_seconds",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := config.LoadFromReader(strings.NewReader(tt.yaml))
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error should mention %s, got: %v", tt.want, err)
			}
		})
	}
}

func TestLoad_File(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(fullYAML), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.ListenAddr != ":9090" {
		t.Errorf("listen_addr: got %q, want %q", cfg.Server.ListenAddr, ":9090")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()
	_, err := config.Load("/nonexistent/config.yaml")
	if err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}
