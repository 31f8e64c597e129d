package config_test

import (
	"testing"

	"github.com/stageleft/convoke/internal/config"
)

func baseConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			ListenAddr: ":8080",
			LogLevel:   config.LogInfo,
		},
		Transcriber: config.TranscriberConfig{
			ModelPath: "/models/ggml-base.bin",
		},
		Analysis: config.AnalysisConfig{
			WindowSize:      3,
			MinConfidence:   0.6,
			CooldownSeconds: 120,
		},
	}
}

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	old := baseConfig()
	new := baseConfig()

	d := config.Diff(old, new)
	if d.LogLevelChanged {
		t.Error("LogLevelChanged should be false for identical configs")
	}
	if d.AnalysisChanged {
		t.Error("AnalysisChanged should be false for identical configs")
	}
}

func TestDiff_LogLevel(t *testing.T) {
	t.Parallel()
	old := baseConfig()
	new := baseConfig()
	new.Server.LogLevel = config.LogDebug

	d := config.Diff(old, new)
	if !d.LogLevelChanged {
		t.Fatal("LogLevelChanged should be true")
	}
	if d.NewLogLevel != config.LogDebug {
		t.Errorf("NewLogLevel: got %q, want %q", d.NewLogLevel, config.LogDebug)
	}
	if d.AnalysisChanged {
		t.Error("AnalysisChanged should be false when only the log level changed")
	}
}

func TestDiff_AnalysisTuning(t *testing.T) {
	t.Parallel()
	old := baseConfig()
	new := baseConfig()
	new.Analysis.MinConfidence = 0.8
	new.Analysis.CooldownSeconds = 60

	d := config.Diff(old, new)
	if !d.AnalysisChanged {
		t.Fatal("AnalysisChanged should be true")
	}
	if d.NewAnalysis.MinConfidence != 0.8 {
		t.Errorf("NewAnalysis.MinConfidence: got %v, want 0.8", d.NewAnalysis.MinConfidence)
	}
	if d.NewAnalysis.CooldownSeconds != 60 {
		t.Errorf("NewAnalysis.CooldownSeconds: got %d, want 60", d.NewAnalysis.CooldownSeconds)
	}
	if d.LogLevelChanged {
		t.Error("LogLevelChanged should be false when only analysis tuning changed")
	}
}

// Restart-only fields must not show up in the diff.
func TestDiff_IgnoresRestartOnlyFields(t *testing.T) {
	t.Parallel()
	old := baseConfig()
	new := baseConfig()
	new.Server.ListenAddr = ":9090"
	new.Transcriber.ModelPath = "/models/ggml-large.bin"
	new.Database.PostgresDSN = "postgres://localhost/convoke"

	d := config.Diff(old, new)
	if d.LogLevelChanged || d.AnalysisChanged {
		t.Errorf("diff should ignore restart-only fields, got %+v", d)
	}
}
