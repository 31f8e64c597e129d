package app_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stageleft/convoke/internal/app"
	"github.com/stageleft/convoke/internal/config"
	"github.com/stageleft/convoke/internal/meeting"
	sttmock "github.com/stageleft/convoke/pkg/provider/stt/mock"
)

const testPlanDoc = `# Intent
Ship the release.

# Desired Outcomes
- A go/no-go decision

# Agenda
1. Review open issues (30 min)

# Roles
- Facilitator: Anna

# Rules
- One conversation at a time

# Time
Total: 30 minutes
`

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			ListenAddr: ":0",
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

func newTestApp(t *testing.T) *app.App {
	t.Helper()

	a, err := app.New(context.Background(), testConfig(), &app.Providers{},
		app.WithStore(meeting.NewMemStore()),
		app.WithTranscriber(&sttmock.Provider{Results: []string{"hello"}}),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = a.Shutdown(ctx)
	})
	return a
}

func TestNew_WiresHTTPServer(t *testing.T) {
	t.Parallel()
	a := newTestApp(t)

	if a.Server() == nil {
		t.Fatal("Server() returned nil")
	}

	// The wired handler should serve the API end to end.
	ts := httptest.NewServer(a.Server().Handler())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/v1/meetings", "text/markdown", strings.NewReader(testPlanDoc))
	if err != nil {
		t.Fatalf("create meeting: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Errorf("create meeting status: got %d, want %d", resp.StatusCode, http.StatusCreated)
	}

	healthResp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	defer healthResp.Body.Close()
	if healthResp.StatusCode != http.StatusOK {
		t.Errorf("healthz status: got %d, want %d", healthResp.StatusCode, http.StatusOK)
	}
}

func TestNew_NoLLMDisablesAnalysisEndpoints(t *testing.T) {
	t.Parallel()
	a := newTestApp(t)

	ts := httptest.NewServer(a.Server().Handler())
	defer ts.Close()

	// Without an embeddings provider the search endpoint reports 501.
	resp, err := http.Get(ts.URL + "/v1/meetings/whatever/search?q=test")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotImplemented {
		t.Errorf("search status: got %d, want %d", resp.StatusCode, http.StatusNotImplemented)
	}
}

func TestApplyConfig_IgnoresRestartOnlyChanges(t *testing.T) {
	t.Parallel()
	a := newTestApp(t)

	// No analysis subsystem is wired, so this must be a no-op rather than a
	// panic.
	a.ApplyConfig(config.ConfigDiff{
		AnalysisChanged: true,
		NewAnalysis: config.AnalysisConfig{
			WindowSize:      5,
			MinConfidence:   0.9,
			CooldownSeconds: 30,
		},
	})
}

func TestShutdown_Idempotent(t *testing.T) {
	t.Parallel()
	a := newTestApp(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := a.Shutdown(ctx); err != nil {
		t.Errorf("first shutdown: %v", err)
	}
	if err := a.Shutdown(ctx); err != nil {
		t.Errorf("second shutdown: %v", err)
	}
}
