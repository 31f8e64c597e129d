// Package app wires all Convoke subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves HTTP until the context is cancelled, and Shutdown
// tears everything down in order.
//
// For testing, inject mock implementations via functional options
// (WithStore, WithTranscriber, etc.). When an option is not provided, New
// creates real implementations from the config.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stageleft/convoke/internal/analysis"
	"github.com/stageleft/convoke/internal/bus"
	"github.com/stageleft/convoke/internal/config"
	"github.com/stageleft/convoke/internal/health"
	"github.com/stageleft/convoke/internal/meeting"
	meetingpg "github.com/stageleft/convoke/internal/meeting/postgres"
	"github.com/stageleft/convoke/internal/normalize"
	"github.com/stageleft/convoke/internal/observe"
	"github.com/stageleft/convoke/internal/protocol"
	"github.com/stageleft/convoke/internal/resilience"
	"github.com/stageleft/convoke/internal/search"
	"github.com/stageleft/convoke/internal/server"
	"github.com/stageleft/convoke/internal/transcript"
	"github.com/stageleft/convoke/pkg/provider/embeddings"
	"github.com/stageleft/convoke/pkg/provider/llm"
	"github.com/stageleft/convoke/pkg/provider/stt"
	"github.com/stageleft/convoke/pkg/provider/stt/whisper"
)

// defaultEmbeddingDimensions matches OpenAI text-embedding-3-small.
const defaultEmbeddingDimensions = 1536

// Providers holds one interface value per remote provider slot. Nil means the
// provider is not configured. Populated by main.go via the config registry.
// The transcriber is not listed here: it is a local whisper.cpp model built
// from the transcriber config section.
type Providers struct {
	LLM        llm.Provider
	Embeddings embeddings.Provider
}

// App owns all subsystem lifetimes and serves the meeting facilitation API.
type App struct {
	cfg       *config.Config
	providers *Providers

	// Subsystems — initialised in New, torn down in Shutdown.
	pool        *pgxpool.Pool
	store       meeting.Store
	vectors     search.VectorStore
	searcher    *search.Index
	transcriber stt.Provider
	analyzer    *analysis.Analyzer
	coach       *analysis.Coach
	protocol    *protocol.Generator
	bus         *bus.Bus
	coordinator *meeting.Coordinator
	srv         *server.Server
	metrics     *observe.Metrics

	// closers are called in reverse order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithStore injects a meeting store instead of connecting to PostgreSQL.
func WithStore(s meeting.Store) Option {
	return func(a *App) { a.store = s }
}

// WithTranscriber injects a transcriber instead of loading a whisper model.
func WithTranscriber(p stt.Provider) Option {
	return func(a *App) { a.transcriber = p }
}

// WithVectorStore injects a vector store instead of creating one from config.
func WithVectorStore(vs search.VectorStore) Option {
	return func(a *App) { a.vectors = vs }
}

// WithMetrics injects a metrics set instead of using the global default.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry). Use Option functions
// to inject test doubles for any subsystem.
//
// New performs all initialisation synchronously: database connection and
// migration, whisper model setup, analysis stage construction, and HTTP
// server assembly. The whisper model itself loads lazily on first use.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}

	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Meeting store ─────────────────────────────────────────────────
	if err := a.initStore(ctx); err != nil {
		return nil, fmt.Errorf("app: init store: %w", err)
	}

	// ── 2. Transcript search ─────────────────────────────────────────────
	if err := a.initSearch(ctx); err != nil {
		return nil, fmt.Errorf("app: init search: %w", err)
	}

	// ── 3. Transcriber ───────────────────────────────────────────────────
	if err := a.initTranscriber(); err != nil {
		return nil, fmt.Errorf("app: init transcriber: %w", err)
	}

	// ── 4. Analysis, coaching, and protocol generation ───────────────────
	a.initAnalysis()

	// ── 5. Event bus ─────────────────────────────────────────────────────
	a.bus = bus.New()
	a.closers = append(a.closers, a.bus.Close)

	// ── 6. Coordinator ───────────────────────────────────────────────────
	a.initCoordinator()

	// ── 7. HTTP server ───────────────────────────────────────────────────
	if err := a.initServer(); err != nil {
		return nil, fmt.Errorf("app: init server: %w", err)
	}

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initStore connects to PostgreSQL and migrates the schema, or falls back to
// the in-memory store when no DSN is configured.
func (a *App) initStore(ctx context.Context) error {
	if a.store != nil {
		return nil // injected
	}

	dsn := a.cfg.Database.PostgresDSN
	if dsn == "" {
		slog.Warn("no postgres_dsn configured; using in-memory meeting store")
		a.store = meeting.NewMemStore()
		return nil
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return fmt.Errorf("ping postgres: %w", err)
	}
	a.pool = pool
	a.closers = append(a.closers, func() error {
		pool.Close()
		return nil
	})

	store := meetingpg.New(pool)
	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate meeting schema: %w", err)
	}
	a.store = store
	slog.Info("connected to postgres meeting store")
	return nil
}

// initSearch builds the transcript search index when an embeddings provider
// is available. With PostgreSQL the index is pgvector-backed; otherwise it
// lives in memory alongside the meeting store.
func (a *App) initSearch(ctx context.Context) error {
	if a.providers.Embeddings == nil {
		slog.Warn("no embeddings provider configured; transcript search disabled")
		return nil
	}

	dims := a.cfg.Database.EmbeddingDimensions
	if dims <= 0 {
		dims = defaultEmbeddingDimensions
	}

	if a.vectors == nil {
		if a.pool != nil {
			vs := search.NewPgVectorStore(a.pool)
			if err := vs.Migrate(ctx, dims); err != nil {
				return fmt.Errorf("migrate vector schema: %w", err)
			}
			a.vectors = vs
		} else {
			a.vectors = search.NewMemVectorStore()
		}
	}

	a.searcher = search.NewIndex(a.providers.Embeddings, a.vectors)
	slog.Info("transcript search enabled",
		"model", a.providers.Embeddings.ModelID(), "dimensions", dims)
	return nil
}

// initTranscriber loads the whisper.cpp provider from the transcriber config.
func (a *App) initTranscriber() error {
	if a.transcriber != nil {
		return nil // injected
	}

	var wopts []whisper.Option
	if a.cfg.Transcriber.Language != "" {
		wopts = append(wopts, whisper.WithLanguage(a.cfg.Transcriber.Language))
	}
	if a.cfg.Transcriber.PoolSize > 0 {
		wopts = append(wopts, whisper.WithPoolSize(a.cfg.Transcriber.PoolSize))
	}

	p, err := whisper.New(a.cfg.Transcriber.ModelPath, wopts...)
	if err != nil {
		return err
	}
	a.transcriber = p
	a.closers = append(a.closers, p.Close)
	return nil
}

// initAnalysis builds the analyzer, coach, and protocol generator. All three
// are LLM-backed; without an LLM provider they stay nil and the pipeline
// degrades to plain transcription.
func (a *App) initAnalysis() {
	if a.providers.LLM == nil {
		slog.Warn("no LLM provider configured; analysis, coaching, and protocol summaries disabled")
		return
	}

	// A single-backend chain still buys a circuit breaker in front of the
	// model API.
	guarded := resilience.NewLLMFallback(a.providers.LLM, a.cfg.Providers.LLM.Name, resilience.FallbackConfig{})

	var aopts []analysis.AnalyzerOption
	if a.cfg.Analysis.MinConfidence > 0 {
		aopts = append(aopts, analysis.WithMinConfidence(a.cfg.Analysis.MinConfidence))
	}
	a.analyzer = analysis.NewAnalyzer(guarded, aopts...)

	var copts []analysis.CoachOption
	if a.cfg.Analysis.CooldownSeconds > 0 {
		copts = append(copts, analysis.WithCooldown(time.Duration(a.cfg.Analysis.CooldownSeconds)*time.Second))
	}
	a.coach = analysis.NewCoach(guarded, copts...)

	a.protocol = protocol.NewGenerator(guarded)
}

// initCoordinator assembles the chunk ingestion pipeline.
func (a *App) initCoordinator() {
	cfg := meeting.CoordinatorConfig{
		Store:       a.store,
		Bus:         a.bus,
		Transcriber: a.transcriber,
		Corrector:   transcript.New(),
		Normalizer:  a.normalizer(),
		Metrics:     a.metrics,
		Language:    a.cfg.Transcriber.Language,
		WindowSize:  a.cfg.Analysis.WindowSize,
	}
	if a.analyzer != nil {
		cfg.Analyzer = a.analyzer
	}
	if a.coach != nil {
		cfg.Coach = a.coach
	}
	if a.searcher != nil {
		cfg.Indexer = a.searcher
	}
	if a.cfg.Transcriber.TimeoutSeconds > 0 {
		cfg.TranscribeTimeout = time.Duration(a.cfg.Transcriber.TimeoutSeconds) * time.Second
	}
	if a.cfg.Analysis.TimeoutSeconds > 0 {
		cfg.AnalysisTimeout = time.Duration(a.cfg.Analysis.TimeoutSeconds) * time.Second
	}
	a.coordinator = meeting.NewCoordinator(cfg)
}

// initServer builds the HTTP front end with health checks wired to the real
// dependencies.
func (a *App) initServer() error {
	var checkers []health.Checker
	if a.pool != nil {
		checkers = append(checkers, health.Database(a.pool))
	}
	if ms, ok := a.transcriber.(health.ModelStatus); ok {
		checkers = append(checkers, health.Transcriber(ms))
	}

	cfg := server.Config{
		ListenAddr:              a.cfg.Server.ListenAddr,
		Coordinator:             a.coordinator,
		Store:                   a.store,
		Bus:                     a.bus,
		Searcher:                a.searcher,
		Protocol:                a.protocol,
		Splitter:                a.normalizer(),
		Checkers:                checkers,
		Metrics:                 a.metrics,
		RecordingSegmentSeconds: a.cfg.Recording.SegmentSeconds,
	}
	if tls := a.cfg.Server.TLS; tls != nil {
		cfg.TLSCertFile = tls.CertFile
		cfg.TLSKeyFile = tls.KeyFile
	}

	srv, err := server.New(cfg)
	if err != nil {
		return err
	}
	a.srv = srv
	return nil
}

// normalizer builds the ffmpeg front end from the recording config. The
// binaries are resolved lazily, so this is cheap to call more than once.
func (a *App) normalizer() *normalize.FFmpeg {
	var nopts []normalize.Option
	if a.cfg.Recording.FFmpegPath != "" {
		nopts = append(nopts, normalize.WithBinary(a.cfg.Recording.FFmpegPath))
	}
	if a.cfg.Recording.FFprobePath != "" {
		nopts = append(nopts, normalize.WithProbeBinary(a.cfg.Recording.FFprobePath))
	}
	return normalize.New(nopts...)
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves the HTTP API and blocks until ctx is cancelled or the server
// fails.
func (a *App) Run(ctx context.Context) error {
	slog.Info("app running",
		"store", fmt.Sprintf("%T", a.store),
		"search", a.searcher != nil,
		"analysis", a.analyzer != nil,
	)
	return a.srv.Run(ctx)
}

// Server exposes the HTTP server. Used by tests to reach the handler without
// binding a socket.
func (a *App) Server() *server.Server {
	return a.srv
}

// ApplyConfig applies a hot-reloadable config diff to the running app.
// Restart-only changes are logged and skipped.
func (a *App) ApplyConfig(d config.ConfigDiff) {
	if !d.AnalysisChanged {
		return
	}
	if a.analyzer != nil && d.NewAnalysis.MinConfidence > 0 {
		a.analyzer.SetMinConfidence(d.NewAnalysis.MinConfidence)
		slog.Info("applied new confidence floor", "min_confidence", d.NewAnalysis.MinConfidence)
	}
	if a.coach != nil && d.NewAnalysis.CooldownSeconds > 0 {
		a.coach.SetCooldown(time.Duration(d.NewAnalysis.CooldownSeconds) * time.Second)
		slog.Info("applied new intervention cooldown", "cooldown_seconds", d.NewAnalysis.CooldownSeconds)
	}
	if d.NewAnalysis.WindowSize != a.cfg.Analysis.WindowSize {
		slog.Warn("analysis.window_size changed; restart required to apply")
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown stops the HTTP server, then tears down all subsystems in
// reverse-init order. It respects the context deadline: if ctx expires before
// all closers finish, remaining closers are skipped and the context error is
// returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		if err := a.srv.Shutdown(ctx); err != nil {
			slog.Warn("http shutdown error", "err", err)
		}

		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := a.closers[i](); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
