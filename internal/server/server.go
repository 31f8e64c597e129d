// Package server exposes the meeting facilitation API over HTTP: meeting
// lifecycle and plan submission, chunk ingestion, transcript search, the
// post-meeting protocol, and a per-meeting websocket event stream.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/stageleft/convoke/internal/bus"
	"github.com/stageleft/convoke/internal/health"
	"github.com/stageleft/convoke/internal/meeting"
	"github.com/stageleft/convoke/internal/normalize"
	"github.com/stageleft/convoke/internal/observe"
	"github.com/stageleft/convoke/internal/protocol"
	"github.com/stageleft/convoke/internal/search"
)

const (
	// maxChunkUploadBytes bounds a single chunk upload.
	maxChunkUploadBytes = 32 << 20 // 32 MiB

	// maxRecordingUploadBytes bounds a full-recording upload.
	maxRecordingUploadBytes = 512 << 20 // 512 MiB

	readHeaderTimeout = 10 * time.Second
)

// Config collects the dependencies of a [Server]. Coordinator, Store, and Bus
// are required; the rest degrade gracefully when nil.
type Config struct {
	ListenAddr string

	// TLSCertFile and TLSKeyFile enable HTTPS when both are set.
	TLSCertFile string
	TLSKeyFile  string

	Coordinator *meeting.Coordinator
	Store       meeting.Store
	Bus         *bus.Bus

	// Searcher answers transcript search queries. Nil disables the endpoint.
	Searcher *search.Index

	// Protocol generates post-meeting protocols. Nil disables the endpoint.
	Protocol *protocol.Generator

	// Splitter cuts uploaded full recordings into chunks. Nil disables
	// recording uploads.
	Splitter *normalize.FFmpeg

	// Checkers back the /readyz endpoint.
	Checkers []health.Checker

	Metrics *observe.Metrics

	// RecordingSegmentSeconds is the chunk length used when splitting an
	// uploaded recording. Defaults to 30.
	RecordingSegmentSeconds float64
}

// Server is the HTTP front end. Create with [New], run with [Server.Run].
type Server struct {
	cfg     Config
	metrics *observe.Metrics
	httpSrv *http.Server
}

// New validates cfg and builds the server with all routes registered.
func New(cfg Config) (*Server, error) {
	if cfg.Coordinator == nil || cfg.Store == nil || cfg.Bus == nil {
		return nil, errors.New("server: coordinator, store, and bus are required")
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.RecordingSegmentSeconds <= 0 {
		cfg.RecordingSegmentSeconds = 30
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}

	s := &Server{cfg: cfg, metrics: metrics}
	s.httpSrv = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	return s, nil
}

// Handler returns the full route tree wrapped in the observability
// middleware. Exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/meetings", s.handleCreateMeeting)
	mux.HandleFunc("GET /v1/meetings", s.handleListMeetings)
	mux.HandleFunc("GET /v1/meetings/{id}", s.handleGetMeeting)
	mux.HandleFunc("POST /v1/meetings/{id}/start", s.handleStartMeeting)
	mux.HandleFunc("POST /v1/meetings/{id}/end", s.handleEndMeeting)
	mux.HandleFunc("POST /v1/meetings/{id}/extend", s.handleExtendMeeting)

	mux.HandleFunc("POST /v1/meetings/{id}/chunks", s.handleIngestChunk)
	mux.HandleFunc("GET /v1/meetings/{id}/chunks", s.handleListChunks)
	mux.HandleFunc("GET /v1/meetings/{id}/chunks/{seq}", s.handleGetChunk)
	mux.HandleFunc("GET /v1/meetings/{id}/chunks/{seq}/audio", s.handleGetChunkAudio)
	mux.HandleFunc("POST /v1/meetings/{id}/recording", s.handleIngestRecording)

	mux.HandleFunc("GET /v1/meetings/{id}/interventions", s.handleListInterventions)
	mux.HandleFunc("POST /v1/meetings/{id}/interventions/{iid}/displayed", s.handleDisplayIntervention)
	mux.HandleFunc("POST /v1/meetings/{id}/interventions/{iid}/dismiss", s.handleDismissIntervention)
	mux.HandleFunc("GET /v1/meetings/{id}/search", s.handleSearch)
	mux.HandleFunc("GET /v1/meetings/{id}/protocol", s.handleProtocol)
	mux.HandleFunc("GET /v1/meetings/{id}/events", s.handleEvents)

	health.New(s.cfg.Checkers...).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	return observe.Middleware(s.metrics)(mux)
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		useTLS := s.cfg.TLSCertFile != "" && s.cfg.TLSKeyFile != ""
		slog.Info("http server listening", "addr", s.cfg.ListenAddr, "tls", useTLS)
		var err error
		if useTLS {
			err = s.httpSrv.ListenAndServeTLS(s.cfg.TLSCertFile, s.cfg.TLSKeyFile)
		} else {
			err = s.httpSrv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

// Shutdown stops the server without waiting for ctx cancellation in Run.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}
