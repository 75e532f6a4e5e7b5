// Package gateway exposes the interview orchestration core over HTTP: a
// WebSocket control plane for the client application plus health and metrics
// endpoints.
//
// Each WebSocket connection owns exactly one interview session. Control
// operations arrive as JSON messages; session state changes and synthesized
// speech are pushed back over the same connection.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/greenroom-ai/greenroom/internal/config"
	"github.com/greenroom-ai/greenroom/internal/health"
	"github.com/greenroom-ai/greenroom/internal/observe"
	"github.com/greenroom-ai/greenroom/pkg/provider/chat"
	"github.com/greenroom-ai/greenroom/pkg/provider/transcribe"
	"github.com/greenroom-ai/greenroom/pkg/provider/voice"
)

// SpeechEmit delivers one synthesized speech chunk to the connected client.
type SpeechEmit func(text string, pcm []byte, duration time.Duration)

// RendererFactory builds a per-connection voice renderer whose audio output
// flows through emit. Each connection gets its own renderer so concurrent
// interviews do not interleave audio.
type RendererFactory func(emit SpeechEmit) voice.Renderer

// Deps holds everything the gateway needs to run interviews.
type Deps struct {
	Config      *config.Config
	Chat        chat.Provider
	Transcriber transcribe.Provider
	NewRenderer RendererFactory
	Metrics     *observe.Metrics
	Health      *health.Handler

	// ConfigSource returns the configuration snapshot each new session is
	// built from. Wiring it to a config watcher makes hot-reloaded interview
	// tuning reach sessions started after the reload. When nil, the static
	// Config is used.
	ConfigSource func() *config.Config
}

// Server is the HTTP front of the interview engine.
type Server struct {
	deps Deps
}

// NewServer validates deps and returns a Server.
func NewServer(deps Deps) (*Server, error) {
	if deps.Config == nil {
		return nil, errors.New("gateway: config is required")
	}
	if deps.Chat == nil || deps.Transcriber == nil || deps.NewRenderer == nil {
		return nil, errors.New("gateway: chat, transcriber and renderer factory are required")
	}
	if deps.Metrics == nil {
		deps.Metrics = observe.DefaultMetrics()
	}
	if deps.Health == nil {
		deps.Health = health.New()
	}
	if deps.ConfigSource == nil {
		cfg := deps.Config
		deps.ConfigSource = func() *config.Config { return cfg }
	}
	return &Server{deps: deps}, nil
}

// Routes returns the full handler tree: the interview WebSocket, health
// probes, and the Prometheus scrape endpoint, all wrapped in the
// observability middleware.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws/interview", s.handleInterview)
	mux.Handle("GET /metrics", promhttp.Handler())
	s.deps.Health.Register(mux)
	return observe.Middleware(s.deps.Metrics)(mux)
}

// Run serves until ctx is cancelled, then drains connections.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.deps.Config.Server.ListenAddr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		var err error
		if tls := s.deps.Config.Server.TLS; tls != nil {
			err = srv.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	slog.Info("gateway: listening", "addr", srv.Addr)

	select {
	case err := <-errCh:
		return fmt.Errorf("gateway: serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("gateway: shutdown: %w", err)
	}
	return nil
}

// newSessionID builds a unique session identifier.
func newSessionID(now time.Time) string {
	return "interview-" + now.UTC().Format("20060102T150405.000Z")
}
