// ABOUTME: HTTP server exposing campaign runs, run history and provider state
// ABOUTME: Owns listener lifecycle, background runs and graceful shutdown

package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/2389/adbrain/internal/config"
	"github.com/2389/adbrain/internal/pipeline"
	"github.com/2389/adbrain/internal/store"
)

// Server serves the campaign API on top of a Pipeline.
type Server struct {
	config      *config.Config
	pipeline    *pipeline.Pipeline
	store       store.Store
	broadcaster *RunBroadcaster
	httpServer  *http.Server
	logger      *slog.Logger

	// runCtx parents background runs; it outlives individual requests.
	runCtx    context.Context
	cancelRun context.CancelFunc
	runs      sync.WaitGroup
}

// New creates a Server. It takes ownership of the pipeline and its store.
func New(cfg *config.Config, p *pipeline.Pipeline, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	runCtx, cancel := context.WithCancel(context.Background())
	s := &Server{
		config:      cfg,
		pipeline:    p,
		store:       p.Store(),
		broadcaster: NewRunBroadcaster(logger),
		logger:      logger.With("component", "server"),
		runCtx:      runCtx,
		cancelRun:   cancel,
	}
	s.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /health/ready", s.handleReady)
	mux.HandleFunc("POST /api/campaigns", s.handleCreateCampaign)
	mux.HandleFunc("GET /api/campaigns", s.handleListCampaigns)
	mux.HandleFunc("GET /api/campaigns/{id}", s.handleGetCampaign)
	mux.HandleFunc("GET /api/campaigns/{id}/events", s.handleCampaignEvents)
	mux.HandleFunc("GET /api/providers", s.handleProviders)
	return mux
}

// Run starts the HTTP server and blocks until the context is canceled.
// Returns nil on graceful shutdown, or an error if the server fails.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on HTTP address: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errCh := s.startServer(ln)
	serverErr := s.waitForShutdownSignal(ctx, errCh)

	shutdownErr := s.gracefulShutdown()

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

func (s *Server) startServer(ln net.Listener) chan error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening",
			"addr", ln.Addr().String(),
			"stages", s.pipeline.Stages(),
		)
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()
	return errCh
}

// waitForShutdownSignal waits for context cancellation or server error.
func (s *Server) waitForShutdownSignal(ctx context.Context, errCh chan error) error {
	select {
	case <-ctx.Done():
		s.logger.Info("context canceled, initiating shutdown")
		return nil
	case err := <-errCh:
		s.logger.Error("server error", "error", err)
		return err
	}
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
func (s *Server) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.Shutdown(ctx)
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown stops accepting requests, cancels background runs and waits for
// them within ctx, then closes the pipeline and store.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", s.httpServer.Shutdown(ctx))

	s.cancelRun()
	done := make(chan struct{})
	go func() {
		s.runs.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		errs = appendCloseError(errs, "background runs", ctx.Err())
	}

	s.broadcaster.Close()
	errs = appendCloseError(errs, "pipeline close", s.pipeline.Close(ctx))
	errs = appendCloseError(errs, "store close", s.store.Close())

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}

// handleHealth returns 200 OK if the server is alive.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK if at least one provider can currently be tried.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	health := s.pipeline.Gateway().Health()
	available := 0
	for _, d := range s.pipeline.Chain() {
		if health.Ready(d.Name) {
			available++
		}
	}
	if available == 0 {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("no providers available"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "ready (%d providers)", available)
}
