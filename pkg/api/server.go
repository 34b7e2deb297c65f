package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/openfroyo/stowage/pkg/engine"
	"github.com/openfroyo/stowage/pkg/ingest"
	"github.com/openfroyo/stowage/pkg/stores"
	"github.com/openfroyo/stowage/pkg/telemetry"
)

// Config holds HTTP server settings.
type Config struct {
	Address         string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	// MaxBodyBytes limits request bodies.
	MaxBodyBytes int64

	// Retain is the number of snapshots kept after each mutation.
	Retain int
}

// DefaultConfig returns the server defaults.
func DefaultConfig() Config {
	return Config{
		Address:         ":8000",
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    15 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		MaxBodyBytes:    10 << 20,
		Retain:          20,
	}
}

// Server exposes the engine over HTTP.
type Server struct {
	cfg     Config
	eng     *engine.Engine
	tel     *telemetry.Telemetry
	store   stores.Store
	schemas *ingest.SchemaRegistry
	logger  zerolog.Logger
	mux     *http.ServeMux
	handler http.Handler
	server  *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithTelemetry attaches logging, tracing, metrics and events.
func WithTelemetry(tel *telemetry.Telemetry) Option {
	return func(s *Server) {
		s.tel = tel
	}
}

// WithStore persists a snapshot and an audit entry after every mutation.
func WithStore(store stores.Store) Option {
	return func(s *Server) {
		s.store = store
	}
}

// WithSchemas validates imported records against CUE schemas before they
// reach the engine.
func WithSchemas(schemas *ingest.SchemaRegistry) Option {
	return func(s *Server) {
		s.schemas = schemas
	}
}

// New creates a server for eng. Without WithTelemetry, a quiet telemetry
// instance is created.
func New(eng *engine.Engine, cfg Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg: cfg,
		eng: eng,
		mux: http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.tel == nil {
		tel, err := telemetry.NewTelemetry(telemetry.TestConfig())
		if err != nil {
			return nil, fmt.Errorf("failed to create telemetry: %w", err)
		}
		s.tel = tel
	}
	s.logger = s.tel.Logger.NewComponentLogger("api").Zerolog()

	if s.cfg.MaxBodyBytes <= 0 {
		s.cfg.MaxBodyBytes = DefaultConfig().MaxBodyBytes
	}
	if s.cfg.Retain <= 0 {
		s.cfg.Retain = DefaultConfig().Retain
	}

	s.routes()
	s.handler = s.withTelemetryContext(s.mux)
	return s, nil
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Address, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.server = &http.Server{
		Handler:      s.handler,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", ln.Addr().String()).Msg("Starting API server")
		errCh <- s.server.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("api server failed: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info().Msg("Shutting down API server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down api server: %w", err)
	}
	return nil
}

// persist records the outcome of a mutating request. Failures are logged;
// the engine state has already changed and the response reflects it.
func (s *Server) persist(ctx context.Context, r *http.Request, action, target string, details interface{}) {
	s.tel.ObserveCatalogue(ctx, s.eng)

	if s.store == nil {
		return
	}

	if _, err := s.store.Checkpoint(ctx, s.eng.Snapshot, action); err != nil {
		s.logger.Error().Err(err).Str("action", action).Msg("Failed to save snapshot")
		return
	}
	if _, err := s.store.PruneSnapshots(ctx, s.cfg.Retain); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to prune snapshots")
	}

	entry := &stores.AuditEntry{
		Action:    action,
		Actor:     r.RemoteAddr,
		Timestamp: time.Now(),
	}
	if target != "" {
		entry.TargetID = &target
	}
	if blob := jsonString(details); blob != "" {
		entry.Details = &blob
	}
	if err := s.store.CreateAuditEntry(ctx, entry); err != nil {
		s.logger.Warn().Err(err).Str("action", action).Msg("Failed to write audit entry")
	}
}
