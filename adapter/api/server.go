// Package api exposes the scheduling use cases over HTTP.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/diaguru/diaguru/internal/scheduling/application/commands"
	"github.com/diaguru/diaguru/pkg/config"
)

// Server is the HTTP front of the scheduler.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer builds the server with all routes registered.
func NewServer(
	cfg config.ServerConfig,
	ingest *commands.IngestCaptureHandler,
	schedule *commands.ScheduleCaptureHandler,
	undo *commands.UndoPlanHandler,
	logger *slog.Logger,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	handlers := &Handlers{
		ingest:   ingest,
		schedule: schedule,
		undo:     undo,
		logger:   logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", handlers.Health)
	mux.HandleFunc("POST /api/v1/captures", handlers.IngestCapture)
	mux.HandleFunc("POST /api/v1/captures/{captureID}/schedule", handlers.ScheduleCapture)
	mux.HandleFunc("POST /api/v1/captures/{captureID}/complete", handlers.CompleteCapture)
	mux.HandleFunc("POST /api/v1/plans/{planID}/undo", handlers.UndoPlan)

	return &Server{
		httpServer: &http.Server{
			Addr:         cfg.Addr(),
			Handler:      requestLogger(mux, logger),
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		logger: logger,
	}
}

// Start blocks serving requests until Shutdown or a listener error.
func (s *Server) Start() error {
	s.logger.Info("http server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func requestLogger(next http.Handler, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration_ms", time.Since(start).Milliseconds())
	})
}
