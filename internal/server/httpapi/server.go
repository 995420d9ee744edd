// Package httpapi is the HTTP presentation layer: routing, middleware,
// request/response mapping. TLS termination is left to the fronting proxy.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/filedrop/filedrop/internal/logging"
)

const shutdownTimeout = 10 * time.Second

// Server wraps the http.Server with routing and graceful shutdown.
type Server struct {
	httpServer *http.Server
	logger     logging.Logger
}

// New assembles the router: observability middleware first, then the API
// routes and the operational endpoints.
func New(addr string, handler *Handler, logger logging.Logger) *Server {
	router := chi.NewRouter()

	router.Use(RequestLogger(logger))
	router.Use(Metrics())

	handler.Register(router)
	router.Method(http.MethodGet, "/metrics", promhttp.Handler())

	return &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      router,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 10 * time.Minute,
			IdleTimeout:  120 * time.Second,
		},
		logger: logger.With("component", "httpapi"),
	}
}

// Run serves until ctx is canceled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info(ctx, "http server started", "addr", s.httpServer.Addr)

		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	s.logger.Info(shutdownCtx, "http server shutting down")
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown error: %w", err)
	}

	s.logger.Info(shutdownCtx, "http server stopped")
	return nil
}
