// Package api AORA REST API
//
// @title           AORA REST API
// @version         1.0.0
// @description     Append and read records of an append-only record store.
// @host            localhost:9300
// @BasePath        /api/v1
//
// @securityDefinitions.apikey ApiKeyAuth
// @in              header
// @name            X-API-Key
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const shutdownTimeout = 10 * time.Second

// Router builds the HTTP routes. gatherer serves /metrics; nil leaves the
// endpoint out.
func (s *Server) Router(gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)
	if len(s.config.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   s.config.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type", "X-API-Key"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}

	// Prometheus metrics endpoint (unprotected for scraping)
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Get("/swagger/doc.json", handleSwaggerDoc)

	r.Route("/api/v1", func(r chi.Router) {
		if s.config.APIKey != "" {
			r.Use(apiKeyMiddleware(s.config.APIKey))
		}

		r.Get("/health", s.instrument("GET", "/api/v1/health", s.handleHealth))
		r.Get("/stats", s.instrument("GET", "/api/v1/stats", s.handleStats))

		r.Post("/records", s.instrument("POST", "/api/v1/records", s.handleAppend))
		r.Get("/records", s.instrument("GET", "/api/v1/records", s.handleList))
		r.Get("/records/{key}", s.instrument("GET", "/api/v1/records/{key}", s.handleGet))
	})

	return r
}

func (s *Server) instrument(method, endpoint string, h http.HandlerFunc) http.HandlerFunc {
	if s.metrics == nil {
		return h
	}
	return s.metrics.InstrumentHandler(method, endpoint, h)
}

// Serve runs the HTTP server on listener until ctx is cancelled, then shuts
// it down gracefully
func (s *Server) Serve(ctx context.Context, listener net.Listener, gatherer prometheus.Gatherer) error {
	srv := &http.Server{
		Handler:           s.Router(gatherer),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(listener)
	}()

	s.logger.Info("serving record API", "addr", listener.Addr().String())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return nil
}

// StartServer listens on the configured address and serves service until
// ctx is cancelled
func StartServer(ctx context.Context, server *Server, gatherer prometheus.Gatherer) error {
	addr := net.JoinHostPort(server.config.Bind, strconv.Itoa(server.config.Port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return server.Serve(ctx, listener, gatherer)
}
