// Package api provides factory implementations for dependency injection
package api

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ssargent/aora/pkg/config"
	"github.com/ssargent/aora/pkg/metrics"
)

// ServerOptions carries the process-level collaborators of a server
type ServerOptions struct {
	Logger   *slog.Logger
	Metrics  *metrics.Recorder
	Gatherer prometheus.Gatherer
}

// DefaultServiceFactory is the default implementation of ServiceFactory
type DefaultServiceFactory struct{}

// NewServiceFactory creates a new service factory
func NewServiceFactory() ServiceFactory {
	return &DefaultServiceFactory{}
}

// CreateService opens the log file named by cfg
func (f *DefaultServiceFactory) CreateService(cfg *config.Config, opts ServiceOptions) (*Service, error) {
	return NewService(cfg, opts)
}

// DefaultServerFactory is the default implementation of ServerFactory
type DefaultServerFactory struct{}

// NewServerFactory creates a new server factory
func NewServerFactory() ServerFactory {
	return &DefaultServerFactory{}
}

// CreateServerStarter creates a server starter
func (f *DefaultServerFactory) CreateServerStarter() ServerStarter {
	return &DefaultServerStarter{}
}

// DefaultServerStarter is the default implementation of ServerStarter
type DefaultServerStarter struct{}

// StartServer starts the API server with the given configuration
func (s *DefaultServerStarter) StartServer(ctx context.Context, service *Service, cfg *config.Config, opts ServerOptions) error {
	serverConfig := ServerConfig{
		Bind:           cfg.Bind,
		Port:           cfg.Port,
		APIKey:         cfg.Security.APIKey,
		AllowedOrigins: cfg.CORSOrigins,
	}
	server := NewServer(service, serverConfig, opts.Metrics, opts.Logger)
	return StartServer(ctx, server, opts.Gatherer)
}
