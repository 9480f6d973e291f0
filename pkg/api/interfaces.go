// Package api provides interfaces for dependency injection
package api

import (
	"context"

	"github.com/ssargent/aora/pkg/config"
)

// ServiceFactory creates record services
type ServiceFactory interface {
	// CreateService opens the record store described by cfg
	CreateService(cfg *config.Config, opts ServiceOptions) (*Service, error)
}

// ServerStarter defines the interface for starting the API server
type ServerStarter interface {
	// StartServer serves the record API until ctx is cancelled
	StartServer(ctx context.Context, service *Service, cfg *config.Config, opts ServerOptions) error
}

// ServerFactory creates server instances
type ServerFactory interface {
	// CreateServerStarter creates a server starter
	CreateServerStarter() ServerStarter
}
