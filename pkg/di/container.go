// Package di provides dependency injection container
package di

import (
	"github.com/ssargent/aora/pkg/api" //nolint:depguard
)

// Container holds all the dependencies for the application
type Container struct {
	serviceFactory api.ServiceFactory
	serverFactory  api.ServerFactory
}

// NewContainer creates a new dependency injection container
func NewContainer() *Container {
	return &Container{
		serviceFactory: api.NewServiceFactory(),
		serverFactory:  api.NewServerFactory(),
	}
}

// GetServiceFactory returns the record service factory
func (c *Container) GetServiceFactory() api.ServiceFactory {
	return c.serviceFactory
}

// GetServerFactory returns the server factory
func (c *Container) GetServerFactory() api.ServerFactory {
	return c.serverFactory
}

// SetServiceFactory allows overriding the service factory (for testing)
func (c *Container) SetServiceFactory(factory api.ServiceFactory) {
	c.serviceFactory = factory
}

// SetServerFactory allows overriding the server factory (for testing)
func (c *Container) SetServerFactory(factory api.ServerFactory) {
	c.serverFactory = factory
}
