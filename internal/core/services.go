package core

import (
	"github.com/go-chi/chi/v5"
)

// Service is an HTTP surface mounted by the edge router under "/<Name()>".
type Service interface {
	// Name returns the unique identifier for this service (e.g., "mirror").
	// It is also the path prefix the service is mounted under.
	Name() string

	// RegisterRoutes sets up HTTP routes for this service on the provided router.
	// The router is a sub-router scoped to this service's path prefix.
	RegisterRoutes(router chi.Router)
}

// Registry holds the services a server exposes, in registration order.
// It is built by the caller and handed to the router; there is no package-level registry.
type Registry struct {
	services []Service
}

// NewRegistry creates a registry with the given services.
func NewRegistry(services ...Service) *Registry {
	r := &Registry{}
	for _, s := range services {
		r.Register(s)
	}
	return r
}

// Register adds a service.
func (r *Registry) Register(s Service) {
	r.services = append(r.services, s)
}

// Services returns all registered services.
func (r *Registry) Services() []Service {
	return r.services
}
