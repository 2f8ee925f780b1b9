package entity

import (
	"sort"

	"github.com/opsdesk/opsdesk/internal/pkg/apperr"
)

// Registry resolves entity services by type name. The API layer and form
// pages look services up here instead of holding ambient singletons.
type Registry struct {
	services map[string]*Service
}

func NewRegistry() *Registry {
	return &Registry{services: make(map[string]*Service)}
}

// Register adds a service under its type name.
func (r *Registry) Register(svc *Service) {
	r.services[svc.TypeName()] = svc
}

// Lookup returns the service for a type name.
func (r *Registry) Lookup(typeName string) (*Service, error) {
	svc, ok := r.services[typeName]
	if !ok {
		return nil, apperr.NotFound("unknown entity type " + typeName)
	}
	return svc, nil
}

// Types returns the registered type names, sorted.
func (r *Registry) Types() []string {
	types := make([]string, 0, len(r.services))
	for name := range r.services {
		types = append(types, name)
	}
	sort.Strings(types)
	return types
}
