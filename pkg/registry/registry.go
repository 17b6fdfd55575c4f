package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/stracadev/straca/pkg/dispatcher"
	"github.com/stracadev/straca/pkg/semver"
)

const logPrefix = "registry:registry"

// HealthCheck probes one dependency. A nil error means healthy.
type HealthCheck func(ctx context.Context) error

// Registry maps (service, operation) pairs to handlers.
// Lookups are safe for concurrent use; registration is expected to precede traffic.
type Registry struct {
	mu       sync.RWMutex
	services []*serviceEntry
	byName   map[string]*serviceEntry
	checks   map[string]HealthCheck
}

type serviceEntry struct {
	name        string
	version     string
	description string
	operations  []*Operation
	byName      map[string]*Operation
}

// NewRegistryParams holds parameters for NewRegistry.
type NewRegistryParams struct {
	// Checks are run by Health, keyed by the name reported in HealthOutput.Checks.
	Checks map[string]HealthCheck
}

// NewRegistry creates a new, empty Registry.
func NewRegistry(params NewRegistryParams) *Registry {
	checks := make(map[string]HealthCheck, len(params.Checks))
	for name, c := range params.Checks {
		checks[name] = c
	}
	return &Registry{
		byName: make(map[string]*serviceEntry),
		checks: checks,
	}
}

// AddCheck installs or replaces a named health check.
func (r *Registry) AddCheck(name string, check HealthCheck) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checks[name] = check
}

// AddService registers every operation of svc. When the service already exists its
// operations are merged: a duplicate operation name replaces the handler and metadata
// in place, new names are appended.
func (r *Registry) AddService(svc Service) error {
	b := r.ConfigureService(svc.Name)
	if svc.Version != "" {
		b.Version(svc.Version)
	}
	if svc.Description != "" {
		b.Describe(svc.Description)
	}
	for _, op := range svc.Operations {
		b.Handle(op.Name, op.Handler, op.Metadata)
	}
	return b.Err()
}

// Register adds or replaces a single operation.
func (r *Registry) Register(service, operation string, h dispatcher.Handler, meta ...Metadata) error {
	return r.ConfigureService(service).Handle(operation, h, meta...).Err()
}

// ConfigureService returns a builder that registers operations on the named service,
// creating the service on first use.
func (r *Registry) ConfigureService(name string) *ServiceBuilder {
	b := &ServiceBuilder{registry: r, name: name}
	if !semver.ValidateName(name) {
		b.err = fmt.Errorf("%s - invalid service name %q", logPrefix, name)
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byName[name]; !ok {
		entry := &serviceEntry{name: name, byName: make(map[string]*Operation)}
		r.services = append(r.services, entry)
		r.byName[name] = entry
		slog.Debug(fmt.Sprintf("%s - service added: %s", logPrefix, name))
	}
	return b
}

// ServiceBuilder registers operations incrementally on one service.
// The first error is kept and returned by Err; later calls become no-ops.
type ServiceBuilder struct {
	registry *Registry
	name     string
	err      error
}

// Version sets the service version. It must be a valid semantic version.
func (b *ServiceBuilder) Version(v string) *ServiceBuilder {
	if b.err != nil {
		return b
	}
	canonical, err := semver.ValidateVersion(v)
	if err != nil {
		b.err = fmt.Errorf("%s - service %s: %w", logPrefix, b.name, err)
		return b
	}
	b.registry.withService(b.name, func(e *serviceEntry) { e.version = canonical })
	return b
}

// Describe sets the service description.
func (b *ServiceBuilder) Describe(text string) *ServiceBuilder {
	if b.err != nil {
		return b
	}
	b.registry.withService(b.name, func(e *serviceEntry) { e.description = text })
	return b
}

// Handle adds or replaces the named operation. Only the first Metadata is used.
func (b *ServiceBuilder) Handle(operation string, h dispatcher.Handler, meta ...Metadata) *ServiceBuilder {
	if b.err != nil {
		return b
	}
	if !semver.ValidateName(operation) {
		b.err = fmt.Errorf("%s - invalid operation name %q in service %s", logPrefix, operation, b.name)
		return b
	}
	if h == nil {
		b.err = fmt.Errorf("%s - nil handler for %s.%s", logPrefix, b.name, operation)
		return b
	}

	var md Metadata
	if len(meta) > 0 {
		md = meta[0]
	}

	b.registry.withService(b.name, func(e *serviceEntry) {
		if existing, ok := e.byName[operation]; ok {
			existing.Handler = h
			existing.Metadata = md
			slog.Debug(fmt.Sprintf("%s - operation replaced: %s.%s", logPrefix, b.name, operation))
			return
		}
		op := &Operation{Name: operation, Handler: h, Metadata: md}
		e.operations = append(e.operations, op)
		e.byName[operation] = op
	})
	return b
}

// Err returns the first error raised by the builder.
func (b *ServiceBuilder) Err() error {
	return b.err
}

func (r *Registry) withService(name string, fn func(e *serviceEntry)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.byName[name]; ok {
		fn(e)
	}
}

// Services returns the registered service names in registration order.
func (r *Registry) Services() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.services))
	for _, s := range r.services {
		names = append(names, s.name)
	}
	return names
}
