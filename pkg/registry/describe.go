package registry

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/stracadev/straca/pkg/dispatcher"
)

const describeLogPrefix = "registry:describe"

// Describe lists every service in registration order with its version, description
// and each operation's documentation metadata.
func (r *Registry) Describe() *DescribeOutput {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := &DescribeOutput{Services: make([]ServiceDescription, 0, len(r.services))}
	for _, s := range r.services {
		sd := ServiceDescription{
			Service:     s.name,
			Version:     s.version,
			Description: s.description,
			Operations:  make([]OperationDescription, 0, len(s.operations)),
		}
		for _, op := range s.operations {
			sd.Operations = append(sd.Operations, OperationDescription{Operation: op.Name, Metadata: op.Metadata})
		}
		out.Services = append(out.Services, sd)
	}
	return out
}

// RegisterSelf exposes the registry itself as a service with operations
// "describe" and "health".
func (r *Registry) RegisterSelf(name string) error {
	return r.ConfigureService(name).
		Describe("Straca service registry").
		Handle("describe", r.handleDescribe, Metadata{
			Description:       "Lists registered services and their operations",
			Response:          DescribeOutput{},
			ResponseRationale: "Services in registration order",
		}).
		Handle("health", r.handleHealth, Metadata{
			Description: "Reports dependency health",
			Response:    HealthOutput{},
		}).
		Err()
}

func (r *Registry) handleDescribe(_ context.Context, _ *dispatcher.Request, res *dispatcher.Response, _ *dispatcher.CallContext) error {
	out := r.Describe()
	slog.Debug(fmt.Sprintf("%s - services=%d", describeLogPrefix, len(out.Services)))
	res.Data = out
	return nil
}

func (r *Registry) handleHealth(ctx context.Context, _ *dispatcher.Request, res *dispatcher.Response, _ *dispatcher.CallContext) error {
	out := r.Health(ctx)
	res.Data = out
	res.OK = out.Status == StatusHealthy
	if !res.OK {
		res.Comment = "unhealthy"
	}
	return nil
}
