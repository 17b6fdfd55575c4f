package registry

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

const healthLogPrefix = "registry:health"

// Health statuses.
const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
)

// Health runs every registered check and reports the aggregate status.
func (r *Registry) Health(ctx context.Context) *HealthOutput {
	r.mu.RLock()
	checks := make(map[string]HealthCheck, len(r.checks))
	for name, c := range r.checks {
		checks[name] = c
	}
	services := len(r.services)
	r.mu.RUnlock()

	results := make(map[string]bool, len(checks))
	status := StatusHealthy
	for name, check := range checks {
		ok := true
		if err := check(ctx); err != nil {
			slog.Warn(fmt.Sprintf("%s - check %s failed: %v", healthLogPrefix, name, err))
			ok = false
			status = StatusUnhealthy
		}
		results[name] = ok
	}

	return &HealthOutput{
		Status:    status,
		Checks:    results,
		Services:  services,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}
