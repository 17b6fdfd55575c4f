package registry

import (
	"fmt"

	"github.com/stracadev/straca/pkg/dispatcher"
	"github.com/stracadev/straca/pkg/semver"
)

// Lookup resolves a service reference and operation name to a handler.
// service may carry a version range ("caw@1", "stracatore@^1.2.0"); a versioned
// reference only matches a registered service whose version satisfies the range.
// Failures are *RegistryError values.
func (r *Registry) Lookup(service, operation string) (dispatcher.Handler, error) {
	if service == "" {
		return nil, NewRegistryError(CodeServiceNotFound, "service not found: (empty)")
	}
	ref, err := semver.ParseServiceRef(service)
	if err != nil {
		return nil, NewRegistryError(CodeInvalidArgument, fmt.Sprintf("invalid service reference: %s", service))
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.byName[ref.Name]
	if !ok {
		return nil, NewRegistryError(CodeServiceNotFound, fmt.Sprintf("service not found: %s", ref.Name))
	}

	if ref.Range != "" && (entry.version == "" || !semver.SatisfiesRange(entry.version, ref.Range)) {
		return nil, NewRegistryError(CodeVersionMismatch,
			fmt.Sprintf("service version not found: %s (registered %q)", ref.Raw, entry.version))
	}

	op, ok := entry.byName[operation]
	if !ok {
		return nil, NewRegistryError(CodeOperationNotFound, fmt.Sprintf("operation not found: %s.%s", ref.Name, operation))
	}
	return op.Handler, nil
}
