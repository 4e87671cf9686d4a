package aggregator

import (
	"context"

	"metamcp/internal/store"
	"metamcp/pkg/logging"
	pkgstrings "metamcp/pkg/strings"
)

// StoreResolver resolves sanitized server-name prefixes to server UUIDs via
// the config store. Inactive servers resolve too, so a filter can reason
// about tools of a server that was just deactivated.
type StoreResolver struct {
	configs store.ServerConfigStore
}

// NewStoreResolver creates a resolver over a config store.
func NewStoreResolver(configs store.ServerConfigStore) *StoreResolver {
	return &StoreResolver{configs: configs}
}

// ResolveServerPrefix returns the UUID of the namespace's server whose
// sanitized name equals prefix. Lookup failures resolve to not-found; the
// filter treats that as fail-open.
func (r *StoreResolver) ResolveServerPrefix(ctx context.Context, namespaceUUID, sanitizedPrefix string) (string, bool) {
	configs, err := r.configs.ListByNamespace(ctx, namespaceUUID, true)
	if err != nil {
		logging.Warn("StoreResolver", "Failed to list servers for namespace %s: %v", namespaceUUID, err)
		return "", false
	}

	for serverUUID, cfg := range configs {
		if pkgstrings.Sanitize(cfg.Name) == sanitizedPrefix {
			return serverUUID, true
		}
	}
	return "", false
}
