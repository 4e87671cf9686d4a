package warmup

import (
	"context"

	"metamcp/internal/mcpserver"
	"metamcp/internal/store"
	"metamcp/pkg/logging"
)

// SessionWarmer is the connection-pool surface the warmer drives.
type SessionWarmer interface {
	EnsureIdleSessions(ctx context.Context, configs map[string]mcpserver.ServerConfig)
}

// ServerWarmer is the composite-pool surface the warmer drives.
type ServerWarmer interface {
	EnsureIdleServers(ctx context.Context, namespaceUUIDs []string, includeInactive bool)
}

// Warmer pre-populates both pools at startup so the first real session gets
// warm connections. Partial failures inside the pools are logged there and
// never abort startup.
type Warmer struct {
	configs    store.ServerConfigStore
	namespaces store.NamespaceStore
	mcpPool    SessionWarmer
	metaPool   ServerWarmer
}

// New creates a warmer.
func New(configs store.ServerConfigStore, namespaces store.NamespaceStore, mcpPool SessionWarmer, metaPool ServerWarmer) *Warmer {
	return &Warmer{
		configs:    configs,
		namespaces: namespaces,
		mcpPool:    mcpPool,
		metaPool:   metaPool,
	}
}

// Run warms one idle connection per server, then one idle composite per
// namespace. Every defined server gets a warm connection, inactive mappings
// included, so a status flip finds one ready; composites are warmed with the
// active-only visibility the wire endpoints ask for.
func (w *Warmer) Run(ctx context.Context) error {
	serverConfigs, err := w.configs.ListAll(ctx)
	if err != nil {
		return err
	}

	byUUID := make(map[string]mcpserver.ServerConfig, len(serverConfigs))
	for _, cfg := range serverConfigs {
		byUUID[cfg.UUID] = cfg
	}
	logging.Info("Warmup", "Warming idle connections for %d servers", len(byUUID))
	w.mcpPool.EnsureIdleSessions(ctx, byUUID)

	namespaceUUIDs, err := w.namespaces.ListAllNamespaces(ctx)
	if err != nil {
		return err
	}
	logging.Info("Warmup", "Warming idle composites for %d namespaces", len(namespaceUUIDs))
	w.metaPool.EnsureIdleServers(ctx, namespaceUUIDs, false)

	return nil
}
