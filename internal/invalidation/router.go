package invalidation

import (
	"context"

	"metamcp/internal/filter"
	"metamcp/internal/mcpserver"
	"metamcp/internal/store"
	"metamcp/pkg/logging"
)

// McpPoolOps is the connection-pool surface the router drives.
type McpPoolOps interface {
	EnsureIdleForNewServer(ctx context.Context, serverUUID string, cfg mcpserver.ServerConfig)
	InvalidateIdleSession(ctx context.Context, serverUUID string, newConfig mcpserver.ServerConfig)
	CleanupIdleSession(serverUUID string)
}

// MetaPoolOps is the composite-pool surface the router drives.
type MetaPoolOps interface {
	EnsureIdleForNewNamespace(ctx context.Context, namespaceUUID string)
	InvalidateIdleServer(ctx context.Context, namespaceUUID string)
	InvalidateIdleServers(ctx context.Context, namespaceUUIDs []string)
	CleanupIdleServer(namespaceUUID string)
	InvalidateOpenApiSessions(ctx context.Context, namespaceUUIDs []string)
}

// EndpointInvalidator releases a namespace's wire-transport binding so the
// next request rebinds against the current definitions.
type EndpointInvalidator interface {
	InvalidateEndpoint(namespaceUUID string)
}

// Router translates store mutations into the minimal pool refresh calls.
// Every method is fire-and-forget: the mutation has already committed, so
// refresh problems are logged, never surfaced.
type Router struct {
	mcpPool    McpPoolOps
	metaPool   MetaPoolOps
	namespaces store.NamespaceStore
	cache      *filter.Cache
	endpoints  EndpointInvalidator
}

// NewRouter creates a router. cache may be nil when no filter is in play.
func NewRouter(mcpPool McpPoolOps, metaPool MetaPoolOps, namespaces store.NamespaceStore, cache *filter.Cache) *Router {
	return &Router{
		mcpPool:    mcpPool,
		metaPool:   metaPool,
		namespaces: namespaces,
		cache:      cache,
	}
}

// WithEndpoints registers the endpoint host so namespace refreshes also drop
// its wire-transport bindings. Returns the router for chaining.
func (r *Router) WithEndpoints(endpoints EndpointInvalidator) *Router {
	r.endpoints = endpoints
	return r
}

// dropEndpoint releases the wire binding for a namespace whose composite just
// became stale. Without this, long-lived SSE and streamable sessions would
// keep serving the pre-mutation tool set.
func (r *Router) dropEndpoint(namespaceUUID string) {
	if r.endpoints != nil {
		r.endpoints.InvalidateEndpoint(namespaceUUID)
	}
}

// ServerCreated warms an idle connection for a brand-new server.
func (r *Router) ServerCreated(ctx context.Context, cfg mcpserver.ServerConfig) {
	logging.Debug("Invalidation", "Server created: %s (%s)", cfg.Name, cfg.UUID)
	r.mcpPool.EnsureIdleForNewServer(ctx, cfg.UUID, cfg)
}

// ServerUpdated swaps the server's idle connection to the new config and
// refreshes every namespace composite that references it.
func (r *Router) ServerUpdated(ctx context.Context, cfg mcpserver.ServerConfig) {
	logging.Debug("Invalidation", "Server updated: %s (%s)", cfg.Name, cfg.UUID)
	r.mcpPool.InvalidateIdleSession(ctx, cfg.UUID, cfg)
	r.refreshAffectedNamespaces(ctx, cfg.UUID)
}

// ServerDeleted drops the server's idle connection and refreshes the
// namespaces that referenced it. Call before removing the server from the
// store so affected namespaces can still be found.
func (r *Router) ServerDeleted(ctx context.Context, serverUUID string) {
	logging.Debug("Invalidation", "Server deleted: %s", serverUUID)
	r.mcpPool.CleanupIdleSession(serverUUID)
	r.refreshAffectedNamespaces(ctx, serverUUID)
}

func (r *Router) refreshAffectedNamespaces(ctx context.Context, serverUUID string) {
	affected, err := r.namespaces.FindNamespacesContainingServer(ctx, serverUUID)
	if err != nil {
		logging.Error("Invalidation", err, "Failed to find namespaces containing server %s", serverUUID)
		return
	}
	if len(affected) == 0 {
		return
	}
	r.metaPool.InvalidateIdleServers(ctx, affected)
	r.metaPool.InvalidateOpenApiSessions(ctx, affected)
	for _, namespaceUUID := range affected {
		r.dropEndpoint(namespaceUUID)
	}
}

// NamespaceCreated warms an idle composite for a brand-new namespace.
func (r *Router) NamespaceCreated(ctx context.Context, namespaceUUID string) {
	logging.Debug("Invalidation", "Namespace created: %s", namespaceUUID)
	r.metaPool.EnsureIdleForNewNamespace(ctx, namespaceUUID)
}

// NamespaceUpdated refreshes a namespace's composites after its server list
// or attributes changed.
func (r *Router) NamespaceUpdated(ctx context.Context, namespaceUUID string) {
	logging.Debug("Invalidation", "Namespace updated: %s", namespaceUUID)
	r.metaPool.InvalidateIdleServer(ctx, namespaceUUID)
	r.metaPool.InvalidateOpenApiSessions(ctx, []string{namespaceUUID})
	r.dropEndpoint(namespaceUUID)
}

// NamespaceDeleted drops a namespace's composites without rebuilding.
func (r *Router) NamespaceDeleted(ctx context.Context, namespaceUUID string) {
	logging.Debug("Invalidation", "Namespace deleted: %s", namespaceUUID)
	r.metaPool.CleanupIdleServer(namespaceUUID)
	r.metaPool.InvalidateOpenApiSessions(ctx, []string{namespaceUUID})
	r.dropEndpoint(namespaceUUID)
}

// ServerStatusToggled refreshes a namespace after a server mapping was
// activated or deactivated inside it.
func (r *Router) ServerStatusToggled(ctx context.Context, namespaceUUID string) {
	logging.Debug("Invalidation", "Server status toggled in namespace %s", namespaceUUID)
	r.metaPool.InvalidateIdleServer(ctx, namespaceUUID)
	r.metaPool.InvalidateOpenApiSessions(ctx, []string{namespaceUUID})
	r.dropEndpoint(namespaceUUID)
}

// ToolStatusToggled drops cached filter decisions for the namespace so the
// toggle takes effect before the TTL would expire it.
func (r *Router) ToolStatusToggled(namespaceUUID string) {
	logging.Debug("Invalidation", "Tool status toggled in namespace %s", namespaceUUID)
	if r.cache != nil {
		r.cache.ClearNamespace(namespaceUUID)
	}
}

// ToolsBulkRefreshed refreshes everything derived from a namespace's tool
// set: composites, OpenAPI composite, and cached filter decisions.
func (r *Router) ToolsBulkRefreshed(ctx context.Context, namespaceUUID string) {
	logging.Debug("Invalidation", "Tools bulk-refreshed in namespace %s", namespaceUUID)
	r.metaPool.InvalidateIdleServer(ctx, namespaceUUID)
	r.metaPool.InvalidateOpenApiSessions(ctx, []string{namespaceUUID})
	r.dropEndpoint(namespaceUUID)
	if r.cache != nil {
		r.cache.ClearNamespace(namespaceUUID)
	}
}
