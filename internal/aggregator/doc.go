// Package aggregator merges multiple back-end MCP servers into per-namespace
// composite servers.
//
// A CompositeServer fronts one namespace for one session: tools/list fans
// out to every participating server and merges the results under sanitized
// server-name prefixes (serverName__toolName); tools/call splits the prefix
// back off and routes to the owning server. Tool filtering and the inactive
// rejection message come from the filter package's middleware.
//
// MetaPool pools composites the same way the connection pool pools
// connections: one warm idle composite per namespace, promotion on session
// attach, background refill guarded by a creating set. Each namespace also
// gets a dedicated long-lived composite under the session ID
// openapi_<namespaceUuid> that serves the HTTP/OpenAPI surface.
package aggregator
