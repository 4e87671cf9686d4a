// Package pool implements the connection pool for back-end MCP servers.
//
// McpPool keeps one warm idle connection per server plus the active
// connections owned by client sessions. A session acquiring a server first
// promotes the idle entry when one exists; the vacated slot is refilled by a
// background build so the next session also gets a warm start. A creating
// set keeps at most one build in flight per server.
//
// The pool owns its connections exclusively. Closing a session closes that
// session's connections; nothing else reaches them.
package pool
