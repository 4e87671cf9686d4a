// Package mcpserver provides the client side of metamcp's connection to
// back-end MCP tool servers.
//
// A ServerConfig describes one back-end server (stdio subprocess, SSE
// endpoint, or streamable HTTP endpoint). NewClientFromConfig builds the
// transport-appropriate MCPClient for a config, and Connector adds retry
// behavior, per-server logging, and stderr capture on top of that.
//
// Configs are treated as immutable values. Fingerprint identifies the
// connection-relevant subset of a config so that pooling layers can tell
// whether a cached connection still matches a (possibly renamed or
// re-tokened) config.
package mcpserver
