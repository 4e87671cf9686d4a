package config

import "time"

// MetaConfig is the top-level configuration structure for metamcp.
type MetaConfig struct {
	Host string `yaml:"host,omitempty"` // Host to bind endpoint listeners to (default: localhost)
	Port int    `yaml:"port,omitempty"` // Port for the endpoint listeners (default: 12008)

	Pool   PoolConfig   `yaml:"pool,omitempty"`
	Filter FilterConfig `yaml:"filter,omitempty"`
	Log    LogConfig    `yaml:"log,omitempty"`

	// TransformLocalhostToDockerInternal rewrites localhost/127.0.0.1 in
	// HTTP server URLs to host.docker.internal so a containerized metamcp can
	// reach servers on the host.
	TransformLocalhostToDockerInternal bool `yaml:"transformLocalhostToDockerInternal,omitempty"`
}

// PoolConfig controls connection-pool behavior shared by McpPool and MetaPool.
type PoolConfig struct {
	// IdleCountPerServer is the number of warm idle entries maintained per
	// back-end server and per namespace (default: 1).
	IdleCountPerServer int `yaml:"idleCountPerServer,omitempty"`

	// ConnectRetries is the number of connection attempts before a build
	// fails (default: 3).
	ConnectRetries int `yaml:"connectRetries,omitempty"`

	// ConnectRetryDelay is the fixed delay between connection attempts
	// (default: 5s).
	ConnectRetryDelay time.Duration `yaml:"connectRetryDelay,omitempty"`
}

// FilterConfig controls the per-namespace tool status filter.
type FilterConfig struct {
	// CacheTTL is how long a resolved tool status stays valid (default: 1s).
	CacheTTL time.Duration `yaml:"cacheTTL,omitempty"`

	// InactiveMessage is the template returned when a call targets an
	// INACTIVE tool. %s placeholders receive the tool name and the reason.
	InactiveMessage string `yaml:"inactiveMessage,omitempty"`
}

// LogConfig controls the in-memory log store.
type LogConfig struct {
	// MaxEntries bounds the event ring (default: 1000).
	MaxEntries int `yaml:"maxEntries,omitempty"`
}
