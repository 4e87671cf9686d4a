package config

import "time"

const (
	// DefaultHost is the bind host for endpoint listeners.
	DefaultHost = "localhost"
	// DefaultPort is the bind port for endpoint listeners.
	DefaultPort = 12008

	// DefaultIdleCountPerServer is the warm idle entries kept per server and
	// per namespace.
	DefaultIdleCountPerServer = 1
	// DefaultConnectRetries is the number of connection attempts per build.
	DefaultConnectRetries = 3
	// DefaultConnectRetryDelay is the fixed delay between attempts.
	DefaultConnectRetryDelay = 5 * time.Second

	// DefaultFilterCacheTTL is how long a resolved tool status stays valid.
	DefaultFilterCacheTTL = time.Second
	// DefaultInactiveMessage is the tool-result text for filtered calls. The
	// first %s receives the exposed tool name, the second the reason.
	DefaultInactiveMessage = `Tool "%s" is currently inactive and disallowed in this namespace: %s`

	// DefaultMaxLogEntries bounds the in-memory log store.
	DefaultMaxLogEntries = 1000
)

// GetDefaultConfig returns the built-in defaults. Loaded files and environment
// overrides are applied on top.
func GetDefaultConfig() MetaConfig {
	return MetaConfig{
		Host: DefaultHost,
		Port: DefaultPort,
		Pool: PoolConfig{
			IdleCountPerServer: DefaultIdleCountPerServer,
			ConnectRetries:     DefaultConnectRetries,
			ConnectRetryDelay:  DefaultConnectRetryDelay,
		},
		Filter: FilterConfig{
			CacheTTL:        DefaultFilterCacheTTL,
			InactiveMessage: DefaultInactiveMessage,
		},
		Log: LogConfig{
			MaxEntries: DefaultMaxLogEntries,
		},
	}
}
