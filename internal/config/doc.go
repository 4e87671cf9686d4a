// Package config defines the runtime configuration for metamcp and its
// loader.
//
// Configuration is layered: built-in defaults, then an optional YAML file,
// then environment variable overrides. The environment names mirror the
// options the pool recognizes (IDLE_COUNT_PER_SERVER, FILTER_CACHE_TTL_MS,
// MAX_LOG_ENTRIES, CONNECT_RETRIES, CONNECT_RETRY_DELAY_MS,
// TRANSFORM_LOCALHOST_TO_DOCKER_INTERNAL).
package config
