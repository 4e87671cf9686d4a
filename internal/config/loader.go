package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"metamcp/pkg/logging"

	"gopkg.in/yaml.v3"
)

// Environment variable names recognized on top of the config file.
const (
	EnvTransformLocalhost = "TRANSFORM_LOCALHOST_TO_DOCKER_INTERNAL"
	EnvIdleCountPerServer = "IDLE_COUNT_PER_SERVER"
	EnvFilterCacheTTLMs   = "FILTER_CACHE_TTL_MS"
	EnvMaxLogEntries      = "MAX_LOG_ENTRIES"
	EnvConnectRetries     = "CONNECT_RETRIES"
	EnvConnectRetryDelay  = "CONNECT_RETRY_DELAY_MS"
)

// LoadConfig loads configuration from the given YAML file, starting from the
// built-in defaults and finishing with environment overrides. A missing file
// is not an error; the defaults (plus environment) are returned.
func LoadConfig(path string) (MetaConfig, error) {
	cfg := GetDefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			logging.Info("ConfigLoader", "No config file at %s, using defaults", path)
		case err != nil:
			return MetaConfig{}, fmt.Errorf("error reading config from %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return MetaConfig{}, fmt.Errorf("error loading config from %s: %w", path, err)
			}
			logging.Info("ConfigLoader", "Loaded configuration from %s", path)
		}
	}

	applyEnvOverrides(&cfg)
	normalize(&cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *MetaConfig) {
	if v, ok := os.LookupEnv(EnvTransformLocalhost); ok {
		cfg.TransformLocalhostToDockerInternal = v == "true"
	}
	if n, ok := lookupInt(EnvIdleCountPerServer); ok && n >= 0 {
		cfg.Pool.IdleCountPerServer = n
	}
	if n, ok := lookupInt(EnvFilterCacheTTLMs); ok && n > 0 {
		cfg.Filter.CacheTTL = time.Duration(n) * time.Millisecond
	}
	if n, ok := lookupInt(EnvMaxLogEntries); ok && n > 0 {
		cfg.Log.MaxEntries = n
	}
	if n, ok := lookupInt(EnvConnectRetries); ok && n > 0 {
		cfg.Pool.ConnectRetries = n
	}
	if n, ok := lookupInt(EnvConnectRetryDelay); ok && n >= 0 {
		cfg.Pool.ConnectRetryDelay = time.Duration(n) * time.Millisecond
	}
}

func lookupInt(name string) (int, bool) {
	v, ok := os.LookupEnv(name)
	if !ok || v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		logging.Warn("ConfigLoader", "Ignoring %s=%q: not an integer", name, v)
		return 0, false
	}
	return n, true
}

// normalize backfills zero values that would otherwise disable a subsystem.
func normalize(cfg *MetaConfig) {
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.Pool.ConnectRetries < 1 {
		cfg.Pool.ConnectRetries = DefaultConnectRetries
	}
	if cfg.Pool.ConnectRetryDelay < 0 {
		cfg.Pool.ConnectRetryDelay = DefaultConnectRetryDelay
	}
	if cfg.Filter.CacheTTL <= 0 {
		cfg.Filter.CacheTTL = DefaultFilterCacheTTL
	}
	if cfg.Filter.InactiveMessage == "" {
		cfg.Filter.InactiveMessage = DefaultInactiveMessage
	}
	if cfg.Log.MaxEntries < 1 {
		cfg.Log.MaxEntries = DefaultMaxLogEntries
	}
}
