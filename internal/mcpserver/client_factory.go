package mcpserver

import (
	"fmt"

	"metamcp/pkg/logging"
)

// FactoryOptions tunes how clients are built from configs.
type FactoryOptions struct {
	// TransformLocalhostToDockerInternal rewrites localhost URLs to
	// host.docker.internal for HTTP transports.
	TransformLocalhostToDockerInternal bool
}

// NewClientFromConfig builds the transport-appropriate MCP client for a
// server config. The client is not yet connected; call Initialize on it.
func NewClientFromConfig(cfg ServerConfig, opts FactoryOptions) (MCPClient, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Kind {
	case KindStdio:
		cwd := cfg.Cwd
		if cwd == "" {
			cwd = AutodetectCwd(cfg.Args)
		}
		env := SanitizedEnv(cfg.Env)
		logging.Debug("ClientFactory", "Creating stdio client for %s (%s)", cfg.Name, cfg.UUID)
		return NewStdioClient(cfg.Command, cfg.Args, env, cwd, cfg.StderrMode), nil

	case KindSSE:
		url := cfg.URL
		if opts.TransformLocalhostToDockerInternal {
			url = RewriteDockerLocalhost(url)
		}
		logging.Debug("ClientFactory", "Creating SSE client for %s (%s)", cfg.Name, cfg.UUID)
		return NewSSEClient(url, authHeaders(cfg)), nil

	case KindStreamableHTTP:
		url := cfg.URL
		if opts.TransformLocalhostToDockerInternal {
			url = RewriteDockerLocalhost(url)
		}
		logging.Debug("ClientFactory", "Creating streamable HTTP client for %s (%s)", cfg.Name, cfg.UUID)
		return NewStreamableHTTPClient(url, authHeaders(cfg)), nil

	default:
		return nil, fmt.Errorf("server %s: %w: %s", cfg.UUID, ErrUnsupportedKind, cfg.Kind)
	}
}

func authHeaders(cfg ServerConfig) map[string]string {
	header := AuthorizationHeader(cfg)
	if header == "" {
		return nil
	}
	return map[string]string{"Authorization": header}
}
