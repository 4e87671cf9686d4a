package mcpserver

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/mark3labs/mcp-go/mcp"
)

// ServerKind identifies the transport a back-end tool server speaks.
type ServerKind string

const (
	KindStdio          ServerKind = "STDIO"
	KindSSE            ServerKind = "SSE"
	KindStreamableHTTP ServerKind = "STREAMABLE_HTTP"
)

// StderrMode controls what happens to a stdio subprocess's stderr stream.
type StderrMode string

const (
	// StderrPipe streams stderr line-by-line into the log store. Default.
	StderrPipe StderrMode = "pipe"
	// StderrInherit passes stderr through to the metamcp process's stderr.
	StderrInherit StderrMode = "inherit"
	// StderrIgnore discards stderr.
	StderrIgnore StderrMode = "ignore"
)

// OAuthTokens carries tokens for HTTP back-ends behind an OAuth provider.
// AccessToken takes precedence over ServerConfig.BearerToken.
type OAuthTokens struct {
	AccessToken  string `json:"access_token" yaml:"accessToken"`
	RefreshToken string `json:"refresh_token,omitempty" yaml:"refreshToken,omitempty"`
}

// ServerConfig is an immutable value describing one back-end tool server.
// Fields outside the declared kind's branch are ignored.
type ServerConfig struct {
	UUID string     `yaml:"uuid"`
	Name string     `yaml:"name"`
	Kind ServerKind `yaml:"kind"`

	// STDIO branch.
	Command    string            `yaml:"command,omitempty"`
	Args       []string          `yaml:"args,omitempty"`
	Env        map[string]string `yaml:"env,omitempty"`
	Cwd        string            `yaml:"cwd,omitempty"`
	StderrMode StderrMode        `yaml:"stderrMode,omitempty"`

	// HTTP branches (SSE, streamable HTTP).
	URL         string       `yaml:"url,omitempty"`
	BearerToken string       `yaml:"bearerToken,omitempty"`
	OAuthTokens *OAuthTokens `yaml:"oauthTokens,omitempty"`
}

// ErrUnsupportedKind is returned when a config names a transport kind the
// factory does not implement.
var ErrUnsupportedKind = errors.New("unsupported server kind")

// Validate checks that the config carries the fields its kind requires.
func (c ServerConfig) Validate() error {
	switch c.Kind {
	case KindStdio:
		if c.Command == "" {
			return fmt.Errorf("server %s: command is required for %s kind", c.UUID, c.Kind)
		}
	case KindSSE, KindStreamableHTTP:
		if c.URL == "" {
			return fmt.Errorf("server %s: url is required for %s kind", c.UUID, c.Kind)
		}
	default:
		return fmt.Errorf("server %s: %w: %s", c.UUID, ErrUnsupportedKind, c.Kind)
	}
	return nil
}

// fingerprintForm restricts the fingerprint to the fields that affect the
// wire connection. Everything else (name, tokens, stderr mode) may change
// without invalidating a pooled connection.
type fingerprintForm struct {
	UUID    string     `json:"uuid"`
	Kind    ServerKind `json:"kind"`
	Command string     `json:"command,omitempty"`
	Args    []string   `json:"args,omitempty"`
	Env     []string   `json:"env,omitempty"`
	URL     string     `json:"url,omitempty"`
}

// Fingerprint returns a stable SHA-256 over the connection-relevant fields.
// Two configs with equal fingerprints are interchangeable as pool keys.
func (c ServerConfig) Fingerprint() string {
	form := fingerprintForm{
		UUID: c.UUID,
		Kind: c.Kind,
	}
	switch c.Kind {
	case KindStdio:
		form.Command = c.Command
		form.Args = c.Args
		for k, v := range c.Env {
			form.Env = append(form.Env, k+"="+v)
		}
		sort.Strings(form.Env)
	case KindSSE, KindStreamableHTTP:
		form.URL = c.URL
	}

	// Marshaling a struct of scalars and sorted slices cannot fail.
	data, _ := json.Marshal(form)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// MCPClient is the interface pool components use to talk to one back-end
// server. Implementations wrap one mcp-go client over one transport.
type MCPClient interface {
	// Initialize establishes the connection and performs the MCP handshake.
	Initialize(ctx context.Context) error

	// Close cleanly shuts down the client and its transport.
	Close() error

	// ListTools returns all available tools from the server.
	ListTools(ctx context.Context) ([]mcp.Tool, error)

	// CallTool executes a specific tool and returns the result.
	CallTool(ctx context.Context, name string, args map[string]interface{}) (*mcp.CallToolResult, error)

	// ListResources returns all available resources from the server.
	ListResources(ctx context.Context) ([]mcp.Resource, error)

	// ReadResource retrieves a specific resource.
	ReadResource(ctx context.Context, uri string) (*mcp.ReadResourceResult, error)

	// ListPrompts returns all available prompts from the server.
	ListPrompts(ctx context.Context) ([]mcp.Prompt, error)

	// GetPrompt retrieves a specific prompt.
	GetPrompt(ctx context.Context, name string, args map[string]interface{}) (*mcp.GetPromptResult, error)

	// Ping checks if the server is responsive.
	Ping(ctx context.Context) error

	// Capabilities returns the server capabilities reported at handshake.
	// Only valid after a successful Initialize.
	Capabilities() mcp.ServerCapabilities

	// RemoteName returns the server name reported at handshake, or "".
	RemoteName() string
}
