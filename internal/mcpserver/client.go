package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
)

// DefaultInitTimeout bounds client initialization when the caller supplied no
// deadline. It covers subprocess startup plus the MCP handshake.
const DefaultInitTimeout = 10 * time.Second

// ErrHandshakeFailed marks an MCP initialize that the server answered but
// rejected. Unlike transport failures, a rejected handshake will not succeed
// on a retry against the same config.
var ErrHandshakeFailed = errors.New("handshake failed")

// baseMCPClient carries the state and request plumbing shared by all
// transport-specific clients.
type baseMCPClient struct {
	mu         sync.RWMutex
	client     client.MCPClient
	connected  bool
	caps       mcp.ServerCapabilities
	remoteName string
}

// initializeProtocol performs the MCP handshake on a freshly created client
// and records the advertised capabilities. Callers hold the write lock.
func (b *baseMCPClient) initializeProtocol(ctx context.Context, mcpClient client.MCPClient, scope string) error {
	initCtx := ctx
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		initCtx, cancel = context.WithTimeout(ctx, DefaultInitTimeout)
		defer cancel()
	}

	initResult, err := mcpClient.Initialize(initCtx, mcp.InitializeRequest{
		Params: struct {
			ProtocolVersion string                 `json:"protocolVersion"`
			Capabilities    mcp.ClientCapabilities `json:"capabilities"`
			ClientInfo      mcp.Implementation     `json:"clientInfo"`
		}{
			ProtocolVersion: "2024-11-05",
			ClientInfo: mcp.Implementation{
				Name:    "metamcp",
				Version: "1.0.0",
			},
			Capabilities: mcp.ClientCapabilities{},
		},
	})
	if err != nil {
		closeErr := mcpClient.Close()
		if closeErr != nil {
			// Nothing useful to do with a failed close of a failed client.
			_ = closeErr
		}
		if isTransportError(err) {
			return fmt.Errorf("failed to initialize MCP protocol for %s: %w", scope, err)
		}
		return fmt.Errorf("%w for %s: %w", ErrHandshakeFailed, scope, err)
	}

	b.client = mcpClient
	b.connected = true
	b.caps = initResult.Capabilities
	b.remoteName = initResult.ServerInfo.Name
	return nil
}

// isTransportError reports whether an initialize failure happened below the
// MCP layer. Connection-level failures are transient and stay retryable;
// everything else means the server answered and rejected us.
func isTransportError(err error) bool {
	var urlErr *url.Error
	var opErr *net.OpError
	return errors.As(err, &urlErr) ||
		errors.As(err, &opErr) ||
		errors.Is(err, context.DeadlineExceeded)
}

func (b *baseMCPClient) closeClient() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.connected || b.client == nil {
		return nil
	}

	err := b.client.Close()
	b.connected = false
	b.client = nil
	return err
}

func (b *baseMCPClient) current() (client.MCPClient, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if !b.connected || b.client == nil {
		return nil, fmt.Errorf("client not connected")
	}
	return b.client, nil
}

// Capabilities returns the server capabilities reported at handshake.
func (b *baseMCPClient) Capabilities() mcp.ServerCapabilities {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.caps
}

// RemoteName returns the server name reported at handshake.
func (b *baseMCPClient) RemoteName() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.remoteName
}

func (b *baseMCPClient) listTools(ctx context.Context) ([]mcp.Tool, error) {
	c, err := b.current()
	if err != nil {
		return nil, err
	}

	result, err := c.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("failed to list tools: %w", err)
	}
	return result.Tools, nil
}

func (b *baseMCPClient) callTool(ctx context.Context, name string, args map[string]interface{}) (*mcp.CallToolResult, error) {
	c, err := b.current()
	if err != nil {
		return nil, err
	}

	result, err := c.CallTool(ctx, mcp.CallToolRequest{
		Params: struct {
			Name      string    `json:"name"`
			Arguments any       `json:"arguments,omitempty"`
			Meta      *mcp.Meta `json:"_meta,omitempty"`
		}{
			Name:      name,
			Arguments: args,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to call tool: %w", err)
	}
	return result, nil
}

func (b *baseMCPClient) listResources(ctx context.Context) ([]mcp.Resource, error) {
	c, err := b.current()
	if err != nil {
		return nil, err
	}

	result, err := c.ListResources(ctx, mcp.ListResourcesRequest{})
	if err != nil {
		return nil, fmt.Errorf("failed to list resources: %w", err)
	}
	return result.Resources, nil
}

func (b *baseMCPClient) readResource(ctx context.Context, uri string) (*mcp.ReadResourceResult, error) {
	c, err := b.current()
	if err != nil {
		return nil, err
	}

	result, err := c.ReadResource(ctx, mcp.ReadResourceRequest{
		Params: struct {
			URI       string         `json:"uri"`
			Arguments map[string]any `json:"arguments,omitempty"`
		}{
			URI: uri,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read resource: %w", err)
	}
	return result, nil
}

func (b *baseMCPClient) listPrompts(ctx context.Context) ([]mcp.Prompt, error) {
	c, err := b.current()
	if err != nil {
		return nil, err
	}

	result, err := c.ListPrompts(ctx, mcp.ListPromptsRequest{})
	if err != nil {
		return nil, fmt.Errorf("failed to list prompts: %w", err)
	}
	return result.Prompts, nil
}

func (b *baseMCPClient) getPrompt(ctx context.Context, name string, args map[string]interface{}) (*mcp.GetPromptResult, error) {
	c, err := b.current()
	if err != nil {
		return nil, err
	}

	// The prompt API requires string arguments.
	stringArgs := make(map[string]string)
	for k, v := range args {
		if str, ok := v.(string); ok {
			stringArgs[k] = str
		} else {
			stringArgs[k] = fmt.Sprintf("%v", v)
		}
	}

	result, err := c.GetPrompt(ctx, mcp.GetPromptRequest{
		Params: struct {
			Name      string            `json:"name"`
			Arguments map[string]string `json:"arguments,omitempty"`
		}{
			Name:      name,
			Arguments: stringArgs,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get prompt: %w", err)
	}
	return result, nil
}

func (b *baseMCPClient) ping(ctx context.Context) error {
	c, err := b.current()
	if err != nil {
		return err
	}
	return c.Ping(ctx)
}
