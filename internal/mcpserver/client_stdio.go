package mcpserver

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"

	"metamcp/pkg/logging"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
)

// StdioClient implements MCPClient over a local subprocess speaking MCP on
// stdin/stdout.
type StdioClient struct {
	baseMCPClient
	command    string
	args       []string
	env        []string
	cwd        string
	stderrMode StderrMode
}

// NewStdioClient creates a stdio-based MCP client. env must already be
// sanitized (see SanitizedEnv); cwd may be empty.
func NewStdioClient(command string, args []string, env []string, cwd string, stderrMode StderrMode) *StdioClient {
	if stderrMode == "" {
		stderrMode = StderrPipe
	}
	return &StdioClient{
		command:    command,
		args:       args,
		env:        env,
		cwd:        cwd,
		stderrMode: stderrMode,
	}
}

// Initialize starts the subprocess and performs the protocol handshake.
func (c *StdioClient) Initialize(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		return nil
	}

	logging.Debug("StdioClient", "Starting stdio server: %s %v (cwd=%q)", c.command, c.args, c.cwd)

	var opts []transport.StdioOption
	if c.cwd != "" || c.stderrMode != StderrPipe {
		cwd := c.cwd
		stderrMode := c.stderrMode
		opts = append(opts, transport.WithCommandFunc(
			func(ctx context.Context, command string, args []string, env []string) (*exec.Cmd, error) {
				cmd := exec.CommandContext(ctx, command, args...)
				cmd.Env = env
				cmd.Dir = cwd
				switch stderrMode {
				case StderrInherit:
					cmd.Stderr = os.Stderr
				case StderrIgnore:
					cmd.Stderr = nil
				}
				return cmd, nil
			}))
	}

	stdioTransport := transport.NewStdioWithOptions(c.command, c.env, c.args, opts...)
	mcpClient := client.NewClient(stdioTransport)

	if err := mcpClient.Start(ctx); err != nil {
		return fmt.Errorf("failed to start stdio transport for %s: %w", c.command, err)
	}

	if err := c.initializeProtocol(ctx, mcpClient, c.command); err != nil {
		logging.Error("StdioClient", err, "Handshake failed for %s", c.command)
		return err
	}

	logging.Debug("StdioClient", "MCP protocol initialized for %s", c.command)
	return nil
}

// Close cleanly shuts down the client connection and the subprocess.
func (c *StdioClient) Close() error {
	return c.closeClient()
}

// ListTools returns all available tools from the server.
func (c *StdioClient) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	return c.listTools(ctx)
}

// CallTool executes a specific tool and returns the result.
func (c *StdioClient) CallTool(ctx context.Context, name string, args map[string]interface{}) (*mcp.CallToolResult, error) {
	return c.callTool(ctx, name, args)
}

// ListResources returns all available resources from the server.
func (c *StdioClient) ListResources(ctx context.Context) ([]mcp.Resource, error) {
	return c.listResources(ctx)
}

// ReadResource retrieves a specific resource.
func (c *StdioClient) ReadResource(ctx context.Context, uri string) (*mcp.ReadResourceResult, error) {
	return c.readResource(ctx, uri)
}

// ListPrompts returns all available prompts from the server.
func (c *StdioClient) ListPrompts(ctx context.Context) ([]mcp.Prompt, error) {
	return c.listPrompts(ctx)
}

// GetPrompt retrieves a specific prompt.
func (c *StdioClient) GetPrompt(ctx context.Context, name string, args map[string]interface{}) (*mcp.GetPromptResult, error) {
	return c.getPrompt(ctx, name, args)
}

// Ping checks if the server is responsive.
func (c *StdioClient) Ping(ctx context.Context) error {
	return c.ping(ctx)
}

// Stderr returns a reader over the subprocess's stderr when the stderr mode
// is pipe. The second return is false otherwise or before Initialize.
func (c *StdioClient) Stderr() (io.Reader, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.stderrMode != StderrPipe || !c.connected || c.client == nil {
		return nil, false
	}

	if concreteClient, ok := c.client.(*client.Client); ok {
		return client.GetStderr(concreteClient)
	}
	return nil, false
}
