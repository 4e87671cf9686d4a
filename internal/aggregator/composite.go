package aggregator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"metamcp/internal/filter"
	"metamcp/internal/logstore"
	"metamcp/internal/mcpserver"
	"metamcp/pkg/logging"
	pkgstrings "metamcp/pkg/strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"golang.org/x/sync/errgroup"
)

// ErrUnknownTool is returned by CallTool when the exposed name's prefix does
// not match any server participating in the namespace. The wire layer maps
// it to a not-found response.
var ErrUnknownTool = errors.New("unknown tool")

// SessionPool is the slice of McpPool the composite server consumes.
type SessionPool interface {
	GetSession(ctx context.Context, sessionID, serverUUID string, cfg mcpserver.ServerConfig) (*mcpserver.ConnectedClient, error)
}

// participant is one server taking part in a namespace. prefix comes from the
// configured server name; when the config carries no name it stays empty and
// the prefix is resolved per request from the name the server reported at
// handshake.
type participant struct {
	serverUUID string
	config     mcpserver.ServerConfig
	prefix     string
}

// CompositeServer fronts one namespace for one session. It merges the tool
// lists of all participating servers under sanitized name prefixes and
// routes prefixed calls back to the owning server.
//
// The composite holds no connections itself; every request goes through the
// session pool, which owns all clients.
type CompositeServer struct {
	namespaceUUID string
	poolSessionID string
	participants  []participant
	pool          SessionPool
	logStore      *logstore.Store

	listTools filter.ListToolsHandler
	callTool  filter.CallToolHandler

	mcpServer *server.MCPServer

	mu         sync.Mutex
	registered map[string]bool
}

// NewCompositeServer builds a composite for a namespace. configs is the
// participating servers keyed by UUID; f may be nil to disable filtering.
func NewCompositeServer(namespaceUUID, poolSessionID string, configs map[string]mcpserver.ServerConfig, sessionPool SessionPool, f *filter.Filter) *CompositeServer {
	participants := make([]participant, 0, len(configs))
	for serverUUID, cfg := range configs {
		participants = append(participants, participant{
			serverUUID: serverUUID,
			config:     cfg,
			prefix:     pkgstrings.Sanitize(cfg.Name),
		})
	}
	sort.Slice(participants, func(i, j int) bool {
		return participants[i].prefix < participants[j].prefix
	})

	c := &CompositeServer{
		namespaceUUID: namespaceUUID,
		poolSessionID: poolSessionID,
		participants:  participants,
		pool:          sessionPool,
		registered:    make(map[string]bool),
		mcpServer: server.NewMCPServer(
			"metamcp",
			"1.0.0",
			server.WithToolCapabilities(true),
		),
	}

	listHandler := filter.ListToolsHandler(c.rawListTools)
	callHandler := filter.CallToolHandler(c.rawCallTool)
	if f != nil {
		listHandler = filter.ComposeListTools(listHandler, f.ListToolsMiddleware())
		callHandler = filter.ComposeCallTool(callHandler, f.CallToolMiddleware())
	}
	c.listTools = listHandler
	c.callTool = callHandler

	return c
}

// WithLogStore attaches a log store so per-server failures during the
// tools/list fan-out become operator-visible events. Returns the composite
// for chaining.
func (c *CompositeServer) WithLogStore(ls *logstore.Store) *CompositeServer {
	c.logStore = ls
	return c
}

// NamespaceUUID returns the namespace this composite serves.
func (c *CompositeServer) NamespaceUUID() string {
	return c.namespaceUUID
}

// PoolSessionID returns the session key the composite uses against the
// connection pool. MetaPool needs it to release the right pool session.
func (c *CompositeServer) PoolSessionID() string {
	return c.poolSessionID
}

// MCPServer returns the wire-facing MCP server. Call SyncTools first so it
// has tools registered.
func (c *CompositeServer) MCPServer() *server.MCPServer {
	return c.mcpServer
}

// Connect warms a pool connection for every participating server. Failures
// are logged and skipped; a server that fails here is retried on the next
// request that needs it.
func (c *CompositeServer) Connect(ctx context.Context) {
	var g errgroup.Group
	for _, p := range c.participants {
		p := p
		g.Go(func() error {
			if _, err := c.pool.GetSession(ctx, c.poolSessionID, p.serverUUID, p.config); err != nil {
				logging.Warn("CompositeServer", "Failed to warm connection for server %s in namespace %s: %v",
					p.config.Name, c.namespaceUUID, err)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// ListTools returns the merged, filtered tool list for the namespace.
func (c *CompositeServer) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	return c.listTools(ctx, c.namespaceUUID)
}

// CallTool routes an exposed tool name to its owning server. Returns
// ErrUnknownTool when the prefix matches no participant.
func (c *CompositeServer) CallTool(ctx context.Context, exposedName string, args map[string]interface{}) (*mcp.CallToolResult, error) {
	return c.callTool(ctx, c.namespaceUUID, exposedName, args)
}

// resolvePrefix returns the tool-name prefix for a participant. An unnamed
// config falls back to the server name reported at handshake.
func (c *CompositeServer) resolvePrefix(p participant, client *mcpserver.ConnectedClient) string {
	if p.prefix != "" {
		return p.prefix
	}
	return pkgstrings.Sanitize(client.Client.RemoteName())
}

// rawListTools fans tools/list out to every participant and merges the
// results under prefixed names. A failing server's tools are omitted; all
// servers failing yields an empty list, not an error.
func (c *CompositeServer) rawListTools(ctx context.Context, _ string) ([]mcp.Tool, error) {
	var (
		mu     sync.Mutex
		merged []mcp.Tool
	)

	var g errgroup.Group
	for _, p := range c.participants {
		p := p
		g.Go(func() error {
			client, err := c.pool.GetSession(ctx, c.poolSessionID, p.serverUUID, p.config)
			if err != nil {
				logging.Warn("CompositeServer", "Skipping server %s in namespace %s: %v",
					p.config.Name, c.namespaceUUID, err)
				c.logFanoutFailure(p.config.Name, "Unreachable during tools/list", err)
				return nil
			}
			if client.Client.Capabilities().Tools == nil {
				logging.Debug("CompositeServer", "Server %s advertises no tool capability", p.config.Name)
				return nil
			}

			tools, err := client.Client.ListTools(ctx)
			if err != nil {
				logging.Warn("CompositeServer", "tools/list failed for server %s in namespace %s: %v",
					p.config.Name, c.namespaceUUID, err)
				c.logFanoutFailure(p.config.Name, "tools/list failed", err)
				return nil
			}

			prefix := c.resolvePrefix(p, client)
			prefixed := make([]mcp.Tool, 0, len(tools))
			for _, tool := range tools {
				tool.Name = pkgstrings.JoinToolName(prefix, tool.Name)
				prefixed = append(prefixed, tool)
			}

			mu.Lock()
			merged = append(merged, prefixed...)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(merged, func(i, j int) bool { return merged[i].Name < merged[j].Name })
	return merged, nil
}

func (c *CompositeServer) logFanoutFailure(serverName, message string, err error) {
	if c.logStore == nil {
		return
	}
	c.logStore.AddLog(serverName, logstore.LevelError, message, err)
}

// rawCallTool splits the exposed name on the first separator and forwards
// the call with the original tool name. Unnamed participants are matched by
// the server name they reported at handshake.
func (c *CompositeServer) rawCallTool(ctx context.Context, _ string, exposedName string, args map[string]interface{}) (*mcp.CallToolResult, error) {
	prefix, toolName, ok := pkgstrings.SplitToolName(exposedName)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, exposedName)
	}

	for _, p := range c.participants {
		if p.prefix != "" && p.prefix != prefix {
			continue
		}
		client, err := c.pool.GetSession(ctx, c.poolSessionID, p.serverUUID, p.config)
		if err != nil {
			if p.prefix == "" {
				// Cannot learn this server's prefix while it is unreachable;
				// another participant may still own the tool.
				logging.Warn("CompositeServer", "Skipping unreachable server %s while routing %s: %v",
					p.serverUUID, exposedName, err)
				continue
			}
			return nil, fmt.Errorf("failed to reach server %s for tool %s: %w", p.config.Name, exposedName, err)
		}
		if c.resolvePrefix(p, client) != prefix {
			continue
		}
		return client.Client.CallTool(ctx, toolName, args)
	}

	return nil, fmt.Errorf("%w: %s", ErrUnknownTool, exposedName)
}

// SyncTools refreshes the wire-facing MCP server's registered tools from the
// current merged list. New tools are added, vanished ones removed.
func (c *CompositeServer) SyncTools(ctx context.Context) error {
	tools, err := c.ListTools(ctx)
	if err != nil {
		return fmt.Errorf("failed to list tools for namespace %s: %w", c.namespaceUUID, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	current := make(map[string]bool, len(tools))
	var toAdd []server.ServerTool
	for _, tool := range tools {
		current[tool.Name] = true
		if !c.registered[tool.Name] {
			toAdd = append(toAdd, server.ServerTool{
				Tool:    tool,
				Handler: c.makeToolHandler(tool.Name),
			})
		}
	}

	var toDelete []string
	for name := range c.registered {
		if !current[name] {
			toDelete = append(toDelete, name)
		}
	}

	if len(toDelete) > 0 {
		c.mcpServer.DeleteTools(toDelete...)
		for _, name := range toDelete {
			delete(c.registered, name)
		}
	}
	if len(toAdd) > 0 {
		c.mcpServer.AddTools(toAdd...)
		for _, st := range toAdd {
			c.registered[st.Tool.Name] = true
		}
	}

	logging.Debug("CompositeServer", "Namespace %s session %s: %d tools registered (+%d/-%d)",
		c.namespaceUUID, logging.TruncateSessionID(c.poolSessionID), len(current), len(toAdd), len(toDelete))
	return nil
}

func (c *CompositeServer) makeToolHandler(exposedName string) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args map[string]interface{}
		if req.Params.Arguments != nil {
			if argsMap, ok := req.Params.Arguments.(map[string]interface{}); ok {
				args = argsMap
			}
		}

		result, err := c.CallTool(ctx, exposedName, args)
		if err != nil {
			if errors.Is(err, ErrUnknownTool) {
				return mcp.NewToolResultError(fmt.Sprintf("Unknown tool: %s", exposedName)), nil
			}
			return nil, err
		}
		return result, nil
	}
}
