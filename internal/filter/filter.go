package filter

import (
	"context"
	"fmt"

	"metamcp/internal/store"
	"metamcp/pkg/logging"
	pkgstrings "metamcp/pkg/strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// DefaultInactiveMessage is the tool-result text returned for calls to
// inactive tools. The verbs are the exposed tool name and the reason.
const DefaultInactiveMessage = `Tool "%s" is currently inactive and disallowed in this namespace: %s`

const inactiveReason = "the tool is marked INACTIVE in the namespace mapping"

// ListToolsHandler produces the merged tool list for a namespace.
type ListToolsHandler func(ctx context.Context, namespaceUUID string) ([]mcp.Tool, error)

// CallToolHandler routes one tool call inside a namespace.
type CallToolHandler func(ctx context.Context, namespaceUUID, exposedName string, args map[string]interface{}) (*mcp.CallToolResult, error)

// ListToolsMiddleware wraps a ListToolsHandler.
type ListToolsMiddleware func(next ListToolsHandler) ListToolsHandler

// CallToolMiddleware wraps a CallToolHandler.
type CallToolMiddleware func(next CallToolHandler) CallToolHandler

// ComposeListTools applies middlewares right to left, so the first one in
// the slice is outermost.
func ComposeListTools(h ListToolsHandler, mws ...ListToolsMiddleware) ListToolsHandler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// ComposeCallTool applies middlewares right to left, so the first one in the
// slice is outermost.
func ComposeCallTool(h CallToolHandler, mws ...CallToolMiddleware) CallToolHandler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// ServerResolver maps a sanitized server-name prefix back to the server UUID
// participating in a namespace.
type ServerResolver interface {
	ResolveServerPrefix(ctx context.Context, namespaceUUID, sanitizedPrefix string) (serverUUID string, ok bool)
}

// Filter classifies exposed tool names as allowed or inactive for a
// namespace, caching store lookups for a short TTL. Every ambiguity fails
// open: unparseable names, unknown prefixes, and store errors all keep the
// tool visible and callable.
type Filter struct {
	cache           *Cache
	statuses        store.ToolStatusStore
	resolver        ServerResolver
	inactiveMessage string
}

// New creates a filter. inactiveMessage must contain two %s verbs (tool
// name, reason); empty selects DefaultInactiveMessage.
func New(cache *Cache, statuses store.ToolStatusStore, resolver ServerResolver, inactiveMessage string) *Filter {
	if inactiveMessage == "" {
		inactiveMessage = DefaultInactiveMessage
	}
	return &Filter{
		cache:           cache,
		statuses:        statuses,
		resolver:        resolver,
		inactiveMessage: inactiveMessage,
	}
}

// Cache exposes the underlying cache for invalidation.
func (f *Filter) Cache() *Cache {
	return f.cache
}

// allowed reports whether an exposed tool name may be listed and called in a
// namespace.
func (f *Filter) allowed(ctx context.Context, namespaceUUID, exposedName string) bool {
	prefix, toolName, ok := pkgstrings.SplitToolName(exposedName)
	if !ok {
		return true
	}

	serverUUID, ok := f.resolver.ResolveServerPrefix(ctx, namespaceUUID, prefix)
	if !ok {
		return true
	}

	status, cached := f.cache.Get(namespaceUUID, serverUUID, toolName)
	if !cached {
		var err error
		status, err = f.statuses.GetStatus(ctx, namespaceUUID, serverUUID, toolName)
		if err != nil {
			logging.Warn("Filter", "Status lookup failed for %s/%s/%s, allowing tool: %v",
				namespaceUUID, serverUUID, toolName, err)
			return true
		}
		f.cache.Set(namespaceUUID, serverUUID, toolName, status)
	}

	return status != store.StatusInactive
}

// ListToolsMiddleware drops inactive tools from the merged list.
func (f *Filter) ListToolsMiddleware() ListToolsMiddleware {
	return func(next ListToolsHandler) ListToolsHandler {
		return func(ctx context.Context, namespaceUUID string) ([]mcp.Tool, error) {
			tools, err := next(ctx, namespaceUUID)
			if err != nil {
				return nil, err
			}

			kept := make([]mcp.Tool, 0, len(tools))
			for _, tool := range tools {
				if f.allowed(ctx, namespaceUUID, tool.Name) {
					kept = append(kept, tool)
				}
			}
			return kept, nil
		}
	}
}

// CallToolMiddleware rejects calls to inactive tools with an isError tool
// result instead of delegating.
func (f *Filter) CallToolMiddleware() CallToolMiddleware {
	return func(next CallToolHandler) CallToolHandler {
		return func(ctx context.Context, namespaceUUID, exposedName string, args map[string]interface{}) (*mcp.CallToolResult, error) {
			if !f.allowed(ctx, namespaceUUID, exposedName) {
				logging.Debug("Filter", "Blocking call to inactive tool %s in namespace %s",
					exposedName, namespaceUUID)
				return mcp.NewToolResultError(fmt.Sprintf(f.inactiveMessage, exposedName, inactiveReason)), nil
			}
			return next(ctx, namespaceUUID, exposedName, args)
		}
	}
}
