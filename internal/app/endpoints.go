package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"metamcp/internal/aggregator"
	"metamcp/internal/logstore"
	"metamcp/internal/openapi"
	"metamcp/internal/pool"
	"metamcp/internal/store"
	"metamcp/pkg/logging"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const keepAliveInterval = 30 * time.Second

// EndpointHost serves the per-namespace endpoints:
//
//	/metamcp/{endpoint}/sse              SSE transport
//	/metamcp/{endpoint}/message          SSE message channel
//	/metamcp/{endpoint}/mcp              streamable HTTP transport
//	/metamcp/{endpoint}/api/openapi.json OpenAPI document
//	/metamcp/{endpoint}/api/{tool}       plain HTTP/JSON tool calls
//
// Endpoint names are namespace names; resolution happens per request so
// definition updates take effect without rebinding routes.
type EndpointHost struct {
	store    *store.InMemoryStore
	mcpPool  *pool.McpPool
	metaPool *aggregator.MetaPool
	logStore *logstore.Store

	baseURL string

	mu       sync.Mutex
	bindings map[string]*endpointBinding
}

// endpointBinding is the lazily created wire-transport pair for one
// namespace. Both transports serve the same composite MCP server, so they
// share its warm pooled connections.
type endpointBinding struct {
	composite  *aggregator.CompositeServer
	sse        *server.SSEServer
	streamable *server.StreamableHTTPServer
}

// NewEndpointHost creates a host with no bindings; transports are built on
// first use of an endpoint.
func NewEndpointHost(st *store.InMemoryStore, mcpPool *pool.McpPool, metaPool *aggregator.MetaPool, logStore *logstore.Store) *EndpointHost {
	return &EndpointHost{
		store:    st,
		mcpPool:  mcpPool,
		metaPool: metaPool,
		logStore: logStore,
		bindings: make(map[string]*endpointBinding),
	}
}

// Handler returns the full HTTP handler tree. baseURL is the externally
// reachable address, used in the SSE endpoint announcement.
func (h *EndpointHost) Handler(baseURL string) http.Handler {
	h.baseURL = baseURL

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.handleHealth)
	mux.HandleFunc("/api/status", h.handleStatus)
	mux.HandleFunc("/api/logs", h.handleLogs)
	mux.HandleFunc("/metamcp/", h.handleEndpoint)
	return mux
}

// endpointSessionID is the composite session shared by all wire clients of
// one namespace endpoint.
func endpointSessionID(namespaceUUID string) string {
	return "endpoint_" + namespaceUUID
}

func (h *EndpointHost) handleEndpoint(w http.ResponseWriter, r *http.Request) {
	endpoint, tail, ok := splitEndpointPath(r.URL.Path)
	if !ok {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	ns, found := h.store.FindNamespaceByName(endpoint)
	if !found {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown endpoint %q", endpoint))
		return
	}

	switch {
	case tail == "sse" || tail == "message":
		binding, err := h.binding(r, ns)
		if err != nil {
			writeError(w, http.StatusBadGateway, err.Error())
			return
		}
		if tail == "sse" {
			// A fresh SSE client gets the current tool list.
			h.syncTools(r, binding.composite)
		}
		binding.sse.ServeHTTP(w, r)

	case tail == "mcp":
		binding, err := h.binding(r, ns)
		if err != nil {
			writeError(w, http.StatusBadGateway, err.Error())
			return
		}
		if r.Method == http.MethodPost && r.Header.Get("Mcp-Session-Id") == "" {
			// Initialize request; refresh tools before the handshake.
			h.syncTools(r, binding.composite)
		}
		binding.streamable.ServeHTTP(w, r)

	case tail == "api/openapi.json":
		h.handleOpenAPI(w, r, ns)

	case strings.HasPrefix(tail, "api/"):
		h.handleToolCall(w, r, ns, strings.TrimPrefix(tail, "api/"))

	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

// splitEndpointPath splits /metamcp/{endpoint}/{tail} into its parts.
func splitEndpointPath(path string) (endpoint, tail string, ok bool) {
	rest := strings.TrimPrefix(path, "/metamcp/")
	if rest == path {
		return "", "", false
	}
	idx := strings.Index(rest, "/")
	if idx <= 0 || idx == len(rest)-1 {
		return "", "", false
	}
	return rest[:idx], rest[idx+1:], true
}

func (h *EndpointHost) binding(r *http.Request, ns store.Namespace) (*endpointBinding, error) {
	h.mu.Lock()
	if b, ok := h.bindings[ns.UUID]; ok {
		h.mu.Unlock()
		return b, nil
	}
	h.mu.Unlock()

	composite, err := h.metaPool.GetServer(r.Context(), endpointSessionID(ns.UUID), ns.UUID, false)
	if err != nil {
		return nil, fmt.Errorf("failed to bind endpoint %s: %w", ns.Name, err)
	}
	h.syncTools(r, composite)

	sse := server.NewSSEServer(composite.MCPServer(),
		server.WithBaseURL(h.baseURL),
		server.WithSSEEndpoint("/metamcp/"+ns.Name+"/sse"),
		server.WithMessageEndpoint("/metamcp/"+ns.Name+"/message"),
		server.WithKeepAlive(true),
		server.WithKeepAliveInterval(keepAliveInterval),
	)
	streamable := server.NewStreamableHTTPServer(composite.MCPServer())

	h.mu.Lock()
	defer h.mu.Unlock()
	if existing, ok := h.bindings[ns.UUID]; ok {
		// Concurrent bind; GetServer returned the same shared composite, so
		// nothing leaks.
		return existing, nil
	}
	b := &endpointBinding{composite: composite, sse: sse, streamable: streamable}
	h.bindings[ns.UUID] = b

	logging.Info("EndpointHost", "Bound endpoint %s (namespace %s)", ns.Name, ns.UUID)
	return b, nil
}

// InvalidateEndpoint drops a namespace's wire binding and releases its shared
// endpoint session from the composite pool. The next request to the endpoint
// rebinds from the current definitions; a deleted namespace never rebinds and
// leaves nothing behind in either pool.
func (h *EndpointHost) InvalidateEndpoint(namespaceUUID string) {
	h.mu.Lock()
	_, bound := h.bindings[namespaceUUID]
	delete(h.bindings, namespaceUUID)
	h.mu.Unlock()

	h.metaPool.CleanupSession(endpointSessionID(namespaceUUID))
	if bound {
		logging.Info("EndpointHost", "Released endpoint binding for namespace %s", namespaceUUID)
	}
}

func (h *EndpointHost) syncTools(r *http.Request, composite *aggregator.CompositeServer) {
	if err := composite.SyncTools(r.Context()); err != nil {
		logging.Warn("EndpointHost", "Tool sync failed for namespace %s: %v", composite.NamespaceUUID(), err)
	}
}

func (h *EndpointHost) handleOpenAPI(w http.ResponseWriter, r *http.Request, ns store.Namespace) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	composite, err := h.metaPool.GetOpenApiServer(r.Context(), ns.UUID)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	tools, err := composite.ListTools(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	data, err := openapi.GenerateSchema(ns.Name, tools)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(data)
}

func (h *EndpointHost) handleToolCall(w http.ResponseWriter, r *http.Request, ns store.Namespace, toolName string) {
	var args map[string]interface{}
	switch r.Method {
	case http.MethodGet:
		// No-argument tools are exposed as GET.
	case http.MethodPost:
		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeError(w, http.StatusBadRequest, "failed to read request body")
			return
		}
		if len(body) > 0 {
			if err := json.Unmarshal(body, &args); err != nil {
				writeError(w, http.StatusUnprocessableEntity, fmt.Sprintf("invalid JSON body: %v", err))
				return
			}
		}
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	composite, err := h.metaPool.GetOpenApiServer(r.Context(), ns.UUID)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	result, err := composite.CallTool(r.Context(), toolName, args)
	switch {
	case errors.Is(err, aggregator.ErrUnknownTool):
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown tool %q", toolName))
		return
	case err != nil:
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	if result.IsError {
		writeError(w, http.StatusInternalServerError, textOf(result))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(renderCallResult(result))
}

// renderCallResult turns a tool result into a JSON response body. A single
// text content that already is valid JSON passes through untouched, matching
// what tools returning structured data expect.
func renderCallResult(result *mcp.CallToolResult) []byte {
	texts := textContents(result)
	if len(texts) == 1 && json.Valid([]byte(texts[0])) {
		return []byte(texts[0])
	}

	var body []byte
	switch len(texts) {
	case 1:
		body, _ = json.Marshal(texts[0])
	default:
		body, _ = json.Marshal(texts)
	}
	return body
}

func textContents(result *mcp.CallToolResult) []string {
	texts := make([]string, 0, len(result.Content))
	for _, content := range result.Content {
		if tc, ok := content.(mcp.TextContent); ok {
			texts = append(texts, tc.Text)
		}
	}
	return texts
}

func textOf(result *mcp.CallToolResult) string {
	texts := textContents(result)
	if len(texts) == 0 {
		return "tool call failed"
	}
	return strings.Join(texts, "\n")
}

func (h *EndpointHost) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (h *EndpointHost) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, map[string]interface{}{
		"connectionPool": h.mcpPool.GetStatus(),
		"compositePool":  h.metaPool.GetStatus(),
		"logCount":       h.logStore.Len(),
	})
}

func (h *EndpointHost) handleLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var entries []logstore.Entry
	if serverName := r.URL.Query().Get("server"); serverName != "" {
		entries = h.logStore.EntriesForServer(serverName)
	} else {
		entries = h.logStore.Entries()
	}
	writeJSON(w, entries)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Warn("EndpointHost", "Failed to encode response: %v", err)
	}
}

// writeError renders {"detail": ...} so the HTTP/JSON surface stays uniform
// with the validation error shape in the OpenAPI document.
func writeError(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"detail": detail})
}
