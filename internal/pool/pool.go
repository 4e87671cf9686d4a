package pool

import (
	"context"
	"fmt"
	"sync"

	"metamcp/internal/mcpserver"
	"metamcp/pkg/logging"

	"golang.org/x/sync/errgroup"
)

// Connector abstracts the client connector so tests can substitute fakes.
type Connector interface {
	Connect(ctx context.Context, cfg mcpserver.ServerConfig) (*mcpserver.ConnectedClient, error)
}

// Status is a monitoring snapshot of the pool.
type Status struct {
	IdleServerUUIDs  []string `json:"idleServerUuids"`
	ActiveSessionIDs []string `json:"activeSessionIds"`
	IdleCount        int      `json:"idleCount"`
	ActiveCount      int      `json:"activeCount"`
}

// McpPool maintains warm idle connections and per-session active connections
// to back-end servers. One idle entry is kept per server; sessions promote
// idle entries into their active set and a background build refills the idle
// slot.
//
// All map mutations happen under one mutex with connection IO outside it.
type McpPool struct {
	mu sync.Mutex

	// idle holds at most one warm connection per server.
	idle map[string]*mcpserver.ConnectedClient
	// active is sessionID -> serverUUID -> connection.
	active map[string]map[string]*mcpserver.ConnectedClient
	// sessionServers tracks which servers a session has touched.
	sessionServers map[string]map[string]bool
	// configs remembers the last config seen per server, for replenishment.
	configs map[string]mcpserver.ServerConfig
	// creating guards against concurrent builds for the same server.
	creating map[string]bool

	closed bool

	connector Connector
	idlePer   int

	wg sync.WaitGroup
}

// NewMcpPool creates a pool. idlePerServer <= 0 disables idle warm entries;
// sessions then always build synchronously.
func NewMcpPool(connector Connector, idlePerServer int) *McpPool {
	return &McpPool{
		idle:           make(map[string]*mcpserver.ConnectedClient),
		active:         make(map[string]map[string]*mcpserver.ConnectedClient),
		sessionServers: make(map[string]map[string]bool),
		configs:        make(map[string]mcpserver.ServerConfig),
		creating:       make(map[string]bool),
		connector:      connector,
		idlePer:        idlePerServer,
	}
}

// GetSession returns the connection a session uses for a server, creating it
// if needed. An existing active entry is returned as-is; otherwise an idle
// entry is promoted, or a new connection is built synchronously. Both paths
// schedule an async idle refill.
func (p *McpPool) GetSession(ctx context.Context, sessionID, serverUUID string, cfg mcpserver.ServerConfig) (*mcpserver.ConnectedClient, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, fmt.Errorf("pool is closed")
	}
	p.configs[serverUUID] = cfg

	if client, ok := p.active[sessionID][serverUUID]; ok {
		p.mu.Unlock()
		return client, nil
	}

	if client, ok := p.idle[serverUUID]; ok {
		delete(p.idle, serverUUID)
		p.trackActiveLocked(sessionID, serverUUID, client)
		p.mu.Unlock()

		logging.Debug("McpPool", "Promoted idle connection for server %s to session %s",
			serverUUID, logging.TruncateSessionID(sessionID))
		p.replenishAsync(serverUUID)
		return client, nil
	}
	p.mu.Unlock()

	client, err := p.connector.Connect(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create session connection for server %s: %w", serverUUID, err)
	}

	p.mu.Lock()
	if existing, ok := p.active[sessionID][serverUUID]; ok {
		// A concurrent GetSession for the same pair won the race.
		p.mu.Unlock()
		if cleanupErr := client.Cleanup(); cleanupErr != nil {
			logging.Warn("McpPool", "Failed to discard surplus connection for %s: %v", serverUUID, cleanupErr)
		}
		return existing, nil
	}
	if p.closed {
		p.mu.Unlock()
		_ = client.Cleanup()
		return nil, fmt.Errorf("pool is closed")
	}
	p.trackActiveLocked(sessionID, serverUUID, client)
	p.mu.Unlock()

	logging.Debug("McpPool", "Built connection for server %s in session %s",
		serverUUID, logging.TruncateSessionID(sessionID))
	p.replenishAsync(serverUUID)
	return client, nil
}

func (p *McpPool) trackActiveLocked(sessionID, serverUUID string, client *mcpserver.ConnectedClient) {
	if p.active[sessionID] == nil {
		p.active[sessionID] = make(map[string]*mcpserver.ConnectedClient)
	}
	p.active[sessionID][serverUUID] = client
	if p.sessionServers[sessionID] == nil {
		p.sessionServers[sessionID] = make(map[string]bool)
	}
	p.sessionServers[sessionID][serverUUID] = true
}

// EnsureIdleSessions synchronously builds an idle entry for every server
// that has none. Build failures are logged and skipped; one bad server does
// not block the rest.
func (p *McpPool) EnsureIdleSessions(ctx context.Context, configs map[string]mcpserver.ServerConfig) {
	for serverUUID, cfg := range configs {
		p.EnsureIdleForNewServer(ctx, serverUUID, cfg)
	}
}

// EnsureIdleForNewServer creates an idle entry for a server unless one
// already exists or is being built.
func (p *McpPool) EnsureIdleForNewServer(ctx context.Context, serverUUID string, cfg mcpserver.ServerConfig) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.configs[serverUUID] = cfg
	if p.idlePer <= 0 || p.creating[serverUUID] {
		p.mu.Unlock()
		return
	}
	if _, ok := p.idle[serverUUID]; ok {
		p.mu.Unlock()
		return
	}
	p.creating[serverUUID] = true
	p.mu.Unlock()

	p.buildIdle(ctx, serverUUID, cfg)
}

// InvalidateIdleSession replaces the idle entry for a server after its
// config changed. Active entries keep their old connections until their
// sessions close.
func (p *McpPool) InvalidateIdleSession(ctx context.Context, serverUUID string, newConfig mcpserver.ServerConfig) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.configs[serverUUID] = newConfig
	stale := p.idle[serverUUID]
	delete(p.idle, serverUUID)
	delete(p.creating, serverUUID)
	buildNew := p.idlePer > 0
	if buildNew {
		p.creating[serverUUID] = true
	}
	p.mu.Unlock()

	if stale != nil {
		if err := stale.Cleanup(); err != nil {
			logging.Warn("McpPool", "Failed to close stale idle connection for %s: %v", serverUUID, err)
		}
	}

	if buildNew {
		p.buildIdle(ctx, serverUUID, newConfig)
	}
}

// CleanupIdleSession discards all pool knowledge of a deleted server.
func (p *McpPool) CleanupIdleSession(serverUUID string) {
	p.mu.Lock()
	stale := p.idle[serverUUID]
	delete(p.idle, serverUUID)
	delete(p.configs, serverUUID)
	delete(p.creating, serverUUID)
	p.mu.Unlock()

	if stale != nil {
		if err := stale.Cleanup(); err != nil {
			logging.Warn("McpPool", "Failed to close idle connection for deleted server %s: %v", serverUUID, err)
		}
	}
}

// CleanupSession closes every connection a session owns, in parallel, and
// refills idle slots for the servers the session had touched.
func (p *McpPool) CleanupSession(sessionID string) {
	p.mu.Lock()
	clients := p.active[sessionID]
	touched := p.sessionServers[sessionID]
	delete(p.active, sessionID)
	delete(p.sessionServers, sessionID)
	p.mu.Unlock()

	if len(clients) > 0 {
		var g errgroup.Group
		for serverUUID, client := range clients {
			serverUUID, client := serverUUID, client
			g.Go(func() error {
				if err := client.Cleanup(); err != nil {
					logging.Warn("McpPool", "Failed to close connection for server %s in session %s: %v",
						serverUUID, logging.TruncateSessionID(sessionID), err)
				}
				return nil
			})
		}
		_ = g.Wait()
	}

	for serverUUID := range touched {
		p.replenishAsync(serverUUID)
	}

	logging.Debug("McpPool", "Cleaned up session %s (%d connections)",
		logging.TruncateSessionID(sessionID), len(clients))
}

// CleanupAll closes every idle and active connection and marks the pool
// closed. In-flight idle builds discard their results.
func (p *McpPool) CleanupAll() {
	p.mu.Lock()
	p.closed = true

	var clients []*mcpserver.ConnectedClient
	for _, client := range p.idle {
		clients = append(clients, client)
	}
	for _, sessionClients := range p.active {
		for _, client := range sessionClients {
			clients = append(clients, client)
		}
	}
	p.idle = make(map[string]*mcpserver.ConnectedClient)
	p.active = make(map[string]map[string]*mcpserver.ConnectedClient)
	p.sessionServers = make(map[string]map[string]bool)
	p.configs = make(map[string]mcpserver.ServerConfig)
	p.creating = make(map[string]bool)
	p.mu.Unlock()

	var g errgroup.Group
	for _, client := range clients {
		client := client
		g.Go(func() error {
			_ = client.Cleanup()
			return nil
		})
	}
	_ = g.Wait()

	p.wg.Wait()
	logging.Info("McpPool", "Closed %d connections", len(clients))
}

// GetStatus returns a monitoring snapshot.
func (p *McpPool) GetStatus() Status {
	p.mu.Lock()
	defer p.mu.Unlock()

	status := Status{IdleCount: len(p.idle)}
	for serverUUID := range p.idle {
		status.IdleServerUUIDs = append(status.IdleServerUUIDs, serverUUID)
	}
	for sessionID, clients := range p.active {
		status.ActiveSessionIDs = append(status.ActiveSessionIDs, sessionID)
		status.ActiveCount += len(clients)
	}
	return status
}

// replenishAsync schedules a background idle build for a server. No-op when
// an idle entry exists, a build is already in flight, idle warming is
// disabled, or the server's config is gone.
func (p *McpPool) replenishAsync(serverUUID string) {
	p.mu.Lock()
	if p.closed || p.idlePer <= 0 || p.creating[serverUUID] {
		p.mu.Unlock()
		return
	}
	if _, ok := p.idle[serverUUID]; ok {
		p.mu.Unlock()
		return
	}
	cfg, ok := p.configs[serverUUID]
	if !ok {
		p.mu.Unlock()
		return
	}
	p.creating[serverUUID] = true
	p.wg.Add(1)
	p.mu.Unlock()

	go func() {
		defer p.wg.Done()
		p.buildIdle(context.Background(), serverUUID, cfg)
	}()
}

// buildIdle performs one idle build. The caller must have set the creating
// flag; buildIdle clears it. The new connection is discarded when an idle
// entry appeared while the build was in flight, or when the stored config's
// fingerprint moved on; a slow replenish must never reinstall a connection
// built from a config that an invalidation has since replaced.
func (p *McpPool) buildIdle(ctx context.Context, serverUUID string, cfg mcpserver.ServerConfig) {
	client, err := p.connector.Connect(ctx, cfg)

	p.mu.Lock()
	delete(p.creating, serverUUID)
	if err != nil {
		p.mu.Unlock()
		logging.Warn("McpPool", "Failed to build idle connection for server %s: %v", serverUUID, err)
		return
	}

	_, occupied := p.idle[serverUUID]
	current, known := p.configs[serverUUID]
	stale := known && current.Fingerprint() != cfg.Fingerprint()
	if p.closed || occupied || !known || stale {
		p.mu.Unlock()
		if cleanupErr := client.Cleanup(); cleanupErr != nil {
			logging.Warn("McpPool", "Failed to discard surplus idle connection for %s: %v", serverUUID, cleanupErr)
		}
		if stale {
			logging.Debug("McpPool", "Discarded idle connection for server %s built from a superseded config", serverUUID)
		}
		return
	}
	p.idle[serverUUID] = client
	p.mu.Unlock()

	logging.Debug("McpPool", "Idle connection ready for server %s", serverUUID)
}
