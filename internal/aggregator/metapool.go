package aggregator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"metamcp/internal/filter"
	"metamcp/internal/logstore"
	"metamcp/internal/store"
	"metamcp/pkg/logging"
)

// McpPoolAPI is the slice of the connection pool MetaPool consumes.
type McpPoolAPI interface {
	SessionPool
	CleanupSession(sessionID string)
}

// MetaStatus is a monitoring snapshot of the meta pool.
type MetaStatus struct {
	IdleNamespaceUUIDs []string `json:"idleNamespaceUuids"`
	ActiveSessionIDs   []string `json:"activeSessionIds"`
}

// MetaPool manages composite servers, one per (session, namespace), with a
// warm idle composite per namespace. It mirrors the connection pool's
// promote-and-replenish structure one level up: promoting an idle composite
// also hands over the warm pool connections it was built on, because those
// stay keyed by the composite's pool session ID.
// idleComposite pairs a warm composite with the inactive-server visibility it
// was built for. A composite built without inactive servers must never be
// handed to a caller that wants them, and vice versa.
type idleComposite struct {
	composite       *CompositeServer
	includeInactive bool
}

type MetaPool struct {
	mu sync.Mutex

	// idle holds at most one warm composite per namespace.
	idle map[string]idleComposite
	// active is sessionID -> composite. OpenAPI sessions live here under
	// their deterministic IDs and are never auto-reclaimed.
	active map[string]*CompositeServer
	// sessionNamespace remembers which namespace a session is bound to.
	sessionNamespace map[string]string
	// creating guards against concurrent idle builds per namespace.
	creating map[string]bool

	closed bool

	mcpPool  McpPoolAPI
	configs  store.ServerConfigStore
	filter   *filter.Filter
	logStore *logstore.Store
	idlePer  int

	counter atomic.Uint64
	wg      sync.WaitGroup
}

// NewMetaPool creates a meta pool. idlePerNamespace <= 0 disables idle warm
// composites. f may be nil to disable tool filtering.
func NewMetaPool(mcpPool McpPoolAPI, configs store.ServerConfigStore, f *filter.Filter, idlePerNamespace int) *MetaPool {
	return &MetaPool{
		idle:             make(map[string]idleComposite),
		active:           make(map[string]*CompositeServer),
		sessionNamespace: make(map[string]string),
		creating:         make(map[string]bool),
		mcpPool:          mcpPool,
		configs:          configs,
		filter:           f,
		idlePer:          idlePerNamespace,
	}
}

// WithLogStore attaches a log store handed to every composite this pool
// builds. Returns the pool for chaining.
func (m *MetaPool) WithLogStore(ls *logstore.Store) *MetaPool {
	m.logStore = ls
	return m
}

// OpenAPISessionID returns the deterministic session ID used for a
// namespace's OpenAPI composite.
func OpenAPISessionID(namespaceUUID string) string {
	return "openapi_" + namespaceUUID
}

func (m *MetaPool) ephemeralSessionID(namespaceUUID string) string {
	return fmt.Sprintf("idle_%s_%d", namespaceUUID, m.counter.Add(1))
}

// build constructs and warms a composite outside the pool lock.
func (m *MetaPool) build(ctx context.Context, namespaceUUID, poolSessionID string, includeInactive bool) (*CompositeServer, error) {
	serverConfigs, err := m.configs.ListByNamespace(ctx, namespaceUUID, includeInactive)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve servers for namespace %s: %w", namespaceUUID, err)
	}

	composite := NewCompositeServer(namespaceUUID, poolSessionID, serverConfigs, m.mcpPool, m.filter).
		WithLogStore(m.logStore)
	composite.Connect(ctx)
	return composite, nil
}

// GetServer returns the composite a session uses for a namespace, creating
// it if needed. An idle composite is promoted only when it was built with the
// same includeInactive visibility the caller asks for; a mismatched idle
// entry stays in place for callers it fits and this caller builds fresh.
// Either way an async idle refill is scheduled.
func (m *MetaPool) GetServer(ctx context.Context, sessionID, namespaceUUID string, includeInactive bool) (*CompositeServer, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, fmt.Errorf("meta pool is closed")
	}

	if composite, ok := m.active[sessionID]; ok {
		bound := m.sessionNamespace[sessionID]
		m.mu.Unlock()
		if bound != namespaceUUID {
			return nil, fmt.Errorf("session %s is bound to namespace %s, not %s",
				logging.TruncateSessionID(sessionID), bound, namespaceUUID)
		}
		return composite, nil
	}

	if entry, ok := m.idle[namespaceUUID]; ok && entry.includeInactive == includeInactive {
		delete(m.idle, namespaceUUID)
		m.active[sessionID] = entry.composite
		m.sessionNamespace[sessionID] = namespaceUUID
		m.mu.Unlock()

		logging.Debug("MetaPool", "Promoted idle composite for namespace %s to session %s",
			namespaceUUID, logging.TruncateSessionID(sessionID))
		m.replenishAsync(namespaceUUID, includeInactive)
		return entry.composite, nil
	}
	m.mu.Unlock()

	composite, err := m.build(ctx, namespaceUUID, sessionID, includeInactive)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if existing, ok := m.active[sessionID]; ok {
		m.mu.Unlock()
		m.mcpPool.CleanupSession(composite.PoolSessionID())
		return existing, nil
	}
	if m.closed {
		m.mu.Unlock()
		m.mcpPool.CleanupSession(composite.PoolSessionID())
		return nil, fmt.Errorf("meta pool is closed")
	}
	m.active[sessionID] = composite
	m.sessionNamespace[sessionID] = namespaceUUID
	m.mu.Unlock()

	m.replenishAsync(namespaceUUID, includeInactive)
	return composite, nil
}

// EnsureIdleServers synchronously builds an idle composite for every listed
// namespace that has none. Failures are logged and skipped.
func (m *MetaPool) EnsureIdleServers(ctx context.Context, namespaceUUIDs []string, includeInactive bool) {
	for _, namespaceUUID := range namespaceUUIDs {
		m.ensureIdle(ctx, namespaceUUID, includeInactive)
	}
}

// EnsureIdleForNewNamespace creates an idle composite for a namespace unless
// one exists or is being built.
func (m *MetaPool) EnsureIdleForNewNamespace(ctx context.Context, namespaceUUID string) {
	m.ensureIdle(ctx, namespaceUUID, false)
}

func (m *MetaPool) ensureIdle(ctx context.Context, namespaceUUID string, includeInactive bool) {
	m.mu.Lock()
	if m.closed || m.idlePer <= 0 || m.creating[namespaceUUID] {
		m.mu.Unlock()
		return
	}
	var stale *CompositeServer
	if entry, ok := m.idle[namespaceUUID]; ok {
		if entry.includeInactive == includeInactive {
			m.mu.Unlock()
			return
		}
		// The warm composite has the wrong visibility; rebuild it.
		stale = entry.composite
		delete(m.idle, namespaceUUID)
	}
	m.creating[namespaceUUID] = true
	m.mu.Unlock()

	if stale != nil {
		m.mcpPool.CleanupSession(stale.PoolSessionID())
	}
	m.buildIdle(ctx, namespaceUUID, includeInactive)
}

// InvalidateIdleServer discards the idle composite for a namespace and
// builds a fresh one reflecting the current store contents.
func (m *MetaPool) InvalidateIdleServer(ctx context.Context, namespaceUUID string) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	entry, hadIdle := m.idle[namespaceUUID]
	delete(m.idle, namespaceUUID)
	delete(m.creating, namespaceUUID)
	buildNew := m.idlePer > 0
	if buildNew {
		m.creating[namespaceUUID] = true
	}
	m.mu.Unlock()

	if hadIdle {
		m.mcpPool.CleanupSession(entry.composite.PoolSessionID())
	}
	if buildNew {
		// The rebuilt composite keeps the visibility the slot had.
		m.buildIdle(ctx, namespaceUUID, hadIdle && entry.includeInactive)
	}
}

// InvalidateIdleServers invalidates several namespaces in sequence.
func (m *MetaPool) InvalidateIdleServers(ctx context.Context, namespaceUUIDs []string) {
	for _, namespaceUUID := range namespaceUUIDs {
		m.InvalidateIdleServer(ctx, namespaceUUID)
	}
}

// CleanupIdleServer discards the idle composite for a deleted namespace
// without rebuilding.
func (m *MetaPool) CleanupIdleServer(namespaceUUID string) {
	m.mu.Lock()
	entry, hadIdle := m.idle[namespaceUUID]
	delete(m.idle, namespaceUUID)
	delete(m.creating, namespaceUUID)
	m.mu.Unlock()

	if hadIdle {
		m.mcpPool.CleanupSession(entry.composite.PoolSessionID())
	}
}

// GetOpenApiServer returns the namespace's dedicated OpenAPI composite,
// building it on first use. The composite lives under a deterministic
// session ID and stays active until invalidated.
func (m *MetaPool) GetOpenApiServer(ctx context.Context, namespaceUUID string) (*CompositeServer, error) {
	return m.GetServer(ctx, OpenAPISessionID(namespaceUUID), namespaceUUID, false)
}

// InvalidateOpenApiSessions closes and rebuilds the OpenAPI composites for
// the given namespaces.
func (m *MetaPool) InvalidateOpenApiSessions(ctx context.Context, namespaceUUIDs []string) {
	for _, namespaceUUID := range namespaceUUIDs {
		sessionID := OpenAPISessionID(namespaceUUID)

		m.mu.Lock()
		stale, ok := m.active[sessionID]
		delete(m.active, sessionID)
		delete(m.sessionNamespace, sessionID)
		closed := m.closed
		m.mu.Unlock()

		if ok {
			m.mcpPool.CleanupSession(stale.PoolSessionID())
		}
		if closed || !ok {
			// Never built, or shutting down: nothing to rebuild.
			continue
		}
		if _, err := m.GetOpenApiServer(ctx, namespaceUUID); err != nil {
			logging.Warn("MetaPool", "Failed to rebuild OpenAPI composite for namespace %s: %v",
				namespaceUUID, err)
		}
	}
}

// CleanupSession releases the composite a session owns, closes its pool
// connections, and refills the namespace's idle slot.
func (m *MetaPool) CleanupSession(sessionID string) {
	m.mu.Lock()
	composite, ok := m.active[sessionID]
	namespaceUUID := m.sessionNamespace[sessionID]
	delete(m.active, sessionID)
	delete(m.sessionNamespace, sessionID)
	m.mu.Unlock()

	if !ok {
		return
	}

	m.mcpPool.CleanupSession(composite.PoolSessionID())
	m.replenishAsync(namespaceUUID, false)

	logging.Debug("MetaPool", "Cleaned up composite session %s (namespace %s)",
		logging.TruncateSessionID(sessionID), namespaceUUID)
}

// CleanupAll releases every idle and active composite and marks the pool
// closed.
func (m *MetaPool) CleanupAll() {
	m.mu.Lock()
	m.closed = true

	var composites []*CompositeServer
	for _, entry := range m.idle {
		composites = append(composites, entry.composite)
	}
	for _, composite := range m.active {
		composites = append(composites, composite)
	}
	m.idle = make(map[string]idleComposite)
	m.active = make(map[string]*CompositeServer)
	m.sessionNamespace = make(map[string]string)
	m.creating = make(map[string]bool)
	m.mu.Unlock()

	for _, composite := range composites {
		m.mcpPool.CleanupSession(composite.PoolSessionID())
	}
	m.wg.Wait()

	logging.Info("MetaPool", "Released %d composite servers", len(composites))
}

// GetStatus returns a monitoring snapshot.
func (m *MetaPool) GetStatus() MetaStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	var status MetaStatus
	for namespaceUUID := range m.idle {
		status.IdleNamespaceUUIDs = append(status.IdleNamespaceUUIDs, namespaceUUID)
	}
	for sessionID := range m.active {
		status.ActiveSessionIDs = append(status.ActiveSessionIDs, sessionID)
	}
	return status
}

// replenishAsync schedules a background idle build for a namespace.
func (m *MetaPool) replenishAsync(namespaceUUID string, includeInactive bool) {
	m.mu.Lock()
	if m.closed || m.idlePer <= 0 || m.creating[namespaceUUID] {
		m.mu.Unlock()
		return
	}
	if _, ok := m.idle[namespaceUUID]; ok {
		m.mu.Unlock()
		return
	}
	m.creating[namespaceUUID] = true
	m.wg.Add(1)
	m.mu.Unlock()

	go func() {
		defer m.wg.Done()
		m.buildIdle(context.Background(), namespaceUUID, includeInactive)
	}()
}

// buildIdle performs one idle composite build. The caller must have set the
// creating flag; buildIdle clears it and discards the result if an idle
// entry appeared meanwhile.
func (m *MetaPool) buildIdle(ctx context.Context, namespaceUUID string, includeInactive bool) {
	composite, err := m.build(ctx, namespaceUUID, m.ephemeralSessionID(namespaceUUID), includeInactive)

	m.mu.Lock()
	delete(m.creating, namespaceUUID)
	if err != nil {
		m.mu.Unlock()
		logging.Warn("MetaPool", "Failed to build idle composite for namespace %s: %v", namespaceUUID, err)
		return
	}

	_, occupied := m.idle[namespaceUUID]
	if m.closed || occupied {
		m.mu.Unlock()
		m.mcpPool.CleanupSession(composite.PoolSessionID())
		return
	}
	m.idle[namespaceUUID] = idleComposite{composite: composite, includeInactive: includeInactive}
	m.mu.Unlock()

	logging.Debug("MetaPool", "Idle composite ready for namespace %s", namespaceUUID)
}
