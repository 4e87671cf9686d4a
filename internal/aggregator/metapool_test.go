package aggregator

import (
	"context"
	"strings"
	"testing"
	"time"

	"metamcp/internal/mcpserver"
	"metamcp/internal/store"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func metaPoolFixture(t *testing.T) (*MetaPool, *fakeSessionPool, *store.InMemoryStore) {
	t.Helper()

	sessionPool := newFakeSessionPool()
	sessionPool.backends["s1"] = &fakeBackend{tools: []mcp.Tool{{Name: "read"}}}
	sessionPool.backends["s2"] = &fakeBackend{tools: []mcp.Tool{{Name: "fetch"}}}

	configStore := store.NewInMemoryStore()
	configStore.UpsertServer(mcpserver.ServerConfig{UUID: "s1", Name: "files", Kind: mcpserver.KindStdio, Command: "npx"})
	configStore.UpsertServer(mcpserver.ServerConfig{UUID: "s2", Name: "web", Kind: mcpserver.KindSSE, URL: "http://localhost:1/sse"})
	configStore.UpsertNamespace(store.Namespace{
		UUID: "ns1",
		Name: "default",
		Servers: []store.ServerMapping{
			{ServerUUID: "s1", Status: store.StatusActive},
			{ServerUUID: "s2", Status: store.StatusInactive},
		},
	})

	return NewMetaPool(sessionPool, configStore, nil, 1), sessionPool, configStore
}

func waitIdleNamespace(t *testing.T, m *MetaPool, namespaceUUID string) {
	t.Helper()
	assert.Eventually(t, func() bool {
		for _, uuid := range m.GetStatus().IdleNamespaceUUIDs {
			if uuid == namespaceUUID {
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)
}

func TestGetServerBuildsAndReplenishes(t *testing.T) {
	m, _, _ := metaPoolFixture(t)

	composite, err := m.GetServer(context.Background(), "sid", "ns1", false)
	require.NoError(t, err)
	assert.Equal(t, "ns1", composite.NamespaceUUID())
	assert.Equal(t, "sid", composite.PoolSessionID())

	waitIdleNamespace(t, m, "ns1")
}

func TestGetServerIdempotentPerSession(t *testing.T) {
	m, _, _ := metaPoolFixture(t)
	ctx := context.Background()

	first, err := m.GetServer(ctx, "sid", "ns1", false)
	require.NoError(t, err)
	second, err := m.GetServer(ctx, "sid", "ns1", false)
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestGetServerRejectsNamespaceSwitch(t *testing.T) {
	m, _, configStore := metaPoolFixture(t)
	configStore.UpsertNamespace(store.Namespace{UUID: "ns2", Name: "other"})
	ctx := context.Background()

	_, err := m.GetServer(ctx, "sid", "ns1", false)
	require.NoError(t, err)

	_, err = m.GetServer(ctx, "sid", "ns2", false)
	assert.Error(t, err)
}

func TestGetServerPromotesIdleComposite(t *testing.T) {
	m, _, _ := metaPoolFixture(t)
	ctx := context.Background()

	m.EnsureIdleServers(ctx, []string{"ns1"}, false)
	require.Len(t, m.GetStatus().IdleNamespaceUUIDs, 1)

	promoted, err := m.GetServer(ctx, "sid", "ns1", false)
	require.NoError(t, err)

	// The promoted composite keeps its ephemeral pool session, so the warm
	// connections move over with it.
	assert.True(t, strings.HasPrefix(promoted.PoolSessionID(), "idle_ns1_"))
	waitIdleNamespace(t, m, "ns1")
}

func TestGetServerSkipsIdleWithMismatchedVisibility(t *testing.T) {
	m, _, _ := metaPoolFixture(t)
	ctx := context.Background()

	m.EnsureIdleServers(ctx, []string{"ns1"}, false)
	m.mu.Lock()
	warm, ok := m.idle["ns1"]
	m.mu.Unlock()
	require.True(t, ok)

	// The caller wants inactive servers too; the warm composite was built
	// without them and must not be handed over.
	got, err := m.GetServer(ctx, "sid", "ns1", true)
	require.NoError(t, err)
	assert.NotSame(t, warm.composite, got)
	assert.Equal(t, "sid", got.PoolSessionID())

	// The mismatched idle entry stays for callers it fits.
	m.mu.Lock()
	kept, ok := m.idle["ns1"]
	m.mu.Unlock()
	require.True(t, ok)
	assert.Same(t, warm.composite, kept.composite)
	assert.False(t, kept.includeInactive)
}

func TestEnsureIdleRebuildsOnVisibilityChange(t *testing.T) {
	m, sessionPool, _ := metaPoolFixture(t)
	ctx := context.Background()

	m.EnsureIdleServers(ctx, []string{"ns1"}, false)
	m.mu.Lock()
	staleSession := m.idle["ns1"].composite.PoolSessionID()
	m.mu.Unlock()

	m.EnsureIdleServers(ctx, []string{"ns1"}, true)

	assert.Contains(t, sessionPool.cleanedSessions(), staleSession)
	m.mu.Lock()
	fresh, ok := m.idle["ns1"]
	m.mu.Unlock()
	require.True(t, ok)
	assert.True(t, fresh.includeInactive)
	assert.NotEqual(t, staleSession, fresh.composite.PoolSessionID())
}

func TestGetServerUnknownNamespace(t *testing.T) {
	m, _, _ := metaPoolFixture(t)

	_, err := m.GetServer(context.Background(), "sid", "no-such-ns", false)
	assert.Error(t, err)
	assert.Empty(t, m.GetStatus().ActiveSessionIDs)
}

func TestEnsureIdleForNewNamespaceIdempotent(t *testing.T) {
	m, _, _ := metaPoolFixture(t)
	ctx := context.Background()

	m.EnsureIdleForNewNamespace(ctx, "ns1")
	m.EnsureIdleForNewNamespace(ctx, "ns1")

	assert.Len(t, m.GetStatus().IdleNamespaceUUIDs, 1)
}

func TestInvalidateIdleServerRebuilds(t *testing.T) {
	m, sessionPool, _ := metaPoolFixture(t)
	ctx := context.Background()

	m.EnsureIdleForNewNamespace(ctx, "ns1")
	m.mu.Lock()
	staleSession := m.idle["ns1"].composite.PoolSessionID()
	m.mu.Unlock()

	m.InvalidateIdleServer(ctx, "ns1")

	// The stale composite's pool session was released and a fresh one built.
	assert.Contains(t, sessionPool.cleanedSessions(), staleSession)
	m.mu.Lock()
	fresh, ok := m.idle["ns1"]
	m.mu.Unlock()
	require.True(t, ok)
	assert.NotEqual(t, staleSession, fresh.composite.PoolSessionID())
}

func TestCleanupIdleServerDoesNotRebuild(t *testing.T) {
	m, sessionPool, _ := metaPoolFixture(t)
	ctx := context.Background()

	m.EnsureIdleForNewNamespace(ctx, "ns1")
	m.mu.Lock()
	staleSession := m.idle["ns1"].composite.PoolSessionID()
	m.mu.Unlock()

	m.CleanupIdleServer("ns1")

	assert.Contains(t, sessionPool.cleanedSessions(), staleSession)
	assert.Empty(t, m.GetStatus().IdleNamespaceUUIDs)
}

func TestOpenApiServerDeterministicAndPersistent(t *testing.T) {
	m, _, _ := metaPoolFixture(t)
	ctx := context.Background()

	first, err := m.GetOpenApiServer(ctx, "ns1")
	require.NoError(t, err)
	assert.Equal(t, "openapi_ns1", first.PoolSessionID())

	second, err := m.GetOpenApiServer(ctx, "ns1")
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestInvalidateOpenApiSessionsRebuilds(t *testing.T) {
	m, sessionPool, _ := metaPoolFixture(t)
	ctx := context.Background()

	first, err := m.GetOpenApiServer(ctx, "ns1")
	require.NoError(t, err)

	m.InvalidateOpenApiSessions(ctx, []string{"ns1"})
	assert.Contains(t, sessionPool.cleanedSessions(), "openapi_ns1")

	rebuilt, err := m.GetOpenApiServer(ctx, "ns1")
	require.NoError(t, err)
	assert.NotSame(t, first, rebuilt)
}

func TestInvalidateOpenApiSessionsSkipsUnbuilt(t *testing.T) {
	m, sessionPool, _ := metaPoolFixture(t)

	m.InvalidateOpenApiSessions(context.Background(), []string{"ns1"})

	assert.Empty(t, sessionPool.cleanedSessions())
	assert.Empty(t, m.GetStatus().ActiveSessionIDs)
}

func TestMetaCleanupSession(t *testing.T) {
	m, sessionPool, _ := metaPoolFixture(t)
	ctx := context.Background()

	composite, err := m.GetServer(ctx, "sid", "ns1", false)
	require.NoError(t, err)
	waitIdleNamespace(t, m, "ns1")

	m.CleanupSession("sid")

	assert.Contains(t, sessionPool.cleanedSessions(), composite.PoolSessionID())
	assert.NotContains(t, m.GetStatus().ActiveSessionIDs, "sid")
	waitIdleNamespace(t, m, "ns1")

	// Unknown sessions are a no-op.
	m.CleanupSession("never-seen")
}

func TestMetaCleanupAll(t *testing.T) {
	m, sessionPool, _ := metaPoolFixture(t)
	ctx := context.Background()

	_, err := m.GetServer(ctx, "sid", "ns1", false)
	require.NoError(t, err)
	_, err = m.GetOpenApiServer(ctx, "ns1")
	require.NoError(t, err)
	waitIdleNamespace(t, m, "ns1")

	m.CleanupAll()

	status := m.GetStatus()
	assert.Empty(t, status.IdleNamespaceUUIDs)
	assert.Empty(t, status.ActiveSessionIDs)
	assert.GreaterOrEqual(t, len(sessionPool.cleanedSessions()), 3)

	_, err = m.GetServer(ctx, "sid2", "ns1", false)
	assert.Error(t, err)
}
