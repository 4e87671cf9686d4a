package store

import (
	"context"
	"testing"

	"metamcp/internal/mcpserver"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedStore() *InMemoryStore {
	s := NewInMemoryStore()
	s.UpsertServer(mcpserver.ServerConfig{UUID: "s1", Name: "files", Kind: mcpserver.KindStdio, Command: "npx"})
	s.UpsertServer(mcpserver.ServerConfig{UUID: "s2", Name: "web", Kind: mcpserver.KindSSE, URL: "http://localhost:3000/sse"})
	s.UpsertNamespace(Namespace{
		UUID: "ns1",
		Name: "default",
		Servers: []ServerMapping{
			{ServerUUID: "s1", Status: StatusActive},
			{ServerUUID: "s2", Status: StatusInactive},
		},
		Tools: []ToolMapping{
			{ServerUUID: "s1", ToolName: "read_file", Status: StatusInactive},
		},
	})
	s.UpsertNamespace(Namespace{
		UUID:    "ns2",
		Name:    "web-only",
		Servers: []ServerMapping{{ServerUUID: "s2", Status: StatusActive}},
	})
	return s
}

func TestGetByUUID(t *testing.T) {
	s := seedStore()
	ctx := context.Background()

	cfg, ok, err := s.GetByUUID(ctx, "s1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "files", cfg.Name)

	_, ok, err = s.GetByUUID(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestListByNamespaceHonorsStatus(t *testing.T) {
	s := seedStore()
	ctx := context.Background()

	active, err := s.ListByNamespace(ctx, "ns1", false)
	require.NoError(t, err)
	assert.Len(t, active, 1)
	assert.Contains(t, active, "s1")

	all, err := s.ListByNamespace(ctx, "ns1", true)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = s.ListByNamespace(ctx, "missing", false)
	assert.Error(t, err)
}

func TestListByNamespaceSkipsDanglingMappings(t *testing.T) {
	s := seedStore()
	s.DeleteServer("s1")

	configs, err := s.ListByNamespace(context.Background(), "ns1", true)
	require.NoError(t, err)
	assert.NotContains(t, configs, "s1")
	assert.Contains(t, configs, "s2")
}

func TestFindNamespacesContainingServer(t *testing.T) {
	s := seedStore()
	ctx := context.Background()

	uuids, err := s.FindNamespacesContainingServer(ctx, "s2")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"ns1", "ns2"}, uuids)

	uuids, err = s.FindNamespacesContainingServer(ctx, "unknown")
	require.NoError(t, err)
	assert.Empty(t, uuids)
}

func TestGetStatus(t *testing.T) {
	s := seedStore()
	ctx := context.Background()

	status, err := s.GetStatus(ctx, "ns1", "s1", "read_file")
	require.NoError(t, err)
	assert.Equal(t, StatusInactive, status)

	// Unmapped tools and unknown namespaces resolve to absent, not errors.
	status, err = s.GetStatus(ctx, "ns1", "s1", "write_file")
	require.NoError(t, err)
	assert.Equal(t, StatusAbsent, status)

	status, err = s.GetStatus(ctx, "nope", "s1", "read_file")
	require.NoError(t, err)
	assert.Equal(t, StatusAbsent, status)
}

func TestSetServerStatus(t *testing.T) {
	s := seedStore()

	require.True(t, s.SetServerStatus("ns1", "s2", StatusActive))
	configs, err := s.ListByNamespace(context.Background(), "ns1", false)
	require.NoError(t, err)
	assert.Contains(t, configs, "s2")

	assert.False(t, s.SetServerStatus("ns1", "unknown", StatusActive))
	assert.False(t, s.SetServerStatus("unknown", "s1", StatusActive))
}

func TestSetToolStatusCreatesMapping(t *testing.T) {
	s := seedStore()
	ctx := context.Background()

	require.True(t, s.SetToolStatus("ns1", "s1", "write_file", StatusInactive))
	status, err := s.GetStatus(ctx, "ns1", "s1", "write_file")
	require.NoError(t, err)
	assert.Equal(t, StatusInactive, status)

	// Updating an existing mapping flips it in place.
	require.True(t, s.SetToolStatus("ns1", "s1", "write_file", StatusActive))
	status, err = s.GetStatus(ctx, "ns1", "s1", "write_file")
	require.NoError(t, err)
	assert.Equal(t, StatusActive, status)

	assert.False(t, s.SetToolStatus("unknown", "s1", "x", StatusActive))
}

func TestSnapshotAndReplace(t *testing.T) {
	s := seedStore()

	servers, namespaces := s.Snapshot()
	assert.Len(t, servers, 2)
	assert.Len(t, namespaces, 2)

	// Mutating the snapshot does not affect the store.
	delete(servers, "s1")
	_, ok, err := s.GetByUUID(context.Background(), "s1")
	require.NoError(t, err)
	assert.True(t, ok)

	s.Replace(servers, namespaces)
	_, ok, err = s.GetByUUID(context.Background(), "s1")
	require.NoError(t, err)
	assert.False(t, ok)
}
