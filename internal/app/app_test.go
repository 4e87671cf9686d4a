package app

import (
	"os"
	"path/filepath"
	"testing"

	"metamcp/internal/logstore"
	"metamcp/pkg/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDefinitions = `servers:
  - uuid: s1
    name: files
    kind: STDIO
    command: npx
    args: ["-y", "@modelcontextprotocol/server-filesystem", "/tmp"]
namespaces:
  - uuid: ns1
    name: default
    servers:
      - serverUuid: s1
        status: ACTIVE
`

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestNewWiresComponents(t *testing.T) {
	defsPath := writeTempFile(t, "definitions.yaml", testDefinitions)

	app, err := New(Options{DefinitionsPath: defsPath, Silent: true})
	require.NoError(t, err)

	assert.NotNil(t, app.store)
	assert.NotNil(t, app.mcpPool)
	assert.NotNil(t, app.metaPool)
	assert.NotNil(t, app.watcher)
	assert.NotNil(t, app.host)

	ns, ok := app.store.FindNamespaceByName("default")
	require.True(t, ok)
	assert.Equal(t, "ns1", ns.UUID)
}

func TestProcessWarningsReachLogStore(t *testing.T) {
	defsPath := writeTempFile(t, "definitions.yaml", testDefinitions)

	app, err := New(Options{DefinitionsPath: defsPath, Silent: true})
	require.NoError(t, err)

	logging.Warn("Watcher", "definitions reload took %dms", 1200)
	logging.Debug("Watcher", "poll tick")

	entries := app.logStore.EntriesForServer("Watcher")
	require.Len(t, entries, 1)
	assert.Equal(t, logstore.LevelWarn, entries[0].Level)
	assert.Equal(t, "definitions reload took 1200ms", entries[0].Message)
}

func TestNewRequiresDefinitionsPath(t *testing.T) {
	_, err := New(Options{Silent: true})
	assert.Error(t, err)
}

func TestNewRejectsBrokenDefinitions(t *testing.T) {
	defsPath := writeTempFile(t, "definitions.yaml", "servers: [not a mapping")

	_, err := New(Options{DefinitionsPath: defsPath, Silent: true})
	assert.Error(t, err)
}

func TestShutdownWithoutRun(t *testing.T) {
	defsPath := writeTempFile(t, "definitions.yaml", testDefinitions)

	app, err := New(Options{DefinitionsPath: defsPath, Silent: true})
	require.NoError(t, err)

	// Must not panic or hang when nothing was started.
	app.shutdown()
}
