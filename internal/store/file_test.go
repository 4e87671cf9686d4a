package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeDefinitions(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "definitions.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestNewStoreFromFile(t *testing.T) {
	path := writeDefinitions(t, `
servers:
  - uuid: s1
    name: files
    kind: STDIO
    command: npx
    args: ["-y", "@modelcontextprotocol/server-filesystem", "/tmp"]
    env:
      LOG_LEVEL: debug
  - uuid: s2
    name: web
    kind: STREAMABLE_HTTP
    url: http://localhost:3000/mcp
    bearerToken: tok
namespaces:
  - uuid: ns1
    name: default
    servers:
      - serverUuid: s1
        status: ACTIVE
      - serverUuid: s2
        status: INACTIVE
    tools:
      - serverUuid: s1
        toolName: delete_file
        status: INACTIVE
`)

	s, err := NewStoreFromFile(path)
	require.NoError(t, err)

	ctx := context.Background()
	cfg, ok, err := s.GetByUUID(ctx, "s1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "npx", cfg.Command)
	assert.Equal(t, "debug", cfg.Env["LOG_LEVEL"])

	configs, err := s.ListByNamespace(ctx, "ns1", false)
	require.NoError(t, err)
	assert.Len(t, configs, 1)

	status, err := s.GetStatus(ctx, "ns1", "s1", "delete_file")
	require.NoError(t, err)
	assert.Equal(t, StatusInactive, status)
}

func TestLoadDefinitionsRejectsInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name: "missing uuid",
			content: `
servers:
  - name: files
    kind: STDIO
    command: npx
`,
		},
		{
			name: "duplicate server uuid",
			content: `
servers:
  - uuid: s1
    kind: STDIO
    command: a
  - uuid: s1
    kind: STDIO
    command: b
`,
		},
		{
			name: "stdio without command",
			content: `
servers:
  - uuid: s1
    kind: STDIO
`,
		},
		{
			name: "duplicate namespace uuid",
			content: `
namespaces:
  - uuid: ns1
    name: a
  - uuid: ns1
    name: b
`,
		},
		{
			name:    "not yaml",
			content: "servers: [unclosed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadDefinitions(writeDefinitions(t, tt.content))
			assert.Error(t, err)
		})
	}
}

func TestLoadDefinitionsMissingFile(t *testing.T) {
	_, err := LoadDefinitions(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
