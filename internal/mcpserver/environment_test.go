package mcpserver

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizedEnvAllowList(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("posix allow-list test")
	}

	t.Setenv("PATH", "/usr/bin")
	t.Setenv("HOME", "/home/test")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "leaked")
	t.Setenv("DATABASE_URL", "postgres://leaked")

	env := SanitizedEnv(nil)

	assert.Contains(t, env, "PATH=/usr/bin")
	assert.Contains(t, env, "HOME=/home/test")
	for _, kv := range env {
		assert.NotContains(t, kv, "AWS_SECRET_ACCESS_KEY")
		assert.NotContains(t, kv, "DATABASE_URL")
	}
}

func TestSanitizedEnvDropsExportedFunctions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("posix allow-list test")
	}

	t.Setenv("TERM", "() { :; }; echo pwned")

	env := SanitizedEnv(nil)
	for _, kv := range env {
		assert.NotContains(t, kv, "pwned")
	}
}

func TestSanitizedEnvMergesExtra(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("posix allow-list test")
	}

	t.Setenv("PATH", "/usr/bin")

	env := SanitizedEnv(map[string]string{
		"API_KEY": "abc123",
		"PATH":    "/custom/bin",
	})

	assert.Contains(t, env, "API_KEY=abc123")
	// Config-supplied values win over inherited ones.
	assert.Contains(t, env, "PATH=/custom/bin")
	assert.NotContains(t, env, "PATH=/usr/bin")

	// Output is sorted.
	assert.IsIncreasing(t, env)
}

func TestAutodetectCwd(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"no args", nil, ""},
		{"directory arg", []string{dir}, dir},
		{"flag then directory", []string{"--verbose", dir}, dir},
		{"nonexistent path", []string{"/no/such/dir/hopefully"}, ""},
		{"flag shaped like a path is skipped", []string{"-" + dir}, ""},
		{"first existing directory wins", []string{"/no/such/dir", dir, "/also/missing"}, dir},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AutodetectCwd(tt.args))
		})
	}
}

func TestRewriteDockerLocalhost(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"localhost with port", "http://localhost:3000/sse", "http://host.docker.internal:3000/sse"},
		{"loopback ip", "http://127.0.0.1:8080/mcp", "http://host.docker.internal:8080/mcp"},
		{"localhost no port", "https://localhost/mcp", "https://host.docker.internal/mcp"},
		{"remote host untouched", "https://api.example.com/mcp", "https://api.example.com/mcp"},
		{"unparseable passes through", "://not-a-url", "://not-a-url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RewriteDockerLocalhost(tt.in))
		})
	}
}

func TestAuthorizationHeader(t *testing.T) {
	require.Empty(t, AuthorizationHeader(ServerConfig{}))

	assert.Equal(t, "Bearer static",
		AuthorizationHeader(ServerConfig{BearerToken: "static"}))

	// OAuth access token outranks the static token.
	assert.Equal(t, "Bearer oauth",
		AuthorizationHeader(ServerConfig{
			BearerToken: "static",
			OAuthTokens: &OAuthTokens{AccessToken: "oauth"},
		}))

	// Empty access token falls back to the static token.
	assert.Equal(t, "Bearer static",
		AuthorizationHeader(ServerConfig{
			BearerToken: "static",
			OAuthTokens: &OAuthTokens{},
		}))
}
