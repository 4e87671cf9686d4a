package mcpserver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  ServerConfig
		wantErr bool
	}{
		{
			name:   "valid stdio",
			config: ServerConfig{UUID: "u1", Kind: KindStdio, Command: "npx"},
		},
		{
			name:    "stdio without command",
			config:  ServerConfig{UUID: "u1", Kind: KindStdio},
			wantErr: true,
		},
		{
			name:   "valid sse",
			config: ServerConfig{UUID: "u2", Kind: KindSSE, URL: "http://localhost:3000/sse"},
		},
		{
			name:    "sse without url",
			config:  ServerConfig{UUID: "u2", Kind: KindSSE},
			wantErr: true,
		},
		{
			name:   "valid streamable http",
			config: ServerConfig{UUID: "u3", Kind: KindStreamableHTTP, URL: "http://localhost:3000/mcp"},
		},
		{
			name:    "unknown kind",
			config:  ServerConfig{UUID: "u4", Kind: "WEBSOCKET", URL: "ws://x"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateUnknownKindWrapsSentinel(t *testing.T) {
	err := ServerConfig{UUID: "u", Kind: "WEBSOCKET"}.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupportedKind)
}

func TestFingerprintStable(t *testing.T) {
	config := ServerConfig{
		UUID:    "abc",
		Kind:    KindStdio,
		Command: "npx",
		Args:    []string{"-y", "@modelcontextprotocol/server-filesystem", "/tmp"},
		Env:     map[string]string{"B": "2", "A": "1"},
	}

	first := config.Fingerprint()
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, config.Fingerprint())
	}
}

func TestFingerprintIgnoresNonConnectionFields(t *testing.T) {
	base := ServerConfig{UUID: "abc", Kind: KindStdio, Command: "npx", Args: []string{"x"}}

	renamed := base
	renamed.Name = "different-display-name"
	renamed.StderrMode = StderrIgnore
	assert.Equal(t, base.Fingerprint(), renamed.Fingerprint())

	httpBase := ServerConfig{UUID: "abc", Kind: KindSSE, URL: "http://localhost:3000/sse"}
	retokened := httpBase
	retokened.BearerToken = "secret"
	retokened.OAuthTokens = &OAuthTokens{AccessToken: "at"}
	assert.Equal(t, httpBase.Fingerprint(), retokened.Fingerprint())
}

func TestFingerprintChangesWithConnectionFields(t *testing.T) {
	base := ServerConfig{UUID: "abc", Kind: KindStdio, Command: "npx", Args: []string{"x"}}

	changedCommand := base
	changedCommand.Command = "uvx"
	assert.NotEqual(t, base.Fingerprint(), changedCommand.Fingerprint())

	changedArgs := base
	changedArgs.Args = []string{"y"}
	assert.NotEqual(t, base.Fingerprint(), changedArgs.Fingerprint())

	changedEnv := base
	changedEnv.Env = map[string]string{"K": "v"}
	assert.NotEqual(t, base.Fingerprint(), changedEnv.Fingerprint())

	changedUUID := base
	changedUUID.UUID = "other"
	assert.NotEqual(t, base.Fingerprint(), changedUUID.Fingerprint())
}

func TestFingerprintEnvOrderIndependent(t *testing.T) {
	a := ServerConfig{UUID: "u", Kind: KindStdio, Command: "c",
		Env: map[string]string{"A": "1", "B": "2", "C": "3"}}
	b := ServerConfig{UUID: "u", Kind: KindStdio, Command: "c",
		Env: map[string]string{"C": "3", "A": "1", "B": "2"}}
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
}

func TestFingerprintKindBranches(t *testing.T) {
	stdio := ServerConfig{UUID: "u", Kind: KindStdio, Command: "c", URL: "http://ignored"}
	sse := ServerConfig{UUID: "u", Kind: KindSSE, URL: "http://host/sse", Command: "ignored"}

	// Fields outside the kind's branch do not participate.
	stdioNoURL := stdio
	stdioNoURL.URL = ""
	assert.Equal(t, stdio.Fingerprint(), stdioNoURL.Fingerprint())

	sseNoCommand := sse
	sseNoCommand.Command = ""
	assert.Equal(t, sse.Fingerprint(), sseNoCommand.Fingerprint())

	assert.NotEqual(t, stdio.Fingerprint(), sse.Fingerprint())
}
