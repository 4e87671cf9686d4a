package logging

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

type captureSink struct {
	mu      sync.Mutex
	entries []Entry
}

func (c *captureSink) Consume(e Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, e)
}

func (c *captureSink) snapshot() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Entry(nil), c.entries...)
}

func TestLevelString(t *testing.T) {
	tests := []struct {
		level    LogLevel
		expected string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{LogLevel(42), "UNKNOWN"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, tt.level.String())
	}
}

func TestSinkReceivesAllLevels(t *testing.T) {
	var buf bytes.Buffer
	Init(LevelWarn, &buf)
	ResetSinks()

	sink := &captureSink{}
	AddSink(sink)
	defer ResetSinks()

	Debug("test", "debug %d", 1)
	Info("test", "info")
	Warn("test", "warn")

	entries := sink.snapshot()
	assert.Len(t, entries, 3, "sinks see entries below the handler level")
	assert.Equal(t, "debug 1", entries[0].Message)
	assert.Equal(t, LevelDebug, entries[0].Level)
	assert.Equal(t, "test", entries[0].Subsystem)

	// The slog handler itself filters below warn.
	out := buf.String()
	assert.NotContains(t, out, "debug 1")
	assert.Contains(t, out, "warn")
}

func TestErrorCarriesErr(t *testing.T) {
	var buf bytes.Buffer
	Init(LevelDebug, &buf)
	ResetSinks()

	sink := &captureSink{}
	AddSink(sink)
	defer ResetSinks()

	Error("pool", assert.AnError, "build failed for %s", "srv-1")

	entries := sink.snapshot()
	assert.Len(t, entries, 1)
	assert.Equal(t, assert.AnError, entries[0].Err)
	assert.True(t, strings.Contains(buf.String(), "build failed for srv-1"))
}

func TestTruncateSessionID(t *testing.T) {
	assert.Equal(t, "short", TruncateSessionID("short"))
	assert.Equal(t, "12345678...", TruncateSessionID("1234567890abcdef"))
}
