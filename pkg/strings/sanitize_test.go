package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"already clean", "alpha-server_1", "alpha-server_1"},
		{"spaces removed", "My Server", "MyServer"},
		{"punctuation removed", "srv.example.com:8080", "srvexamplecom8080"},
		{"unicode removed", "sérvêr", "srvr"},
		{"empty", "", ""},
		{"only invalid chars", "!!!", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Sanitize(tt.input))
		})
	}
}

func TestJoinAndSplitToolName(t *testing.T) {
	exposed := JoinToolName("My Server", "read_file")
	assert.Equal(t, "MyServer__read_file", exposed)

	prefix, original, ok := SplitToolName(exposed)
	assert.True(t, ok)
	assert.Equal(t, "MyServer", prefix)
	assert.Equal(t, "read_file", original)
}

func TestSplitToolNameFirstSeparatorWins(t *testing.T) {
	prefix, original, ok := SplitToolName("alpha__tool__with__underscores")
	assert.True(t, ok)
	assert.Equal(t, "alpha", prefix)
	assert.Equal(t, "tool__with__underscores", original)
}

func TestSplitToolNameUnmapped(t *testing.T) {
	prefix, original, ok := SplitToolName("plainname")
	assert.False(t, ok)
	assert.Empty(t, prefix)
	assert.Equal(t, "plainname", original)
}

func TestTruncateDescription(t *testing.T) {
	assert.Equal(t, "hello", TruncateDescription("hello", 10))
	assert.Equal(t, "hello w...", TruncateDescription("hello world again", 10))
	assert.Equal(t, "a b c", TruncateDescription("a\nb\t c", 20))
}
