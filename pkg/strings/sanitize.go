// Package strings provides small string helpers shared across metamcp.
package strings

import (
	"strings"
)

// ToolSeparator joins a sanitized server name and an original tool name in an
// exposed tool name. The decoder splits on the first occurrence only, so
// original tool names may themselves contain the separator.
const ToolSeparator = "__"

// Sanitize removes every character outside [A-Za-z0-9_-] from s. Server names
// are sanitized before they are used as tool-name prefixes, keeping exposed
// names valid for MCP clients that restrict tool-name alphabets.
func Sanitize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z',
			r >= 'A' && r <= 'Z',
			r >= '0' && r <= '9',
			r == '_', r == '-':
			b.WriteRune(r)
		}
	}
	return b.String()
}

// JoinToolName builds the exposed tool name for a tool published by the named
// server: sanitize(serverName) + "__" + toolName.
func JoinToolName(serverName, toolName string) string {
	return Sanitize(serverName) + ToolSeparator + toolName
}

// SplitToolName splits an exposed tool name on the first "__" into the
// sanitized server prefix and the original tool name. ok is false when the
// separator is absent, in which case the name is considered unmapped.
func SplitToolName(exposed string) (prefix, original string, ok bool) {
	idx := strings.Index(exposed, ToolSeparator)
	if idx < 0 {
		return "", exposed, false
	}
	return exposed[:idx], exposed[idx+len(ToolSeparator):], true
}

// TruncateDescription truncates a string to maxLen runes, collapses all
// whitespace runs to single spaces and appends "..." when truncated. Used by
// CLI table output.
func TruncateDescription(s string, maxLen int) string {
	const minLen = 4
	if maxLen < minLen {
		maxLen = minLen
	}

	s = strings.Join(strings.Fields(s), " ")

	runes := []rune(s)
	if len(runes) > maxLen {
		return string(runes[:maxLen-3]) + "..."
	}
	return s
}
