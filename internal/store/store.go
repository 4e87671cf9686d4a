package store

import (
	"context"

	"metamcp/internal/mcpserver"
)

// Status is the per-namespace activation state of a server or tool mapping.
type Status string

const (
	StatusActive   Status = "ACTIVE"
	StatusInactive Status = "INACTIVE"
	// StatusAbsent means no mapping exists. Filtering treats it as active.
	StatusAbsent Status = ""
)

// ServerMapping ties a server into a namespace with an activation status.
type ServerMapping struct {
	ServerUUID string `yaml:"serverUuid"`
	Status     Status `yaml:"status"`
}

// ToolMapping controls per-namespace visibility of a single tool.
type ToolMapping struct {
	ToolUUID   string `yaml:"toolUuid,omitempty"`
	ServerUUID string `yaml:"serverUuid"`
	ToolName   string `yaml:"toolName"`
	Status     Status `yaml:"status"`
}

// Namespace groups servers and tool mappings under one routing target.
type Namespace struct {
	UUID    string          `yaml:"uuid"`
	Name    string          `yaml:"name"`
	Servers []ServerMapping `yaml:"servers"`
	Tools   []ToolMapping   `yaml:"tools,omitempty"`
}

// ServerConfigStore resolves server configs for the pool layers.
type ServerConfigStore interface {
	// GetByUUID returns the config for a server, or false when unknown.
	GetByUUID(ctx context.Context, uuid string) (mcpserver.ServerConfig, bool, error)

	// ListAll returns every known server config.
	ListAll(ctx context.Context) ([]mcpserver.ServerConfig, error)

	// ListByNamespace returns the configs participating in a namespace,
	// keyed by server UUID. Inactive mappings are skipped unless
	// includeInactive is set.
	ListByNamespace(ctx context.Context, namespaceUUID string, includeInactive bool) (map[string]mcpserver.ServerConfig, error)
}

// NamespaceStore enumerates namespaces for warmup and invalidation.
type NamespaceStore interface {
	// ListAllNamespaces returns every known namespace UUID.
	ListAllNamespaces(ctx context.Context) ([]string, error)

	// FindNamespacesContainingServer returns the UUIDs of all namespaces
	// that reference the server.
	FindNamespacesContainingServer(ctx context.Context, serverUUID string) ([]string, error)
}

// ToolStatusStore answers per-namespace tool activation queries for the
// filter layer.
type ToolStatusStore interface {
	// GetStatus returns the mapping status for a tool, or StatusAbsent
	// when no mapping exists.
	GetStatus(ctx context.Context, namespaceUUID, serverUUID, toolName string) (Status, error)
}
