package store

import (
	"context"
	"fmt"
	"sync"

	"metamcp/internal/mcpserver"
)

// InMemoryStore is a mutable in-memory implementation of all three store
// interfaces. It backs the YAML-file deployment mode and the tests; mutation
// methods return enough information for callers to drive invalidation.
type InMemoryStore struct {
	mu         sync.RWMutex
	servers    map[string]mcpserver.ServerConfig
	namespaces map[string]Namespace
}

// NewInMemoryStore creates an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		servers:    make(map[string]mcpserver.ServerConfig),
		namespaces: make(map[string]Namespace),
	}
}

// GetByUUID returns the config for a server, or false when unknown.
func (s *InMemoryStore) GetByUUID(_ context.Context, uuid string) (mcpserver.ServerConfig, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cfg, ok := s.servers[uuid]
	return cfg, ok, nil
}

// ListAll returns every known server config.
func (s *InMemoryStore) ListAll(_ context.Context) ([]mcpserver.ServerConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	configs := make([]mcpserver.ServerConfig, 0, len(s.servers))
	for _, cfg := range s.servers {
		configs = append(configs, cfg)
	}
	return configs, nil
}

// ListByNamespace returns the configs participating in a namespace, keyed by
// server UUID.
func (s *InMemoryStore) ListByNamespace(_ context.Context, namespaceUUID string, includeInactive bool) (map[string]mcpserver.ServerConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ns, ok := s.namespaces[namespaceUUID]
	if !ok {
		return nil, fmt.Errorf("namespace %s not found", namespaceUUID)
	}

	configs := make(map[string]mcpserver.ServerConfig)
	for _, mapping := range ns.Servers {
		if mapping.Status == StatusInactive && !includeInactive {
			continue
		}
		cfg, ok := s.servers[mapping.ServerUUID]
		if !ok {
			// Dangling mapping; the server was removed out from under it.
			continue
		}
		configs[mapping.ServerUUID] = cfg
	}
	return configs, nil
}

// ListAllNamespaces implements NamespaceStore.ListAll. The separate method
// name keeps the two ListAll signatures apart on the one concrete type.
func (s *InMemoryStore) ListAllNamespaces(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	uuids := make([]string, 0, len(s.namespaces))
	for uuid := range s.namespaces {
		uuids = append(uuids, uuid)
	}
	return uuids, nil
}

// FindNamespacesContainingServer returns the UUIDs of all namespaces that
// reference the server.
func (s *InMemoryStore) FindNamespacesContainingServer(_ context.Context, serverUUID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var uuids []string
	for uuid, ns := range s.namespaces {
		for _, mapping := range ns.Servers {
			if mapping.ServerUUID == serverUUID {
				uuids = append(uuids, uuid)
				break
			}
		}
	}
	return uuids, nil
}

// GetStatus returns the mapping status for a tool, or StatusAbsent when no
// mapping exists.
func (s *InMemoryStore) GetStatus(_ context.Context, namespaceUUID, serverUUID, toolName string) (Status, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ns, ok := s.namespaces[namespaceUUID]
	if !ok {
		return StatusAbsent, nil
	}
	for _, mapping := range ns.Tools {
		if mapping.ServerUUID == serverUUID && mapping.ToolName == toolName {
			return mapping.Status, nil
		}
	}
	return StatusAbsent, nil
}

// FindNamespaceByName resolves an endpoint name to its namespace.
func (s *InMemoryStore) FindNamespaceByName(name string) (Namespace, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, ns := range s.namespaces {
		if ns.Name == name {
			return ns, true
		}
	}
	return Namespace{}, false
}

// UpsertServer adds or replaces a server config.
func (s *InMemoryStore) UpsertServer(cfg mcpserver.ServerConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.servers[cfg.UUID] = cfg
}

// DeleteServer removes a server config. Namespace mappings that reference it
// become dangling and are skipped by ListByNamespace.
func (s *InMemoryStore) DeleteServer(uuid string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.servers, uuid)
}

// UpsertNamespace adds or replaces a namespace.
func (s *InMemoryStore) UpsertNamespace(ns Namespace) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.namespaces[ns.UUID] = ns
}

// DeleteNamespace removes a namespace.
func (s *InMemoryStore) DeleteNamespace(uuid string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.namespaces, uuid)
}

// SetServerStatus toggles a server's activation inside one namespace.
// Returns false when the namespace or mapping does not exist.
func (s *InMemoryStore) SetServerStatus(namespaceUUID, serverUUID string, status Status) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	ns, ok := s.namespaces[namespaceUUID]
	if !ok {
		return false
	}
	for i, mapping := range ns.Servers {
		if mapping.ServerUUID == serverUUID {
			ns.Servers[i].Status = status
			s.namespaces[namespaceUUID] = ns
			return true
		}
	}
	return false
}

// SetToolStatus sets or creates a tool mapping inside one namespace.
// Returns false when the namespace does not exist.
func (s *InMemoryStore) SetToolStatus(namespaceUUID, serverUUID, toolName string, status Status) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	ns, ok := s.namespaces[namespaceUUID]
	if !ok {
		return false
	}
	for i, mapping := range ns.Tools {
		if mapping.ServerUUID == serverUUID && mapping.ToolName == toolName {
			ns.Tools[i].Status = status
			s.namespaces[namespaceUUID] = ns
			return true
		}
	}
	ns.Tools = append(ns.Tools, ToolMapping{
		ServerUUID: serverUUID,
		ToolName:   toolName,
		Status:     status,
	})
	s.namespaces[namespaceUUID] = ns
	return true
}

// Snapshot returns copies of the current servers and namespaces, for diffing
// against a freshly loaded definition file.
func (s *InMemoryStore) Snapshot() (map[string]mcpserver.ServerConfig, map[string]Namespace) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	servers := make(map[string]mcpserver.ServerConfig, len(s.servers))
	for k, v := range s.servers {
		servers[k] = v
	}
	namespaces := make(map[string]Namespace, len(s.namespaces))
	for k, v := range s.namespaces {
		namespaces[k] = v
	}
	return servers, namespaces
}

// Replace swaps the entire store contents in one step.
func (s *InMemoryStore) Replace(servers map[string]mcpserver.ServerConfig, namespaces map[string]Namespace) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.servers = make(map[string]mcpserver.ServerConfig, len(servers))
	for k, v := range servers {
		s.servers[k] = v
	}
	s.namespaces = make(map[string]Namespace, len(namespaces))
	for k, v := range namespaces {
		s.namespaces[k] = v
	}
}
