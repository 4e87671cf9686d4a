package store

import (
	"fmt"
	"os"

	"metamcp/internal/mcpserver"

	"gopkg.in/yaml.v3"
)

// DefinitionsFile is the on-disk shape of the servers-and-namespaces
// definition document.
type DefinitionsFile struct {
	Servers    []mcpserver.ServerConfig `yaml:"servers"`
	Namespaces []Namespace              `yaml:"namespaces"`
}

// LoadDefinitions parses a definitions file and validates every server
// config in it. Mappings referencing unknown server UUIDs are tolerated;
// they resolve to nothing at lookup time.
func LoadDefinitions(path string) (*DefinitionsFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read definitions file %s: %w", path, err)
	}

	var defs DefinitionsFile
	if err := yaml.Unmarshal(data, &defs); err != nil {
		return nil, fmt.Errorf("failed to parse definitions file %s: %w", path, err)
	}

	seen := make(map[string]bool)
	for _, cfg := range defs.Servers {
		if cfg.UUID == "" {
			return nil, fmt.Errorf("definitions file %s: server %q has no uuid", path, cfg.Name)
		}
		if seen[cfg.UUID] {
			return nil, fmt.Errorf("definitions file %s: duplicate server uuid %s", path, cfg.UUID)
		}
		seen[cfg.UUID] = true
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("definitions file %s: %w", path, err)
		}
	}

	seenNS := make(map[string]bool)
	for _, ns := range defs.Namespaces {
		if ns.UUID == "" {
			return nil, fmt.Errorf("definitions file %s: namespace %q has no uuid", path, ns.Name)
		}
		if seenNS[ns.UUID] {
			return nil, fmt.Errorf("definitions file %s: duplicate namespace uuid %s", path, ns.UUID)
		}
		seenNS[ns.UUID] = true
	}

	return &defs, nil
}

// ServerMap keys the file's servers by UUID.
func (d *DefinitionsFile) ServerMap() map[string]mcpserver.ServerConfig {
	servers := make(map[string]mcpserver.ServerConfig, len(d.Servers))
	for _, cfg := range d.Servers {
		servers[cfg.UUID] = cfg
	}
	return servers
}

// NamespaceMap keys the file's namespaces by UUID.
func (d *DefinitionsFile) NamespaceMap() map[string]Namespace {
	namespaces := make(map[string]Namespace, len(d.Namespaces))
	for _, ns := range d.Namespaces {
		namespaces[ns.UUID] = ns
	}
	return namespaces
}

// NewStoreFromFile loads a definitions file into a fresh in-memory store.
func NewStoreFromFile(path string) (*InMemoryStore, error) {
	defs, err := LoadDefinitions(path)
	if err != nil {
		return nil, err
	}

	s := NewInMemoryStore()
	s.Replace(defs.ServerMap(), defs.NamespaceMap())
	return s, nil
}
