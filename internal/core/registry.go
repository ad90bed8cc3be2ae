package core

import (
	"fmt"
	"sort"
	"sync"
)

// ImporterInfo describes a registered importer.
type ImporterInfo struct {
	Key         string     `json:"key"`         // Unique identifier: "posts"
	Label       string     `json:"label"`       // Display name: "Blog posts"
	EntityType  EntityType `json:"entityType"`  // Type of entity created
	Description string     `json:"description"` // One line for listings
	Query       string     `json:"-"`           // Source query for database input, with {table} placeholders
}

// BuildFunc produces the definition for one importer. It runs once per
// importer instance so the column map can depend on the capabilities in opts.
type BuildFunc func(opts Options) (Definition, error)

// Registration pairs importer metadata with its builder.
type Registration struct {
	Info  ImporterInfo
	Build BuildFunc
}

var (
	registry   = make(map[string]Registration)
	registryMu sync.RWMutex
)

// Register adds an importer to the registry.
// Panics if an importer with the same key is already registered.
func Register(reg Registration) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if reg.Build == nil {
		panic(fmt.Sprintf("importer %s has no build func", reg.Info.Key))
	}
	if _, exists := registry[reg.Info.Key]; exists {
		panic(fmt.Sprintf("importer already registered: %s", reg.Info.Key))
	}

	registry[reg.Info.Key] = reg
}

// Get returns an importer registration by key.
// Returns false if not found.
func Get(key string) (Registration, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	reg, ok := registry[key]
	return reg, ok
}

// All returns all registered importers sorted by key.
func All() []Registration {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]Registration, 0, len(registry))
	for _, reg := range registry {
		result = append(result, reg)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Info.Key < result[j].Info.Key
	})

	return result
}

// Keys returns all registered importer keys, sorted.
func Keys() []string {
	all := All()
	keys := make([]string, len(all))
	for i, reg := range all {
		keys[i] = reg.Info.Key
	}
	return keys
}

// ImporterCount returns the number of registered importers.
func ImporterCount() int {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return len(registry)
}

// Clear removes all registered importers.
// Primarily useful for testing.
func Clear() {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = make(map[string]Registration)
}

// Build looks up key and returns a ready importer bound to backend.
func Build(key string, backend Backend, opts Options) (*Importer, error) {
	reg, ok := Get(key)
	if !ok {
		return nil, configErrorf(key, "unknown importer (available: %v)", Keys())
	}
	def, err := reg.Build(opts)
	if err != nil {
		return nil, err
	}
	if def.Key == "" {
		def.Key = reg.Info.Key
	}
	return NewImporter(def, backend, opts)
}
