package analysis

import (
	"fmt"
	"sync"
)

// Factory creates an Analyzer from backend-specific configuration.
type Factory func(config map[string]any) (Analyzer, error)

var (
	factoriesMu sync.RWMutex
	factories   = make(map[string]Factory)
)

// RegisterFactory registers an analyzer factory under a backend name.
// Backends self-register from their init functions.
func RegisterFactory(name string, factory Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[name] = factory
}

// New creates an analyzer by backend name.
func New(name string, config map[string]any) (Analyzer, error) {
	factoriesMu.RLock()
	factory, ok := factories[name]
	factoriesMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("analyzer backend '%s' not found", name)
	}
	return factory(config)
}

// Backends returns all registered backend names.
func Backends() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()

	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	return names
}
