package backend

import (
	"fmt"
	"sort"
	"sync"
)

// Factory constructs a Backend. Implementations register one at init time,
// mirroring rclone's `fs.Register(&fs.RegInfo{Name: "local", NewFs: NewFs})`
// convention in backend/local/local.go.
type Factory func() (Backend, error)

var (
	registryMu sync.Mutex
	registry   = map[string]Factory{}
)

// Register adds a named backend factory. Called from the init() function of
// each backend package that imports this one, never by core code directly.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = factory
}

// Find constructs the backend registered under name.
func Find(name string) (Backend, error) {
	registryMu.Lock()
	factory, ok := registry[name]
	registryMu.Unlock()
	if !ok {
		return nil, fmt.Errorf("backend: no backend registered as %q (have: %v)", name, Names())
	}
	return factory()
}

// Names lists every registered backend name, sorted for deterministic logs.
func Names() []string {
	registryMu.Lock()
	defer registryMu.Unlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
