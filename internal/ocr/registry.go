package ocr

import (
	"fmt"
	"sort"
	"sync"
)

// Factory builds an engine for the given configuration.
type Factory func(cfg Config) (Engine, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register makes an engine available to Open. Engines register themselves
// from init; registering the same name twice panics.
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[name]; dup {
		panic(fmt.Sprintf("ocr: engine %q registered twice", name))
	}
	registry[name] = f
}

// Open builds the named engine.
func Open(name string, cfg Config) (Engine, error) {
	registryMu.RLock()
	f, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, &Error{Op: "open", Err: fmt.Errorf("%w: %q", ErrUnknownEngine, name)}
	}
	return f(cfg)
}

// Engines lists registered engine names in sorted order.
func Engines() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
