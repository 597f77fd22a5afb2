package engine

import (
	"fmt"
	"sort"
)

// Factory creates a fresh engine instance.
type Factory func() Engine

type Registration struct {
	// Factory to create an engine
	New Factory

	// Sem-version of the automation library the engine is built on
	Version string

	// Library import path, for display
	Library string
}

// Registrar of browser engines
var engineRegistry = map[string]Registration{}

// Register a browser engine under the given name
func Register(name string, info Registration) error {
	if info.New == nil {
		return ErrNilFactory
	}

	engineRegistry[name] = info
	return nil
}

func Unregister(name string) {
	delete(engineRegistry, name)
}

// Lookup creates an instance of the named engine
func Lookup(name string) (Engine, error) {
	info, ok := engineRegistry[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (known: %v)", ErrUnknownEngine, name, Names())
	}

	return info.New(), nil
}

// List all registered engines
// Note: function makes a copy of the registry to avoid accidental modification of registration info
func List() map[string]Registration {
	result := make(map[string]Registration, len(engineRegistry))
	for name, info := range engineRegistry {
		result[name] = info
	}

	return result
}

func Names() []string {
	names := make([]string, 0, len(engineRegistry))
	for name := range engineRegistry {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}
