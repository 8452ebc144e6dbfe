package backend

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Factory opens a new device instance.
type Factory func() (Device, error)

// registry holds registered devices.
var (
	registryMu sync.RWMutex
	factories  = make(map[string]Factory)
	// Priority order for device selection (first that opens wins).
	// GPU first, the CPU reference device is the fallback.
	backendPriority = []string{BackendWGPU, BackendSoftware}
)

// Register registers a device factory with the given name.
// This is typically called from init() functions in backend packages.
// If a backend with the same name is already registered, it will be replaced.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	factories[name] = factory
}

// Unregister removes a backend from the registry.
// This is useful for testing.
func Unregister(name string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(factories, name)
}

// Available returns the sorted list of registered backend names.
func Available() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsRegistered checks if a backend with the given name is registered.
func IsRegistered(name string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := factories[name]
	return ok
}

// Open opens a device by name.
func Open(name string) (Device, error) {
	registryMu.RLock()
	factory, ok := factories[name]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q (forgotten import?)", ErrBackendNotAvailable, name)
	}
	return factory()
}

// Default opens the best available device based on priority.
// Priority order: wgpu > software, then any other registered backend.
// The returned error joins every failed attempt.
func Default() (Device, error) {
	registryMu.RLock()
	order := make([]string, 0, len(factories))
	order = append(order, backendPriority...)
	var rest []string
	for name := range factories {
		if !isPriority(name) {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	order = append(order, rest...)
	registryMu.RUnlock()

	var errs []error
	for _, name := range order {
		if !IsRegistered(name) {
			continue
		}
		d, err := Open(name)
		if err == nil && d != nil {
			return d, nil
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	if len(errs) == 0 {
		return nil, ErrBackendNotAvailable
	}
	return nil, fmt.Errorf("%w: %w", ErrBackendNotAvailable, errors.Join(errs...))
}

// MustDefault returns the default device or panics.
func MustDefault() Device {
	d, err := Default()
	if err != nil {
		panic(err)
	}
	return d
}

func isPriority(name string) bool {
	for _, p := range backendPriority {
		if p == name {
			return true
		}
	}
	return false
}
