// Package agent provides the backend-agnostic agent session layer.
//
// registry.go - Backend registry and active-adapter handle
//
// This file contains:
// - BackendType constants and factory registration
// - New for fail-fast adapter construction
// - The process-wide active adapter pointer (Active/Install/Switch)
//
// Backend packages register their factory from init(), so importing a
// backend package for side effects is enough to make it constructible.
// Exactly one adapter instance is active process-wide; switching backends
// cleans up the old instance before installing the new one.

package agent

import (
	"fmt"
	"sync"
)

// BackendType identifies an agent backend implementation
type BackendType string

const (
	BackendOpenCode BackendType = "opencode"
)

// BackendConfig holds the configuration a factory needs to build an adapter
type BackendConfig struct {
	// BaseURL is the backend server's HTTP endpoint
	BaseURL string

	// DefaultModel is the compound key used when a query names no model
	DefaultModel string

	// ToolServers lists the enabled auxiliary tool servers
	ToolServers []string
}

// Factory constructs an adapter for one backend type
type Factory func(cfg BackendConfig) Session

var (
	factoriesMu sync.RWMutex
	factories   = make(map[BackendType]Factory)
)

// Register installs a backend factory. Called from backend package init().
func Register(t BackendType, f Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[t] = f
}

// Registered returns the backend types with a registered factory
func Registered() []BackendType {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()

	types := make([]BackendType, 0, len(factories))
	for t := range factories {
		types = append(types, t)
	}
	return types
}

// New constructs an adapter for the given backend type. Unknown or
// unregistered backends fail here, at construction time, rather than
// producing a partially-working instance.
func New(t BackendType, cfg BackendConfig) (Session, error) {
	factoriesMu.RLock()
	f, ok := factories[t]
	factoriesMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, t)
	}
	return f(cfg), nil
}

var (
	activeMu sync.RWMutex
	active   Session
)

// Active returns the process-wide active adapter, or nil before Install
func Active() Session {
	activeMu.RLock()
	defer activeMu.RUnlock()
	return active
}

// Install replaces the active adapter, cleaning up the previous one.
// In-flight sessions are not migrated across backends.
func Install(s Session) {
	activeMu.Lock()
	old := active
	active = s
	activeMu.Unlock()

	if old != nil {
		old.Cleanup()
	}
}

// Switch constructs an adapter for the given backend and installs it as
// the active one
func Switch(t BackendType, cfg BackendConfig) (Session, error) {
	s, err := New(t, cfg)
	if err != nil {
		return nil, err
	}
	Install(s)
	return s, nil
}
