package adapter

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
)

// Factory creates an unconnected adapter.
type Factory func(*slog.Logger) Adapter

var (
	registryMu sync.RWMutex
	factories  = make(map[string]Factory)
	aliases    = make(map[string]string)
)

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Register adds an adapter factory under name and any aliases, e.g.
// "postgres" with alias "postgresql". Names are case-insensitive.
// Called by adapter implementations in their init() functions.
func Register(name string, factory Factory, alias ...string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	name = normalize(name)
	factories[name] = factory
	for _, a := range alias {
		aliases[normalize(a)] = name
	}
}

// Resolve returns the canonical adapter name for name or one of its
// aliases, and whether it is registered.
func Resolve(name string) (string, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return resolveLocked(name)
}

func resolveLocked(name string) (string, bool) {
	name = normalize(name)
	if canonical, ok := aliases[name]; ok {
		name = canonical
	}
	_, ok := factories[name]
	return name, ok
}

// Get retrieves an adapter factory by name or alias.
func Get(name string) (Factory, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	canonical, ok := resolveLocked(name)
	if !ok {
		return nil, false
	}
	return factories[canonical], true
}

// NewAdapter creates a new adapter instance based on config type.
// The logger parameter is passed to the adapter constructor (nil uses discard logger).
func NewAdapter(cfg Config, logger *slog.Logger) (Adapter, error) {
	if strings.TrimSpace(cfg.Type) == "" {
		return nil, fmt.Errorf("adapter type not specified")
	}

	factory, ok := Get(cfg.Type)
	if !ok {
		return nil, &UnknownAdapterError{
			Type:      cfg.Type,
			Available: ListAdapters(),
		}
	}
	return factory(logger), nil
}

// Open creates the adapter for cfg.Type and connects it.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (Adapter, error) {
	a, err := NewAdapter(cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := a.Connect(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", a.DialectName(), err)
	}
	return a, nil
}

// ListAdapters returns the canonical names of all registered adapters (sorted).
func ListAdapters() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsRegistered reports whether name or alias refers to a registered adapter.
func IsRegistered(name string) bool {
	_, ok := Resolve(name)
	return ok
}

// UnknownAdapterError is returned when an unknown adapter type is requested.
type UnknownAdapterError struct {
	Type      string
	Available []string
}

func (e *UnknownAdapterError) Error() string {
	return fmt.Sprintf("unknown adapter type %q\nAvailable adapters: %v\nHint: Check your target.type in leapcheck.yaml", e.Type, e.Available)
}
