package config

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/basa-ph/basa/pkg/provider/stt"
	"github.com/basa-ph/basa/pkg/provider/vad"
)

// ErrProviderNotRegistered is returned when a config names a provider that
// has no factory.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Factory builds a provider from its config entry.
type Factory[T any] func(ProviderEntry) (T, error)

type factories[T any] struct {
	kind string
	m    map[string]Factory[T]
}

func (f *factories[T]) create(entry ProviderEntry) (T, error) {
	build, ok := f.m[entry.Name]
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s %q (registered: %v)", ErrProviderNotRegistered, f.kind, entry.Name, f.names())
	}
	return build(entry)
}

func (f *factories[T]) names() []string {
	names := make([]string, 0, len(f.m))
	for n := range f.m {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// Registry maps the provider names used in config files to factories. It is
// safe for concurrent use. A later registration under the same name replaces
// the earlier one.
type Registry struct {
	mu  sync.RWMutex
	stt factories[stt.Provider]
	vad factories[vad.Engine]
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		stt: factories[stt.Provider]{kind: "stt", m: map[string]Factory[stt.Provider]{}},
		vad: factories[vad.Engine]{kind: "vad", m: map[string]Factory[vad.Engine]{}},
	}
}

func (r *Registry) RegisterSTT(name string, f Factory[stt.Provider]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stt.m[name] = f
}

func (r *Registry) RegisterVAD(name string, f Factory[vad.Engine]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vad.m[name] = f
}

// CreateSTT builds the recognizer named by entry.
func (r *Registry) CreateSTT(entry ProviderEntry) (stt.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stt.create(entry)
}

// CreateVAD builds the voice activity engine named by entry.
func (r *Registry) CreateVAD(entry ProviderEntry) (vad.Engine, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.vad.create(entry)
}

// Names lists the registered provider names per kind, sorted.
func (r *Registry) Names() map[string][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return map[string][]string{"stt": r.stt.names(), "vad": r.vad.names()}
}
