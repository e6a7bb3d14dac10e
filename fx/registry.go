package fx

import (
	"errors"
	"fmt"
	"sync"
)

// ErrUnknownEffect is returned when no factory is registered for a kind.
var ErrUnknownEffect = errors.New("fx: unknown effect kind")

// Factory builds one effect instance.
type Factory func(opts ...Option) (Instance, error)

// Registry maps effect kinds to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[Kind]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[Kind]Factory)}
}

// Register adds a factory for a kind. Registering a kind twice is an error.
func (r *Registry) Register(kind Kind, factory Factory) error {
	if factory == nil {
		return fmt.Errorf("fx: nil factory for kind %s", kind)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[kind]; exists {
		return fmt.Errorf("fx: factory already registered for kind %s", kind)
	}
	r.factories[kind] = factory

	return nil
}

// Create builds an instance of the given kind.
func (r *Registry) Create(kind Kind, opts ...Option) (Instance, error) {
	r.mu.RLock()
	factory, ok := r.factories[kind]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEffect, kind)
	}

	return factory(opts...)
}

// Kinds returns the registered kinds.
func (r *Registry) Kinds() []Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]Kind, 0, len(r.factories))
	for k := range r.factories {
		kinds = append(kinds, k)
	}

	return kinds
}

// DefaultRegistry returns a registry with every built-in effect registered.
func DefaultRegistry() *Registry {
	r := NewRegistry()

	must := func(err error) {
		if err != nil {
			panic(err)
		}
	}

	must(r.Register(KindDelay, func(opts ...Option) (Instance, error) { return NewDelay(opts...) }))
	must(r.Register(KindReverb, func(opts ...Option) (Instance, error) { return NewReverb(opts...) }))
	must(r.Register(KindCompressor, func(opts ...Option) (Instance, error) { return NewCompressor(opts...) }))
	must(r.Register(KindGate, func(opts ...Option) (Instance, error) { return NewGate(opts...) }))
	must(r.Register(KindPitchCorrector, func(opts ...Option) (Instance, error) { return NewPitchCorrector(opts...) }))

	return r
}
