// Package registry holds the architecture specs known to a process.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kingrea/archspec/internal/spec"
)

var (
	ErrDuplicateSpecID = errors.New("registry: duplicate spec id")
	ErrSpecNotFound    = errors.New("registry: spec not found")
	ErrUnknownOption   = errors.New("registry: unknown option")
	ErrInvalidChoice   = errors.New("registry: invalid choice")
)

// Source produces architecture specs, e.g. the embedded catalog, a
// directory of YAML files or a database.
type Source interface {
	Load(ctx context.Context) ([]spec.ArchitectureSpec, error)
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger attaches a logger. A nil logger is ignored.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithExternalCategories adds dependency categories that layers may name in
// canImport besides the built-in set.
func WithExternalCategories(names ...string) Option {
	return func(r *Registry) {
		r.validate = append(r.validate, spec.WithExternalCategories(names...))
	}
}

// Registry maintains validated specs keyed by id. Specs are immutable once
// registered; every accessor returns a deep copy.
type Registry struct {
	mu       sync.RWMutex
	specs    map[string]spec.ArchitectureSpec
	validate []spec.ValidateOption
	logger   *zap.Logger
}

// New returns an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{specs: map[string]spec.ArchitectureSpec{}, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Load builds a registry from the given sources. Sources are read
// concurrently but registered in argument order, so a duplicate id is always
// reported against the later source.
func Load(ctx context.Context, sources []Source, opts ...Option) (*Registry, error) {
	r := New(opts...)
	loaded := make([][]spec.ArchitectureSpec, len(sources))
	g, gctx := errgroup.WithContext(ctx)
	for i, src := range sources {
		if src == nil {
			continue
		}
		g.Go(func() error {
			specs, err := src.Load(gctx)
			if err != nil {
				return fmt.Errorf("registry: load %s: %w", sourceName(src), err)
			}
			loaded[i] = specs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for i, specs := range loaded {
		for _, s := range specs {
			if err := r.Register(s); err != nil {
				return nil, fmt.Errorf("registry: %s: %w", sourceName(sources[i]), err)
			}
		}
	}
	return r, nil
}

// Register validates and installs a spec.
func (r *Registry) Register(s spec.ArchitectureSpec) error {
	s = s.Normalized()
	if err := s.Validate(r.validate...); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.specs[s.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateSpecID, s.ID)
	}
	r.specs[s.ID] = s
	r.logger.Debug("registered spec", zap.String("id", s.ID), zap.Int("layers", len(s.Layers)))
	return nil
}

// MustRegister panics if registration fails.
func (r *Registry) MustRegister(s spec.ArchitectureSpec) {
	if err := r.Register(s); err != nil {
		panic(err)
	}
}

// Get returns a copy of the spec with the given id.
func (r *Registry) Get(id string) (spec.ArchitectureSpec, error) {
	r.mu.RLock()
	s, ok := r.specs[strings.TrimSpace(id)]
	r.mu.RUnlock()
	if !ok {
		return spec.ArchitectureSpec{}, fmt.Errorf("%w: %s", ErrSpecNotFound, id)
	}
	return s.Normalized(), nil
}

// Has reports whether id is registered.
func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.specs[strings.TrimSpace(id)]
	return ok
}

// ValidateOption checks value against the choices of the spec's option key.
func (r *Registry) ValidateOption(specID, key, value string) error {
	option, err := r.option(specID, key)
	if err != nil {
		return err
	}
	if !option.Allows(value) {
		return fmt.Errorf("%w: %s=%s (choices: %s)", ErrInvalidChoice, key, value, strings.Join(option.Choices, ", "))
	}
	return nil
}

// ResolveOptions returns the effective option values for a spec: every
// override is validated and every other option takes its default.
func (r *Registry) ResolveOptions(specID string, overrides map[string]string) (map[string]string, error) {
	s, err := r.Get(specID)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(overrides))
	for key := range overrides {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if err := r.ValidateOption(specID, key, overrides[key]); err != nil {
			return nil, err
		}
	}
	out := make(map[string]string, len(s.Options))
	for key, option := range s.Options {
		out[key] = option.Default
	}
	for key, value := range overrides {
		out[key] = value
	}
	return out, nil
}

// IDs returns the registered spec ids in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.specs))
	for id := range r.specs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Specs returns copies of every registered spec in id order.
func (r *Registry) Specs() []spec.ArchitectureSpec {
	ids := r.IDs()
	out := make([]spec.ArchitectureSpec, 0, len(ids))
	for _, id := range ids {
		if s, err := r.Get(id); err == nil {
			out = append(out, s)
		}
	}
	return out
}

// Len returns the number of registered specs.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.specs)
}

func (r *Registry) option(specID, key string) (spec.Option, error) {
	specID = strings.TrimSpace(specID)
	r.mu.RLock()
	s, ok := r.specs[specID]
	r.mu.RUnlock()
	if !ok {
		return spec.Option{}, fmt.Errorf("%w: %s", ErrSpecNotFound, specID)
	}
	option, ok := s.Options[key]
	if !ok {
		return spec.Option{}, fmt.Errorf("%w: %s has no option %s", ErrUnknownOption, specID, key)
	}
	return option, nil
}

func sourceName(src Source) string {
	if s, ok := src.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%T", src)
}
