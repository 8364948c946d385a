package refsource

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/vitalvas/oasref/openapi"
)

// Registry holds the configured sources by name. It implements
// openapi.SchemaRegistry.
type Registry struct {
	sources map[string]*Source
	order   []string
	limit   int
	logger  *slog.Logger
}

// DefaultRefreshLimit bounds how many sources are fetched at once during
// a refresh.
const DefaultRefreshLimit = 8

var _ openapi.SchemaRegistry = (*Registry)(nil)

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithRegistryLogger sets the logger used for resolution diagnostics.
func WithRegistryLogger(logger *slog.Logger) RegistryOption {
	return func(r *Registry) {
		r.logger = logger
	}
}

// WithRefreshLimit bounds how many sources a refresh fetches at once.
// Values below 1 remove the bound.
func WithRefreshLimit(n int) RegistryOption {
	return func(r *Registry) {
		r.limit = n
	}
}

// NewRegistry creates a registry from sources. Source names must be
// unique.
func NewRegistry(sources []*Source, opts ...RegistryOption) (*Registry, error) {
	r := &Registry{
		sources: make(map[string]*Source, len(sources)),
		limit:   DefaultRefreshLimit,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}

	for _, s := range sources {
		if s == nil {
			continue
		}
		if _, ok := r.sources[s.Name()]; ok {
			return nil, &SourceError{Code: ConfigError, Source: s.Name(), Location: s.Location(), Message: "duplicate source name"}
		}
		r.sources[s.Name()] = s
		r.order = append(r.order, s.Name())
	}
	return r, nil
}

// Sources returns the sources in registration order.
func (r *Registry) Sources() []*Source {
	out := make([]*Source, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.sources[name])
	}
	return out
}

// Source returns the named source without initializing it.
func (r *Registry) Source(name string) (*Source, bool) {
	s, ok := r.sources[name]
	return s, ok
}

// Resolve returns the named source once it holds fetched schemas. Unknown
// and unavailable sources are logged and reported as absent.
func (r *Registry) Resolve(ctx context.Context, name string) (*Source, bool) {
	s, ok := r.sources[name]
	if !ok {
		r.logger.Warn("remote source not configured", slog.String("source", name))
		return nil, false
	}
	if err := s.Initialize(ctx, false); err != nil {
		r.logger.Warn("remote source unavailable", slog.String("source", name), slog.Any("error", err))
		return nil, false
	}
	return s, true
}

// ResolveSchema returns a copy of a component schema of the named source.
func (r *Registry) ResolveSchema(ctx context.Context, source, name string) (*openapi.Schema, error) {
	s, ok := r.sources[source]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, source)
	}
	return s.Lookup(ctx, name)
}

// RefreshAll re-fetches every source concurrently. Failures are logged by
// the sources, which keep their previous schemas.
func (r *Registry) RefreshAll(ctx context.Context) {
	_ = r.refresh(ctx)
}

// Refresh re-fetches every source concurrently and returns the joined
// errors of the sources that failed.
func (r *Registry) Refresh(ctx context.Context) error {
	return r.refresh(ctx)
}

func (r *Registry) refresh(ctx context.Context) error {
	errs := make([]error, len(r.order))

	var g errgroup.Group
	if r.limit > 0 {
		g.SetLimit(r.limit)
	}
	for i, name := range r.order {
		s := r.sources[name]
		// A failing source must not cancel the others, so errors are
		// collected per source instead of returned to the group.
		g.Go(func() error {
			errs[i] = s.Initialize(ctx, true)
			return nil
		})
	}
	_ = g.Wait()

	return errors.Join(errs...)
}

// CustomComponents collects the published schemas of all sources.
func (r *Registry) CustomComponents(ctx context.Context) map[string]*openapi.Schema {
	out := make(map[string]*openapi.Schema)
	for _, s := range r.Sources() {
		for name, schema := range s.CustomComponents(ctx) {
			out[name] = schema
		}
	}
	return out
}
