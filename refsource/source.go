// Package refsource fetches component schemas published by other services
// and keeps them for reuse while documents are generated.
package refsource

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/vitalvas/oasref/openapi"
)

// Source is a named remote OpenAPI document whose component schemas can
// be looked up by name. The document is fetched lazily on first use and
// again on forced refreshes. A failed fetch keeps the previously fetched
// schemas, if any.
type Source struct {
	name     string
	location string
	kind     locationKind
	path     string
	publish  []string
	settings Settings
	logger   *slog.Logger

	mu          sync.Mutex
	initialized bool
	schemas     map[string]json.RawMessage
	fetchedAt   time.Time
	failedAt    time.Time
	lastErr     error
}

// Option configures a Source.
type Option func(*Source)

// WithLogger sets the logger used for fetch diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Source) {
		s.logger = logger
	}
}

// WithSettings replaces the fetch settings.
func WithSettings(settings Settings) Option {
	return func(s *Source) {
		s.settings = settings
	}
}

// WithPublish lists component schemas of the source that are added to
// every generated document as "<source>_<Name>".
func WithPublish(names ...string) Option {
	return func(s *Source) {
		s.publish = append(s.publish, names...)
	}
}

// NewSource creates a source. Locations are http(s) URLs, file:// URLs or
// plain file paths; anything else is rejected with a ConfigError.
func NewSource(name, location string, opts ...Option) (*Source, error) {
	if name == "" {
		return nil, &SourceError{Code: ConfigError, Location: location, Message: "source name is empty"}
	}

	kind, path, err := classifyLocation(location)
	if err != nil {
		return nil, &SourceError{Code: ConfigError, Source: name, Location: location, Message: "invalid location", Cause: err}
	}

	s := &Source{
		name:     name,
		location: location,
		kind:     kind,
		path:     path,
		settings: DefaultSettings(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(slog.String("source", name))

	return s, nil
}

// Name returns the source name.
func (s *Source) Name() string { return s.name }

// Location returns the configured location.
func (s *Source) Location() string { return s.location }

// Initialized reports whether the source holds fetched schemas.
func (s *Source) Initialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialized
}

// FetchedAt returns the time of the last successful fetch.
func (s *Source) FetchedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetchedAt
}

// Initialize fetches and indexes the source document. Without force it is
// a no-op once the source is initialized, and a recently failed source is
// not fetched again before Settings.RetryInterval has passed. On failure
// the previous schemas are kept and the error is returned after being
// logged.
func (s *Source) Initialize(ctx context.Context, force bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !force {
		if s.initialized {
			return nil
		}
		if s.lastErr != nil && time.Since(s.failedAt) < s.settings.RetryInterval {
			return s.lastErr
		}
	}

	schemas, err := s.load(ctx)
	if err != nil {
		s.lastErr = err
		s.failedAt = time.Now()
		s.logger.Warn("remote source fetch failed",
			slog.String("location", s.location),
			slog.Bool("initialized", s.initialized),
			slog.Any("error", err),
		)
		return err
	}

	s.schemas = schemas
	s.initialized = true
	s.fetchedAt = time.Now()
	s.lastErr = nil
	s.logger.Debug("remote source initialized", slog.Int("schemas", len(schemas)))
	return nil
}

func (s *Source) load(ctx context.Context) (map[string]json.RawMessage, error) {
	data, err := fetch(ctx, s.kind, s.path, s.settings)
	if err != nil {
		return nil, &SourceError{Code: NetworkError, Source: s.name, Location: s.location, Message: "fetch failed", Cause: err}
	}

	raw, err := parseDocument(ctx, data, s.logger)
	if err != nil {
		return nil, &SourceError{Code: ParseError, Source: s.name, Location: s.location, Message: "parse failed", Cause: err}
	}

	schemas := make(map[string]json.RawMessage, len(raw))
	for name, r := range raw {
		var probe openapi.Schema
		if err := json.Unmarshal(r, &probe); err != nil {
			s.logger.Warn("remote schema skipped", slog.String("schema", name), slog.Any("error", err))
			continue
		}
		schemas[name] = r
	}
	return schemas, nil
}

// Lookup returns a copy of the named component schema, initializing the
// source first if needed.
func (s *Source) Lookup(ctx context.Context, name string) (*openapi.Schema, error) {
	if err := s.Initialize(ctx, false); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrSourceUnavailable, s.name, err)
	}

	s.mu.Lock()
	raw, ok := s.schemas[name]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s in source %s", ErrSchemaNotFound, name, s.name)
	}

	var schema openapi.Schema
	if err := json.Unmarshal(raw, &schema); err != nil {
		return nil, fmt.Errorf("decode schema %s: %w", name, err)
	}
	return &schema, nil
}

// Names returns the names of the fetched component schemas, sorted.
func (s *Source) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.schemas))
	for name := range s.schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CustomComponents returns the published schemas of the source keyed as
// "<source>_<Name>". Published names the source does not have are logged
// and skipped.
func (s *Source) CustomComponents(ctx context.Context) map[string]*openapi.Schema {
	if len(s.publish) == 0 {
		return nil
	}

	out := make(map[string]*openapi.Schema, len(s.publish))
	for _, name := range s.publish {
		schema, err := s.Lookup(ctx, name)
		if err != nil {
			s.logger.Warn("published schema unavailable", slog.String("schema", name), slog.Any("error", err))
			continue
		}
		out[s.name+"_"+name] = schema
	}
	return out
}
