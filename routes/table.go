// Package routes registers documented views on a standard library
// http.ServeMux and enumerates them for document generation.
package routes

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"slices"
	"strings"
	"sync"

	"github.com/vitalvas/oasref/middleware"
	"github.com/vitalvas/oasref/openapi"
)

var (
	// ErrNoHandlers is returned when a view has no handler to register.
	ErrNoHandlers = errors.New("routes: view has no handlers")

	// ErrInvalidPath is returned for paths that do not start with "/".
	ErrInvalidPath = errors.New("routes: invalid path")
)

// methodPriority orders endpoints of the same path family. Methods not
// listed sort last.
var methodPriority = map[string]int{
	http.MethodGet:    0,
	http.MethodPost:   1,
	http.MethodPut:    2,
	http.MethodPatch:  3,
	http.MethodDelete: 4,
}

// routeMethods are the methods a view is probed for, in priority order.
var routeMethods = []string{
	http.MethodGet,
	http.MethodPost,
	http.MethodPut,
	http.MethodPatch,
	http.MethodDelete,
	http.MethodHead,
	http.MethodOptions,
}

var wildcardRegexp = regexp.MustCompile(`\{([^}]*?)(\.\.\.)?\}`)

type endpointKey struct {
	path   string
	method string
}

// Table is a route table: an http.Handler dispatching to view handlers
// and an openapi.EndpointSource describing them.
type Table struct {
	mux    *http.ServeMux
	logger *slog.Logger

	mu          sync.RWMutex
	endpoints   []openapi.Endpoint
	seen        map[endpointKey]struct{}
	middlewares []middleware.Func
	handler     http.Handler
}

var _ openapi.EndpointSource = (*Table)(nil)

// Option configures a Table.
type Option func(*Table)

// WithLogger sets the logger used for registration diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Table) {
		t.logger = logger
	}
}

// NewTable creates an empty route table.
func NewTable(opts ...Option) *Table {
	t := &Table{
		mux:    http.NewServeMux(),
		logger: slog.Default(),
		seen:   make(map[endpointKey]struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Use appends middlewares applied to every request served by the table.
func (t *Table) Use(mws ...middleware.Func) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.middlewares = append(t.middlewares, mws...)
	t.handler = nil
}

// Register serves view on path. path uses http.ServeMux wildcards
// ({id}, {rest...}, {$}). Every method the view has a handler for is
// registered, unless methods restricts them. A (path, method) pair that is
// already registered is kept and the duplicate skipped.
func (t *Table) Register(path string, view *openapi.View, methods ...string) error {
	if !strings.HasPrefix(path, "/") {
		return fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}
	if view == nil || len(view.Handlers) == 0 {
		return fmt.Errorf("%w: %s", ErrNoHandlers, path)
	}

	candidates := routeMethods
	if len(methods) > 0 {
		candidates = make([]string, len(methods))
		for i, m := range methods {
			candidates[i] = strings.ToUpper(m)
		}
	}

	docPath := NormalizePath(path)

	t.mu.Lock()
	defer t.mu.Unlock()

	var found int
	for _, method := range candidates {
		isList := IsListView(path, method, view)
		h := view.HandlerFor(method, isList)
		if h == nil || h.Func == nil {
			continue
		}
		found++

		key := endpointKey{path: docPath, method: method}
		if _, ok := t.seen[key]; ok {
			t.logger.Debug("duplicate route skipped", slog.String("path", path), slog.String("method", method))
			continue
		}
		t.seen[key] = struct{}{}

		t.mux.Handle(method+" "+path, h.Func)
		t.endpoints = append(t.endpoints, openapi.Endpoint{
			Path:   docPath,
			Method: method,
			View:   view,
			IsList: isList,
		})
	}

	if found == 0 {
		return fmt.Errorf("%w: %s", ErrNoHandlers, path)
	}
	return nil
}

// Handle registers a handler that is served but not documented. It
// satisfies openapi.Registrar.
func (t *Table) Handle(pattern string, handler http.Handler) {
	t.mux.Handle(pattern, handler)
}

// Endpoints returns the documented endpoints ordered by method priority
// (GET, POST, PUT, PATCH, DELETE, others), then registration order.
func (t *Table) Endpoints() []openapi.Endpoint {
	t.mu.RLock()
	out := slices.Clone(t.endpoints)
	t.mu.RUnlock()

	slices.SortStableFunc(out, func(a, b openapi.Endpoint) int {
		return priority(a.Method) - priority(b.Method)
	})
	return out
}

// WalkFunc is called for every endpoint visited by Walk.
type WalkFunc func(ep openapi.Endpoint) error

// Walk calls fn for each endpoint in Endpoints order and stops at the
// first error.
func (t *Table) Walk(fn WalkFunc) error {
	for _, ep := range t.Endpoints() {
		if err := fn(ep); err != nil {
			return err
		}
	}
	return nil
}

func (t *Table) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	t.mu.RLock()
	h := t.handler
	t.mu.RUnlock()

	if h == nil {
		t.mu.Lock()
		if t.handler == nil {
			t.handler = middleware.Chain(t.mux, t.middlewares...)
		}
		h = t.handler
		t.mu.Unlock()
	}

	h.ServeHTTP(w, r)
}

func priority(method string) int {
	if p, ok := methodPriority[method]; ok {
		return p
	}
	return len(methodPriority)
}

// NormalizePath converts a ServeMux pattern path into a document path:
// "{rest...}" becomes "{rest}" and the "{$}" end anchor is dropped.
func NormalizePath(path string) string {
	return wildcardRegexp.ReplaceAllStringFunc(path, func(m string) string {
		sub := wildcardRegexp.FindStringSubmatch(m)
		if sub[1] == "$" {
			return ""
		}
		return "{" + sub[1] + "}"
	})
}

// IsListView reports whether a GET on path lists a collection: the view
// registers the list action, or the path does not end in a wildcard and
// the view has no retrieve action.
func IsListView(path, method string, view *openapi.View) bool {
	if !strings.EqualFold(method, http.MethodGet) || view == nil {
		return false
	}

	segments := strings.Split(strings.TrimRight(NormalizePath(path), "/"), "/")
	if last := segments[len(segments)-1]; strings.HasPrefix(last, "{") {
		return false
	}

	if _, ok := view.Handlers[openapi.ActionList]; ok {
		return true
	}
	if _, ok := view.Handlers[openapi.ActionRetrieve]; ok {
		return false
	}
	return true
}
