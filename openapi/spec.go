package openapi

import (
	"context"
	"log/slog"
	"net/http"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Config configures document assembly.
type Config struct {
	Info    Info
	Servers []Server

	// PathPrefix is a regular expression stripped from paths before tags
	// and operation ids are derived. When empty it is derived from the
	// common static prefix of all paths, provided more than one view is
	// registered.
	PathPrefix string

	// APIVersion selects the views included in the document. Views with
	// an empty version are always included.
	APIVersion string

	// IncludeEmptyEndpoints keeps paths whose views have no documented
	// operation.
	IncludeEmptyEndpoints bool

	// DefaultTag is used for operations whose path has no static token.
	DefaultTag string

	SecuritySchemes map[string]*SecurityScheme
	Security        []SecurityRequirement
}

// Generator assembles OpenAPI documents from a route table.
type Generator struct {
	cfg      Config
	prefixRe *regexp.Regexp
	registry SchemaRegistry
	logger   *slog.Logger
}

// GeneratorOption configures a Generator.
type GeneratorOption func(*Generator)

// WithLogger sets the logger used for build diagnostics.
func WithLogger(logger *slog.Logger) GeneratorOption {
	return func(g *Generator) {
		g.logger = logger
	}
}

// WithRegistry sets the registry remote schema references are resolved
// against.
func WithRegistry(registry SchemaRegistry) GeneratorOption {
	return func(g *Generator) {
		g.registry = registry
	}
}

// NewGenerator creates a generator. An invalid path prefix is reported
// here rather than at build time.
func NewGenerator(cfg Config, opts ...GeneratorOption) (*Generator, error) {
	g := &Generator{
		cfg:    cfg,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}

	if cfg.PathPrefix != "" {
		prefix, re, err := compilePrefix(cfg.PathPrefix)
		if err != nil {
			return nil, err
		}
		g.cfg.PathPrefix = prefix
		g.prefixRe = re
	}
	if g.cfg.Info.Title == "" {
		g.cfg.Info.Title = "API"
	}
	if g.cfg.Info.Version == "" {
		g.cfg.Info.Version = "1.0.0"
	}

	return g, nil
}

// Info returns the document metadata.
func (g *Generator) Info() Info {
	return g.cfg.Info
}

// Build assembles a document from the endpoints of src. Remote sources
// are refreshed first so the build sees one snapshot of every source.
// Problems with single routes or remote schemas are logged and never fail
// the build.
func (g *Generator) Build(ctx context.Context, src EndpointSource) *Document {
	if g.registry != nil {
		g.registry.RefreshAll(ctx)
	}

	gen := NewSchemaGenerator().Use(refExtensionHook(ctx, g.registry, g.logger))
	syn := &synthesizer{gen: gen, logger: g.logger}

	doc := &Document{
		OpenAPI:  "3.1.0",
		Info:     g.cfg.Info,
		Servers:  g.cfg.Servers,
		Paths:    make(map[string]*PathItem),
		Security: g.cfg.Security,
	}

	endpoints := g.filter(src.Endpoints())
	prefix := g.cfg.PathPrefix
	if g.prefixRe == nil {
		prefix = derivePrefix(endpoints)
	}

	seenIDs := make(map[string]int)
	for _, ep := range endpoints {
		openAPIPath, _ := parsePath(ep.Path)

		pathItem, ok := doc.Paths[openAPIPath]
		if !ok {
			pathItem = &PathItem{}
			doc.Paths[openAPIPath] = pathItem
		}

		route, err := NewRoute(ep.Path, prefix, ep.Method, ep.IsList)
		if err != nil {
			g.logger.Warn("invalid derived path prefix", slog.String("prefix", prefix), slog.Any("error", err))
			route, _ = NewRoute(ep.Path, "", ep.Method, ep.IsList)
		}

		op := syn.operation(route, ep.View)
		if op == nil {
			continue
		}

		if tag := route.Tag(); tag != "" {
			op.Tags = []string{tag}
		} else if g.cfg.DefaultTag != "" {
			op.Tags = []string{g.cfg.DefaultTag}
		}

		seenIDs[op.OperationID]++
		if n := seenIDs[op.OperationID]; n > 1 {
			g.logger.Warn("duplicate operation id, suffix appended",
				slog.String("operation_id", op.OperationID), slog.String("path", ep.Path))
			op.OperationID += "_" + strconv.Itoa(n)
		}

		assignOperation(pathItem, route.Method, op)
	}

	if !g.cfg.IncludeEmptyEndpoints {
		for path, item := range doc.Paths {
			if item.IsEmpty() {
				delete(doc.Paths, path)
			}
		}
	}

	doc.Components = g.buildComponents(ctx, gen)
	doc.Tags = mergeTags(doc.Paths)

	return doc
}

// filter drops endpoints of views that belong to another API version.
func (g *Generator) filter(endpoints []Endpoint) []Endpoint {
	if g.cfg.APIVersion == "" {
		return endpoints
	}
	out := make([]Endpoint, 0, len(endpoints))
	for _, ep := range endpoints {
		if ep.View != nil && ep.View.Version != "" && ep.View.Version != g.cfg.APIVersion {
			continue
		}
		out = append(out, ep)
	}
	return out
}

// derivePrefix returns the common static prefix of all endpoint paths as
// an anchored pattern. With a single view there is no prefix.
func derivePrefix(endpoints []Endpoint) string {
	views := make(map[*View]struct{})
	for _, ep := range endpoints {
		views[ep.View] = struct{}{}
	}
	if len(views) < 2 {
		return ""
	}

	var common []string
	for i, ep := range endpoints {
		segments := strings.Split(strings.Trim(ep.Path, "/"), "/")
		var static []string
		for _, s := range segments {
			if strings.HasPrefix(s, "{") {
				break
			}
			static = append(static, s)
		}
		// The last static segment names the resource and is never part of
		// the prefix, whether or not variables follow it.
		if len(static) > 0 {
			static = static[:len(static)-1]
		}

		if i == 0 {
			common = static
			continue
		}
		n := 0
		for n < len(common) && n < len(static) && common[n] == static[n] {
			n++
		}
		common = common[:n]
	}

	if len(common) == 0 {
		return ""
	}
	return "^" + regexp.QuoteMeta("/"+strings.Join(common, "/"))
}

// buildComponents assembles the Components object from generated schemas,
// the custom components published by remote sources and the configured
// security schemes.
func (g *Generator) buildComponents(ctx context.Context, gen *SchemaGenerator) *Components {
	schemas := gen.Schemas()
	if g.registry != nil {
		for name, schema := range g.registry.CustomComponents(ctx) {
			if _, ok := schemas[name]; ok {
				g.logger.Warn("custom component shadows a generated schema", slog.String("schema", name))
				continue
			}
			schemas[name] = schema
		}
	}

	if len(schemas) == 0 && len(g.cfg.SecuritySchemes) == 0 {
		return nil
	}

	comp := &Components{}
	if len(schemas) > 0 {
		comp.Schemas = schemas
	}
	if len(g.cfg.SecuritySchemes) > 0 {
		comp.SecuritySchemes = g.cfg.SecuritySchemes
	}
	return comp
}

// mergeTags collects the tags used by operations, sorted alphabetically.
func mergeTags(paths map[string]*PathItem) []Tag {
	seen := make(map[string]bool)
	var tags []Tag

	for _, pathItem := range paths {
		for _, op := range pathItem.Operations() {
			for _, tagName := range op.Tags {
				if seen[tagName] {
					continue
				}
				seen[tagName] = true
				tags = append(tags, Tag{Name: tagName})
			}
		}
	}

	sort.Slice(tags, func(i, j int) bool {
		return tags[i].Name < tags[j].Name
	})

	return tags
}

// assignOperation assigns an operation to the correct HTTP method field
// on the path item.
func assignOperation(pathItem *PathItem, method string, op *Operation) {
	switch method {
	case http.MethodGet:
		pathItem.Get = op
	case http.MethodPost:
		pathItem.Post = op
	case http.MethodPut:
		pathItem.Put = op
	case http.MethodDelete:
		pathItem.Delete = op
	case http.MethodPatch:
		pathItem.Patch = op
	case http.MethodHead:
		pathItem.Head = op
	case http.MethodOptions:
		pathItem.Options = op
	case http.MethodTrace:
		pathItem.Trace = op
	}
}
