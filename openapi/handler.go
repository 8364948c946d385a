package openapi

import (
	"bytes"
	"encoding/json"
	"html/template"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/vitalvas/oasref/middleware"
)

// DocsUI selects the documentation viewer served by Handle.
type DocsUI int

const (
	DocsRedoc DocsUI = iota
	DocsSwaggerUI
	DocsRapiDoc
)

// ParseDocsUI maps a viewer name ("redoc", "swagger", "rapidoc") to a
// DocsUI. Unknown names select Redoc.
func ParseDocsUI(name string) DocsUI {
	switch strings.ToLower(name) {
	case "swagger", "swagger-ui", "swaggerui":
		return DocsSwaggerUI
	case "rapidoc":
		return DocsRapiDoc
	default:
		return DocsRedoc
	}
}

// Registrar is the part of a router the documentation endpoints are
// registered on. *http.ServeMux satisfies it.
type Registrar interface {
	Handle(pattern string, handler http.Handler)
}

// HandleConfig configures the endpoints registered by Handle. The zero
// value serves schema.json, schema.yaml and a Redoc page.
type HandleConfig struct {
	UI DocsUI

	// Title of the viewer page. Defaults to the document title.
	Title string

	// JSONFilename and YAMLFilename name the document endpoints, relative
	// to the base path unless they start with "/". "-" disables one.
	JSONFilename string
	YAMLFilename string

	DisableDocs bool

	// SwaggerUIConfig adds options to the SwaggerUIBundle call, e.g.
	// {"docExpansion": "none"}.
	//
	// See: https://swagger.io/docs/open-source-tools/swagger-ui/usage/configuration/
	SwaggerUIConfig map[string]any
}

func orDefault(name, def string) string {
	if name == "" {
		return def
	}
	return name
}

// resolvePath joins a relative filename under basePath. Absolute
// filenames are used as is.
func resolvePath(basePath, filename string) string {
	if strings.HasPrefix(filename, "/") {
		return filename
	}
	return basePath + "/" + filename
}

// Handle registers the document and viewer endpoints under basePath:
//
//	GET <basePath>/            viewer page (unless DisableDocs)
//	GET <basePath>/schema.json document as JSON
//	GET <basePath>/schema.yaml document as YAML
//
// Every document request rebuilds the document from src, which forces a
// refresh of the remote sources, and is served with caching disabled.
func (g *Generator) Handle(r Registrar, basePath string, src EndpointSource, cfg *HandleConfig) {
	if cfg == nil {
		cfg = &HandleConfig{}
	}
	basePath = strings.TrimRight(basePath, "/")

	formats := []struct {
		filename    string
		contentType string
		encode      func(*Document) ([]byte, error)
	}{
		{orDefault(cfg.JSONFilename, "schema.json"), "application/json", marshalJSON},
		{orDefault(cfg.YAMLFilename, "schema.yaml"), "application/yaml", (*Document).YAML},
	}

	var specURL string
	for _, f := range formats {
		if f.filename == "-" {
			continue
		}
		path := resolvePath(basePath, f.filename)
		r.Handle("GET "+path, middleware.NoCache()(g.documentHandler(src, f.contentType, f.encode)))
		if specURL == "" {
			specURL = path
		}
	}

	if cfg.DisableDocs || specURL == "" {
		return
	}

	page, err := renderDocsPage(cfg, orDefault(cfg.Title, g.cfg.Info.Title), specURL)
	if err != nil {
		g.logger.Error("docs page rendering failed", slog.Any("error", err))
		return
	}
	docs := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(page)
	})

	r.Handle("GET "+basePath+"/{$}", docs)
	if basePath != "" {
		r.Handle("GET "+basePath, http.RedirectHandler(basePath+"/", http.StatusMovedPermanently))
	}
}

func marshalJSON(doc *Document) ([]byte, error) {
	return json.MarshalIndent(doc, "", "  ")
}

func (g *Generator) documentHandler(src EndpointSource, contentType string, encode func(*Document) ([]byte, error)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := encode(g.Build(r.Context(), src))
		if err != nil {
			g.logger.Error("document encoding failed", slog.String("content_type", contentType), slog.Any("error", err))
			WriteError(w, ErrInternalServer)
			return
		}
		w.Header().Set("Content-Type", contentType)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	})
}

var docsPage = template.Must(template.New("docs").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>{{.Title}}</title>
{{- if eq .UI "swagger"}}
<link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist/swagger-ui.css">
{{- else if eq .UI "rapidoc"}}
<script type="module" src="https://unpkg.com/rapidoc/dist/rapidoc-min.js"></script>
{{- end}}
</head>
<body>
{{- if eq .UI "swagger"}}
<div id="swagger-ui"></div>
<script src="https://unpkg.com/swagger-ui-dist/swagger-ui-bundle.js"></script>
<script>
SwaggerUIBundle({{.SwaggerOptions}});
</script>
{{- else if eq .UI "rapidoc"}}
<rapi-doc spec-url="{{.SpecURL}}"></rapi-doc>
{{- else}}
<redoc spec-url="{{.SpecURL}}"></redoc>
<script src="https://cdn.redoc.ly/redoc/latest/bundles/redoc.standalone.js"></script>
{{- end}}
</body>
</html>
`))

func renderDocsPage(cfg *HandleConfig, title, specURL string) ([]byte, error) {
	data := struct {
		UI             string
		Title          string
		SpecURL        string
		SwaggerOptions template.JS
	}{Title: title, SpecURL: specURL, UI: "redoc"}

	switch cfg.UI {
	case DocsSwaggerUI:
		data.UI = "swagger"
		opts, err := swaggerOptions(specURL, cfg.SwaggerUIConfig)
		if err != nil {
			return nil, err
		}
		data.SwaggerOptions = opts
	case DocsRapiDoc:
		data.UI = "rapidoc"
	}

	var buf bytes.Buffer
	if err := docsPage.Execute(&buf, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// swaggerOptions renders the SwaggerUIBundle argument with extra options
// in key order.
func swaggerOptions(specURL string, extra map[string]any) (template.JS, error) {
	url, err := json.Marshal(specURL)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(`{url: `)
	b.Write(url)
	b.WriteString(`, dom_id: "#swagger-ui"`)

	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		v, err := json.Marshal(extra[k])
		if err != nil {
			return "", err
		}
		b.WriteString(", " + k + ": ")
		b.Write(v)
	}
	b.WriteString("}")

	return template.JS(b.String()), nil //nolint:gosec // built from JSON-encoded values
}
