package openapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func serve(mux *http.ServeMux, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestGeneratorHandle(t *testing.T) {
	setup := func(t *testing.T, base string, cfg *HandleConfig) (*http.ServeMux, *fakeRegistry) {
		t.Helper()
		reg := billingRegistry(t)
		g := newTestGenerator(t, Config{Info: Info{Title: "Shop <dev>"}, PathPrefix: "/api"}, reg)
		mux := http.NewServeMux()
		g.Handle(mux, base, shopEndpoints(), cfg)
		return mux, reg
	}

	t.Run("json document", func(t *testing.T) {
		mux, reg := setup(t, "/docs", nil)

		w := serve(mux, "/docs/schema.json")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
		assert.Equal(t, "no-cache, no-store, must-revalidate, max-age=0", w.Header().Get("Cache-Control"))
		assert.Equal(t, "no-cache", w.Header().Get("Pragma"))

		var doc Document
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
		assert.Equal(t, "3.1.0", doc.OpenAPI)
		assert.Contains(t, doc.Paths, "/api/items/{id}")
		assert.Contains(t, doc.Components.Schemas["Order"].Properties, "amount")

		serve(mux, "/docs/schema.json")
		assert.Equal(t, 2, reg.refreshes, "every request rebuilds the document")
	})

	t.Run("yaml document", func(t *testing.T) {
		mux, _ := setup(t, "/docs", nil)

		w := serve(mux, "/docs/schema.yaml")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "application/yaml", w.Header().Get("Content-Type"))
		assert.NotEmpty(t, w.Header().Get("Expires"))

		var doc map[string]any
		require.NoError(t, yaml.Unmarshal(w.Body.Bytes(), &doc))
		assert.Equal(t, "3.1.0", doc["openapi"])
		assert.Contains(t, doc["paths"], "/api/orders")
	})

	t.Run("redoc page", func(t *testing.T) {
		mux, _ := setup(t, "/docs", nil)

		w := serve(mux, "/docs/")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "text/html; charset=utf-8", w.Header().Get("Content-Type"))
		assert.Contains(t, w.Body.String(), `<redoc spec-url="/docs/schema.json">`)
		assert.Contains(t, w.Body.String(), "<title>Shop &lt;dev&gt;</title>")

		w = serve(mux, "/docs")
		assert.Equal(t, http.StatusMovedPermanently, w.Code)
		assert.Equal(t, "/docs/", w.Header().Get("Location"))
	})

	t.Run("swagger ui", func(t *testing.T) {
		mux, _ := setup(t, "/docs/", &HandleConfig{
			UI:              DocsSwaggerUI,
			Title:           "Shop API",
			SwaggerUIConfig: map[string]any{"docExpansion": "none", "deepLinking": true},
		})

		body := serve(mux, "/docs/").Body.String()
		assert.Contains(t, body, "<title>Shop API</title>")
		assert.Contains(t, body, `SwaggerUIBundle({url: "/docs/schema.json", dom_id: "#swagger-ui", deepLinking: true, docExpansion: "none"});`)
	})

	t.Run("rapidoc with custom filenames", func(t *testing.T) {
		mux, _ := setup(t, "/docs", &HandleConfig{
			UI:           DocsRapiDoc,
			JSONFilename: "/openapi.json",
			YAMLFilename: "-",
		})

		assert.Equal(t, http.StatusOK, serve(mux, "/openapi.json").Code)
		assert.Equal(t, http.StatusNotFound, serve(mux, "/docs/schema.yaml").Code)
		assert.Contains(t, serve(mux, "/docs/").Body.String(), `<rapi-doc spec-url="/openapi.json">`)
	})

	t.Run("docs disabled", func(t *testing.T) {
		mux, _ := setup(t, "/docs", &HandleConfig{DisableDocs: true})
		assert.Equal(t, http.StatusNotFound, serve(mux, "/docs/").Code)
		assert.Equal(t, http.StatusOK, serve(mux, "/docs/schema.json").Code)
	})

	t.Run("root base path", func(t *testing.T) {
		mux, _ := setup(t, "", nil)
		assert.Equal(t, http.StatusOK, serve(mux, "/schema.json").Code)
		assert.Contains(t, serve(mux, "/").Body.String(), `spec-url="/schema.json"`)
		assert.Equal(t, http.StatusNotFound, serve(mux, "/other").Code)
	})
}

func TestParseDocsUI(t *testing.T) {
	assert.Equal(t, DocsSwaggerUI, ParseDocsUI("Swagger"))
	assert.Equal(t, DocsSwaggerUI, ParseDocsUI("swagger-ui"))
	assert.Equal(t, DocsRapiDoc, ParseDocsUI("rapidoc"))
	assert.Equal(t, DocsRedoc, ParseDocsUI("redoc"))
	assert.Equal(t, DocsRedoc, ParseDocsUI("unknown"))
}

func TestResolvePath(t *testing.T) {
	assert.Equal(t, "/docs/schema.json", resolvePath("/docs", "schema.json"))
	assert.Equal(t, "/schema.json", resolvePath("", "schema.json"))
	assert.Equal(t, "/api/openapi.json", resolvePath("/docs", "/api/openapi.json"))
}
