package openapi

import (
	"log/slog"
	"net/http"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type opItem struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type opCreated struct {
	ID string `json:"id"`
}

func (opCreated) OpenAPIStatus() int { return http.StatusCreated }

type opQueued struct {
	Ticket string `json:"ticket"`
}

func (opQueued) OpenAPIStatus() int { return http.StatusAccepted }

type opConflict struct {
	Reason string `json:"reason"`
}

type opCSV struct {
	Rows []string `json:"rows"`
}

func (opCSV) OpenAPIContentType() string { return "text/csv" }

type opRange struct {
	From time.Time `json:"from"`
}

type opQuery struct {
	Limit  int       `json:"limit,omitempty" openapi:"description=Page size"`
	Tags   []string  `json:"tags,omitempty"`
	Owner  uuid.UUID `json:"owner,omitempty"`
	Active *bool     `json:"active,omitempty"`
	Range  opRange   `json:"range,omitempty"`
	Cursor string    `json:"cursor" openapi:"format=byte"`
}

type opPath struct {
	ID int `json:"id" openapi:"description=Item number"`
}

func newSynthesizer() *synthesizer {
	return &synthesizer{gen: NewSchemaGenerator(), logger: slog.New(slog.DiscardHandler)}
}

func mustRoute(t *testing.T, path, method string, isList bool) *Route {
	t.Helper()
	r, err := NewRoute(path, "/api", method, isList)
	require.NoError(t, err)
	return r
}

func TestSynthesizerOperation(t *testing.T) {
	t.Run("retrieve with docstring and error", func(t *testing.T) {
		s := newSynthesizer()
		view := &View{Handlers: map[string]*Handler{
			ActionRetrieve: {
				Returns: opItem{},
				Docs:    &Docs{Errors: []*HTTPError{ErrNotFound}},
				Doc: `Fetch an item.

Items are cached for a minute.

Raises:
    NotFoundError: no item with this id`,
			},
		}}

		op := s.operation(mustRoute(t, "/api/items/{id}", http.MethodGet, false), view)
		require.NotNil(t, op)

		assert.Equal(t, "items_retrieve", op.OperationID)
		assert.Equal(t, "Fetch an item.", op.Summary)
		assert.Equal(t, "Items are cached for a minute.", op.Description)

		require.Contains(t, op.Responses, "200")
		assert.Equal(t, "OK", op.Responses["200"].Description)
		assert.Equal(t, "#/components/schemas/opItem", op.Responses["200"].Content["application/json"].Schema.Ref)

		require.Contains(t, op.Responses, "404")
		assert.Equal(t, "no item with this id", op.Responses["404"].Description)
		assert.Equal(t, "#/components/schemas/ErrorResponse", op.Responses["404"].Content["application/json"].Schema.Ref)

		require.Len(t, op.Parameters, 1)
		assert.Equal(t, "id", op.Parameters[0].Name)
		assert.Equal(t, "path", op.Parameters[0].In)
		assert.True(t, op.Parameters[0].Required)
		assert.Nil(t, op.RequestBody)

		assert.Contains(t, s.gen.Schemas(), "opItem")
		assert.Contains(t, s.gen.Schemas(), "ErrorResponse")
	})

	t.Run("no handler", func(t *testing.T) {
		s := newSynthesizer()
		view := &View{Handlers: map[string]*Handler{ActionList: {Returns: []opItem{}}}}
		assert.Nil(t, s.operation(mustRoute(t, "/api/items/{id}", http.MethodDelete, false), view))
	})

	t.Run("list resolves list alias", func(t *testing.T) {
		s := newSynthesizer()
		view := &View{Handlers: map[string]*Handler{
			ActionList:     {Returns: []opItem{}},
			ActionRetrieve: {Returns: opItem{}},
		}}
		op := s.operation(mustRoute(t, "/api/items", http.MethodGet, true), view)
		require.NotNil(t, op)
		assert.Equal(t, "items_list", op.OperationID)
		schema := op.Responses["200"].Content["application/json"].Schema
		assert.Equal(t, TypeString("array"), schema.Type)
		assert.Equal(t, "#/components/schemas/opItem", schema.Items.Ref)
	})

	t.Run("union with distinct statuses", func(t *testing.T) {
		s := newSynthesizer()
		view := &View{Handlers: map[string]*Handler{
			http.MethodPost: {Docs: &Docs{
				Body:     opItem{},
				Response: Union(opCreated{}, opQueued{}),
			}},
		}}

		op := s.operation(mustRoute(t, "/api/items", http.MethodPost, false), view)
		require.NotNil(t, op)

		assert.NotContains(t, op.Responses, "200")
		require.Contains(t, op.Responses, "201")
		require.Contains(t, op.Responses, "202")
		assert.Equal(t, "#/components/schemas/opCreated", op.Responses["201"].Content["application/json"].Schema.Ref)
		assert.Equal(t, "#/components/schemas/opQueued", op.Responses["202"].Content["application/json"].Schema.Ref)

		require.NotNil(t, op.RequestBody)
		assert.True(t, op.RequestBody.Required)
		assert.Equal(t, "#/components/schemas/opItem", op.RequestBody.Content["application/json"].Schema.Ref)
	})

	t.Run("union sharing a status uses oneOf", func(t *testing.T) {
		s := newSynthesizer()
		view := &View{Handlers: map[string]*Handler{
			http.MethodPut: {Docs: &Docs{
				Response: Union(
					Payload{Status: http.StatusOK, Body: opItem{}},
					Payload{Status: http.StatusOK, Body: opConflict{}},
					opItem{},
					opCSV{},
				),
			}},
		}}

		op := s.operation(mustRoute(t, "/api/items/{id}", http.MethodPut, false), view)
		require.NotNil(t, op)

		resp := op.Responses["200"]
		require.NotNil(t, resp)
		schema := resp.Content["application/json"].Schema
		require.Len(t, schema.OneOf, 2)
		assert.Equal(t, "#/components/schemas/opItem", schema.OneOf[0].Ref)
		assert.Equal(t, "#/components/schemas/opConflict", schema.OneOf[1].Ref)

		require.Contains(t, resp.Content, "text/csv")
		assert.Equal(t, "#/components/schemas/opCSV", resp.Content["text/csv"].Schema.Ref)
	})

	t.Run("declared error shares success status", func(t *testing.T) {
		s := newSynthesizer()
		teapot := NewHTTPError("TeapotError", http.StatusOK, opConflict{})
		view := &View{Handlers: map[string]*Handler{
			http.MethodGet: {Returns: opItem{}, Docs: &Docs{Errors: []*HTTPError{teapot}}},
		}}

		op := s.operation(mustRoute(t, "/api/items/{id}", http.MethodGet, false), view)
		require.NotNil(t, op)
		assert.Len(t, op.Responses["200"].Content["application/json"].Schema.OneOf, 2)
	})

	t.Run("empty body response", func(t *testing.T) {
		s := newSynthesizer()
		view := &View{Handlers: map[string]*Handler{
			ActionDestroy: {Docs: &Docs{Response: Payload{Status: http.StatusNoContent}}},
		}}

		op := s.operation(mustRoute(t, "/api/items/{id}", http.MethodDelete, false), view)
		require.NotNil(t, op)
		require.Contains(t, op.Responses, "204")
		assert.Equal(t, "No Content", op.Responses["204"].Description)
		assert.Nil(t, op.Responses["204"].Content)
	})

	t.Run("no response declared", func(t *testing.T) {
		s := newSynthesizer()
		view := &View{Handlers: map[string]*Handler{http.MethodGet: {}}}

		op := s.operation(mustRoute(t, "/api/items/{id}", http.MethodGet, false), view)
		require.NotNil(t, op)
		assert.Nil(t, op.Responses)
	})

	t.Run("body ignored for get", func(t *testing.T) {
		s := newSynthesizer()
		view := &View{Handlers: map[string]*Handler{
			http.MethodGet: {Returns: opItem{}, Docs: &Docs{Body: opItem{}}},
		}}

		op := s.operation(mustRoute(t, "/api/items/{id}", http.MethodGet, false), view)
		require.NotNil(t, op)
		assert.Nil(t, op.RequestBody)
	})

	t.Run("schema values used as is", func(t *testing.T) {
		s := newSynthesizer()
		raw := &Schema{Type: TypeString("string"), Format: "binary"}
		view := &View{Handlers: map[string]*Handler{
			http.MethodPost: {Docs: &Docs{
				Body:     raw,
				Response: Payload{ContentType: "application/octet-stream", Body: raw},
			}},
		}}

		op := s.operation(mustRoute(t, "/api/files", http.MethodPost, false), view)
		require.NotNil(t, op)
		assert.Same(t, raw, op.RequestBody.Content["application/json"].Schema)
		assert.Same(t, raw, op.Responses["200"].Content["application/octet-stream"].Schema)
	})

	t.Run("parameters", func(t *testing.T) {
		s := newSynthesizer()
		view := &View{Handlers: map[string]*Handler{
			ActionList: {Returns: []opItem{}, Docs: &Docs{Query: opQuery{}, Path: opPath{}}},
		}}

		op := s.operation(mustRoute(t, "/api/shops/{shop}/items/{id}", http.MethodGet, true), view)
		require.NotNil(t, op)

		params := make(map[string]*Parameter)
		var order []string
		for _, p := range op.Parameters {
			params[p.In+":"+p.Name] = p
			order = append(order, p.In+":"+p.Name)
		}
		assert.Equal(t, []string{
			"path:shop", "path:id",
			"query:limit", "query:tags", "query:owner", "query:active", "query:range", "query:cursor",
		}, order)

		assert.Equal(t, TypeString("string"), params["path:shop"].Schema.Type)
		assert.Equal(t, TypeString("integer"), params["path:id"].Schema.Type)
		assert.Equal(t, "Item number", params["path:id"].Description)
		assert.True(t, params["path:id"].Required)

		assert.False(t, params["query:limit"].Required)
		assert.Equal(t, "Page size", params["query:limit"].Description)
		assert.Equal(t, TypeString("array"), params["query:tags"].Schema.Type)
		assert.Equal(t, TypeString("string"), params["query:tags"].Schema.Items.Type)
		assert.Equal(t, "uuid", params["query:owner"].Schema.Format)
		assert.Equal(t, TypeString("boolean"), params["query:active"].Schema.Type)
		assert.Equal(t, "#/components/schemas/opRange", params["query:range"].Schema.Ref)
		assert.True(t, params["query:cursor"].Required)
		assert.Equal(t, "byte", params["query:cursor"].Schema.Format)
	})
}

func TestBuiltinSchema(t *testing.T) {
	tests := []struct {
		name   string
		t      reflect.Type
		typ    string
		format string
	}{
		{"time", reflect.TypeOf(time.Time{}), "string", "date-time"},
		{"uuid", reflect.TypeOf(uuid.UUID{}), "string", "uuid"},
		{"pointer", reflect.TypeOf(new(int64)), "integer", ""},
		{"uint", reflect.TypeOf(uint8(0)), "integer", ""},
		{"float", reflect.TypeOf(float32(0)), "number", ""},
		{"bool", reflect.TypeOf(false), "boolean", ""},
		{"fallback", reflect.TypeOf(struct{}{}), "string", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := builtinSchema(tt.t)
			assert.Equal(t, TypeString(tt.typ), s.Type)
			assert.Equal(t, tt.format, s.Format)
		})
	}
}

func TestParsePath(t *testing.T) {
	t.Run("variables and macros", func(t *testing.T) {
		path, params := parsePath("/items/{id:int}/files/{name...}")
		assert.Equal(t, "/items/{id}/files/{name}", path)
		require.Len(t, params, 2)
		assert.Equal(t, TypeString("integer"), params[0].Schema.Type)
		assert.Equal(t, "name", params[1].Name)
		assert.Equal(t, TypeString("string"), params[1].Schema.Type)
	})

	t.Run("exact match marker", func(t *testing.T) {
		path, params := parsePath("/items/{$}")
		assert.Equal(t, "/items/", path)
		assert.Empty(t, params)
	})
}

func TestMergeParameters(t *testing.T) {
	auto := []*Parameter{{Name: "id", In: "path"}, {Name: "shop", In: "path"}}
	custom := []*Parameter{{Name: "id", In: "path", Description: "custom"}}

	merged := mergeParameters(auto, custom)
	require.Len(t, merged, 2)
	assert.Equal(t, "shop", merged[0].Name)
	assert.Equal(t, "custom", merged[1].Description)

	assert.Nil(t, mergeParameters(nil, nil))
}

func TestResponseDescription(t *testing.T) {
	assert.Equal(t, "Default response", responseDescription("default"))
	assert.Equal(t, "Accepted", responseDescription("202"))
	assert.Equal(t, "299", responseDescription("299"))
}
