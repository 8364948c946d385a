package openapi

import (
	"log/slog"
	"net/http"
	"reflect"
	"slices"
	"strconv"
	"strings"
)

// pathMacros are the variable types a route template may name.
var pathMacros = map[string]struct{ typ, format string }{
	"uuid":  {"string", "uuid"},
	"int":   {"integer", ""},
	"float": {"number", ""},
	"slug":  {"string", ""},
	"date":  {"string", "date"},
}

// synthesizer builds Operation Objects for the routes of one document
// build. It shares the schema generator of the build so every payload type
// is rendered once.
type synthesizer struct {
	gen    *SchemaGenerator
	logger *slog.Logger
}

// operation builds the operation served by view on route. It returns nil
// when the view has no handler for the route's method.
//
// See: https://spec.openapis.org/oas/v3.1.0#operation-object
func (s *synthesizer) operation(route *Route, view *View) *Operation {
	log := s.logger.With(slog.String("path", route.Path), slog.String("method", route.Method))

	h := view.HandlerFor(route.Method, route.IsList)
	if h == nil {
		log.Warn("no handler resolved for route, operation omitted")
		return nil
	}

	docs := h.Docs
	if docs == nil {
		docs = &Docs{}
	}

	op := &Operation{
		OperationID: route.OperationID(),
		Responses:   make(map[string]*Response),
	}

	raises := map[string]string{}
	if ds := ParseDocstring(h.Doc); ds != nil {
		op.Summary = ds.Short
		op.Description = ds.Long
		raises = ds.Raises
	}

	for _, e := range docs.Errors {
		if e == nil {
			continue
		}
		key := strconv.Itoa(e.Status)
		s.addResponse(op, key, e.contentType(), resolveSchema(s.gen, e.Model), raises[e.Name])
	}

	response := docs.Response
	if response == nil {
		response = h.Returns
	}
	alts := alternatives(response)
	if len(alts) == 0 {
		log.Warn("no response type declared, success response omitted")
	}
	for _, alt := range alts {
		key := strconv.Itoa(alt.Status)
		if alt.Body == nil {
			s.addResponse(op, key, "", nil, "")
			continue
		}
		schema := resolveSchema(s.gen, alt.Body)
		if schema == nil {
			log.Warn("unusable response type, response omitted",
				slog.String("type", reflect.TypeOf(alt.Body).String()))
			continue
		}
		s.addResponse(op, key, alt.ContentType, schema, "")
	}

	if len(op.Responses) == 0 {
		op.Responses = nil
	}

	switch route.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		if docs.Body != nil {
			if schema := resolveSchema(s.gen, docs.Body); schema != nil {
				op.RequestBody = &RequestBody{
					Required: true,
					Content:  map[string]*MediaType{"application/json": {Schema: schema}},
				}
			}
		}
	}

	_, autoParams := parsePath(route.Path)
	params := mergeParameters(autoParams, s.parameters(docs.Path, "path"))
	op.Parameters = append(params, s.parameters(docs.Query, "query")...)

	return op
}

// addResponse adds a response content entry. Schemas declared for the same
// status and content type are combined with oneOf.
//
// See: https://spec.openapis.org/oas/v3.1.0#responses-object
func (s *synthesizer) addResponse(op *Operation, key, contentType string, schema *Schema, description string) {
	resp, ok := op.Responses[key]
	if !ok {
		resp = &Response{Description: responseDescription(key)}
		op.Responses[key] = resp
	}
	if description != "" {
		resp.Description = description
	}
	if contentType == "" {
		return
	}
	if resp.Content == nil {
		resp.Content = make(map[string]*MediaType)
	}

	mt, ok := resp.Content[contentType]
	if !ok || mt.Schema == nil {
		resp.Content[contentType] = &MediaType{Schema: schema}
		return
	}
	if schema == nil {
		return
	}

	if len(mt.Schema.OneOf) == 0 {
		if sameRef(mt.Schema, schema) {
			return
		}
		mt.Schema = &Schema{OneOf: []*Schema{mt.Schema}}
	}
	for _, alt := range mt.Schema.OneOf {
		if sameRef(alt, schema) {
			return
		}
	}
	mt.Schema.OneOf = append(mt.Schema.OneOf, schema)
}

func sameRef(a, b *Schema) bool {
	return a != nil && b != nil && a.Ref != "" && a.Ref == b.Ref
}

// parameters builds parameter objects from the fields of the payload v.
// Fields of payload types become references; other fields use the builtin
// type mapping. Path parameters are always required.
//
// See: https://spec.openapis.org/oas/v3.1.0#parameter-object
func (s *synthesizer) parameters(v any, in string) []*Parameter {
	fields := s.gen.Fields(v)
	if len(fields) == 0 {
		return nil
	}

	params := make([]*Parameter, 0, len(fields))
	for _, f := range fields {
		var schema *Schema
		if isPayloadType(f.Type) {
			schema = s.gen.render(f.Type)
		} else {
			schema = builtinSchema(f.Type)
			if f.Format != "" {
				schema.Format = f.Format
			}
		}
		params = append(params, &Parameter{
			Name:        f.Name,
			In:          in,
			Description: f.Description,
			Required:    f.Required || in == "path",
			Schema:      schema,
		})
	}
	return params
}

// builtinSchema maps a parameter field type to a primitive schema.
// Unrecognized types are described as strings.
//
// See: https://spec.openapis.org/oas/v3.1.0#data-types
func builtinSchema(t reflect.Type) *Schema {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	switch t {
	case timeType:
		return &Schema{Type: TypeString("string"), Format: "date-time"}
	case uuidType:
		return &Schema{Type: TypeString("string"), Format: "uuid"}
	}

	switch t.Kind() {
	case reflect.Bool:
		return &Schema{Type: TypeString("boolean")}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return &Schema{Type: TypeString("integer")}
	case reflect.Float32, reflect.Float64:
		return &Schema{Type: TypeString("number")}
	case reflect.Slice, reflect.Array:
		return &Schema{Type: TypeString("array"), Items: builtinSchema(t.Elem())}
	}
	return &Schema{Type: TypeString("string")}
}

// mergeParameters returns auto followed by custom, dropping the auto
// parameters that custom redeclares. Parameters are identified by name and
// location.
//
// See: https://spec.openapis.org/oas/v3.1.0#operation-object (parameters)
func mergeParameters(auto, custom []*Parameter) []*Parameter {
	redeclared := func(p *Parameter) bool {
		return slices.ContainsFunc(custom, func(c *Parameter) bool {
			return c.Name == p.Name && c.In == p.In
		})
	}

	merged := slices.DeleteFunc(slices.Clone(auto), redeclared)
	merged = append(merged, custom...)
	if len(merged) == 0 {
		return nil
	}
	return merged
}

// resolveSchema renders body, which is either a payload value or a
// ready-made *Schema.
func resolveSchema(gen *SchemaGenerator, body any) *Schema {
	switch b := body.(type) {
	case nil:
		return nil
	case *Schema:
		return b
	default:
		return gen.Generate(b)
	}
}

// responseDescription describes a response by its key: the status text
// for known codes, the key itself otherwise.
//
// See: https://spec.openapis.org/oas/v3.1.0#response-object (description)
func responseDescription(key string) string {
	if key == "default" {
		return "Default response"
	}
	if code, err := strconv.Atoi(key); err == nil && http.StatusText(code) != "" {
		return http.StatusText(code)
	}
	return key
}

// parsePath turns a route template into a document path and a required
// path parameter per variable. Variables are strings unless a macro
// ({id:int}) names their type; "{rest...}" becomes "{rest}" and "{$}" is
// dropped.
func parsePath(tpl string) (string, []*Parameter) {
	var params []*Parameter

	path := pathVarRegexp.ReplaceAllStringFunc(tpl, func(match string) string {
		name, macro, _ := strings.Cut(strings.Trim(match, "{}"), ":")
		if name == "$" {
			return ""
		}
		name = strings.TrimSuffix(name, "...")

		schema := &Schema{Type: TypeString("string")}
		if m, ok := pathMacros[macro]; ok {
			schema = &Schema{Type: TypeString(m.typ), Format: m.format}
		}
		params = append(params, &Parameter{Name: name, In: "path", Required: true, Schema: schema})
		return "{" + name + "}"
	})

	return path, params
}
