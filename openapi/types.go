package openapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Document represents the root of a generated OpenAPI v3.1.0 document.
//
// See: https://spec.openapis.org/oas/v3.1.0#openapi-object
type Document struct {
	OpenAPI    string                `json:"openapi"`
	Info       Info                  `json:"info"`
	Servers    []Server              `json:"servers,omitempty"`
	Paths      map[string]*PathItem  `json:"paths"`
	Components *Components           `json:"components,omitempty"`
	Tags       []Tag                 `json:"tags,omitempty"`
	Security   []SecurityRequirement `json:"security,omitempty"`
}

// Info provides metadata about the API.
//
// See: https://spec.openapis.org/oas/v3.1.0#info-object
type Info struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Version     string `json:"version"`
}

// Server represents a server.
//
// See: https://spec.openapis.org/oas/v3.1.0#server-object
type Server struct {
	URL         string `json:"url"`
	Description string `json:"description,omitempty"`
}

// PathItem describes the operations available on a single path.
//
// See: https://spec.openapis.org/oas/v3.1.0#path-item-object
type PathItem struct {
	Get     *Operation `json:"get,omitempty"`
	Put     *Operation `json:"put,omitempty"`
	Post    *Operation `json:"post,omitempty"`
	Delete  *Operation `json:"delete,omitempty"`
	Options *Operation `json:"options,omitempty"`
	Head    *Operation `json:"head,omitempty"`
	Patch   *Operation `json:"patch,omitempty"`
	Trace   *Operation `json:"trace,omitempty"`
}

// Operations returns the non-nil operations of the path item in the
// order they appear in the document.
func (p *PathItem) Operations() []*Operation {
	var ops []*Operation
	for _, op := range []*Operation{p.Get, p.Put, p.Post, p.Delete, p.Options, p.Head, p.Patch, p.Trace} {
		if op != nil {
			ops = append(ops, op)
		}
	}
	return ops
}

// IsEmpty reports whether the path item carries no operation.
func (p *PathItem) IsEmpty() bool {
	return len(p.Operations()) == 0
}

// Operation describes a single API operation on a path.
//
// See: https://spec.openapis.org/oas/v3.1.0#operation-object
type Operation struct {
	Tags        []string             `json:"tags,omitempty"`
	Summary     string               `json:"summary,omitempty"`
	Description string               `json:"description,omitempty"`
	OperationID string               `json:"operationId,omitempty"`
	Parameters  []*Parameter         `json:"parameters,omitempty"`
	RequestBody *RequestBody         `json:"requestBody,omitempty"`
	Responses   map[string]*Response `json:"responses,omitempty"`
	Deprecated  bool                 `json:"deprecated,omitempty"`
}

// Parameter describes a single operation parameter.
//
// See: https://spec.openapis.org/oas/v3.1.0#parameter-object
type Parameter struct {
	Name        string  `json:"name"`
	In          string  `json:"in"`
	Description string  `json:"description,omitempty"`
	Required    bool    `json:"required,omitempty"`
	Schema      *Schema `json:"schema,omitempty"`
}

// RequestBody describes a single request body.
//
// See: https://spec.openapis.org/oas/v3.1.0#request-body-object
type RequestBody struct {
	Description string                `json:"description,omitempty"`
	Required    bool                  `json:"required,omitempty"`
	Content     map[string]*MediaType `json:"content,omitempty"`
}

// Response describes a single response from an API operation.
// Description is required by OpenAPI.
//
// See: https://spec.openapis.org/oas/v3.1.0#response-object
type Response struct {
	Description string                `json:"description"`
	Content     map[string]*MediaType `json:"content,omitempty"`
}

// MediaType describes a media type with a schema.
//
// See: https://spec.openapis.org/oas/v3.1.0#media-type-object
type MediaType struct {
	Schema *Schema `json:"schema,omitempty"`
}

// SchemaType represents a JSON Schema type that can be a single string
// or an array of strings (per JSON Schema Draft 2020-12, section 6.1.1).
//
// See: https://json-schema.org/draft/2020-12/json-schema-validation#section-6.1.1
type SchemaType struct {
	value []string
}

// TypeString creates a SchemaType with a single type.
func TypeString(t string) SchemaType {
	return SchemaType{value: []string{t}}
}

// TypeArray creates a SchemaType with multiple types (e.g., ["string", "null"]).
func TypeArray(types ...string) SchemaType {
	return SchemaType{value: types}
}

// Values returns the underlying type values.
func (st SchemaType) Values() []string {
	return st.value
}

// Has reports whether t is one of the type values.
func (st SchemaType) Has(t string) bool {
	for _, v := range st.value {
		if v == t {
			return true
		}
	}
	return false
}

// IsEmpty reports whether the schema type is unset.
func (st SchemaType) IsEmpty() bool {
	return len(st.value) == 0
}

// IsZero lets omitzero drop an unset type.
func (st SchemaType) IsZero() bool {
	return len(st.value) == 0
}

// MarshalJSON encodes the schema type as a JSON string (single type)
// or JSON array (multiple types).
func (st SchemaType) MarshalJSON() ([]byte, error) {
	if len(st.value) == 1 {
		return json.Marshal(st.value[0])
	}
	return json.Marshal(st.value)
}

// UnmarshalJSON decodes the schema type from either a JSON string or array.
func (st *SchemaType) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		st.value = []string{single}
		return nil
	}

	var arr []string
	if err := json.Unmarshal(data, &arr); err != nil {
		return err
	}
	st.value = arr
	return nil
}

// Schema represents a JSON Schema object used in OpenAPI v3.1.0.
//
// A Schema may also be a boolean schema (true accepts anything, false
// accepts nothing), which is how "additionalProperties": false is
// expressed. Use BoolSchema to build one. Keys starting with "x-" are kept
// in Extensions when a schema is decoded from a remote document.
//
// See: https://spec.openapis.org/oas/v3.1.0#schema-object
// See: https://json-schema.org/draft/2020-12/json-schema-core#section-4.3.2 (boolean schemas)
type Schema struct {
	Ref    string             `json:"$ref,omitempty"`
	Defs   map[string]*Schema `json:"$defs,omitempty"`
	Type   SchemaType         `json:"type,omitzero"`
	Format string             `json:"format,omitempty"`

	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Default     any    `json:"default,omitempty"`
	Example     any    `json:"example,omitempty"`
	Deprecated  bool   `json:"deprecated,omitempty"`
	ReadOnly    bool   `json:"readOnly,omitempty"`
	WriteOnly   bool   `json:"writeOnly,omitempty"`

	MultipleOf       *float64 `json:"multipleOf,omitempty"`
	Minimum          *float64 `json:"minimum,omitempty"`
	Maximum          *float64 `json:"maximum,omitempty"`
	ExclusiveMinimum *float64 `json:"exclusiveMinimum,omitempty"`
	ExclusiveMaximum *float64 `json:"exclusiveMaximum,omitempty"`

	MinLength *int   `json:"minLength,omitempty"`
	MaxLength *int   `json:"maxLength,omitempty"`
	Pattern   string `json:"pattern,omitempty"`

	Items       *Schema `json:"items,omitempty"`
	MinItems    *int    `json:"minItems,omitempty"`
	MaxItems    *int    `json:"maxItems,omitempty"`
	UniqueItems bool    `json:"uniqueItems,omitempty"`

	Properties           map[string]*Schema `json:"properties,omitempty"`
	AdditionalProperties *Schema            `json:"additionalProperties,omitempty"`
	Required             []string           `json:"required,omitempty"`
	MinProperties        *int               `json:"minProperties,omitempty"`
	MaxProperties        *int               `json:"maxProperties,omitempty"`

	Enum  []any `json:"enum,omitempty"`
	Const any   `json:"const,omitzero"`

	AllOf []*Schema `json:"allOf,omitempty"`
	OneOf []*Schema `json:"oneOf,omitempty"`
	AnyOf []*Schema `json:"anyOf,omitempty"`
	Not   *Schema   `json:"not,omitempty"`

	Discriminator *Discriminator `json:"discriminator,omitempty"`

	Extensions map[string]any `json:"-"`

	boolean *bool
}

// BoolSchema returns the boolean schema true or false.
func BoolSchema(v bool) *Schema {
	return &Schema{boolean: &v}
}

// Bool returns the value of a boolean schema and whether s is one.
func (s *Schema) Bool() (value, ok bool) {
	if s == nil || s.boolean == nil {
		return false, false
	}
	return *s.boolean, true
}

// IsObject reports whether s describes a composite object with named fields.
func (s *Schema) IsObject() bool {
	if s == nil || s.boolean != nil || s.Ref != "" {
		return false
	}
	if s.Type.Has("object") {
		return true
	}
	return s.Type.IsEmpty() && len(s.Properties) > 0
}

// schemaFields has the same layout as Schema without its methods, so
// encoding it does not recurse into MarshalJSON.
type schemaFields Schema

// MarshalJSON encodes boolean schemas as true/false and folds Extensions
// into the object.
func (s *Schema) MarshalJSON() ([]byte, error) {
	if s.boolean != nil {
		return json.Marshal(*s.boolean)
	}

	data, err := json.Marshal((*schemaFields)(s))
	if err != nil {
		return nil, err
	}
	if len(s.Extensions) == 0 {
		return data, nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, err
	}
	for k, v := range s.Extensions {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("extension %s: %w", k, err)
		}
		obj[k] = raw
	}
	return json.Marshal(obj)
}

// UnmarshalJSON decodes boolean schemas and schema objects. Unknown
// "x-" keys are collected into Extensions.
func (s *Schema) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("true")) || bytes.Equal(trimmed, []byte("false")) {
		v := trimmed[0] == 't'
		*s = Schema{boolean: &v}
		return nil
	}

	var fields schemaFields
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	*s = Schema(fields)

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	for k, raw := range obj {
		if !strings.HasPrefix(k, "x-") {
			continue
		}
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return fmt.Errorf("extension %s: %w", k, err)
		}
		if s.Extensions == nil {
			s.Extensions = make(map[string]any)
		}
		s.Extensions[k] = v
	}
	return nil
}

// Clone returns a deep copy of s.
func (s *Schema) Clone() *Schema {
	if s == nil {
		return nil
	}
	data, err := json.Marshal(s)
	if err != nil {
		// Only unencodable Default/Example/Const values get here.
		c := *s
		return &c
	}
	var c Schema
	if err := json.Unmarshal(data, &c); err != nil {
		c = *s
	}
	return &c
}

// Components holds reusable OpenAPI objects.
//
// See: https://spec.openapis.org/oas/v3.1.0#components-object
type Components struct {
	Schemas         map[string]*Schema         `json:"schemas,omitempty"`
	SecuritySchemes map[string]*SecurityScheme `json:"securitySchemes,omitempty"`
}

// Tag adds metadata to a single tag used by Operation Objects.
//
// See: https://spec.openapis.org/oas/v3.1.0#tag-object
type Tag struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// SecurityRequirement lists required security schemes for an operation.
//
// See: https://spec.openapis.org/oas/v3.1.0#security-requirement-object
type SecurityRequirement map[string][]string

// Discriminator aids in serialization when payloads may be one of
// several schemas.
//
// See: https://spec.openapis.org/oas/v3.1.0#discriminator-object
type Discriminator struct {
	PropertyName string            `json:"propertyName"`
	Mapping      map[string]string `json:"mapping,omitempty"`
}

// SecurityScheme defines a security scheme used by API operations.
//
// See: https://spec.openapis.org/oas/v3.1.0#security-scheme-object
type SecurityScheme struct {
	Type             string `json:"type"`
	Description      string `json:"description,omitempty"`
	Name             string `json:"name,omitempty"`
	In               string `json:"in,omitempty"`
	Scheme           string `json:"scheme,omitempty"`
	BearerFormat     string `json:"bearerFormat,omitempty"`
	OpenIDConnectURL string `json:"openIdConnectUrl,omitempty"`
}

// YAML renders the document as block-style YAML. The document is
// encoded through its JSON form so that field names, omitted fields and
// boolean schemas match the JSON endpoint exactly.
func (d *Document) YAML() ([]byte, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}

	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, err
	}
	clearFlowStyle(&node)

	return yaml.Marshal(&node)
}

func clearFlowStyle(n *yaml.Node) {
	n.Style &^= yaml.FlowStyle
	if n.Kind == yaml.ScalarNode && n.Tag == "!!str" {
		// JSON always double-quotes strings; let yaml pick the quoting.
		n.Style &^= yaml.DoubleQuotedStyle
	}
	for _, c := range n.Content {
		clearFlowStyle(c)
	}
}
