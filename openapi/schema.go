package openapi

import (
	"reflect"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	timeType = reflect.TypeOf(time.Time{})
	uuidType = reflect.TypeOf(uuid.UUID{})
)

// scalarSchemas maps types with a fixed wire format to their schema.
var scalarSchemas = map[reflect.Type]func() *Schema{
	timeType: func() *Schema { return &Schema{Type: TypeString("string"), Format: "date-time"} },
	uuidType: func() *Schema { return &Schema{Type: TypeString("string"), Format: "uuid"} },
}

// Exampler is implemented by payload types that publish an example value
// for their component schema.
//
//	func (o Order) OpenAPIExample() any {
//	    return Order{ID: "ord_1", Customer: "Alice"}
//	}
type Exampler interface {
	OpenAPIExample() any
}

// SchemaHook post-processes the schema rendered for a named struct type
// before it is stored as a component. Hooks run exactly once per type and
// generator.
type SchemaHook func(t reflect.Type, schema *Schema)

// SchemaGenerator renders Go payload types as JSON Schema. Named structs
// become entries of the components map and are referenced with $ref;
// everything else is rendered inline.
//
// A generator is single-use state for one document build: a component is
// rendered, and its hooks run, the first time its type is met.
//
// See: https://spec.openapis.org/oas/v3.1.0#schema-object
type SchemaGenerator struct {
	schemas map[string]*Schema
	names   componentNames
	hooks   []SchemaHook
}

// NewSchemaGenerator creates a generator with an empty components map.
func NewSchemaGenerator() *SchemaGenerator {
	return &SchemaGenerator{
		schemas: make(map[string]*Schema),
		names:   newComponentNames(),
	}
}

// Use appends post-render hooks. Hooks run in registration order.
func (g *SchemaGenerator) Use(hooks ...SchemaHook) *SchemaGenerator {
	g.hooks = append(g.hooks, hooks...)
	return g
}

// Schemas returns the components rendered so far, keyed by name.
func (g *SchemaGenerator) Schemas() map[string]*Schema {
	return g.schemas
}

// Generate renders the type of v. A nil v renders nothing.
func (g *SchemaGenerator) Generate(v any) *Schema {
	if v == nil {
		return nil
	}
	return g.render(reflect.TypeOf(v))
}

func (g *SchemaGenerator) render(t reflect.Type) *Schema {
	pointer := t.Kind() == reflect.Pointer
	if pointer {
		t = t.Elem()
	}

	if name := g.componentName(t); name != "" {
		g.renderComponent(name, t)
		ref := &Schema{Ref: componentRef(name)}
		if pointer {
			// Nullable component.
			return &Schema{AnyOf: []*Schema{ref, {Type: TypeString("null")}}}
		}
		return ref
	}

	schema := g.inline(t)
	if pointer && schema != nil && schema.Ref == "" && !schema.Type.IsEmpty() {
		schema.Type = TypeArray(append(schema.Type.Values(), "null")...)
	}
	return schema
}

// componentName returns the component name of t, or "" when t renders
// inline.
func (g *SchemaGenerator) componentName(t reflect.Type) string {
	if t.Kind() != reflect.Struct || scalarSchemas[t] != nil {
		return ""
	}
	return g.names.of(t)
}

func (g *SchemaGenerator) renderComponent(name string, t reflect.Type) {
	if _, done := g.schemas[name]; done {
		return
	}

	// Register a placeholder first so self-referencing types terminate.
	schema := &Schema{}
	g.schemas[name] = schema
	*schema = *g.object(t)

	if ex, ok := reflect.New(t).Interface().(Exampler); ok {
		schema.Example = ex.OpenAPIExample()
	}
	for _, hook := range g.hooks {
		hook(t, schema)
	}
}

func (g *SchemaGenerator) inline(t reflect.Type) *Schema {
	if build, ok := scalarSchemas[t]; ok {
		return build()
	}

	switch t.Kind() {
	case reflect.Bool:
		return &Schema{Type: TypeString("boolean")}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return &Schema{Type: TypeString("integer")}
	case reflect.Float32, reflect.Float64:
		return &Schema{Type: TypeString("number")}
	case reflect.String:
		return &Schema{Type: TypeString("string")}
	case reflect.Slice, reflect.Array:
		if t.Kind() == reflect.Slice && t.Elem().Kind() == reflect.Uint8 {
			return &Schema{Type: TypeString("string"), Format: "byte"}
		}
		return &Schema{Type: TypeString("array"), Items: g.render(t.Elem())}
	case reflect.Map:
		schema := &Schema{Type: TypeString("object")}
		if t.Key().Kind() == reflect.String {
			schema.AdditionalProperties = g.render(t.Elem())
		}
		return schema
	case reflect.Struct:
		return g.object(t)
	case reflect.Interface:
		return &Schema{}
	default:
		return nil
	}
}

// object renders the serialized fields of a struct as an object schema.
// Fields without omitempty or omitzero are required.
func (g *SchemaGenerator) object(t reflect.Type) *Schema {
	schema := &Schema{Type: TypeString("object")}

	eachField(t, false, func(f structField) {
		fs := g.render(f.typ)
		if fs == nil {
			return
		}
		applyOpenAPITag(fs, f.tag)
		if f.asString && fs.Ref == "" && len(fs.AnyOf) == 0 && !fs.Type.IsEmpty() {
			if fs.Type.Has("null") {
				fs.Type = TypeArray("string", "null")
			} else {
				fs.Type = TypeString("string")
			}
		}

		if schema.Properties == nil {
			schema.Properties = make(map[string]*Schema)
		}
		schema.Properties[f.name] = fs
		if !f.optional {
			schema.Required = append(schema.Required, f.name)
		}
	})

	return schema
}

// Field describes one serialized field of a payload type.
type Field struct {
	Name        string
	Type        reflect.Type
	Required    bool
	Description string
	Format      string
}

// Fields lists the serialized fields of the struct type of v without
// rendering anything. Non-struct values have no fields.
func (g *SchemaGenerator) Fields(v any) []Field {
	if v == nil {
		return nil
	}
	t := reflect.TypeOf(v)
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil
	}

	var fields []Field
	eachField(t, false, func(f structField) {
		var meta Schema
		applyOpenAPITag(&meta, f.tag)
		fields = append(fields, Field{
			Name:        f.name,
			Type:        f.typ,
			Required:    !f.optional,
			Description: meta.Description,
			Format:      meta.Format,
		})
	})
	return fields
}

// isPayloadType reports whether t is rendered as a named component.
func isPayloadType(t reflect.Type) bool {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Kind() == reflect.Struct && scalarSchemas[t] == nil && t.Name() != "" && t.PkgPath() != ""
}

type structField struct {
	name     string
	typ      reflect.Type
	tag      string
	optional bool
	asString bool
}

// eachField visits the fields encoding/json would serialize, in order.
// Untagged embedded structs are flattened; fields reached through an
// embedded pointer are optional since the pointer may be nil.
func eachField(t reflect.Type, optional bool, fn func(structField)) {
	for i := range t.NumField() {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}

		tag := sf.Tag.Get("json")
		if tag == "-" {
			continue
		}
		name, opts, _ := strings.Cut(tag, ",")

		if sf.Anonymous && name == "" {
			et := sf.Type
			if et.Kind() == reflect.Pointer {
				et = et.Elem()
			}
			if et.Kind() == reflect.Struct {
				eachField(et, optional || sf.Type.Kind() == reflect.Pointer, fn)
				continue
			}
		}

		if name == "" {
			name = sf.Name
		}
		fn(structField{
			name:     name,
			typ:      sf.Type,
			tag:      sf.Tag.Get("openapi"),
			optional: optional || hasTagOption(opts, "omitempty") || hasTagOption(opts, "omitzero"),
			asString: hasTagOption(opts, "string"),
		})
	}
}

func hasTagOption(opts, option string) bool {
	for opt := range strings.SplitSeq(opts, ",") {
		if opt == option {
			return true
		}
	}
	return false
}

func componentRef(name string) string {
	return "#/components/schemas/" + name
}
