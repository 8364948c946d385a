package openapi

import (
	"net/http"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type Address struct {
	Street string `json:"street"`
	Zip    string `json:"zip,omitempty" openapi:"pattern=^[0-9]{5}$"`
}

type Audit struct {
	CreatedAt time.Time `json:"created_at"`
	Author    string    `json:"author,omitempty"`
}

type Customer struct {
	Audit
	*Address
	ID       uuid.UUID         `json:"id" openapi:"readOnly"`
	Name     string            `json:"name" openapi:"description=Full name,minLength=1,example=Alice"`
	Tier     string            `json:"tier" openapi:"enum=free|pro"`
	Score    int               `json:"score,string"`
	Nickname *string           `json:"nickname,omitempty"`
	Billing  *Address          `json:"billing,omitempty"`
	Labels   map[string]string `json:"labels,omitempty"`
	Avatar   []byte            `json:"avatar,omitempty"`
	Extra    any               `json:"extra,omitempty"`
	Ignored  string            `json:"-"`
	internal string
}

func (Customer) OpenAPIExample() any {
	return map[string]any{"name": "Alice"}
}

type Page[T any] struct {
	Items []T    `json:"items"`
	Next  string `json:"next,omitempty"`
}

func TestSchemaGenerator(t *testing.T) {
	t.Run("primitives", func(t *testing.T) {
		g := NewSchemaGenerator()
		assert.Equal(t, TypeString("boolean"), g.Generate(true).Type)
		assert.Equal(t, TypeString("integer"), g.Generate(uint16(0)).Type)
		assert.Equal(t, TypeString("number"), g.Generate(0.5).Type)
		assert.Equal(t, TypeString("string"), g.Generate("").Type)
		assert.Nil(t, g.Generate(nil))
		assert.Empty(t, g.Schemas())
	})

	t.Run("struct component", func(t *testing.T) {
		g := NewSchemaGenerator()
		ref := g.Generate(Customer{})
		assert.Equal(t, "#/components/schemas/Customer", ref.Ref)

		s := g.Schemas()["Customer"]
		require.NotNil(t, s)
		assert.Equal(t, TypeString("object"), s.Type)
		assert.Equal(t, map[string]any{"name": "Alice"}, s.Example)

		p := s.Properties
		assert.Equal(t, "date-time", p["created_at"].Format)
		assert.Contains(t, p, "author")
		assert.Contains(t, p, "street")
		assert.Equal(t, "^[0-9]{5}$", p["zip"].Pattern)

		assert.Equal(t, "uuid", p["id"].Format)
		assert.True(t, p["id"].ReadOnly)
		assert.Equal(t, "Full name", p["name"].Description)
		assert.Equal(t, "Alice", p["name"].Example)
		assert.Equal(t, 1, *p["name"].MinLength)
		assert.Equal(t, []any{"free", "pro"}, p["tier"].Enum)
		assert.Equal(t, TypeString("string"), p["score"].Type)
		assert.Equal(t, TypeArray("string", "null"), p["nickname"].Type)
		require.Len(t, p["billing"].AnyOf, 2)
		assert.Equal(t, "#/components/schemas/Address", p["billing"].AnyOf[0].Ref)
		assert.Equal(t, TypeString("string"), p["labels"].AdditionalProperties.Type)
		assert.Equal(t, "byte", p["avatar"].Format)
		assert.Equal(t, &Schema{}, p["extra"])
		assert.NotContains(t, p, "Ignored")
		assert.NotContains(t, p, "internal")

		assert.Equal(t, []string{"created_at", "id", "name", "tier", "score"}, s.Required)
		assert.Contains(t, g.Schemas(), "Address")
	})

	t.Run("generic names", func(t *testing.T) {
		g := NewSchemaGenerator()
		assert.Equal(t, "#/components/schemas/PageAddress", g.Generate(Page[Address]{}).Ref)
		assert.Equal(t, "#/components/schemas/PageAddressList", g.Generate(Page[[]Address]{}).Ref)
	})

	t.Run("name collision across packages", func(t *testing.T) {
		type Client struct {
			ID string `json:"id"`
		}
		g := NewSchemaGenerator()
		assert.Equal(t, "#/components/schemas/Client", g.Generate(Client{}).Ref)
		assert.Equal(t, "#/components/schemas/HttpClient", g.Generate(http.Client{}).Ref)
		assert.Equal(t, "#/components/schemas/Client", g.Generate(&Client{}).AnyOf[0].Ref)
	})

	t.Run("hooks run once per type", func(t *testing.T) {
		var seen []string
		g := NewSchemaGenerator().Use(func(t reflect.Type, s *Schema) {
			seen = append(seen, t.Name())
			s.Description = "hooked"
		})

		g.Generate(Customer{})
		g.Generate([]Customer{})
		g.Generate(map[string]*Customer{})

		assert.ElementsMatch(t, []string{"Customer", "Address"}, seen)
		assert.Equal(t, "hooked", g.Schemas()["Customer"].Description)
	})
}

func TestSchemaGeneratorFields(t *testing.T) {
	g := NewSchemaGenerator()

	assert.Nil(t, g.Fields(nil))
	assert.Nil(t, g.Fields(42))

	fields := g.Fields(&Address{})
	require.Len(t, fields, 2)
	assert.Equal(t, "street", fields[0].Name)
	assert.True(t, fields[0].Required)
	assert.Equal(t, "zip", fields[1].Name)
	assert.False(t, fields[1].Required)
	assert.Equal(t, reflect.TypeOf(""), fields[1].Type)

	names := make([]string, 0)
	for _, f := range g.Fields(Customer{}) {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{
		"created_at", "author", "street", "zip", "id", "name", "tier", "score",
		"nickname", "billing", "labels", "avatar", "extra",
	}, names)

	assert.Empty(t, g.Schemas(), "listing fields renders nothing")
}

func TestIsPayloadType(t *testing.T) {
	assert.True(t, isPayloadType(reflect.TypeOf(Address{})))
	assert.True(t, isPayloadType(reflect.TypeOf(&Address{})))
	assert.False(t, isPayloadType(reflect.TypeOf(time.Time{})))
	assert.False(t, isPayloadType(reflect.TypeOf(uuid.UUID{})))
	assert.False(t, isPayloadType(reflect.TypeOf(struct{ A int }{})))
	assert.False(t, isPayloadType(reflect.TypeOf("")))
}
