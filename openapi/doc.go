// Package openapi generates OpenAPI v3.1.0 documents from a route table
// and Go payload types, and extends payload schemas with fields published
// by other services.
//
// Schemas follow JSON Schema Draft 2020-12 and are produced by reflection
// over struct fields and their json and openapi tags.
//
// See: https://spec.openapis.org/oas/v3.1.0
// See: https://json-schema.org/draft/2020-12/json-schema-core
//
// # Views and Handlers
//
// A route table (see package routes) supplies endpoints. Each endpoint
// points at a View whose handlers carry the operation metadata:
//
//	view := &openapi.View{
//	    Name: "items",
//	    Handlers: map[string]*openapi.Handler{
//	        openapi.ActionRetrieve: {
//	            Func:    getItem,
//	            Returns: Item{},
//	            Docs:    &openapi.Docs{Errors: []*openapi.HTTPError{openapi.ErrNotFound}},
//	            Doc: `Fetch an item.
//
//	Raises:
//	    NotFoundError: no item with this id`,
//	        },
//	    },
//	}
//
// Handlers are keyed by HTTP method or by action alias (list, retrieve,
// create, update, partial_update, destroy).
//
// # Operation IDs and Tags
//
// Operation ids are derived from the path after the configured prefix is
// stripped: static segments with dashes replaced by underscores, followed
// by an action word. GET /api/items/{id} with prefix "/api" becomes
// "items_retrieve", GET on a collection route becomes "items_list". The
// first static segment is the tag.
//
// # Union Responses
//
// A handler returning one of several payloads declares them with Union.
// Alternatives are grouped by status code and content type:
//
//	Docs: &openapi.Docs{Response: openapi.Union(Created{}, Accepted{})}
//
// where Created implements StatusCoder returning 201 and Accepted 202.
// Alternatives sharing a status and content type are combined with oneOf.
//
// # Remote Schema References
//
// Payload types implementing RefExtender pull fields from a component
// schema of a remote source when their schema is rendered:
//
//	func (Order) OpenAPIRef() openapi.RefExtension {
//	    return openapi.RefExtension{
//	        Source:  "billing",
//	        Name:    "Invoice",
//	        Exclude: []string{"internal_id"},
//	        Rename:  []openapi.FieldRename{{From: "amt", To: "amount"}},
//	    }
//	}
//
// Fields declared on the local type always win over remote fields with
// the same name. A missing source or schema is logged and leaves the local
// schema as it is.
//
// # Serving
//
// Generator.Handle registers the JSON and YAML document endpoints and a
// documentation viewer (Redoc by default):
//
//	gen, err := openapi.NewGenerator(openapi.Config{
//	    Info:       openapi.Info{Title: "Shop", Version: "1.0.0"},
//	    PathPrefix: "/api",
//	}, openapi.WithRegistry(registry))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	gen.Handle(mux, "/docs", table, nil)
package openapi
