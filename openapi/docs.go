package openapi

import (
	"net/http"
	"strings"
)

// Action aliases a view may register handlers under instead of an HTTP
// method. A GET resolves to "list" on collection routes and "retrieve"
// otherwise.
const (
	ActionList          = "list"
	ActionRetrieve      = "retrieve"
	ActionCreate        = "create"
	ActionUpdate        = "update"
	ActionPartialUpdate = "partial_update"
	ActionDestroy       = "destroy"
)

// ActionMethods maps action aliases to the HTTP method they serve.
var ActionMethods = map[string]string{
	ActionList:          http.MethodGet,
	ActionRetrieve:      http.MethodGet,
	ActionCreate:        http.MethodPost,
	ActionUpdate:        http.MethodPut,
	ActionPartialUpdate: http.MethodPatch,
	ActionDestroy:       http.MethodDelete,
}

// Docs is the operation metadata attached to a handler when the route is
// defined. Body, Query and Path are payload values (struct values whose
// type is reflected). Response may be a payload value, a Payload or a
// UnionResponse.
type Docs struct {
	Errors   []*HTTPError
	Body     any
	Query    any
	Path     any
	Response any
}

// Handler is one handler function of a view with its documentation.
// Returns plays the role of the handler's declared return type and is used
// when Docs.Response is not set. Doc is a free-form docstring: first
// paragraph is the summary, the rest the description, and a "Raises:"
// section describes declared errors.
type Handler struct {
	Func    http.HandlerFunc
	Docs    *Docs
	Doc     string
	Returns any
}

// View groups handlers registered on one path. Handlers are keyed by HTTP
// method ("GET") or action alias ("list"). Version is the API version the
// view belongs to; an empty version matches every requested version.
type View struct {
	Name     string
	Version  string
	Handlers map[string]*Handler
}

// HandlerFor resolves the handler serving method, falling back to the
// action alias for the method. It returns nil when neither is registered.
func (v *View) HandlerFor(method string, isList bool) *Handler {
	if v == nil {
		return nil
	}
	method = strings.ToUpper(method)
	if h, ok := v.Handlers[method]; ok && h != nil {
		return h
	}

	var alias string
	switch method {
	case http.MethodGet:
		alias = ActionRetrieve
		if isList {
			alias = ActionList
		}
	case http.MethodPost:
		alias = ActionCreate
	case http.MethodPut:
		alias = ActionUpdate
	case http.MethodPatch:
		alias = ActionPartialUpdate
	case http.MethodDelete:
		alias = ActionDestroy
	}
	if h, ok := v.Handlers[alias]; ok && h != nil {
		return h
	}
	return nil
}

// Endpoint is one entry of the route table.
type Endpoint struct {
	Path   string
	Method string
	View   *View
	IsList bool
}

// EndpointSource supplies the route table: deduplicated endpoints in a
// stable order.
type EndpointSource interface {
	Endpoints() []Endpoint
}

// EndpointList is a static EndpointSource.
type EndpointList []Endpoint

// Endpoints returns the list itself.
func (l EndpointList) Endpoints() []Endpoint {
	return l
}

// StatusCoder can be implemented by payload types to declare the status
// code they are returned with. The default is 200.
type StatusCoder interface {
	OpenAPIStatus() int
}

// ContentTyper can be implemented by payload types to declare their
// content type. The default is "application/json".
type ContentTyper interface {
	OpenAPIContentType() string
}

// Payload declares a response body with an explicit status code and
// content type. Zero values fall back to the body's own declaration and
// then to 200 and "application/json".
type Payload struct {
	Status      int
	ContentType string
	Body        any
}

// UnionResponse declares a response that is one of several payloads.
type UnionResponse struct {
	Alternatives []any
}

// Union declares a response that is one of the given payloads. Each
// alternative carries its own status code and content type.
func Union(alternatives ...any) UnionResponse {
	return UnionResponse{Alternatives: alternatives}
}

// alternatives flattens a declared response into payloads with resolved
// status and content type.
func alternatives(response any) []Payload {
	switch r := response.(type) {
	case nil:
		return nil
	case UnionResponse:
		var out []Payload
		for _, alt := range r.Alternatives {
			out = append(out, alternatives(alt)...)
		}
		return out
	case *UnionResponse:
		return alternatives(*r)
	case Payload:
		return []Payload{resolvePayload(r)}
	case *Payload:
		return []Payload{resolvePayload(*r)}
	default:
		return []Payload{resolvePayload(Payload{Body: response})}
	}
}

func resolvePayload(p Payload) Payload {
	if p.Status == 0 {
		p.Status = http.StatusOK
		if sc, ok := p.Body.(StatusCoder); ok {
			p.Status = sc.OpenAPIStatus()
		}
	}
	if p.ContentType == "" {
		p.ContentType = "application/json"
		if ct, ok := p.Body.(ContentTyper); ok {
			p.ContentType = ct.OpenAPIContentType()
		}
	}
	return p
}
