package openapi

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
)

// ErrInvalidPathPrefix is returned when a path prefix pattern does not compile.
var ErrInvalidPathPrefix = errors.New("openapi: invalid path prefix")

// pathVarRegexp matches route variables in the form {name}, {name:macro}
// or {name...}.
var pathVarRegexp = regexp.MustCompile(`\{([^}]+)\}`)

// methodActions maps HTTP methods to the action word used in operation ids.
var methodActions = map[string]string{
	http.MethodGet:    "retrieve",
	http.MethodPost:   "create",
	http.MethodPut:    "update",
	http.MethodPatch:  "partial_update",
	http.MethodDelete: "destroy",
}

// Route describes one (path, method) pair of the route table together with
// the prefix pattern used to derive tags and operation ids.
type Route struct {
	Path       string
	PathPrefix string
	Method     string
	IsList     bool

	prefixRe *regexp.Regexp
}

// NewRoute builds a route descriptor. The prefix is a regular expression
// matched case-insensitively at the start of the path; a missing "^" anchor
// is added.
func NewRoute(path, prefix, method string, isList bool) (*Route, error) {
	prefix, re, err := compilePrefix(prefix)
	if err != nil {
		return nil, err
	}
	return &Route{
		Path:       path,
		PathPrefix: prefix,
		Method:     strings.ToUpper(method),
		IsList:     isList,
		prefixRe:   re,
	}, nil
}

func compilePrefix(prefix string) (string, *regexp.Regexp, error) {
	if !strings.HasPrefix(prefix, "^") {
		prefix = "^" + prefix
	}
	re, err := regexp.Compile("(?i)" + prefix)
	if err != nil {
		return "", nil, fmt.Errorf("%w %q: %v", ErrInvalidPathPrefix, prefix, err)
	}
	return prefix, re, nil
}

// Tag returns the first static path token after the prefix, or "" when the
// path has none.
func (r *Route) Tag() string {
	tokens := r.tokens()
	if len(tokens) == 0 {
		return ""
	}
	return tokens[0]
}

// OperationID returns the deterministic operation id: static path tokens
// with dashes turned into underscores, followed by the action word, joined
// with "_". A path without static tokens uses "root".
func (r *Route) OperationID() string {
	tokens := r.tokens()
	for i, t := range tokens {
		tokens[i] = strings.ReplaceAll(t, "-", "_")
	}
	if len(tokens) == 0 {
		tokens = append(tokens, "root")
	}
	return strings.Join(append(tokens, r.action()), "_")
}

func (r *Route) action() string {
	if r.Method == http.MethodGet && r.IsList {
		return "list"
	}
	if action, ok := methodActions[r.Method]; ok {
		return action
	}
	return strings.ToLower(r.Method)
}

func (r *Route) tokens() []string {
	path := r.Path
	if r.prefixRe != nil {
		path = r.prefixRe.ReplaceAllString(path, "")
	}
	path = pathVarRegexp.ReplaceAllString(path, "")

	var tokens []string
	for _, t := range strings.Split(strings.Trim(path, "/"), "/") {
		if t != "" {
			tokens = append(tokens, t)
		}
	}
	return tokens
}
