package refsource

import (
	"net/url"
	"slices"
	"strconv"
	"strings"
)

// deref returns a copy of node with every internal "$ref" replaced by the
// referenced value. References already being expanded on the current
// path are cyclic and kept as "$ref". External references are kept too.
// Keys next to "$ref" override the referenced value.
func deref(root map[string]any, node any, stack []string) any {
	switch t := node.(type) {
	case map[string]any:
		if ref, ok := t["$ref"].(string); ok && strings.HasPrefix(ref, "#/") {
			if slices.Contains(stack, ref) {
				return map[string]any{"$ref": ref}
			}
			target, found := lookupPointer(root, ref)
			if !found {
				return copyValue(t)
			}

			resolved := deref(root, target, append(slices.Clip(stack), ref))
			if len(t) == 1 {
				return resolved
			}
			merged, ok := resolved.(map[string]any)
			if !ok {
				return resolved
			}
			for k, v := range t {
				if k != "$ref" {
					merged[k] = deref(root, v, stack)
				}
			}
			return merged
		}

		out := make(map[string]any, len(t))
		for k, v := range t {
			out[k] = deref(root, v, stack)
		}
		return out

	case []any:
		out := make([]any, len(t))
		for i, v := range t {
			out[i] = deref(root, v, stack)
		}
		return out

	default:
		return node
	}
}

func copyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, child := range t {
			out[k] = copyValue(child)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, child := range t {
			out[i] = copyValue(child)
		}
		return out
	default:
		return v
	}
}

// lookupPointer resolves a "#/..." JSON pointer (RFC 6901) in root.
func lookupPointer(root map[string]any, ref string) (any, bool) {
	var node any = root
	for _, token := range strings.Split(strings.TrimPrefix(ref, "#/"), "/") {
		if unescaped, err := url.PathUnescape(token); err == nil {
			token = unescaped
		}
		token = strings.ReplaceAll(strings.ReplaceAll(token, "~1", "/"), "~0", "~")

		switch t := node.(type) {
		case map[string]any:
			child, ok := t[token]
			if !ok {
				return nil, false
			}
			node = child
		case []any:
			i, err := strconv.Atoi(token)
			if err != nil || i < 0 || i >= len(t) {
				return nil, false
			}
			node = t[i]
		default:
			return nil, false
		}
	}
	return node, true
}

func escapePointer(token string) string {
	return strings.ReplaceAll(strings.ReplaceAll(token, "~", "~0"), "/", "~1")
}

// normalizeSchema rewrites OpenAPI 3.0 keywords into their JSON Schema
// 2020-12 form in place: "nullable" becomes a "null" type and boolean
// exclusiveMinimum/exclusiveMaximum become numeric bounds.
func normalizeSchema(node any) {
	s, ok := node.(map[string]any)
	if !ok {
		return
	}

	if nullable, ok := s["nullable"].(bool); ok {
		delete(s, "nullable")
		if nullable {
			switch t := s["type"].(type) {
			case string:
				s["type"] = []any{t, "null"}
			case []any:
				if !slices.Contains(t, any("null")) {
					s["type"] = append(t, "null")
				}
			}
		}
	}

	normalizeBound(s, "exclusiveMinimum", "minimum")
	normalizeBound(s, "exclusiveMaximum", "maximum")

	for _, key := range []string{"items", "additionalProperties", "not", "contains"} {
		normalizeSchema(s[key])
	}
	for _, key := range []string{"properties", "patternProperties", "$defs", "definitions"} {
		if children, ok := s[key].(map[string]any); ok {
			for _, child := range children {
				normalizeSchema(child)
			}
		}
	}
	for _, key := range []string{"allOf", "oneOf", "anyOf", "prefixItems"} {
		if children, ok := s[key].([]any); ok {
			for _, child := range children {
				normalizeSchema(child)
			}
		}
	}
}

func normalizeBound(s map[string]any, exclusiveKey, inclusiveKey string) {
	exclusive, ok := s[exclusiveKey].(bool)
	if !ok {
		return
	}
	delete(s, exclusiveKey)
	if bound, ok := s[inclusiveKey]; ok && exclusive {
		s[exclusiveKey] = bound
		delete(s, inclusiveKey)
	}
}
