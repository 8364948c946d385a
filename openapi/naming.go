package openapi

import (
	"reflect"
	"strconv"
	"strings"
)

// componentNames assigns each named struct type a unique component name.
// The first type to claim a simple name keeps it. Later types with the
// same simple name from another package are qualified with the last
// segment of their package path ("HttpClient"), then numbered if that is
// taken too.
type componentNames struct {
	byType map[reflect.Type]string
	byName map[string]reflect.Type
}

func newComponentNames() componentNames {
	return componentNames{
		byType: make(map[reflect.Type]string),
		byName: make(map[string]reflect.Type),
	}
}

// of returns the component name of t, or "" for unnamed and predeclared
// types.
func (n componentNames) of(t reflect.Type) string {
	if name, ok := n.byType[t]; ok {
		return name
	}
	if t.PkgPath() == "" {
		return ""
	}
	simple := typeName(t.Name())
	if simple == "" {
		return ""
	}

	name := simple
	if n.taken(name, t) {
		name = packageName(t.PkgPath()) + simple
		for i := 2; n.taken(name, t); i++ {
			name = packageName(t.PkgPath()) + simple + strconv.Itoa(i)
		}
	}

	n.byType[t] = name
	n.byName[name] = t
	return name
}

func (n componentNames) taken(name string, t reflect.Type) bool {
	owner, ok := n.byName[name]
	return ok && owner != t
}

// typeName flattens a generic instantiation into a component key:
// "Page[pkg.Item]" is "PageItem" and "Page[[]pkg.Item]" is "PageItemList".
func typeName(name string) string {
	base, args, generic := strings.Cut(name, "[")
	if !generic {
		return name
	}
	args = strings.TrimSuffix(args, "]")

	var suffix string
	if rest, ok := strings.CutPrefix(args, "[]"); ok {
		args, suffix = rest, "List"
	}
	if i := strings.LastIndexByte(args, '.'); i >= 0 {
		args = args[i+1:]
	}
	return base + args + suffix
}

// packageName turns the last element of an import path into a name
// prefix: "net/http" is "Http".
func packageName(pkgPath string) string {
	last := pkgPath[strings.LastIndexByte(pkgPath, '/')+1:]
	last = strings.NewReplacer("-", "_", ".", "_").Replace(last)
	if last == "" {
		return ""
	}
	return strings.ToUpper(last[:1]) + last[1:]
}
