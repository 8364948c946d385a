package openapi

import (
	"context"
	"errors"
	"log/slog"
	"reflect"
	"slices"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ErrNotObjectSchema is returned when a remote schema has no named fields
// to extend from.
var ErrNotObjectSchema = errors.New("openapi: remote schema is not an object schema")

// RefExtender is implemented by payload types whose schema pulls fields
// from a component schema published by a remote source.
//
//	type Order struct {
//	    ID     string  `json:"id"`
//	    Amount float64 `json:"amount"`
//	}
//
//	func (Order) OpenAPIRef() openapi.RefExtension {
//	    return openapi.RefExtension{
//	        Source:  "billing",
//	        Name:    "Invoice",
//	        Exclude: []string{"internal_id"},
//	        Rename:  []openapi.FieldRename{{From: "amt", To: "amount"}},
//	    }
//	}
type RefExtender interface {
	OpenAPIRef() RefExtension
}

// RefExtension describes which remote schema a local schema extends and
// how remote fields are filtered before merging.
//
// Exclude entries may be dotted paths ("address.zip") that descend through
// object properties, array items and additionalProperties. Exclusion is
// applied before renaming, so a field that is both excluded and renamed
// is dropped.
type RefExtension struct {
	Source  string
	Name    string
	Exclude []string
	Rename  []FieldRename
}

// FieldRename moves a remote field to a new name.
type FieldRename struct {
	From string
	To   string
}

// SchemaRegistry resolves remote component schemas by source and name.
// ResolveSchema returns a copy the caller may modify.
type SchemaRegistry interface {
	ResolveSchema(ctx context.Context, source, name string) (*Schema, error)
	RefreshAll(ctx context.Context)
	CustomComponents(ctx context.Context) map[string]*Schema
}

var titleCaser = cases.Title(language.Und)

// fieldTitle turns a field name into a human-readable title:
// "billing_address" becomes "Billing Address".
func fieldTitle(name string) string {
	return titleCaser.String(strings.ReplaceAll(name, "_", " "))
}

// ExtendSchema merges the fields of remote into local following ext:
// excluded remote fields are dropped, renamed remote fields are moved and
// titled, remote fields declared on local are ignored, and the remaining
// fields and required entries are merged into local. A renamed field
// replaces a remote field already named like its target, required-ness
// included. remote is not modified.
func ExtendSchema(local, remote *Schema, ext RefExtension) error {
	if !remote.IsObject() {
		return ErrNotObjectSchema
	}

	remote = remote.Clone()
	props := remote.Properties
	if props == nil {
		props = make(map[string]*Schema)
	}
	required := slices.Clone(remote.Required)

	for _, path := range ext.Exclude {
		segments := strings.Split(path, ".")
		if len(segments) == 1 {
			delete(props, path)
			required = slices.DeleteFunc(required, func(n string) bool { return n == path })
			continue
		}
		if child, ok := props[segments[0]]; ok {
			excludePath(child, segments[1:])
		}
	}

	for _, r := range ext.Rename {
		field, ok := props[r.From]
		if !ok || r.From == r.To {
			continue
		}
		if _, clash := props[r.To]; clash {
			required = slices.DeleteFunc(required, func(n string) bool { return n == r.To })
		}
		delete(props, r.From)
		field.Title = fieldTitle(r.To)
		props[r.To] = field
		for i, n := range required {
			if n == r.From {
				required[i] = r.To
			}
		}
	}

	for name := range local.Properties {
		delete(props, name)
		required = slices.DeleteFunc(required, func(n string) bool { return n == name })
	}

	if len(props) > 0 {
		if local.Properties == nil {
			local.Properties = make(map[string]*Schema, len(props))
		}
		for name, field := range props {
			local.Properties[name] = field
		}
	}

	for _, name := range required {
		if _, ok := local.Properties[name]; !ok {
			continue
		}
		if !slices.Contains(local.Required, name) {
			local.Required = append(local.Required, name)
		}
	}

	if remote.AdditionalProperties != nil {
		if v, isBool := local.AdditionalProperties.Bool(); local.AdditionalProperties == nil || (isBool && v) {
			local.AdditionalProperties = remote.AdditionalProperties
		}
	}

	if local.Type.IsEmpty() {
		local.Type = TypeString("object")
	}
	return nil
}

// excludePath removes the field named by segments from s. Array items and
// additionalProperties schemas are searched before descending.
func excludePath(s *Schema, segments []string) {
	for _, node := range containers(s) {
		child, ok := node.Properties[segments[0]]
		if !ok {
			continue
		}
		if len(segments) == 1 {
			delete(node.Properties, segments[0])
			node.Required = slices.DeleteFunc(node.Required, func(n string) bool { return n == segments[0] })
			continue
		}
		excludePath(child, segments[1:])
	}
}

// containers returns s and the item and additionalProperties schemas
// nested below it that carry properties.
func containers(s *Schema) []*Schema {
	if s == nil {
		return nil
	}
	if _, isBool := s.Bool(); isBool {
		return nil
	}
	var out []*Schema
	if len(s.Properties) > 0 {
		out = append(out, s)
	}
	out = append(out, containers(s.Items)...)
	out = append(out, containers(s.AdditionalProperties)...)
	return out
}

// refExtensionHook returns a schema hook that extends schemas of types
// implementing RefExtender with fields from registry. Problems are logged
// and leave the local schema unmodified.
func refExtensionHook(ctx context.Context, registry SchemaRegistry, logger *slog.Logger) SchemaHook {
	return func(t reflect.Type, schema *Schema) {
		ext, ok := refExtensionOf(t)
		if !ok {
			return
		}

		log := logger.With(
			slog.String("type", t.String()),
			slog.String("source", ext.Source),
			slog.String("schema", ext.Name),
		)

		if registry == nil {
			log.Warn("no schema registry configured, schema left unextended")
			return
		}

		remote, err := registry.ResolveSchema(ctx, ext.Source, ext.Name)
		if err != nil {
			log.Warn("remote schema unavailable, schema left unextended", slog.Any("error", err))
			return
		}

		if err := ExtendSchema(schema, remote, ext); err != nil {
			log.Warn("remote schema cannot be merged, schema left unextended", slog.Any("error", err))
		}
	}
}

func refExtensionOf(t reflect.Type) (RefExtension, bool) {
	if ext, ok := reflect.New(t).Interface().(RefExtender); ok {
		return ext.OpenAPIRef(), true
	}
	return RefExtension{}, false
}
