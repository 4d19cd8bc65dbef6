// Package schema defines the closed type system of the conversion engine
// and resolves a remote resource's schema synopsis into it.
//
// A resource's schema is resolved exactly once per run, from the loosely
// typed field declarations the service publishes, into an ordered, immutable
// sequence of typed field specs. Everything downstream (query validation,
// record parsing, columnar building) works off this one Schema value and
// never off the wire format again.
package schema

import (
	"github.com/tabfetch/tabfetch/pkg/taberrors"
)

// ScalarKind enumerates the scalar value kinds the engine understands.
type ScalarKind string

const (
	// Integer is a whole number, signed
	Integer ScalarKind = "integer"
	// Decimal is a fractional number (prices, percentages)
	Decimal ScalarKind = "decimal"
	// Boolean is a true/false flag
	Boolean ScalarKind = "boolean"
	// Text is free-form text, passed through untouched
	Text ScalarKind = "text"
	// HtmlText is markup text whose entities are unescaped on coercion
	HtmlText ScalarKind = "htmltext"
	// Date is a calendar date without time of day
	Date ScalarKind = "date"
	// DateTime is a calendar date with time of day, second precision
	DateTime ScalarKind = "datetime"
)

// IsTemporal reports whether the kind carries calendar semantics. Date-range
// filters are only valid against temporal fields.
func (k ScalarKind) IsTemporal() bool {
	return k == Date || k == DateTime
}

// Association describes a one-to-many nested relation: a named collection
// of sub-records sharing one element schema. Element schemas may themselves
// contain associations, but the service nests at most two levels deep.
type Association struct {
	// ElementName is the wire name of a single collection element
	// (e.g. "category" inside "categories").
	ElementName string
	// Element is the schema of one collection element.
	Element *Schema
	// Grouped marks associations that the wire format nests under a shared
	// container element in record payloads, as opposed to inline
	// one-to-many fields such as translated values.
	Grouped bool
}

// FieldSpec declares one field of a schema: its name, its kind (scalar or
// association) and whether a record may omit it.
type FieldSpec struct {
	Name     string
	Scalar   ScalarKind
	Assoc    *Association
	Nullable bool
}

// IsAssociation reports whether the field is a one-to-many relation rather
// than a scalar.
func (f FieldSpec) IsAssociation() bool {
	return f.Assoc != nil
}

// Schema is the resolved, ordered description of a resource type's fields.
// It is immutable after construction and safe for concurrent readers.
type Schema struct {
	resource string
	fields   []FieldSpec
	index    map[string]int
}

// New constructs a Schema from an ordered field list. Field names must be
// unique; a duplicate is a schema error.
func New(resource string, fields []FieldSpec) (*Schema, error) {
	index := make(map[string]int, len(fields))
	for i, f := range fields {
		if f.Name == "" {
			return nil, taberrors.New(taberrors.ErrorTypeSchema, "field with empty name").
				WithDetail("resource", resource).
				WithDetail("position", i)
		}
		if _, dup := index[f.Name]; dup {
			return nil, taberrors.New(taberrors.ErrorTypeSchema, "duplicate field name").
				WithDetail("resource", resource).
				WithDetail("field", f.Name)
		}
		index[f.Name] = i
	}
	return &Schema{resource: resource, fields: fields, index: index}, nil
}

// Resource returns the resource type identifier this schema was resolved for.
func (s *Schema) Resource() string {
	return s.resource
}

// Fields returns the ordered field specs. Callers must not mutate the
// returned slice.
func (s *Schema) Fields() []FieldSpec {
	return s.fields
}

// Field looks a field up by name.
func (s *Schema) Field(name string) (FieldSpec, bool) {
	i, ok := s.index[name]
	if !ok {
		return FieldSpec{}, false
	}
	return s.fields[i], true
}

// Len returns the number of fields.
func (s *Schema) Len() int {
	return len(s.fields)
}

// Project returns a schema restricted to the named fields, preserving this
// schema's field order. Unknown names are a query error; the caller is
// expected to have validated them already.
func (s *Schema) Project(names []string) (*Schema, error) {
	keep := make(map[string]bool, len(names))
	for _, n := range names {
		if _, ok := s.index[n]; !ok {
			return nil, taberrors.New(taberrors.ErrorTypeQuery, "unknown field in projection").
				WithDetail("resource", s.resource).
				WithDetail("field", n)
		}
		keep[n] = true
	}
	projected := make([]FieldSpec, 0, len(names))
	for _, f := range s.fields {
		if keep[f.Name] {
			projected = append(projected, f)
		}
	}
	return New(s.resource, projected)
}
