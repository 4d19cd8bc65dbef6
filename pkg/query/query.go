// Package query builds validated, immutable query descriptors from user
// constraints.
//
// A Descriptor captures field selection, filters, pagination and ordering
// for one run. Construction goes through a Builder bound to a resolved
// schema; every referenced field is checked for existence and kind
// compatibility before any network activity, so a bad constraint fails the
// run up front rather than mid-export.
package query

import (
	"time"

	"github.com/tabfetch/tabfetch/pkg/schema"
	"github.com/tabfetch/tabfetch/pkg/taberrors"
)

// Direction orders a sorted fetch.
type Direction string

const (
	// Asc sorts ascending
	Asc Direction = "ASC"
	// Desc sorts descending
	Desc Direction = "DESC"
)

// Limit bounds the fetch to Count records starting at record Offset.
type Limit struct {
	Offset int
	Count  int
}

// Sort orders results by one field.
type Sort struct {
	Field     string
	Direction Direction
}

// Filter is a single field constraint. Exactly two implementations exist:
// DateRange and Membership.
type Filter interface {
	// Field returns the constrained field name.
	Field() string
}

// DateRange keeps records whose field value lies in the half-open interval
// [Low, High). The exclusive upper bound means two consecutive runs with
// adjoining ranges never see the same boundary row twice.
type DateRange struct {
	FieldName string
	Low       time.Time
	High      time.Time

	// Kind is the resolved kind of the field, recorded at build time so
	// the wire rendering knows the interval's granularity.
	Kind schema.ScalarKind
}

// Field implements Filter.
func (f DateRange) Field() string { return f.FieldName }

// Contains reports whether t falls inside [Low, High).
func (f DateRange) Contains(t time.Time) bool {
	return !t.Before(f.Low) && t.Before(f.High)
}

// Membership keeps records whose field value equals one of the literals.
// Literal order is the caller's; duplicates collapse to the first occurrence.
type Membership struct {
	FieldName string
	Literals  []string
}

// Field implements Filter.
func (f Membership) Field() string { return f.FieldName }

// Matches reports whether the literal value v is in the membership set.
func (f Membership) Matches(v string) bool {
	for _, l := range f.Literals {
		if l == v {
			return true
		}
	}
	return false
}

// Descriptor is an immutable description of one query. Build one with a
// Builder; the zero value selects everything with no constraints.
type Descriptor struct {
	selected []string
	filters  []Filter
	limit    *Limit
	sort     *Sort
}

// SelectedFields returns the selected field names, or nil when the query
// selects the full field set.
func (d *Descriptor) SelectedFields() []string { return d.selected }

// Filters returns the filters in the order they were added.
func (d *Descriptor) Filters() []Filter { return d.filters }

// Limit returns the pagination bound, or nil for an unbounded fetch.
func (d *Descriptor) Limit() *Limit { return d.limit }

// Sort returns the ordering, or nil for service-default order.
func (d *Descriptor) Sort() *Sort { return d.sort }

// Builder accumulates constraints and validates them against a schema.
type Builder struct {
	schema *schema.Schema
	desc   Descriptor
	err    error
}

// NewBuilder returns a Builder bound to the resolved schema.
func NewBuilder(s *schema.Schema) *Builder {
	return &Builder{schema: s}
}

// Select restricts the fetched fields. Association fields may be selected
// like any other field.
func (b *Builder) Select(fields ...string) *Builder {
	if b.err != nil {
		return b
	}
	for _, name := range fields {
		if _, ok := b.schema.Field(name); !ok {
			b.err = unknownField(b.schema, name)
			return b
		}
	}
	b.desc.selected = append(b.desc.selected, fields...)
	return b
}

// WhereDateRange adds a half-open [low, high) constraint on a temporal
// field. Constraining a non-temporal field is a query error.
func (b *Builder) WhereDateRange(field string, low, high time.Time) *Builder {
	if b.err != nil {
		return b
	}
	spec, ok := b.schema.Field(field)
	if !ok {
		b.err = unknownField(b.schema, field)
		return b
	}
	if spec.IsAssociation() || !spec.Scalar.IsTemporal() {
		b.err = taberrors.New(taberrors.ErrorTypeQuery, "date-range filter on non-temporal field").
			WithDetail("resource", b.schema.Resource()).
			WithDetail("field", field).
			WithDetail("expected_kind", "date or datetime").
			WithDetail("actual_kind", kindName(spec))
		return b
	}
	if !high.After(low) {
		b.err = taberrors.New(taberrors.ErrorTypeQuery, "empty date range").
			WithDetail("field", field)
		return b
	}
	b.desc.filters = append(b.desc.filters, DateRange{
		FieldName: field,
		Low:       low,
		High:      high,
		Kind:      spec.Scalar,
	})
	return b
}

// WhereIn adds a membership constraint. Literals are deduplicated with the
// caller's ordering preserved, and each literal must be representable in
// the field's scalar kind.
func (b *Builder) WhereIn(field string, literals ...string) *Builder {
	if b.err != nil {
		return b
	}
	spec, ok := b.schema.Field(field)
	if !ok {
		b.err = unknownField(b.schema, field)
		return b
	}
	if spec.IsAssociation() {
		b.err = taberrors.New(taberrors.ErrorTypeQuery, "membership filter on association field").
			WithDetail("resource", b.schema.Resource()).
			WithDetail("field", field)
		return b
	}
	if len(literals) == 0 {
		b.err = taberrors.New(taberrors.ErrorTypeQuery, "membership filter with no values").
			WithDetail("field", field)
		return b
	}

	seen := make(map[string]bool, len(literals))
	deduped := make([]string, 0, len(literals))
	for _, l := range literals {
		if seen[l] {
			continue
		}
		if _, err := spec.Scalar.Parse(l); err != nil {
			b.err = taberrors.New(taberrors.ErrorTypeQuery, "membership literal not representable in field kind").
				WithDetail("resource", b.schema.Resource()).
				WithDetail("field", field).
				WithDetail("expected_kind", string(spec.Scalar)).
				WithDetail("value", l)
			return b
		}
		seen[l] = true
		deduped = append(deduped, l)
	}
	b.desc.filters = append(b.desc.filters, Membership{FieldName: field, Literals: deduped})
	return b
}

// WithLimit bounds the fetch to count records starting at offset.
func (b *Builder) WithLimit(offset, count int) *Builder {
	if b.err != nil {
		return b
	}
	if offset < 0 || count <= 0 {
		b.err = taberrors.New(taberrors.ErrorTypeQuery, "limit must have non-negative offset and positive count").
			WithDetail("offset", offset).
			WithDetail("count", count)
		return b
	}
	b.desc.limit = &Limit{Offset: offset, Count: count}
	return b
}

// OrderBy sorts results by the named field.
func (b *Builder) OrderBy(field string, dir Direction) *Builder {
	if b.err != nil {
		return b
	}
	spec, ok := b.schema.Field(field)
	if !ok {
		b.err = unknownField(b.schema, field)
		return b
	}
	if spec.IsAssociation() {
		b.err = taberrors.New(taberrors.ErrorTypeQuery, "cannot sort by association field").
			WithDetail("field", field)
		return b
	}
	b.desc.sort = &Sort{Field: field, Direction: dir}
	return b
}

// Build returns the immutable descriptor, or the first validation error
// encountered while adding constraints.
func (b *Builder) Build() (*Descriptor, error) {
	if b.err != nil {
		return nil, b.err
	}
	d := b.desc
	return &d, nil
}

func unknownField(s *schema.Schema, name string) error {
	return taberrors.New(taberrors.ErrorTypeQuery, "unknown field").
		WithDetail("resource", s.Resource()).
		WithDetail("field", name)
}

func kindName(f schema.FieldSpec) string {
	if f.IsAssociation() {
		return "association"
	}
	return string(f.Scalar)
}
