package columnar

import (
	"strings"

	"github.com/tabfetch/tabfetch/pkg/schema"
)

// Flattener rewrites a schema one level deep: every association field is
// replaced by its element's fields, prefixed with the association name, and
// each source row explodes into the cartesian product of its association
// elements. Associations nested inside an element are not exploded further;
// they stay nested list columns on the exploded rows. An empty association
// contributes a single row with nulls in its columns, so no source row ever
// disappears.
type Flattener struct {
	src *schema.Schema
	dst *schema.Schema
}

// NewFlattener builds the flattened schema up front so invalid shapes fail
// before any rows flow.
func NewFlattener(s *schema.Schema) (*Flattener, error) {
	var flat []schema.FieldSpec
	for _, spec := range s.Fields() {
		if !spec.IsAssociation() {
			flat = append(flat, spec)
			continue
		}
		for _, sub := range spec.Assoc.Element.Fields() {
			if sub.IsAssociation() {
				// Explosion stops at one level: an association inside
				// the element carries through as a nested list column.
				flat = append(flat, schema.FieldSpec{
					Name:     flatName(spec.Name, sub.Name),
					Nullable: true,
					Assoc:    sub.Assoc,
				})
				continue
			}
			flat = append(flat, schema.FieldSpec{
				Name:     flatName(spec.Name, sub.Name),
				Scalar:   sub.Scalar,
				Nullable: true,
			})
		}
	}
	dst, err := schema.New(s.Resource(), flat)
	if err != nil {
		return nil, err
	}
	return &Flattener{src: s, dst: dst}, nil
}

// Schema returns the flattened schema.
func (f *Flattener) Schema() *schema.Schema {
	return f.dst
}

// flatName joins association and element field names, dropping the
// attribute and text markers the wire model uses.
func flatName(assoc, sub string) string {
	sub = strings.TrimPrefix(sub, "@")
	sub = strings.TrimPrefix(sub, "#")
	return assoc + "_" + sub
}

// Explode maps one source row to its flattened rows, in element order.
func (f *Flattener) Explode(row Row) []Row {
	out := []Row{nil}
	out[0] = make(Row, 0, f.dst.Len())

	for i, spec := range f.src.Fields() {
		if !spec.IsAssociation() {
			for j := range out {
				out[j] = append(out[j], row[i])
			}
			continue
		}

		width := spec.Assoc.Element.Len()
		items, _ := row[i].([]Row)
		if len(items) == 0 {
			nulls := make(Row, width)
			for j := range out {
				out[j] = append(out[j], nulls...)
			}
			continue
		}

		next := make([]Row, 0, len(out)*len(items))
		for _, prefix := range out {
			for _, item := range items {
				r := make(Row, len(prefix), len(prefix)+width)
				copy(r, prefix)
				next = append(next, append(r, item...))
			}
		}
		out = next
	}
	return out
}

// ExplodeBatch flattens a batch, preserving source row order.
func (f *Flattener) ExplodeBatch(rows []Row) []Row {
	out := make([]Row, 0, len(rows))
	for _, row := range rows {
		out = append(out, f.Explode(row)...)
	}
	return out
}
