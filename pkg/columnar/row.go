package columnar

import (
	"github.com/tabfetch/tabfetch/pkg/record"
	"github.com/tabfetch/tabfetch/pkg/schema"
	"github.com/tabfetch/tabfetch/pkg/taberrors"
)

// Row holds one record's typed values in schema field order. A cell is nil
// for null, or int64, float64, bool, string, time.Time per the field's
// scalar kind. Association cells hold []Row over the element schema.
type Row []interface{}

// BindRow coerces one parsed tree into a typed row against its schema.
// Every raw literal must satisfy its field's grammar exactly; a literal
// that does not fails the run rather than degrading to null. The one
// exception is the zero-date sentinel, which a nullable temporal field
// maps to null.
func BindRow(tree *record.Tree, s *schema.Schema) (Row, error) {
	fields := s.Fields()
	row := make(Row, len(fields))
	for i, spec := range fields {
		v, ok := tree.Get(spec.Name)
		if !ok {
			if !spec.Nullable {
				return nil, bindErr(s, spec.Name, "required field missing from record")
			}
			continue
		}

		if spec.IsAssociation() {
			items, err := assocRows(v, spec, s)
			if err != nil {
				return nil, err
			}
			row[i] = items
			continue
		}

		if v.Kind != record.ScalarValue {
			return nil, bindErr(s, spec.Name, "scalar field holds structured value")
		}
		cell, err := bindScalar(v.Text, spec, s)
		if err != nil {
			return nil, err
		}
		row[i] = cell
	}
	return row, nil
}

// BindBatch coerces a page of trees in order.
func BindBatch(trees []*record.Tree, s *schema.Schema) ([]Row, error) {
	rows := make([]Row, 0, len(trees))
	for _, tree := range trees {
		row, err := BindRow(tree, s)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func assocRows(v record.Value, spec schema.FieldSpec, s *schema.Schema) ([]Row, error) {
	var trees []*record.Tree
	switch v.Kind {
	case record.ListValue:
		trees = v.List
	case record.RecordValue:
		trees = []*record.Tree{v.Record}
	default:
		return nil, bindErr(s, spec.Name, "association field holds scalar value")
	}

	rows := make([]Row, 0, len(trees))
	for _, t := range trees {
		row, err := BindRow(t, spec.Assoc.Element)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func bindScalar(text string, spec schema.FieldSpec, s *schema.Schema) (interface{}, error) {
	if spec.Scalar.IsTemporal() && schema.IsZeroDate(text) {
		if !spec.Nullable {
			return nil, bindErr(s, spec.Name, "zero-date sentinel in required field")
		}
		return nil, nil
	}
	// An empty literal in a nullable non-text field reads as null. Text
	// fields keep the empty string, it is a real value there.
	if text == "" && spec.Nullable && spec.Scalar != schema.Text && spec.Scalar != schema.HtmlText {
		return nil, nil
	}

	cell, err := spec.Scalar.Parse(text)
	if err != nil {
		return nil, taberrors.Wrap(err, taberrors.ErrorTypeCoercion, "field literal does not satisfy its kind").
			WithDetail("resource", s.Resource()).
			WithDetail("field", spec.Name).
			WithDetail("kind", string(spec.Scalar)).
			WithDetail("literal", text)
	}
	return cell, nil
}

func bindErr(s *schema.Schema, field, msg string) error {
	return taberrors.New(taberrors.ErrorTypeCoercion, msg).
		WithDetail("resource", s.Resource()).
		WithDetail("field", field)
}
