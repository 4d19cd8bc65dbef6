// Package arrowcol is the arrow-go columnar runtime. It emits Arrow IPC
// streams, Parquet files through the pqarrow bridge, and ndjson.
package arrowcol

import (
	"io"

	"github.com/apache/arrow-go/v18/arrow"

	"github.com/tabfetch/tabfetch/pkg/columnar"
	"github.com/tabfetch/tabfetch/pkg/schema"
	"github.com/tabfetch/tabfetch/pkg/taberrors"
)

// BackendName selects this runtime in configuration.
const BackendName = "arrow-go"

type backend struct{}

func init() {
	columnar.Register(backend{})
}

func (backend) Name() string { return BackendName }

func (backend) Supports(f columnar.Format) bool {
	switch f {
	case columnar.FormatArrowStream, columnar.FormatParquet, columnar.FormatNDJSON:
		return true
	}
	return false
}

func (backend) NewWriter(w io.Writer, s *schema.Schema, opts columnar.Options) (columnar.Writer, error) {
	switch opts.Format {
	case columnar.FormatArrowStream:
		return newStreamWriter(w, s)
	case columnar.FormatParquet:
		return newParquetWriter(w, s, opts)
	case columnar.FormatNDJSON:
		return columnar.NewNDJSONWriter(w, s, opts)
	default:
		return nil, taberrors.New(taberrors.ErrorTypeConfig, "format not supported by backend").
			WithDetail("backend", BackendName).
			WithDetail("format", string(opts.Format))
	}
}

// ArrowSchema maps a resource schema onto arrow types. Temporal kinds keep
// their day and second granularity, associations become lists of structs.
func ArrowSchema(s *schema.Schema) (*arrow.Schema, error) {
	fields := make([]arrow.Field, 0, s.Len())
	for _, spec := range s.Fields() {
		dt, err := dataType(spec)
		if err != nil {
			return nil, err
		}
		fields = append(fields, arrow.Field{Name: spec.Name, Type: dt, Nullable: spec.Nullable})
	}
	return arrow.NewSchema(fields, nil), nil
}

func dataType(spec schema.FieldSpec) (arrow.DataType, error) {
	if spec.IsAssociation() {
		elem := spec.Assoc.Element
		sub := make([]arrow.Field, 0, elem.Len())
		for _, es := range elem.Fields() {
			dt, err := dataType(es)
			if err != nil {
				return nil, err
			}
			sub = append(sub, arrow.Field{Name: es.Name, Type: dt, Nullable: es.Nullable})
		}
		return arrow.ListOf(arrow.StructOf(sub...)), nil
	}

	switch spec.Scalar {
	case schema.Integer:
		return arrow.PrimitiveTypes.Int64, nil
	case schema.Decimal:
		return arrow.PrimitiveTypes.Float64, nil
	case schema.Boolean:
		return arrow.FixedWidthTypes.Boolean, nil
	case schema.Text, schema.HtmlText:
		return arrow.BinaryTypes.String, nil
	case schema.Date:
		return arrow.FixedWidthTypes.Date32, nil
	case schema.DateTime:
		return &arrow.TimestampType{Unit: arrow.Second, TimeZone: "UTC"}, nil
	default:
		return nil, taberrors.New(taberrors.ErrorTypeSchema, "scalar kind has no arrow mapping").
			WithDetail("field", spec.Name).
			WithDetail("kind", string(spec.Scalar))
	}
}
