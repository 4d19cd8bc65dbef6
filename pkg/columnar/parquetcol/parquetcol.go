// Package parquetcol is the parquet-go columnar runtime. It emits Parquet
// files natively and ndjson, with no Arrow dependency.
package parquetcol

import (
	"io"

	"github.com/parquet-go/parquet-go"

	"github.com/tabfetch/tabfetch/pkg/columnar"
	"github.com/tabfetch/tabfetch/pkg/schema"
	"github.com/tabfetch/tabfetch/pkg/taberrors"
)

// BackendName selects this runtime in configuration.
const BackendName = "parquet-go"

type backend struct{}

func init() {
	columnar.Register(backend{})
}

func (backend) Name() string { return BackendName }

func (backend) Supports(f columnar.Format) bool {
	switch f {
	case columnar.FormatParquet, columnar.FormatNDJSON:
		return true
	}
	return false
}

func (backend) NewWriter(w io.Writer, s *schema.Schema, opts columnar.Options) (columnar.Writer, error) {
	switch opts.Format {
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

// ParquetSchema maps a resource schema onto a parquet group node.
// Temporal kinds use the date and millisecond timestamp logical types,
// associations become repeated groups.
func ParquetSchema(s *schema.Schema) (*parquet.Schema, error) {
	group, err := groupNode(s)
	if err != nil {
		return nil, err
	}
	return parquet.NewSchema(s.Resource(), group), nil
}

func groupNode(s *schema.Schema) (parquet.Group, error) {
	group := parquet.Group{}
	for _, spec := range s.Fields() {
		node, err := fieldNode(spec)
		if err != nil {
			return nil, err
		}
		group[spec.Name] = node
	}
	return group, nil
}

func fieldNode(spec schema.FieldSpec) (parquet.Node, error) {
	if spec.IsAssociation() {
		elem, err := groupNode(spec.Assoc.Element)
		if err != nil {
			return nil, err
		}
		node := parquet.List(elem)
		if spec.Nullable {
			node = parquet.Optional(node)
		}
		return node, nil
	}

	var node parquet.Node
	switch spec.Scalar {
	case schema.Integer:
		node = parquet.Int(64)
	case schema.Decimal:
		node = parquet.Leaf(parquet.DoubleType)
	case schema.Boolean:
		node = parquet.Leaf(parquet.BooleanType)
	case schema.Text, schema.HtmlText:
		node = parquet.String()
	case schema.Date:
		node = parquet.Date()
	case schema.DateTime:
		node = parquet.Timestamp(parquet.Millisecond)
	default:
		return nil, taberrors.New(taberrors.ErrorTypeSchema, "scalar kind has no parquet mapping").
			WithDetail("field", spec.Name).
			WithDetail("kind", string(spec.Scalar))
	}
	if spec.Nullable {
		node = parquet.Optional(node)
	}
	return node, nil
}
