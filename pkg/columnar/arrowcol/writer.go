package arrowcol

import (
	"io"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"

	"github.com/tabfetch/tabfetch/pkg/columnar"
	"github.com/tabfetch/tabfetch/pkg/schema"
	"github.com/tabfetch/tabfetch/pkg/taberrors"
)

// recordSink receives one arrow record per batch.
type recordSink interface {
	Write(arrow.Record) error
	Close() error
}

// batchWriter builds one arrow record per WriteBatch call and hands it to
// a sink. The ipc stream and pqarrow sinks share it.
type batchWriter struct {
	s       *schema.Schema
	arrs    *arrow.Schema
	builder *array.RecordBuilder
	sink    recordSink
	closed  bool
}

func newBatchWriter(s *schema.Schema, arrs *arrow.Schema, sink recordSink) *batchWriter {
	return &batchWriter{
		s:       s,
		arrs:    arrs,
		builder: array.NewRecordBuilder(memory.NewGoAllocator(), arrs),
		sink:    sink,
	}
}

func newStreamWriter(w io.Writer, s *schema.Schema) (columnar.Writer, error) {
	arrs, err := ArrowSchema(s)
	if err != nil {
		return nil, err
	}
	return newBatchWriter(s, arrs, &streamSink{w: ipc.NewWriter(w, ipc.WithSchema(arrs))}), nil
}

type streamSink struct {
	w *ipc.Writer
}

func (ss *streamSink) Write(rec arrow.Record) error { return ss.w.Write(rec) }
func (ss *streamSink) Close() error                 { return ss.w.Close() }

func newParquetWriter(w io.Writer, s *schema.Schema, opts columnar.Options) (columnar.Writer, error) {
	arrs, err := ArrowSchema(s)
	if err != nil {
		return nil, err
	}
	codec, err := parquetCodec(opts.Compression)
	if err != nil {
		return nil, err
	}
	props := parquet.NewWriterProperties(parquet.WithCompression(codec))
	fw, err := pqarrow.NewFileWriter(arrs, w, props, pqarrow.DefaultWriterProps())
	if err != nil {
		return nil, taberrors.Wrap(err, taberrors.ErrorTypeWrite, "open parquet writer")
	}
	return newBatchWriter(s, arrs, fw), nil
}

func parquetCodec(name string) (compress.Compression, error) {
	switch name {
	case "", "none", "uncompressed":
		return compress.Codecs.Uncompressed, nil
	case "snappy":
		return compress.Codecs.Snappy, nil
	case "gzip":
		return compress.Codecs.Gzip, nil
	case "zstd":
		return compress.Codecs.Zstd, nil
	case "brotli":
		return compress.Codecs.Brotli, nil
	case "lz4":
		return compress.Codecs.Lz4Raw, nil
	default:
		return compress.Codecs.Uncompressed, taberrors.New(taberrors.ErrorTypeConfig, "compression not supported by parquet").
			WithDetail("compression", name)
	}
}

func (bw *batchWriter) WriteBatch(rows []columnar.Row) error {
	if bw.closed {
		return taberrors.New(taberrors.ErrorTypeWrite, "write after close")
	}
	if len(rows) == 0 {
		return nil
	}

	fields := bw.s.Fields()
	for _, row := range rows {
		if len(row) != len(fields) {
			return rowWidthErr(len(fields), len(row))
		}
	}
	for _, row := range rows {
		for i, spec := range fields {
			if err := appendCell(bw.builder.Field(i), row[i], spec); err != nil {
				return err
			}
		}
	}

	rec := bw.builder.NewRecord()
	defer rec.Release()
	if err := bw.sink.Write(rec); err != nil {
		return taberrors.Wrap(err, taberrors.ErrorTypeWrite, "write record batch").
			WithDetail("rows", len(rows))
	}
	return nil
}

func (bw *batchWriter) Close() error {
	if bw.closed {
		return nil
	}
	bw.closed = true
	bw.builder.Release()
	if err := bw.sink.Close(); err != nil {
		return taberrors.Wrap(err, taberrors.ErrorTypeWrite, "close columnar output")
	}
	return nil
}

func appendCell(b array.Builder, cell interface{}, spec schema.FieldSpec) error {
	if cell == nil {
		b.AppendNull()
		return nil
	}

	if spec.IsAssociation() {
		lb, ok := b.(*array.ListBuilder)
		if !ok {
			return cellErr(spec, cell)
		}
		items, ok := cell.([]columnar.Row)
		if !ok {
			return cellErr(spec, cell)
		}
		lb.Append(true)
		sb := lb.ValueBuilder().(*array.StructBuilder)
		elemFields := spec.Assoc.Element.Fields()
		for _, item := range items {
			if len(item) != len(elemFields) {
				return rowWidthErr(len(elemFields), len(item))
			}
			sb.Append(true)
			for j, es := range elemFields {
				if err := appendCell(sb.FieldBuilder(j), item[j], es); err != nil {
					return err
				}
			}
		}
		return nil
	}

	switch vb := b.(type) {
	case *array.Int64Builder:
		v, ok := cell.(int64)
		if !ok {
			return cellErr(spec, cell)
		}
		vb.Append(v)
	case *array.Float64Builder:
		v, ok := cell.(float64)
		if !ok {
			return cellErr(spec, cell)
		}
		vb.Append(v)
	case *array.BooleanBuilder:
		v, ok := cell.(bool)
		if !ok {
			return cellErr(spec, cell)
		}
		vb.Append(v)
	case *array.StringBuilder:
		v, ok := cell.(string)
		if !ok {
			return cellErr(spec, cell)
		}
		vb.Append(v)
	case *array.Date32Builder:
		v, ok := cell.(time.Time)
		if !ok {
			return cellErr(spec, cell)
		}
		vb.Append(arrow.Date32FromTime(v))
	case *array.TimestampBuilder:
		v, ok := cell.(time.Time)
		if !ok {
			return cellErr(spec, cell)
		}
		vb.Append(arrow.Timestamp(v.Unix()))
	default:
		return taberrors.New(taberrors.ErrorTypeWrite, "unsupported arrow builder").
			WithDetail("field", spec.Name)
	}
	return nil
}

func rowWidthErr(want, got int) error {
	return taberrors.New(taberrors.ErrorTypeWrite, "row width does not match schema").
		WithDetail("expected_columns", want).
		WithDetail("actual_columns", got)
}

func cellErr(spec schema.FieldSpec, cell interface{}) error {
	return taberrors.Newf(taberrors.ErrorTypeWrite, "cell type %T does not match column", cell).
		WithDetail("field", spec.Name).
		WithDetail("kind", string(spec.Scalar))
}
