package parquetcol

import (
	"io"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress"

	"github.com/tabfetch/tabfetch/pkg/columnar"
	"github.com/tabfetch/tabfetch/pkg/schema"
	"github.com/tabfetch/tabfetch/pkg/taberrors"
)

// parquetWriter encodes rows as generic map records. Each WriteBatch call
// closes one row group so the file's chunking mirrors the fetch pages.
type parquetWriter struct {
	s      *schema.Schema
	gw     *parquet.GenericWriter[map[string]interface{}]
	closed bool
}

func newParquetWriter(w io.Writer, s *schema.Schema, opts columnar.Options) (columnar.Writer, error) {
	ps, err := ParquetSchema(s)
	if err != nil {
		return nil, err
	}
	codec, err := parquetCodec(opts.Compression)
	if err != nil {
		return nil, err
	}
	gw := parquet.NewGenericWriter[map[string]interface{}](w, ps, parquet.Compression(codec))
	return &parquetWriter{s: s, gw: gw}, nil
}

func parquetCodec(name string) (compress.Codec, error) {
	switch name {
	case "", "none", "uncompressed":
		return &parquet.Uncompressed, nil
	case "snappy":
		return &parquet.Snappy, nil
	case "gzip":
		return &parquet.Gzip, nil
	case "zstd":
		return &parquet.Zstd, nil
	case "brotli":
		return &parquet.Brotli, nil
	case "lz4":
		return &parquet.Lz4Raw, nil
	default:
		return nil, taberrors.New(taberrors.ErrorTypeConfig, "compression not supported by parquet").
			WithDetail("compression", name)
	}
}

func (pw *parquetWriter) WriteBatch(rows []columnar.Row) error {
	if pw.closed {
		return taberrors.New(taberrors.ErrorTypeWrite, "write after close")
	}
	if len(rows) == 0 {
		return nil
	}

	recs := make([]map[string]interface{}, 0, len(rows))
	for _, row := range rows {
		rec, err := rowMap(row, pw.s)
		if err != nil {
			return err
		}
		recs = append(recs, rec)
	}
	if _, err := pw.gw.Write(recs); err != nil {
		return taberrors.Wrap(err, taberrors.ErrorTypeWrite, "write parquet rows").
			WithDetail("rows", len(rows))
	}
	if err := pw.gw.Flush(); err != nil {
		return taberrors.Wrap(err, taberrors.ErrorTypeWrite, "flush parquet row group")
	}
	return nil
}

// rowMap renders one typed row as a generic record. Temporal cells become
// the physical values their logical types expect, null cells are omitted.
func rowMap(row columnar.Row, s *schema.Schema) (map[string]interface{}, error) {
	if len(row) != s.Len() {
		return nil, taberrors.New(taberrors.ErrorTypeWrite, "row width does not match schema").
			WithDetail("expected_columns", s.Len()).
			WithDetail("actual_columns", len(row))
	}
	rec := make(map[string]interface{}, len(row))
	for i, spec := range s.Fields() {
		cell := row[i]
		if cell == nil {
			continue
		}
		if spec.IsAssociation() {
			items := cell.([]columnar.Row)
			sub := make([]map[string]interface{}, 0, len(items))
			for _, item := range items {
				m, err := rowMap(item, spec.Assoc.Element)
				if err != nil {
					return nil, err
				}
				sub = append(sub, m)
			}
			rec[spec.Name] = sub
			continue
		}
		if ts, ok := cell.(time.Time); ok {
			switch spec.Scalar {
			case schema.Date:
				cell = int32(ts.Unix() / 86400)
			case schema.DateTime:
				cell = ts.UnixMilli()
			}
		}
		rec[spec.Name] = cell
	}
	return rec, nil
}

func (pw *parquetWriter) Close() error {
	if pw.closed {
		return nil
	}
	pw.closed = true
	if err := pw.gw.Close(); err != nil {
		return taberrors.Wrap(err, taberrors.ErrorTypeWrite, "close parquet file")
	}
	return nil
}
