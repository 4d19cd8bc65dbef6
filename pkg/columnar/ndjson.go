package columnar

import (
	"bufio"
	"io"
	"time"

	"github.com/goccy/go-json"

	"github.com/tabfetch/tabfetch/pkg/compression"
	"github.com/tabfetch/tabfetch/pkg/schema"
	"github.com/tabfetch/tabfetch/pkg/taberrors"
)

// ndjsonWriter emits one JSON object per row, fields in schema order.
// Both backends delegate their ndjson support here so the line format
// stays identical regardless of runtime.
type ndjsonWriter struct {
	s      *schema.Schema
	codec  io.WriteCloser
	buf    *bufio.Writer
	closed bool
}

// NewNDJSONWriter opens a line-oriented writer, optionally wrapped in a
// stream codec.
func NewNDJSONWriter(w io.Writer, s *schema.Schema, opts Options) (Writer, error) {
	algo, err := compression.Parse(opts.Compression)
	if err != nil {
		return nil, err
	}
	codec, err := algo.NewWriter(w)
	if err != nil {
		return nil, err
	}
	return &ndjsonWriter{s: s, codec: codec, buf: bufio.NewWriter(codec)}, nil
}

func (nw *ndjsonWriter) WriteBatch(rows []Row) error {
	if nw.closed {
		return taberrors.New(taberrors.ErrorTypeWrite, "write after close")
	}
	for _, row := range rows {
		if err := nw.writeRow(row, nw.s); err != nil {
			return err
		}
		if err := nw.buf.WriteByte('\n'); err != nil {
			return taberrors.Wrap(err, taberrors.ErrorTypeWrite, "write ndjson line")
		}
	}
	return nil
}

func (nw *ndjsonWriter) writeRow(row Row, s *schema.Schema) error {
	if len(row) != s.Len() {
		return taberrors.New(taberrors.ErrorTypeWrite, "row width does not match schema").
			WithDetail("expected_columns", s.Len()).
			WithDetail("actual_columns", len(row))
	}
	nw.buf.WriteByte('{')
	for i, spec := range s.Fields() {
		if i > 0 {
			nw.buf.WriteByte(',')
		}
		name, err := json.Marshal(spec.Name)
		if err != nil {
			return taberrors.Wrap(err, taberrors.ErrorTypeWrite, "encode field name")
		}
		nw.buf.Write(name)
		nw.buf.WriteByte(':')
		if err := nw.writeCell(row[i], spec); err != nil {
			return err
		}
	}
	nw.buf.WriteByte('}')
	return nil
}

func (nw *ndjsonWriter) writeCell(cell interface{}, spec schema.FieldSpec) error {
	if cell == nil {
		_, err := nw.buf.WriteString("null")
		return err
	}
	if spec.IsAssociation() {
		items := cell.([]Row)
		nw.buf.WriteByte('[')
		for i, item := range items {
			if i > 0 {
				nw.buf.WriteByte(',')
			}
			if err := nw.writeRow(item, spec.Assoc.Element); err != nil {
				return err
			}
		}
		nw.buf.WriteByte(']')
		return nil
	}

	if ts, ok := cell.(time.Time); ok {
		layout := schema.DateTimeLayout
		if spec.Scalar == schema.Date {
			layout = schema.DateLayout
		}
		cell = ts.Format(layout)
	}
	enc, err := json.Marshal(cell)
	if err != nil {
		return taberrors.Wrap(err, taberrors.ErrorTypeWrite, "encode field value").
			WithDetail("field", spec.Name)
	}
	_, err = nw.buf.Write(enc)
	return err
}

func (nw *ndjsonWriter) Close() error {
	if nw.closed {
		return nil
	}
	nw.closed = true
	if err := nw.buf.Flush(); err != nil {
		return taberrors.Wrap(err, taberrors.ErrorTypeWrite, "flush ndjson stream")
	}
	if err := nw.codec.Close(); err != nil {
		return taberrors.Wrap(err, taberrors.ErrorTypeWrite, "close compression stream")
	}
	return nil
}
