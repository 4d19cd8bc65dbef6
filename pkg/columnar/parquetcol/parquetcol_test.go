package parquetcol

import (
	"bytes"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabfetch/tabfetch/pkg/columnar"
	"github.com/tabfetch/tabfetch/pkg/schema"
	"github.com/tabfetch/tabfetch/pkg/taberrors"
)

func testSchema(t *testing.T) *schema.Schema {
	t.Helper()
	catElem, err := schema.New("category", []schema.FieldSpec{
		{Name: "id", Scalar: schema.Integer},
	})
	require.NoError(t, err)

	s, err := schema.New("product", []schema.FieldSpec{
		{Name: "id", Scalar: schema.Integer},
		{Name: "price", Scalar: schema.Decimal, Nullable: true},
		{Name: "active", Scalar: schema.Boolean, Nullable: true},
		{Name: "date_add", Scalar: schema.DateTime, Nullable: true},
		{Name: "categories", Nullable: true, Assoc: &schema.Association{ElementName: "category", Element: catElem, Grouped: true}},
	})
	require.NoError(t, err)
	return s
}

func TestParquetSchema(t *testing.T) {
	ps, err := ParquetSchema(testSchema(t))
	require.NoError(t, err)
	assert.Equal(t, "product", ps.Name())
	require.Len(t, ps.Fields(), 5)

	byName := map[string]parquet.Field{}
	for _, f := range ps.Fields() {
		byName[f.Name()] = f
	}
	assert.False(t, byName["id"].Optional())
	assert.True(t, byName["price"].Optional())
}

func TestRoundTrip(t *testing.T) {
	s := testSchema(t)
	b, err := columnar.Lookup(BackendName)
	require.NoError(t, err)
	require.True(t, b.Supports(columnar.FormatParquet))
	require.False(t, b.Supports(columnar.FormatArrowStream))

	var buf bytes.Buffer
	w, err := b.NewWriter(&buf, s, columnar.Options{Format: columnar.FormatParquet, Compression: "snappy"})
	require.NoError(t, err)

	rows := []columnar.Row{
		{int64(7), 19.9, true, time.Date(2023, 4, 1, 10, 30, 0, 0, time.UTC), []columnar.Row{{int64(2)}, {int64(5)}}},
		{int64(8), nil, nil, nil, nil},
	}
	require.NoError(t, w.WriteBatch(rows))
	require.NoError(t, w.Close())

	f, err := parquet.OpenFile(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	assert.EqualValues(t, 2, f.NumRows())

	r := parquet.NewGenericReader[map[string]interface{}](f, f.Schema())
	defer r.Close()
	out := make([]map[string]interface{}, 2)
	for i := range out {
		out[i] = map[string]interface{}{}
	}
	n, err := r.Read(out)
	if err != nil {
		require.Equal(t, 2, n)
	}
	require.Equal(t, 2, n)
	assert.EqualValues(t, 7, out[0]["id"])
}

func TestAllNullBatch(t *testing.T) {
	s, err := schema.New("sparse", []schema.FieldSpec{
		{Name: "price", Scalar: schema.Decimal, Nullable: true},
		{Name: "active", Scalar: schema.Boolean, Nullable: true},
		{Name: "note", Scalar: schema.Text, Nullable: true},
	})
	require.NoError(t, err)

	b, err := columnar.Lookup(BackendName)
	require.NoError(t, err)

	var buf bytes.Buffer
	w, err := b.NewWriter(&buf, s, columnar.Options{Format: columnar.FormatParquet})
	require.NoError(t, err)
	rows := []columnar.Row{{nil, nil, nil}, {nil, nil, nil}, {nil, nil, nil}}
	require.NoError(t, w.WriteBatch(rows))
	require.NoError(t, w.Close())

	f, err := parquet.OpenFile(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	require.EqualValues(t, 3, f.NumRows())

	r := parquet.NewGenericReader[map[string]interface{}](f, f.Schema())
	defer r.Close()
	out := make([]map[string]interface{}, 3)
	for i := range out {
		out[i] = map[string]interface{}{}
	}
	n, _ := r.Read(out)
	require.Equal(t, 3, n)
	for _, m := range out {
		assert.Nil(t, m["price"])
		assert.Nil(t, m["active"])
		assert.Nil(t, m["note"])
	}
}

func TestRowGroupPerBatch(t *testing.T) {
	s := testSchema(t)
	b, err := columnar.Lookup(BackendName)
	require.NoError(t, err)

	var buf bytes.Buffer
	w, err := b.NewWriter(&buf, s, columnar.Options{Format: columnar.FormatParquet})
	require.NoError(t, err)
	require.NoError(t, w.WriteBatch([]columnar.Row{{int64(1), nil, nil, nil, nil}}))
	require.NoError(t, w.WriteBatch([]columnar.Row{{int64(2), nil, nil, nil, nil}}))
	require.NoError(t, w.Close())

	f, err := parquet.OpenFile(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	assert.Len(t, f.RowGroups(), 2)
}

func TestRowWidthMismatch(t *testing.T) {
	s := testSchema(t)
	b, err := columnar.Lookup(BackendName)
	require.NoError(t, err)

	var buf bytes.Buffer
	w, err := b.NewWriter(&buf, s, columnar.Options{Format: columnar.FormatParquet})
	require.NoError(t, err)
	defer w.Close()

	err = w.WriteBatch([]columnar.Row{{int64(7), 19.9}})
	require.Error(t, err)
	var te *taberrors.Error
	require.ErrorAs(t, err, &te)
	assert.Equal(t, taberrors.ErrorTypeWrite, te.Type)
	assert.Equal(t, 5, te.Detail("expected_columns"))
	assert.Equal(t, 2, te.Detail("actual_columns"))
}

func TestUnsupportedFormat(t *testing.T) {
	s := testSchema(t)
	b, err := columnar.Lookup(BackendName)
	require.NoError(t, err)

	var buf bytes.Buffer
	_, err = b.NewWriter(&buf, s, columnar.Options{Format: columnar.FormatArrowStream})
	require.Error(t, err)
	require.Error(t, columnar.Validate(b, columnar.FormatArrowStream))
	require.NoError(t, columnar.Validate(b, columnar.FormatNDJSON))
}
