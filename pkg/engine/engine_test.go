package engine

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabfetch/tabfetch/pkg/columnar"
	"github.com/tabfetch/tabfetch/pkg/query"
	"github.com/tabfetch/tabfetch/pkg/schema"
	"github.com/tabfetch/tabfetch/pkg/taberrors"
)

// ndjsonBackend keeps engine tests independent of the real runtimes.
type ndjsonBackend struct{}

func (ndjsonBackend) Name() string                     { return "test-ndjson" }
func (ndjsonBackend) Supports(f columnar.Format) bool  { return f == columnar.FormatNDJSON }
func (ndjsonBackend) NewWriter(w io.Writer, s *schema.Schema, opts columnar.Options) (columnar.Writer, error) {
	return columnar.NewNDJSONWriter(w, s, opts)
}

// fakeService serves sequential records as JSON pages.
type fakeService struct {
	total int

	mu          sync.Mutex
	inflight    int
	maxInflight int
	calls       int

	// blockFrom stalls pages at or past this offset until the context is
	// canceled. Negative disables stalling.
	blockFrom int

	// badFrom emits an unparseable id literal for records at or past this
	// offset. Negative disables it.
	badFrom int
}

func newFakeService(total int) *fakeService {
	return &fakeService{total: total, blockFrom: -1, badFrom: -1}
}

func (f *fakeService) FetchPage(ctx context.Context, resource string, params []query.Param) ([]byte, error) {
	offset, count := windowOf(params)

	f.mu.Lock()
	f.calls++
	f.inflight++
	if f.inflight > f.maxInflight {
		f.maxInflight = f.inflight
	}
	blocked := f.blockFrom >= 0 && offset >= f.blockFrom
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.inflight--
		f.mu.Unlock()
	}()

	if blocked {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	var sb strings.Builder
	sb.WriteString(`[`)
	n := 0
	for i := offset; i < f.total && n < count; i++ {
		if n > 0 {
			sb.WriteString(",")
		}
		if f.badFrom >= 0 && i >= f.badFrom {
			sb.WriteString(`{"id": "N/A"}`)
		} else {
			fmt.Fprintf(&sb, `{"id": %d}`, i+1)
		}
		n++
	}
	sb.WriteString(`]`)
	return []byte(sb.String()), nil
}

func windowOf(params []query.Param) (offset, count int) {
	for _, p := range params {
		if p.Key != "limit" {
			continue
		}
		parts := strings.Split(p.Value, ",")
		if len(parts) == 2 {
			offset, _ = strconv.Atoi(parts[0])
			count, _ = strconv.Atoi(parts[1])
		} else {
			count, _ = strconv.Atoi(parts[0])
		}
	}
	return offset, count
}

func idSchema(t *testing.T) *schema.Schema {
	t.Helper()
	s, err := schema.New("items", []schema.FieldSpec{
		{Name: "id", Scalar: schema.Integer},
	})
	require.NoError(t, err)
	return s
}

func emptyDescriptor(t *testing.T, s *schema.Schema) *query.Descriptor {
	t.Helper()
	desc, err := query.NewBuilder(s).Build()
	require.NoError(t, err)
	return desc
}

func outputIDs(t *testing.T, buf *bytes.Buffer) []string {
	t.Helper()
	var ids []string
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		ids = append(ids, strings.TrimSuffix(strings.TrimPrefix(line, `{"id":`), "}"))
	}
	return ids
}

func TestRunMultiplePages(t *testing.T) {
	s := idSchema(t)
	svc := newFakeService(25)
	e, err := New(svc, 10, 2)
	require.NoError(t, err)

	var buf bytes.Buffer
	summary, err := e.Run(context.Background(), "items", s, emptyDescriptor(t, s), Target{
		Backend: ndjsonBackend{},
		Options: columnar.Options{Format: columnar.FormatNDJSON},
		Out:     &buf,
	})
	require.NoError(t, err)
	assert.EqualValues(t, 25, summary.RowsWritten)
	assert.EqualValues(t, 3, summary.BatchesFlushed)
	assert.EqualValues(t, int64(buf.Len()), summary.BytesWritten)

	ids := outputIDs(t, &buf)
	require.Len(t, ids, 25)
	assert.Equal(t, "1", ids[0])
	assert.Equal(t, "25", ids[24], "page order is preserved")
	for i, id := range ids {
		require.Equal(t, strconv.Itoa(i+1), id)
	}
}

func TestRunExactPageBoundary(t *testing.T) {
	s := idSchema(t)
	svc := newFakeService(20)
	e, err := New(svc, 10, 2)
	require.NoError(t, err)

	var buf bytes.Buffer
	summary, err := e.Run(context.Background(), "items", s, emptyDescriptor(t, s), Target{
		Backend: ndjsonBackend{},
		Options: columnar.Options{Format: columnar.FormatNDJSON},
		Out:     &buf,
	})
	require.NoError(t, err)
	assert.EqualValues(t, 20, summary.RowsWritten)
	assert.Len(t, outputIDs(t, &buf), 20)
}

func TestRunWithLimit(t *testing.T) {
	s := idSchema(t)
	svc := newFakeService(100)
	e, err := New(svc, 5, 2)
	require.NoError(t, err)

	desc, err := query.NewBuilder(s).WithLimit(10, 12).Build()
	require.NoError(t, err)

	var buf bytes.Buffer
	summary, err := e.Run(context.Background(), "items", s, desc, Target{
		Backend: ndjsonBackend{},
		Options: columnar.Options{Format: columnar.FormatNDJSON},
		Out:     &buf,
	})
	require.NoError(t, err)
	assert.EqualValues(t, 12, summary.RowsWritten)

	ids := outputIDs(t, &buf)
	require.Len(t, ids, 12)
	assert.Equal(t, "11", ids[0])
	assert.Equal(t, "22", ids[11])
}

func TestRunEmptyResource(t *testing.T) {
	s := idSchema(t)
	svc := newFakeService(0)
	e, err := New(svc, 10, 2)
	require.NoError(t, err)

	var buf bytes.Buffer
	summary, err := e.Run(context.Background(), "items", s, emptyDescriptor(t, s), Target{
		Backend: ndjsonBackend{},
		Options: columnar.Options{Format: columnar.FormatNDJSON},
		Out:     &buf,
	})
	require.NoError(t, err)
	assert.Zero(t, summary.RowsWritten)
	assert.Zero(t, summary.BatchesFlushed)
}

func TestRunPrefetchBounded(t *testing.T) {
	s := idSchema(t)
	svc := newFakeService(200)
	e, err := New(svc, 10, 3)
	require.NoError(t, err)

	var buf bytes.Buffer
	_, err = e.Run(context.Background(), "items", s, emptyDescriptor(t, s), Target{
		Backend: ndjsonBackend{},
		Options: columnar.Options{Format: columnar.FormatNDJSON},
		Out:     &buf,
	})
	require.NoError(t, err)
	assert.LessOrEqual(t, svc.maxInflight, 3)
}

func TestRunCancellationAtPageBoundary(t *testing.T) {
	s := idSchema(t)
	svc := newFakeService(100)
	svc.blockFrom = 10
	e, err := New(svc, 10, 1)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	var buf bytes.Buffer
	summary, err := e.Run(ctx, "items", s, emptyDescriptor(t, s), Target{
		Backend: ndjsonBackend{},
		Options: columnar.Options{Format: columnar.FormatNDJSON},
		Out:     &buf,
	})
	require.Error(t, err)
	assert.EqualValues(t, 10, summary.RowsWritten, "flushed pages survive cancellation")
	assert.Len(t, outputIDs(t, &buf), 10)
}

func TestRunCoercionFailureStopsRun(t *testing.T) {
	s := idSchema(t)
	svc := newFakeService(30)
	svc.badFrom = 10
	e, err := New(svc, 10, 1)
	require.NoError(t, err)

	var buf bytes.Buffer
	summary, err := e.Run(context.Background(), "items", s, emptyDescriptor(t, s), Target{
		Backend: ndjsonBackend{},
		Options: columnar.Options{Format: columnar.FormatNDJSON},
		Out:     &buf,
	})
	require.Error(t, err)
	assert.True(t, taberrors.IsType(err, taberrors.ErrorTypeCoercion))
	assert.EqualValues(t, 10, summary.RowsWritten, "earlier pages remain flushed")

	ids := outputIDs(t, &buf)
	require.Len(t, ids, 10, "no row from the failing page is written")
	assert.Equal(t, "10", ids[9])
}

func TestRunUnsupportedPairing(t *testing.T) {
	s := idSchema(t)
	svc := newFakeService(1)
	e, err := New(svc, 10, 2)
	require.NoError(t, err)

	var buf bytes.Buffer
	_, err = e.Run(context.Background(), "items", s, emptyDescriptor(t, s), Target{
		Backend: ndjsonBackend{},
		Options: columnar.Options{Format: columnar.FormatParquet},
		Out:     &buf,
	})
	require.Error(t, err, "pairing is validated before any fetch")
	assert.Zero(t, svc.calls)
}

func TestRunProjection(t *testing.T) {
	s, err := schema.New("items", []schema.FieldSpec{
		{Name: "id", Scalar: schema.Integer},
		{Name: "note", Scalar: schema.Text, Nullable: true},
	})
	require.NoError(t, err)

	desc, err := query.NewBuilder(s).Select("id").Build()
	require.NoError(t, err)

	svc := newFakeService(3)
	e, err := New(svc, 10, 2)
	require.NoError(t, err)

	var buf bytes.Buffer
	summary, err := e.Run(context.Background(), "items", s, desc, Target{
		Backend: ndjsonBackend{},
		Options: columnar.Options{Format: columnar.FormatNDJSON},
		Out:     &buf,
	})
	require.NoError(t, err)
	assert.EqualValues(t, 3, summary.RowsWritten)
	assert.NotContains(t, buf.String(), "note")
}
