// Package columnar defines the backend-neutral contract for turning parsed
// record trees into columnar output. Concrete runtimes live in the arrowcol
// and parquetcol subpackages and register themselves here.
package columnar

import (
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/tabfetch/tabfetch/pkg/schema"
	"github.com/tabfetch/tabfetch/pkg/taberrors"
)

// Format names an on-disk encoding a backend can emit.
type Format string

const (
	// FormatArrowStream is the Arrow IPC stream encoding.
	FormatArrowStream Format = "arrow"
	// FormatParquet is the Parquet file encoding.
	FormatParquet Format = "parquet"
	// FormatNDJSON is newline-delimited JSON, one record per line.
	FormatNDJSON Format = "ndjson"
)

// Options configure a writer at open time.
type Options struct {
	Format Format
	// Compression names a codec. Parquet writers apply it to column
	// chunks, NDJSON writers wrap the whole stream. Empty means
	// uncompressed.
	Compression string
}

// Writer receives typed row batches and encodes them. Each WriteBatch call
// maps to one unit of the output's native chunking. Close finalizes the
// output; writing after Close is an error.
type Writer interface {
	WriteBatch(rows []Row) error
	Close() error
}

// Backend is a columnar runtime: it knows which formats it can emit and
// opens writers bound to a schema.
type Backend interface {
	Name() string
	Supports(f Format) bool
	NewWriter(w io.Writer, s *schema.Schema, opts Options) (Writer, error)
}

var (
	registryMu sync.RWMutex
	registry   = map[string]Backend{}
)

// Register makes a backend available by name. Backends call this from
// their init.
func Register(b Backend) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[b.Name()]; dup {
		panic(fmt.Sprintf("columnar: backend %q registered twice", b.Name()))
	}
	registry[b.Name()] = b
}

// Lookup returns the named backend, or a config error listing the known
// names when it is absent.
func Lookup(name string) (Backend, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	b, ok := registry[name]
	if !ok {
		return nil, taberrors.New(taberrors.ErrorTypeConfig, "unknown columnar backend").
			WithDetail("backend", name).
			WithDetail("known", Backends())
	}
	return b, nil
}

// Backends lists the registered backend names in sorted order.
func Backends() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks the backend/format pairing before any fetching starts,
// so an unsupported combination fails fast instead of after a partial run.
func Validate(b Backend, f Format) error {
	if !b.Supports(f) {
		return taberrors.New(taberrors.ErrorTypeConfig, "backend does not support format").
			WithDetail("backend", b.Name()).
			WithDetail("format", string(f))
	}
	return nil
}
