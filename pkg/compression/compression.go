// Package compression wraps the stream codecs used by line-oriented sinks.
// All codecs expose plain io.WriteCloser / io.ReadCloser pairs so sinks can
// stay codec-agnostic.
package compression

import (
	"compress/flate"
	"compress/gzip"
	"io"

	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/tabfetch/tabfetch/pkg/taberrors"
)

// Algorithm names a stream codec.
type Algorithm string

const (
	None    Algorithm = "none"
	Gzip    Algorithm = "gzip"
	Snappy  Algorithm = "snappy"
	LZ4     Algorithm = "lz4"
	Zstd    Algorithm = "zstd"
	S2      Algorithm = "s2"
	Deflate Algorithm = "deflate"
)

// Parse maps a config string to an algorithm. The empty string means no
// compression.
func Parse(name string) (Algorithm, error) {
	switch Algorithm(name) {
	case "", None:
		return None, nil
	case Gzip, Snappy, LZ4, Zstd, S2, Deflate:
		return Algorithm(name), nil
	default:
		return None, taberrors.New(taberrors.ErrorTypeConfig, "unknown compression algorithm").
			WithDetail("algorithm", name)
	}
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// NewWriter wraps w with the algorithm's stream encoder. Closing the
// returned writer flushes the codec but leaves w open.
func (a Algorithm) NewWriter(w io.Writer) (io.WriteCloser, error) {
	switch a {
	case None:
		return nopWriteCloser{w}, nil
	case Gzip:
		return gzip.NewWriter(w), nil
	case Snappy:
		return snappy.NewBufferedWriter(w), nil
	case LZ4:
		return lz4.NewWriter(w), nil
	case Zstd:
		zw, err := zstd.NewWriter(w)
		if err != nil {
			return nil, taberrors.Wrap(err, taberrors.ErrorTypeWrite, "open zstd stream")
		}
		return zw, nil
	case S2:
		return s2.NewWriter(w), nil
	case Deflate:
		fw, err := flate.NewWriter(w, flate.DefaultCompression)
		if err != nil {
			return nil, taberrors.Wrap(err, taberrors.ErrorTypeWrite, "open deflate stream")
		}
		return fw, nil
	default:
		return nil, taberrors.New(taberrors.ErrorTypeConfig, "unknown compression algorithm").
			WithDetail("algorithm", string(a))
	}
}

// NewReader wraps r with the algorithm's stream decoder.
func (a Algorithm) NewReader(r io.Reader) (io.ReadCloser, error) {
	switch a {
	case None:
		return io.NopCloser(r), nil
	case Gzip:
		gr, err := gzip.NewReader(r)
		if err != nil {
			return nil, taberrors.Wrap(err, taberrors.ErrorTypeParse, "open gzip stream")
		}
		return gr, nil
	case Snappy:
		return io.NopCloser(snappy.NewReader(r)), nil
	case LZ4:
		return io.NopCloser(lz4.NewReader(r)), nil
	case Zstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, taberrors.Wrap(err, taberrors.ErrorTypeParse, "open zstd stream")
		}
		return zr.IOReadCloser(), nil
	case S2:
		return io.NopCloser(s2.NewReader(r)), nil
	case Deflate:
		return flate.NewReader(r), nil
	default:
		return nil, taberrors.New(taberrors.ErrorTypeConfig, "unknown compression algorithm").
			WithDetail("algorithm", string(a))
	}
}
