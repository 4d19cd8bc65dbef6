package compression

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	payload := strings.Repeat("{\"id\":7,\"price\":19.9}\n", 500)

	for _, algo := range []Algorithm{None, Gzip, Snappy, LZ4, Zstd, S2, Deflate} {
		t.Run(string(algo), func(t *testing.T) {
			var buf bytes.Buffer
			w, err := algo.NewWriter(&buf)
			require.NoError(t, err)
			_, err = io.WriteString(w, payload)
			require.NoError(t, err)
			require.NoError(t, w.Close())

			r, err := algo.NewReader(bytes.NewReader(buf.Bytes()))
			require.NoError(t, err)
			got, err := io.ReadAll(r)
			require.NoError(t, err)
			require.NoError(t, r.Close())
			assert.Equal(t, payload, string(got))

			if algo != None {
				assert.Less(t, buf.Len(), len(payload))
			}
		})
	}
}

func TestParse(t *testing.T) {
	algo, err := Parse("")
	require.NoError(t, err)
	assert.Equal(t, None, algo)

	algo, err = Parse("zstd")
	require.NoError(t, err)
	assert.Equal(t, Zstd, algo)

	_, err = Parse("brotli")
	require.Error(t, err)
}
