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
	original := []byte(strings.Repeat(`{"Name":"account","DisplayName":"Account","RecordCount":5000,"Size":1234}`+"\n", 200))

	for _, a := range Algorithms() {
		t.Run(string(a), func(t *testing.T) {
			var compressed bytes.Buffer
			w, err := NewWriter(&compressed, a)
			require.NoError(t, err)
			_, err = w.Write(original)
			require.NoError(t, err)
			require.NoError(t, w.Close())
			if a != None {
				assert.Less(t, compressed.Len(), len(original))
			}

			r, err := NewReader(&compressed, a)
			require.NoError(t, err)
			defer r.Close()
			decompressed, err := io.ReadAll(r)
			require.NoError(t, err)
			assert.True(t, bytes.Equal(original, decompressed))
		})
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		in      string
		want    Algorithm
		wantErr bool
	}{
		{in: "", want: None},
		{in: "none", want: None},
		{in: "GZIP", want: Gzip},
		{in: " zstd ", want: Zstd},
		{in: "lz4", want: LZ4},
		{in: "snappy", want: Snappy},
		{in: "brotli", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Parse(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtension(t *testing.T) {
	assert.Equal(t, ".gz", Gzip.Extension())
	assert.Equal(t, ".zst", Zstd.Extension())
	assert.Equal(t, ".sz", Snappy.Extension())
	assert.Equal(t, ".lz4", LZ4.Extension())
	assert.Empty(t, None.Extension())

	assert.Equal(t, "gzip", Gzip.ContentEncoding())
	assert.Empty(t, LZ4.ContentEncoding())
}

func TestUnsupportedAlgorithm(t *testing.T) {
	_, err := NewWriter(&bytes.Buffer{}, "rar")
	assert.Error(t, err)

	_, err = NewReader(&bytes.Buffer{}, "rar")
	assert.Error(t, err)
}
