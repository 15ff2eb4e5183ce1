package tiles

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// DefaultExt is the extension of tiles in the published datasets.
const DefaultExt = ".json.gz"

var zstdDecoder = sync.OnceValues(func() (*zstd.Decoder, error) {
	return zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
})

// decompress picks the codec by the file extension; unknown extensions are read as is.
func decompress(ext string, data []byte) ([]byte, error) {
	switch {
	case strings.HasSuffix(ext, ".gz"):
		r, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return io.ReadAll(r)
	case strings.HasSuffix(ext, ".zst"):
		dec, err := zstdDecoder()
		if err != nil {
			return nil, fmt.Errorf("can`t create zstd reader: %w", err)
		}
		return dec.DecodeAll(data, nil)
	default:
		return data, nil
	}
}

// Compress encodes a tile payload the way decompress expects it for ext.
func Compress(ext string, payload []byte) ([]byte, error) {
	switch {
	case strings.HasSuffix(ext, ".gz"):
		buf := &bytes.Buffer{}
		w := gzip.NewWriter(buf)
		if _, err := w.Write(payload); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case strings.HasSuffix(ext, ".zst"):
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, err
		}
		defer enc.Close()
		return enc.EncodeAll(payload, nil), nil
	default:
		return payload, nil
	}
}
